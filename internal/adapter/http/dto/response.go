package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// QuoteResponse represents loan totals in API responses.
type QuoteResponse struct {
	OtherFees          decimal.Decimal `json:"other_fees"`
	Interest           decimal.Decimal `json:"interest"`
	TotalPayable       decimal.Decimal `json:"total_payable"`
	InstallmentAmount  decimal.Decimal `json:"installment_amount"`
	PercentOfPrincipal decimal.Decimal `json:"percent_of_principal"`
}

// QuoteFromDomain converts a domain quote to response.
func QuoteFromDomain(q domain.Quote) QuoteResponse {
	return QuoteResponse{
		OtherFees:          q.OtherFees,
		Interest:           q.Interest,
		TotalPayable:       q.TotalPayable,
		InstallmentAmount:  q.InstallmentAmount,
		PercentOfPrincipal: q.PercentOfPrincipal,
	}
}

// ScheduleResponse is a quote with its installment plan, nothing persisted.
type ScheduleResponse struct {
	Quote        QuoteResponse          `json:"quote"`
	Installments []*InstallmentResponse `json:"installments"`
}

// ScheduleFromDomain converts a projected schedule to response.
func ScheduleFromDomain(installments []domain.Installment, q domain.Quote) *ScheduleResponse {
	return &ScheduleResponse{
		Quote:        QuoteFromDomain(q),
		Installments: InstallmentsFromDomain(installments),
	}
}

// InstallmentResponse represents one installment in API responses.
type InstallmentResponse struct {
	Number               int                      `json:"number"`
	DueDate              string                   `json:"due_date"`
	Status               domain.InstallmentStatus `json:"status"`
	PrincipalPortion     decimal.Decimal          `json:"principal_portion"`
	InterestPortion      decimal.Decimal          `json:"interest_portion"`
	OtherPortion         decimal.Decimal          `json:"other_portion"`
	Amount               decimal.Decimal          `json:"amount"`
	CarriedSurplus       decimal.Decimal          `json:"carried_surplus"`
	AmountDue            decimal.Decimal          `json:"amount_due"`
	DaysOverdue          int                      `json:"days_overdue"`
	MoraAmount           decimal.Decimal          `json:"mora_amount"`
	MoraReductionPercent decimal.Decimal          `json:"mora_reduction_percent"`
	TotalDue             decimal.Decimal          `json:"total_due"`
	AmountPaid           decimal.Decimal          `json:"amount_paid"`
	PaidAt               *time.Time               `json:"paid_at,omitempty"`
	OperationRef         string                   `json:"operation_ref,omitempty"`
	ProofRef             string                   `json:"proof_ref,omitempty"`
	PrepaidAmount        decimal.Decimal          `json:"prepaid_amount"`
	RejectionReason      string                   `json:"rejection_reason,omitempty"`
	Observations         string                   `json:"observations,omitempty"`
}

// InstallmentFromDomain converts a domain installment to response.
func InstallmentFromDomain(in *domain.Installment) *InstallmentResponse {
	return &InstallmentResponse{
		Number:               in.Number,
		DueDate:              in.DueDate.Format(DateLayout),
		Status:               in.Status,
		PrincipalPortion:     in.PrincipalPortion,
		InterestPortion:      in.InterestPortion,
		OtherPortion:         in.OtherPortion,
		Amount:               in.Amount,
		CarriedSurplus:       in.CarriedSurplus,
		AmountDue:            in.AmountDue(),
		DaysOverdue:          in.DaysOverdue,
		MoraAmount:           in.MoraAmount,
		MoraReductionPercent: in.MoraReductionPercent,
		TotalDue:             in.TotalDue(),
		AmountPaid:           in.AmountPaid,
		PaidAt:               in.PaidAt,
		OperationRef:         in.OperationRef,
		ProofRef:             in.ProofRef,
		PrepaidAmount:        in.PrepaidAmount,
		RejectionReason:      in.RejectionReason,
		Observations:         in.Observations,
	}
}

// InstallmentsFromDomain converts domain installments to responses.
func InstallmentsFromDomain(installments []domain.Installment) []*InstallmentResponse {
	result := make([]*InstallmentResponse, len(installments))
	for i := range installments {
		result[i] = InstallmentFromDomain(&installments[i])
	}
	return result
}

// LoanResponse represents a loan header in API responses.
type LoanResponse struct {
	ID                string            `json:"id"`
	ClientID          string            `json:"client_id"`
	AdvisorID         string            `json:"advisor_id"`
	GroupID           string            `json:"group_id,omitempty"`
	Principal         decimal.Decimal   `json:"principal"`
	InterestRate      decimal.Decimal   `json:"interest_rate"`
	TermCount         int               `json:"term_count"`
	Frequency         domain.Frequency  `json:"frequency"`
	OtherFeesRate     decimal.Decimal   `json:"other_fees_rate"`
	StartDate         string            `json:"start_date"`
	TotalPayable      decimal.Decimal   `json:"total_payable"`
	InstallmentAmount decimal.Decimal   `json:"installment_amount"`
	Status            domain.LoanStatus `json:"status"`
	RescheduleCount   int               `json:"reschedule_count"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// LoanFromDomain converts a domain loan to response.
func LoanFromDomain(l *domain.Loan) *LoanResponse {
	return &LoanResponse{
		ID:                l.ID,
		ClientID:          l.ClientID,
		AdvisorID:         l.AdvisorID,
		GroupID:           l.GroupID,
		Principal:         l.Principal,
		InterestRate:      l.InterestRate,
		TermCount:         l.TermCount,
		Frequency:         l.Frequency,
		OtherFeesRate:     l.OtherFeesRate,
		StartDate:         l.StartDate.Format(DateLayout),
		TotalPayable:      l.TotalPayable,
		InstallmentAmount: l.InstallmentAmount,
		Status:            l.Status,
		RescheduleCount:   l.RescheduleCount,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}

// LoansFromDomain converts domain loans to responses.
func LoansFromDomain(loans []*domain.Loan) []*LoanResponse {
	result := make([]*LoanResponse, len(loans))
	for i, l := range loans {
		result[i] = LoanFromDomain(l)
	}
	return result
}

// LoanBookResponse is a loan with its installments and the version a
// client must echo back on its next mutation.
type LoanBookResponse struct {
	*LoanResponse
	Version      int64                  `json:"version"`
	Outstanding  decimal.Decimal        `json:"outstanding"`
	Installments []*InstallmentResponse `json:"installments"`
}

// LoanBookFromDomain converts a domain book to response.
func LoanBookFromDomain(b *domain.LoanBook) *LoanBookResponse {
	return &LoanBookResponse{
		LoanResponse: LoanFromDomain(&b.Loan),
		Version:      b.Version,
		Outstanding:  b.Outstanding(),
		Installments: InstallmentsFromDomain(b.Installments),
	}
}

// LoanGroupResponse represents a loan group in API responses.
type LoanGroupResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	AdvisorID string              `json:"advisor_id"`
	LoanIDs   []string            `json:"loan_ids"`
	Loans     []*LoanBookResponse `json:"loans,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// LoanGroupFromDomain converts a group and, when given, its books.
func LoanGroupFromDomain(g *domain.LoanGroup, books []*domain.LoanBook) *LoanGroupResponse {
	resp := &LoanGroupResponse{
		ID:        g.ID,
		Name:      g.Name,
		AdvisorID: g.AdvisorID,
		LoanIDs:   g.LoanIDs,
		CreatedAt: g.CreatedAt,
	}
	if resp.LoanIDs == nil {
		resp.LoanIDs = []string{}
	}
	for _, b := range books {
		resp.Loans = append(resp.Loans, LoanBookFromDomain(b))
	}
	return resp
}

// ProofResponse represents stored proof metadata. Content is never echoed.
type ProofResponse struct {
	ID          string    `json:"id"`
	LoanID      string    `json:"loan_id"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	Checksum    string    `json:"checksum"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProofFromDomain converts a domain proof to response.
func ProofFromDomain(p *domain.PaymentProof) *ProofResponse {
	return &ProofResponse{
		ID:          p.ID,
		LoanID:      p.LoanID,
		ContentType: p.ContentType,
		Size:        len(p.Content),
		Checksum:    p.Checksum,
		UploadedBy:  p.UploadedBy,
		CreatedAt:   p.CreatedAt,
	}
}

// SweepResponse summarises an overdue refresh run.
type SweepResponse struct {
	LoansScanned        int       `json:"loans_scanned"`
	LoansUpdated        int       `json:"loans_updated"`
	LoansSkipped        int       `json:"loans_skipped"`
	OverdueInstallments int       `json:"overdue_installments"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
}

// SweepFromUseCase converts a sweep result to response.
func SweepFromUseCase(r *usecase.SweepResult) *SweepResponse {
	return &SweepResponse{
		LoansScanned:        r.LoansScanned,
		LoansUpdated:        r.LoansUpdated,
		LoansSkipped:        r.LoansSkipped,
		OverdueInstallments: r.OverdueInstallments,
		StartedAt:           r.StartedAt,
		FinishedAt:          r.FinishedAt,
	}
}

// ReconciliationResponse is the invariant check of one loan.
type ReconciliationResponse struct {
	LoanID        string               `json:"loan_id"`
	Version       int64                `json:"version"`
	TotalPayable  decimal.Decimal      `json:"total_payable"`
	TotalPaid     decimal.Decimal      `json:"total_paid"`
	Outstanding   decimal.Decimal      `json:"outstanding"`
	IsReconciled  bool                 `json:"is_reconciled"`
	Discrepancies []domain.Discrepancy `json:"discrepancies"`
	LastChecked   time.Time            `json:"last_checked"`
}

// ReconciliationFromUseCase converts a reconciliation result to response.
func ReconciliationFromUseCase(r *usecase.ReconciliationResult) *ReconciliationResponse {
	resp := &ReconciliationResponse{
		LoanID:        r.LoanID,
		Version:       r.Version,
		TotalPayable:  r.TotalPayable,
		TotalPaid:     r.TotalPaid,
		Outstanding:   r.Outstanding,
		IsReconciled:  r.IsReconciled,
		Discrepancies: r.Discrepancies,
		LastChecked:   r.LastChecked,
	}
	if resp.Discrepancies == nil {
		resp.Discrepancies = []domain.Discrepancy{}
	}
	return resp
}

// ReconciliationReportResponse lists the loans that failed a check.
type ReconciliationReportResponse struct {
	TotalLoans      int                       `json:"total_loans"`
	ReconciledLoans int                       `json:"reconciled_loans"`
	Discrepancies   []*ReconciliationResponse `json:"discrepancies"`
	CheckedAt       time.Time                 `json:"checked_at"`
}

// ReconciliationReportFromUseCase converts a report to response.
func ReconciliationReportFromUseCase(r *usecase.ReconciliationReport) *ReconciliationReportResponse {
	resp := &ReconciliationReportResponse{
		TotalLoans:      r.TotalLoans,
		ReconciledLoans: r.ReconciledLoans,
		Discrepancies:   make([]*ReconciliationResponse, len(r.Discrepancies)),
		CheckedAt:       r.CheckedAt,
	}
	for i, d := range r.Discrepancies {
		resp.Discrepancies[i] = ReconciliationFromUseCase(d)
	}
	return resp
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}

// ListResponse wraps paginated list responses.
type ListResponse[T any] struct {
	Data   []T `json:"data"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
