package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// TermsRequest carries the inputs shared by quotes, schedules and loans.
type TermsRequest struct {
	Principal     decimal.Decimal  `json:"principal"`
	InterestRate  decimal.Decimal  `json:"interest_rate"`
	TermCount     int              `json:"term_count"`
	Frequency     domain.Frequency `json:"frequency"`
	OtherFeesRate decimal.Decimal  `json:"other_fees_rate"`
	StartDate     string           `json:"start_date,omitempty"`
}

// ToTerms converts to domain terms. Quotes do not need a start date, so an
// empty one is left zero here and rejected where a schedule is built.
func (r *TermsRequest) ToTerms() (domain.Terms, error) {
	start, err := parseDate(r.StartDate)
	if err != nil {
		return domain.Terms{}, err
	}
	return domain.Terms{
		Principal:     r.Principal,
		InterestRate:  r.InterestRate,
		TermCount:     r.TermCount,
		Frequency:     domain.Frequency(strings.ToLower(string(r.Frequency))),
		OtherFeesRate: r.OtherFeesRate,
		StartDate:     start,
	}, nil
}

// CreateLoanRequest represents a request to originate a loan.
type CreateLoanRequest struct {
	TermsRequest
	ClientID  string `json:"client_id"`
	AdvisorID string `json:"advisor_id,omitempty"`
}

// ToUseCaseInput converts to use case input. A non-empty advisorID, the
// authenticated user, takes precedence over the body.
func (r *CreateLoanRequest) ToUseCaseInput(advisorID string) (usecase.CreateLoanInput, error) {
	if advisorID == "" {
		advisorID = r.AdvisorID
	}
	terms, err := r.ToTerms()
	if err != nil {
		return usecase.CreateLoanInput{}, err
	}
	return usecase.CreateLoanInput{
		ClientID:      r.ClientID,
		AdvisorID:     advisorID,
		Principal:     terms.Principal,
		InterestRate:  terms.InterestRate,
		TermCount:     terms.TermCount,
		Frequency:     terms.Frequency,
		OtherFeesRate: terms.OtherFeesRate,
		StartDate:     terms.StartDate,
	}, nil
}

// CreateLoanGroupRequest represents a request to originate a group of loans.
type CreateLoanGroupRequest struct {
	Name      string              `json:"name"`
	AdvisorID string              `json:"advisor_id,omitempty"`
	Loans     []CreateLoanRequest `json:"loans"`
}

// ToUseCaseInput converts to use case input. Every member loan is booked
// under the group's advisor.
func (r *CreateLoanGroupRequest) ToUseCaseInput(advisorID string) (usecase.CreateLoanGroupInput, error) {
	if advisorID == "" {
		advisorID = r.AdvisorID
	}
	input := usecase.CreateLoanGroupInput{
		Name:      r.Name,
		AdvisorID: advisorID,
		Loans:     make([]usecase.CreateLoanInput, 0, len(r.Loans)),
	}
	for i := range r.Loans {
		loan, err := r.Loans[i].ToUseCaseInput(advisorID)
		if err != nil {
			return usecase.CreateLoanGroupInput{}, fmt.Errorf("loans[%d]: %w", i, err)
		}
		input.Loans = append(input.Loans, loan)
	}
	return input, nil
}

// VersionedRequest is embedded by every request that changes a loan book.
type VersionedRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

// Command builds the use case command for the given loan.
func (r VersionedRequest) Command(loanID string) usecase.LoanCommand {
	return usecase.LoanCommand{LoanID: loanID, ExpectedVersion: r.ExpectedVersion}
}

// PayInstallmentRequest records a payment against one installment.
type PayInstallmentRequest struct {
	VersionedRequest
	Amount decimal.Decimal `json:"amount"`
}

// CancelLoanRequest settles every open installment at once.
type CancelLoanRequest struct {
	VersionedRequest
	Total decimal.Decimal `json:"total"`
}

// RescheduleRequest replaces the open installments with a new plan.
type RescheduleRequest struct {
	VersionedRequest
	InterestRate decimal.Decimal `json:"interest_rate"`
}

// SettlementRequest closes a loan by agreement.
type SettlementRequest struct {
	VersionedRequest
	OnlyPrincipal bool `json:"only_principal"`
}

// PrepaymentRequest submits a payment awaiting confirmation.
type PrepaymentRequest struct {
	VersionedRequest
	Amount   decimal.Decimal `json:"amount"`
	ProofRef string          `json:"proof_ref"`
}

// RejectPrepaymentRequest rejects a submitted prepayment.
type RejectPrepaymentRequest struct {
	VersionedRequest
	Reason string `json:"reason"`
}

// MoraReductionRequest reduces the late fee on one installment.
type MoraReductionRequest struct {
	VersionedRequest
	Percent decimal.Decimal `json:"percent"`
}

// ObservationsRequest replaces the free-text notes on one installment.
type ObservationsRequest struct {
	VersionedRequest
	Observations string `json:"observations"`
}

// UploadProofRequest carries a payment receipt. Content is base64 in JSON.
type UploadProofRequest struct {
	LoanID      string `json:"loan_id"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// ToUseCaseInput converts to use case input.
func (r *UploadProofRequest) ToUseCaseInput() usecase.UploadProofInput {
	return usecase.UploadProofInput{
		LoanID:      r.LoanID,
		ContentType: r.ContentType,
		Content:     r.Content,
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD", domain.ErrInvalidInput)
	}
	return t, nil
}
