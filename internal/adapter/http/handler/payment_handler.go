package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/adapter/http/dto"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// PaymentService defines the book-changing operations PaymentHandler exposes.
type PaymentService interface {
	PayInstallment(ctx context.Context, cmd usecase.LoanCommand, number int, amount decimal.Decimal) (*domain.LoanBook, error)
	CancelLoan(ctx context.Context, cmd usecase.LoanCommand, total decimal.Decimal) (*domain.LoanBook, error)
	Reschedule(ctx context.Context, cmd usecase.LoanCommand, rate decimal.Decimal) (*domain.LoanBook, error)
	SettleByAgreement(ctx context.Context, cmd usecase.LoanCommand, onlyPrincipal bool) (*domain.LoanBook, error)
	SubmitPrepayment(ctx context.Context, cmd usecase.LoanCommand, number int, amount decimal.Decimal, proofRef string) (*domain.LoanBook, error)
	ConfirmPrepayment(ctx context.Context, cmd usecase.LoanCommand, number int) (*domain.LoanBook, error)
	RejectPrepayment(ctx context.Context, cmd usecase.LoanCommand, number int, reason string) (*domain.LoanBook, error)
	ApplyMoraReduction(ctx context.Context, cmd usecase.LoanCommand, number int, pct decimal.Decimal) (*domain.LoanBook, error)
	UpdateObservations(ctx context.Context, cmd usecase.LoanCommand, number int, text string) (*domain.LoanBook, error)
}

// PaymentHandler handles payments and the other installment transitions.
// Every response carries the new book version.
type PaymentHandler struct {
	paymentUC PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentUC PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentUC: paymentUC}
}

// Pay records a payment against one installment.
func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req dto.PayInstallmentRequest
	n, ok := decodeInstallmentRequest(w, r, &req)
	if !ok {
		return
	}

	book, err := h.paymentUC.PayInstallment(r.Context(), req.Command(chi.URLParam(r, "id")), n, req.Amount)
	respondBook(w, "failed to pay installment", book, err)
}

// Cancel pays off every open installment in one operation.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	book, err := h.paymentUC.CancelLoan(r.Context(), req.Command(chi.URLParam(r, "id")), req.Total)
	respondBook(w, "failed to cancel loan", book, err)
}

// Reschedule replaces the open installments with a new plan.
func (h *PaymentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req dto.RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	book, err := h.paymentUC.Reschedule(r.Context(), req.Command(chi.URLParam(r, "id")), req.InterestRate)
	respondBook(w, "failed to reschedule loan", book, err)
}

// Settle closes the loan by agreement.
func (h *PaymentHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req dto.SettlementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	book, err := h.paymentUC.SettleByAgreement(r.Context(), req.Command(chi.URLParam(r, "id")), req.OnlyPrincipal)
	respondBook(w, "failed to settle loan", book, err)
}

// SubmitPrepayment records a payment that awaits confirmation.
func (h *PaymentHandler) SubmitPrepayment(w http.ResponseWriter, r *http.Request) {
	var req dto.PrepaymentRequest
	n, ok := decodeInstallmentRequest(w, r, &req)
	if !ok {
		return
	}

	book, err := h.paymentUC.SubmitPrepayment(r.Context(), req.Command(chi.URLParam(r, "id")), n, req.Amount, req.ProofRef)
	respondBook(w, "failed to submit prepayment", book, err)
}

// ConfirmPrepayment turns a prepaid installment into a paid one.
func (h *PaymentHandler) ConfirmPrepayment(w http.ResponseWriter, r *http.Request) {
	var req dto.VersionedRequest
	n, ok := decodeInstallmentRequest(w, r, &req)
	if !ok {
		return
	}

	book, err := h.paymentUC.ConfirmPrepayment(r.Context(), req.Command(chi.URLParam(r, "id")), n)
	respondBook(w, "failed to confirm prepayment", book, err)
}

// RejectPrepayment restores a prepaid installment to its prior status.
func (h *PaymentHandler) RejectPrepayment(w http.ResponseWriter, r *http.Request) {
	var req dto.RejectPrepaymentRequest
	n, ok := decodeInstallmentRequest(w, r, &req)
	if !ok {
		return
	}

	book, err := h.paymentUC.RejectPrepayment(r.Context(), req.Command(chi.URLParam(r, "id")), n, req.Reason)
	respondBook(w, "failed to reject prepayment", book, err)
}

// ReduceMora applies a one-time late fee reduction.
func (h *PaymentHandler) ReduceMora(w http.ResponseWriter, r *http.Request) {
	var req dto.MoraReductionRequest
	n, ok := decodeInstallmentRequest(w, r, &req)
	if !ok {
		return
	}

	book, err := h.paymentUC.ApplyMoraReduction(r.Context(), req.Command(chi.URLParam(r, "id")), n, req.Percent)
	respondBook(w, "failed to reduce mora", book, err)
}

// UpdateObservations replaces the notes on one installment.
func (h *PaymentHandler) UpdateObservations(w http.ResponseWriter, r *http.Request) {
	var req dto.ObservationsRequest
	n, ok := decodeInstallmentRequest(w, r, &req)
	if !ok {
		return
	}

	book, err := h.paymentUC.UpdateObservations(r.Context(), req.Command(chi.URLParam(r, "id")), n, req.Observations)
	respondBook(w, "failed to update observations", book, err)
}

func decodeInstallmentRequest(w http.ResponseWriter, r *http.Request, req any) (int, bool) {
	n, err := installmentNumber(r)
	if err != nil {
		writeDomainError(w, "invalid installment", err)
		return 0, false
	}
	if err := decodeJSON(w, r, req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return 0, false
	}
	return n, true
}

func respondBook(w http.ResponseWriter, message string, book *domain.LoanBook, err error) {
	if err != nil {
		writeDomainError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.LoanBookFromDomain(book))
}
