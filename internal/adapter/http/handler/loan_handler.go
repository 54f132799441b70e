package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/microloan/internal/adapter/http/dto"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// LoanService defines the behavior needed by LoanHandler.
type LoanService interface {
	Quote(t domain.Terms) (domain.Quote, error)
	Schedule(t domain.Terms) ([]domain.Installment, domain.Quote, error)
	CreateLoan(ctx context.Context, input usecase.CreateLoanInput) (*domain.LoanBook, error)
	CreateLoanGroup(ctx context.Context, input usecase.CreateLoanGroupInput) (*domain.LoanGroup, []*domain.LoanBook, error)
	GetLoan(ctx context.Context, id string) (*domain.LoanBook, error)
	GetLoanGroup(ctx context.Context, id string) (*domain.LoanGroup, error)
	ListLoans(ctx context.Context, input usecase.ListLoansInput) ([]*domain.Loan, error)
}

// LoanHandler handles quotes, origination and loan reads.
type LoanHandler struct {
	loanUC LoanService
}

// NewLoanHandler creates a new LoanHandler.
func NewLoanHandler(loanUC LoanService) *LoanHandler {
	return &LoanHandler{loanUC: loanUC}
}

// Quote computes loan totals without persisting anything.
func (h *LoanHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req dto.TermsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	terms, err := req.ToTerms()
	if err != nil {
		writeDomainError(w, "invalid terms", err)
		return
	}

	q, err := h.loanUC.Quote(terms)
	if err != nil {
		writeDomainError(w, "failed to compute quote", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.QuoteFromDomain(q))
}

// Schedule projects the installment plan for the given terms.
func (h *LoanHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req dto.TermsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	terms, err := req.ToTerms()
	if err != nil {
		writeDomainError(w, "invalid terms", err)
		return
	}

	installments, q, err := h.loanUC.Schedule(terms)
	if err != nil {
		writeDomainError(w, "failed to build schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ScheduleFromDomain(installments, q))
}

// Create originates a loan.
func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(advisorID(r))
	if err != nil {
		writeDomainError(w, "invalid loan", err)
		return
	}

	book, err := h.loanUC.CreateLoan(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create loan", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LoanBookFromDomain(book))
}

// Get retrieves a loan with its installments.
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing loan ID", "")
		return
	}

	book, err := h.loanUC.GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get loan", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoanBookFromDomain(book))
}

// List lists loan headers.
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := usecase.ListLoansInput{
		Status:    domain.LoanStatus(q.Get("status")),
		ClientID:  q.Get("client_id"),
		AdvisorID: q.Get("advisor_id"),
		GroupID:   q.Get("group_id"),
		Limit:     parseIntQuery(r, "limit", 20),
		Offset:    parseIntQuery(r, "offset", 0),
	}

	loans, err := h.loanUC.ListLoans(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to list loans", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListResponse[*dto.LoanResponse]{
		Data:   dto.LoansFromDomain(loans),
		Limit:  input.Limit,
		Offset: input.Offset,
	})
}

// CreateGroup originates a group of loans atomically.
func (h *LoanHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(advisorID(r))
	if err != nil {
		writeDomainError(w, "invalid loan group", err)
		return
	}

	group, books, err := h.loanUC.CreateLoanGroup(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create loan group", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LoanGroupFromDomain(group, books))
}

// GetGroup retrieves a loan group.
func (h *LoanHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.loanUC.GetLoanGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get loan group", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoanGroupFromDomain(group, nil))
}
