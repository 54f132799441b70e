package server

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/adapter/http/dto"
	grpcerrors "github.com/iho/microloan/internal/adapter/grpc/errors"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// LoanService is the loan read and origination surface.
type LoanService interface {
	Quote(t domain.Terms) (domain.Quote, error)
	CreateLoan(ctx context.Context, input usecase.CreateLoanInput) (*domain.LoanBook, error)
	GetLoan(ctx context.Context, id string) (*domain.LoanBook, error)
	ListLoans(ctx context.Context, input usecase.ListLoansInput) ([]*domain.Loan, error)
}

// PaymentService is the installment transition surface.
type PaymentService interface {
	PayInstallment(ctx context.Context, cmd usecase.LoanCommand, number int, amount decimal.Decimal) (*domain.LoanBook, error)
	SubmitPrepayment(ctx context.Context, cmd usecase.LoanCommand, number int, amount decimal.Decimal, proofRef string) (*domain.LoanBook, error)
	ConfirmPrepayment(ctx context.Context, cmd usecase.LoanCommand, number int) (*domain.LoanBook, error)
	RejectPrepayment(ctx context.Context, cmd usecase.LoanCommand, number int, reason string) (*domain.LoanBook, error)
	CancelLoan(ctx context.Context, cmd usecase.LoanCommand, total decimal.Decimal) (*domain.LoanBook, error)
	Reschedule(ctx context.Context, cmd usecase.LoanCommand, rate decimal.Decimal) (*domain.LoanBook, error)
}

// ReconciliationService re-verifies a stored book.
type ReconciliationService interface {
	ReconcileLoan(ctx context.Context, id string) (*usecase.ReconciliationResult, error)
}

// LoanServer implements LoanServiceServer on top of the use cases.
type LoanServer struct {
	loanUC    LoanService
	paymentUC PaymentService
	reconUC   ReconciliationService
}

// NewLoanServer creates a new LoanServer.
func NewLoanServer(loanUC LoanService, paymentUC PaymentService, reconUC ReconciliationService) *LoanServer {
	return &LoanServer{loanUC: loanUC, paymentUC: paymentUC, reconUC: reconUC}
}

func (s *LoanServer) Quote(_ context.Context, req *dto.TermsRequest) (*dto.QuoteResponse, error) {
	terms, err := req.ToTerms()
	if err != nil {
		return nil, grpcerrors.MapDomainError(err)
	}

	q, err := s.loanUC.Quote(terms)
	if err != nil {
		return nil, grpcerrors.MapDomainError(err)
	}

	resp := dto.QuoteFromDomain(q)
	return &resp, nil
}

func (s *LoanServer) CreateLoan(ctx context.Context, req *dto.CreateLoanRequest) (*dto.LoanBookResponse, error) {
	input, err := req.ToUseCaseInput(advisorID(ctx))
	if err != nil {
		return nil, grpcerrors.MapDomainError(err)
	}

	return s.book(s.loanUC.CreateLoan(ctx, input))
}

func (s *LoanServer) GetLoan(ctx context.Context, req *LoanRef) (*dto.LoanBookResponse, error) {
	return s.book(s.loanUC.GetLoan(ctx, req.LoanID))
}

func (s *LoanServer) ListLoans(ctx context.Context, req *ListLoansRequest) (*dto.ListResponse[*dto.LoanResponse], error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	loans, err := s.loanUC.ListLoans(ctx, usecase.ListLoansInput{
		Status:    domain.LoanStatus(req.Status),
		ClientID:  req.ClientID,
		AdvisorID: req.AdvisorID,
		GroupID:   req.GroupID,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		return nil, grpcerrors.MapDomainError(err)
	}

	return &dto.ListResponse[*dto.LoanResponse]{
		Data:   dto.LoansFromDomain(loans),
		Limit:  req.Limit,
		Offset: req.Offset,
	}, nil
}

func (s *LoanServer) PayInstallment(ctx context.Context, req *PayInstallmentRequest) (*dto.LoanBookResponse, error) {
	return s.book(s.paymentUC.PayInstallment(ctx, req.Command(req.LoanID), req.Number, req.Amount))
}

func (s *LoanServer) SubmitPrepayment(ctx context.Context, req *SubmitPrepaymentRequest) (*dto.LoanBookResponse, error) {
	return s.book(s.paymentUC.SubmitPrepayment(ctx, req.Command(req.LoanID), req.Number, req.Amount, req.ProofRef))
}

func (s *LoanServer) ConfirmPrepayment(ctx context.Context, req *ConfirmPrepaymentRequest) (*dto.LoanBookResponse, error) {
	return s.book(s.paymentUC.ConfirmPrepayment(ctx, req.Command(req.LoanID), req.Number))
}

func (s *LoanServer) RejectPrepayment(ctx context.Context, req *RejectPrepaymentRequest) (*dto.LoanBookResponse, error) {
	return s.book(s.paymentUC.RejectPrepayment(ctx, req.Command(req.LoanID), req.Number, req.Reason))
}

func (s *LoanServer) CancelLoan(ctx context.Context, req *CancelLoanRequest) (*dto.LoanBookResponse, error) {
	return s.book(s.paymentUC.CancelLoan(ctx, req.Command(req.LoanID), req.Total))
}

func (s *LoanServer) Reschedule(ctx context.Context, req *RescheduleRequest) (*dto.LoanBookResponse, error) {
	return s.book(s.paymentUC.Reschedule(ctx, req.Command(req.LoanID), req.InterestRate))
}

func (s *LoanServer) ReconcileLoan(ctx context.Context, req *LoanRef) (*dto.ReconciliationResponse, error) {
	result, err := s.reconUC.ReconcileLoan(ctx, req.LoanID)
	if err != nil {
		return nil, grpcerrors.MapDomainError(err)
	}
	return dto.ReconciliationFromUseCase(result), nil
}

func (s *LoanServer) book(b *domain.LoanBook, err error) (*dto.LoanBookResponse, error) {
	if err != nil {
		return nil, grpcerrors.MapDomainError(err)
	}
	return dto.LoanBookFromDomain(b), nil
}

// advisorID returns the caller's ID when an advisor is originating.
func advisorID(ctx context.Context) string {
	if u, ok := domain.UserFromContext(ctx); ok && u.Role == domain.RoleAdvisor {
		return u.ID
	}
	return ""
}
