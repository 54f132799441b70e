package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/metrics"
)

// CreateLoanInput represents input for originating a loan.
type CreateLoanInput struct {
	ClientID      string
	AdvisorID     string
	Principal     decimal.Decimal
	InterestRate  decimal.Decimal
	TermCount     int
	Frequency     domain.Frequency
	OtherFeesRate decimal.Decimal
	StartDate     time.Time
}

func (in CreateLoanInput) terms() domain.Terms {
	return domain.Terms{
		Principal:     in.Principal,
		InterestRate:  in.InterestRate,
		TermCount:     in.TermCount,
		Frequency:     in.Frequency,
		OtherFeesRate: in.OtherFeesRate,
		StartDate:     in.StartDate,
	}
}

// CreateLoanGroupInput represents input for originating a group of loans
// under one advisor in a single transaction.
type CreateLoanGroupInput struct {
	Name      string
	AdvisorID string
	Loans     []CreateLoanInput
}

// ListLoansInput represents input for listing loans.
type ListLoansInput struct {
	Status    domain.LoanStatus
	ClientID  string
	AdvisorID string
	GroupID   string
	Limit     int
	Offset    int
}

type LoanUseCase struct {
	txManager  TransactionManager
	loanRepo   LoanRepository
	groupRepo  LoanGroupRepository
	outboxRepo OutboxRepository
	auditRepo  AuditRepository
	idGen      IDGenerator
	ledger     *domain.Ledger
	metrics    *metrics.Metrics
}

func NewLoanUseCase(
	txManager TransactionManager,
	loanRepo LoanRepository,
	groupRepo LoanGroupRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	ledger *domain.Ledger,
	metrics *metrics.Metrics,
) *LoanUseCase {
	return &LoanUseCase{
		txManager:  txManager,
		loanRepo:   loanRepo,
		groupRepo:  groupRepo,
		outboxRepo: outboxRepo,
		auditRepo:  auditRepo,
		idGen:      idGen,
		ledger:     ledger,
		metrics:    metrics,
	}
}

// Quote prices terms without persisting anything. A zero OtherFeesRate
// selects the default fee rate, as origination does.
func (uc *LoanUseCase) Quote(t domain.Terms) (domain.Quote, error) {
	if t.OtherFeesRate.IsZero() {
		t.OtherFeesRate = domain.DefaultOtherFeeRate
	}
	return domain.ComputeTerms(t)
}

// Schedule previews the installment plan terms would produce today.
func (uc *LoanUseCase) Schedule(t domain.Terms) ([]domain.Installment, domain.Quote, error) {
	if t.OtherFeesRate.IsZero() {
		t.OtherFeesRate = domain.DefaultOtherFeeRate
	}
	if err := domain.ValidateOriginationTerms(t); err != nil {
		return nil, domain.Quote{}, err
	}
	return domain.BuildSchedule(t, uc.ledger.Today(), nil)
}

func (uc *LoanUseCase) CreateLoan(ctx context.Context, input CreateLoanInput) (*domain.LoanBook, error) {
	if strings.TrimSpace(input.ClientID) == "" {
		return nil, fmt.Errorf("%w: client id is required", domain.ErrInvalidInput)
	}

	ref := domain.OperatorRef(ctx)
	book, ev, err := uc.ledger.Originate(domain.Loan{
		ID:        uc.idGen.Generate(),
		ClientID:  input.ClientID,
		AdvisorID: input.AdvisorID,
	}, input.terms(), ref)
	if err != nil {
		return nil, err
	}

	// Add transaction timeout
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.persistOrigination(txCtx, tx, book, ev, ref); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	uc.recordOrigination(book)
	return book, nil
}

func (uc *LoanUseCase) persistOrigination(ctx context.Context, tx Transaction, book *domain.LoanBook, ev domain.LedgerEvent, ref string) error {
	if err := uc.loanRepo.Create(ctx, tx, book); err != nil {
		return err
	}
	if err := uc.outboxRepo.Create(ctx, tx, domain.NewLoanOutboxEvent(uc.idGen.Generate(), ev)); err != nil {
		return err
	}

	// Audit logging
	if uc.auditRepo != nil {
		auditLog := &domain.AuditLog{
			ID:           uc.idGen.Generate(),
			UserID:       ref,
			Action:       string(domain.AuditActionLoanOriginate),
			ResourceType: domain.AggregateTypeLoan,
			ResourceID:   book.Loan.ID,
			AfterState:   domain.BookState(book, nil),
			Status:       string(domain.AuditStatusSuccess),
			CreatedAt:    ev.OccurredAt,
		}
		if err := uc.auditRepo.CreateTx(ctx, tx, auditLog); err != nil {
			return err
		}
	}
	return nil
}

func (uc *LoanUseCase) recordOrigination(book *domain.LoanBook) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.LoansOriginated.Inc()
	principal, _ := book.Loan.Principal.Float64()
	uc.metrics.PrincipalAmount.Observe(principal)
	if uc.auditRepo != nil {
		uc.metrics.AuditLogsCreated.WithLabelValues(string(domain.AuditActionLoanOriginate), string(domain.AuditStatusSuccess)).Inc()
	}
}

// CreateLoanGroup originates every loan of the group atomically: one invalid
// member rejects the whole batch.
func (uc *LoanUseCase) CreateLoanGroup(ctx context.Context, input CreateLoanGroupInput) (*domain.LoanGroup, []*domain.LoanBook, error) {
	if len(input.Loans) == 0 {
		return nil, nil, fmt.Errorf("%w: a group needs at least one loan", domain.ErrInvalidInput)
	}
	if len(input.Loans) > domain.MaxGroupLoans {
		return nil, nil, fmt.Errorf("%w: a group holds at most %d loans", domain.ErrInvalidInput, domain.MaxGroupLoans)
	}

	ref := domain.OperatorRef(ctx)
	group := &domain.LoanGroup{
		ID:        uc.idGen.Generate(),
		Name:      strings.TrimSpace(input.Name),
		AdvisorID: input.AdvisorID,
		CreatedAt: uc.ledger.Now(),
	}
	if err := group.Validate(); err != nil {
		return nil, nil, err
	}

	books := make([]*domain.LoanBook, 0, len(input.Loans))
	events := make([]domain.LedgerEvent, 0, len(input.Loans))
	for i, in := range input.Loans {
		if strings.TrimSpace(in.ClientID) == "" {
			return nil, nil, fmt.Errorf("%w: loan %d: client id is required", domain.ErrInvalidInput, i+1)
		}
		book, ev, err := uc.ledger.Originate(domain.Loan{
			ID:        uc.idGen.Generate(),
			ClientID:  in.ClientID,
			AdvisorID: input.AdvisorID,
			GroupID:   group.ID,
		}, in.terms(), ref)
		if err != nil {
			return nil, nil, fmt.Errorf("loan %d: %w", i+1, err)
		}
		books = append(books, book)
		events = append(events, ev)
		group.LoanIDs = append(group.LoanIDs, book.Loan.ID)
	}

	// Add transaction timeout
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.groupRepo.Create(txCtx, tx, group); err != nil {
		return nil, nil, err
	}
	for i, book := range books {
		if err := uc.persistOrigination(txCtx, tx, book, events[i], ref); err != nil {
			return nil, nil, err
		}
	}

	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   group.ID,
		AggregateType: domain.AggregateTypeLoanGroup,
		EventType:     domain.EventTypeLoanGroupCreated,
		Payload: map[string]any{
			"group_id":   group.ID,
			"name":       group.Name,
			"advisor_id": group.AdvisorID,
			"loan_ids":   group.LoanIDs,
		},
		CreatedAt: group.CreatedAt,
	}
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, nil, err
	}

	if uc.auditRepo != nil {
		auditLog := &domain.AuditLog{
			ID:           uc.idGen.Generate(),
			UserID:       ref,
			Action:       string(domain.AuditActionLoanGroupCreate),
			ResourceType: domain.AggregateTypeLoanGroup,
			ResourceID:   group.ID,
			AfterState: domain.MarshalState(domain.LoanGroupCreatedEvent{
				GroupID:   group.ID,
				Name:      group.Name,
				AdvisorID: group.AdvisorID,
				LoanIDs:   group.LoanIDs,
			}),
			Status:    string(domain.AuditStatusSuccess),
			CreatedAt: group.CreatedAt,
		}
		if err := uc.auditRepo.CreateTx(txCtx, tx, auditLog); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, nil, err
	}

	if uc.metrics != nil {
		uc.metrics.LoanGroupsCreated.Inc()
	}
	for _, book := range books {
		uc.recordOrigination(book)
	}

	return group, books, nil
}

// GetLoan returns the loan book with statuses and mora as of today.
func (uc *LoanUseCase) GetLoan(ctx context.Context, id string) (*domain.LoanBook, error) {
	book, err := uc.loanRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return uc.ledger.View(book), nil
}

func (uc *LoanUseCase) GetLoanGroup(ctx context.Context, id string) (*domain.LoanGroup, error) {
	return uc.groupRepo.GetByID(ctx, id)
}

func (uc *LoanUseCase) ListLoans(ctx context.Context, input ListLoansInput) ([]*domain.Loan, error) {
	limit, offset := clampPage(input.Limit, input.Offset)
	return uc.loanRepo.List(ctx, LoanFilter{
		Status:    input.Status,
		ClientID:  input.ClientID,
		AdvisorID: input.AdvisorID,
		GroupID:   input.GroupID,
		Limit:     limit,
		Offset:    offset,
	})
}
