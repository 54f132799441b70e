package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/metrics"
)

// LoanCommand identifies the loan state a mutation was decided against.
type LoanCommand struct {
	LoanID          string
	ExpectedVersion int64
}

// PaymentUseCase runs every book-changing operation. Each call takes the
// distributed loan lock, then the row lock, applies one ledger operation and
// writes the new book, its outbox event and the audit record in a single
// transaction.
type PaymentUseCase struct {
	txManager  TransactionManager
	loanRepo   LoanRepository
	proofRepo  ProofRepository
	outboxRepo OutboxRepository
	auditRepo  AuditRepository
	locker     LoanLocker
	retrier    Retrier
	idGen      IDGenerator
	ledger     *domain.Ledger
	metrics    *metrics.Metrics
	lockTTL    time.Duration
}

func NewPaymentUseCase(
	txManager TransactionManager,
	loanRepo LoanRepository,
	proofRepo ProofRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	locker LoanLocker,
	retrier Retrier,
	idGen IDGenerator,
	ledger *domain.Ledger,
	metrics *metrics.Metrics,
	lockTTL time.Duration,
) *PaymentUseCase {
	if lockTTL <= 0 {
		lockTTL = DefaultLoanLockTTL
	}
	return &PaymentUseCase{
		txManager:  txManager,
		loanRepo:   loanRepo,
		proofRepo:  proofRepo,
		outboxRepo: outboxRepo,
		auditRepo:  auditRepo,
		locker:     locker,
		retrier:    retrier,
		idGen:      idGen,
		ledger:     ledger,
		metrics:    metrics,
		lockTTL:    lockTTL,
	}
}

type ledgerOp func(book *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error)

func (uc *PaymentUseCase) PayInstallment(ctx context.Context, cmd LoanCommand, number int, amount decimal.Decimal) (*domain.LoanBook, error) {
	if err := domain.ValidateMoney(amount); err != nil {
		return nil, err
	}
	book, ev, err := uc.mutate(ctx, "pay_installment", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.PayInstallment(b, cmd.ExpectedVersion, number, amount, ref)
	})
	if err != nil {
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.InstallmentsPaid.Inc()
		paid, _ := amount.Float64()
		uc.metrics.PaymentAmount.Observe(paid)
		uc.recordClosed(book, ev)
	}
	return book, nil
}

func (uc *PaymentUseCase) CancelLoan(ctx context.Context, cmd LoanCommand, totalPayment decimal.Decimal) (*domain.LoanBook, error) {
	if err := domain.ValidateMoney(totalPayment); err != nil {
		return nil, err
	}
	book, ev, err := uc.mutate(ctx, "cancel_loan", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.CancelLoan(b, cmd.ExpectedVersion, totalPayment, ref)
	})
	if err != nil {
		return nil, err
	}
	uc.recordClosed(book, ev)
	return book, nil
}

func (uc *PaymentUseCase) Reschedule(ctx context.Context, cmd LoanCommand, newRatePercent decimal.Decimal) (*domain.LoanBook, error) {
	book, _, err := uc.mutate(ctx, "reschedule", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.Reschedule(b, cmd.ExpectedVersion, newRatePercent, ref)
	})
	if err != nil {
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.Reschedules.Inc()
	}
	return book, nil
}

func (uc *PaymentUseCase) SettleByAgreement(ctx context.Context, cmd LoanCommand, onlyPrincipal bool) (*domain.LoanBook, error) {
	book, ev, err := uc.mutate(ctx, "settle_by_agreement", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.SettleByAgreement(b, cmd.ExpectedVersion, onlyPrincipal, ref)
	})
	if err != nil {
		return nil, err
	}
	uc.recordClosed(book, ev)
	return book, nil
}

// SubmitPrepayment attaches an uploaded proof to installment number. The
// proof has to exist before the installment can reference it.
func (uc *PaymentUseCase) SubmitPrepayment(ctx context.Context, cmd LoanCommand, number int, amount decimal.Decimal, proofRef string) (*domain.LoanBook, error) {
	if err := domain.ValidateMoney(amount); err != nil {
		return nil, err
	}
	if err := domain.ValidateReference(proofRef); err != nil {
		return nil, err
	}
	if uc.proofRepo != nil {
		ok, err := uc.proofRepo.Exists(ctx, proofRef)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrProofNotFound, proofRef)
		}
	}

	book, _, err := uc.mutate(ctx, "submit_prepayment", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.SubmitPrepayment(b, cmd.ExpectedVersion, number, amount, proofRef, ref)
	})
	if err != nil {
		return nil, err
	}
	uc.recordPrepayment("submitted")
	return book, nil
}

func (uc *PaymentUseCase) ConfirmPrepayment(ctx context.Context, cmd LoanCommand, number int) (*domain.LoanBook, error) {
	book, ev, err := uc.mutate(ctx, "confirm_prepayment", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.ConfirmPrepayment(b, cmd.ExpectedVersion, number, ref)
	})
	if err != nil {
		return nil, err
	}
	uc.recordPrepayment("confirmed")
	if uc.metrics != nil {
		uc.metrics.InstallmentsPaid.Inc()
	}
	uc.recordClosed(book, ev)
	return book, nil
}

func (uc *PaymentUseCase) RejectPrepayment(ctx context.Context, cmd LoanCommand, number int, reason string) (*domain.LoanBook, error) {
	book, _, err := uc.mutate(ctx, "reject_prepayment", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.RejectPrepayment(b, cmd.ExpectedVersion, number, reason, ref)
	})
	if err != nil {
		return nil, err
	}
	uc.recordPrepayment("rejected")
	return book, nil
}

func (uc *PaymentUseCase) ApplyMoraReduction(ctx context.Context, cmd LoanCommand, number int, pct decimal.Decimal) (*domain.LoanBook, error) {
	book, _, err := uc.mutate(ctx, "mora_reduction", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.ApplyMoraReduction(b, cmd.ExpectedVersion, number, pct, ref)
	})
	if err != nil {
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.MoraReductions.Inc()
	}
	return book, nil
}

func (uc *PaymentUseCase) UpdateObservations(ctx context.Context, cmd LoanCommand, number int, text string) (*domain.LoanBook, error) {
	book, _, err := uc.mutate(ctx, "update_observations", cmd, func(b *domain.LoanBook, ref string) (*domain.LoanBook, domain.LedgerEvent, error) {
		return uc.ledger.UpdateObservations(b, cmd.ExpectedVersion, number, text, ref)
	})
	return book, err
}

func (uc *PaymentUseCase) mutate(ctx context.Context, operation string, cmd LoanCommand, op ledgerOp) (book *domain.LoanBook, ev domain.LedgerEvent, err error) {
	start := time.Now()
	defer func() {
		if uc.metrics == nil {
			return
		}
		uc.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		if err != nil {
			uc.metrics.OperationErrors.WithLabelValues(operation, ErrorType(err)).Inc()
		}
	}()

	if uc.locker != nil {
		release, lockErr := uc.locker.Acquire(ctx, cmd.LoanID, uc.lockTTL)
		if lockErr != nil {
			return nil, domain.LedgerEvent{}, lockErr
		}
		defer func() { _ = release(context.WithoutCancel(ctx)) }()
	}

	run := func() error {
		var runErr error
		book, ev, runErr = uc.commit(ctx, cmd, op)
		return runErr
	}
	if uc.retrier != nil {
		err = uc.retrier.Retry(ctx, run)
	} else {
		err = run()
	}
	if err != nil {
		uc.auditFailure(ctx, operation, cmd.LoanID, err)
		return nil, domain.LedgerEvent{}, err
	}

	if uc.metrics != nil && uc.auditRepo != nil {
		uc.metrics.AuditLogsCreated.WithLabelValues(string(domain.AuditActionFor(ev.Type)), string(domain.AuditStatusSuccess)).Inc()
	}
	return book, ev, nil
}

func (uc *PaymentUseCase) commit(ctx context.Context, cmd LoanCommand, op ledgerOp) (*domain.LoanBook, domain.LedgerEvent, error) {
	// Add transaction timeout
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, domain.LedgerEvent{}, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// Lock loan row
	current, err := uc.loanRepo.GetByIDForUpdate(txCtx, tx, cmd.LoanID)
	if err != nil {
		return nil, domain.LedgerEvent{}, err
	}

	ref := domain.OperatorRef(ctx)
	next, ev, err := op(current, ref)
	if err != nil {
		return nil, domain.LedgerEvent{}, err
	}

	if err := uc.loanRepo.Save(txCtx, tx, next, current.Version); err != nil {
		return nil, domain.LedgerEvent{}, err
	}

	if err := uc.outboxRepo.Create(txCtx, tx, domain.NewLoanOutboxEvent(uc.idGen.Generate(), ev)); err != nil {
		return nil, domain.LedgerEvent{}, err
	}

	// Audit logging
	if uc.auditRepo != nil {
		auditLog := &domain.AuditLog{
			ID:           uc.idGen.Generate(),
			UserID:       ref,
			Action:       string(domain.AuditActionFor(ev.Type)),
			ResourceType: domain.AggregateTypeLoan,
			ResourceID:   cmd.LoanID,
			BeforeState:  domain.BookState(current, ev.InstallmentNumbers),
			AfterState:   domain.BookState(next, ev.InstallmentNumbers),
			Status:       string(domain.AuditStatusSuccess),
			CreatedAt:    ev.OccurredAt,
		}
		if err := uc.auditRepo.CreateTx(txCtx, tx, auditLog); err != nil {
			return nil, domain.LedgerEvent{}, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, domain.LedgerEvent{}, err
	}
	return next, ev, nil
}

// auditFailure records rejected operations outside the failed transaction.
// Missing loans are not recorded.
func (uc *PaymentUseCase) auditFailure(ctx context.Context, operation, loanID string, cause error) {
	if uc.auditRepo == nil || errors.Is(cause, domain.ErrLoanNotFound) {
		return
	}
	auditLog := &domain.AuditLog{
		ID:           uc.idGen.Generate(),
		UserID:       domain.OperatorRef(ctx),
		Action:       operation,
		ResourceType: domain.AggregateTypeLoan,
		ResourceID:   loanID,
		Status:       string(domain.AuditStatusFailure),
		ErrorMessage: cause.Error(),
		CreatedAt:    uc.ledger.Now(),
	}
	if err := uc.auditRepo.Create(context.WithoutCancel(ctx), auditLog); err == nil && uc.metrics != nil {
		uc.metrics.AuditLogsCreated.WithLabelValues(operation, string(domain.AuditStatusFailure)).Inc()
	}
}

func (uc *PaymentUseCase) recordPrepayment(outcome string) {
	if uc.metrics != nil {
		uc.metrics.Prepayments.WithLabelValues(outcome).Inc()
	}
}

func (uc *PaymentUseCase) recordClosed(book *domain.LoanBook, ev domain.LedgerEvent) {
	if uc.metrics == nil || !book.Loan.IsClosed() {
		return
	}
	// Only the event that closed the loan counts.
	switch ev.Type {
	case domain.EventTypeInstallmentPaid, domain.EventTypePrepaymentConfirmed,
		domain.EventTypeLoanCanceled, domain.EventTypeLoanSettled:
		uc.metrics.LoansClosed.WithLabelValues(string(book.Loan.Status)).Inc()
	}
}

// ErrorType maps a domain error onto a short label for metrics and logs.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrPaymentTooLow):
		return "payment_too_low"
	case errors.Is(err, domain.ErrAlreadyReduced):
		return "already_reduced"
	case errors.Is(err, domain.ErrAlreadyClosed):
		return "already_closed"
	case errors.Is(err, domain.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, domain.ErrStaleState):
		return "stale_state"
	case errors.Is(err, domain.ErrSequenceViolation):
		return "sequence_violation"
	case errors.Is(err, domain.ErrLoanNotFound), errors.Is(err, domain.ErrInstallmentMissing),
		errors.Is(err, domain.ErrProofNotFound), errors.Is(err, domain.ErrLoanGroupNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrLoanBusy):
		return "busy"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}
