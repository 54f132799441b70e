package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/metrics"
)

// SweepResult summarises one overdue sweep.
type SweepResult struct {
	LoansScanned        int
	LoansUpdated        int
	LoansSkipped        int
	OverdueInstallments int
	StartedAt           time.Time
	FinishedAt          time.Time
}

// OverdueUseCase refreshes the derived installment state of every active
// loan so stored statuses and mora match the calendar.
type OverdueUseCase struct {
	txManager  TransactionManager
	loanRepo   LoanRepository
	outboxRepo OutboxRepository
	locker     LoanLocker
	idGen      IDGenerator
	ledger     *domain.Ledger
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	batchSize  int
}

func NewOverdueUseCase(
	txManager TransactionManager,
	loanRepo LoanRepository,
	outboxRepo OutboxRepository,
	locker LoanLocker,
	idGen IDGenerator,
	ledger *domain.Ledger,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *OverdueUseCase {
	return &OverdueUseCase{
		txManager:  txManager,
		loanRepo:   loanRepo,
		outboxRepo: outboxRepo,
		locker:     locker,
		idGen:      idGen,
		ledger:     ledger,
		metrics:    metrics,
		logger:     logger,
		batchSize:  SweepBatchSize,
	}
}

// RefreshAll pages through active loans and persists every book whose
// derived state changed. Loans locked by an in-flight mutation are skipped;
// that mutation refreshes them itself. A loan that fails to refresh is logged
// and skipped, and the next sweep retries it.
func (uc *OverdueUseCase) RefreshAll(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{StartedAt: uc.ledger.Now()}

	after := ""
	for {
		ids, err := uc.loanRepo.ListIDs(ctx, domain.LoanStatusActive, after, uc.batchSize)
		if err != nil {
			uc.recordRun("error")
			return nil, fmt.Errorf("list active loans: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			result.LoansScanned++
			updated, overdue, err := uc.refreshLoan(ctx, id)
			switch {
			case errors.Is(err, domain.ErrLoanBusy), errors.Is(err, domain.ErrLoanNotFound):
				result.LoansSkipped++
				continue
			case err != nil:
				uc.logger.Warn().Err(err).Str("loan_id", id).Msg("overdue refresh failed, skipping loan")
				result.LoansSkipped++
				continue
			}
			if updated {
				result.LoansUpdated++
			}
			result.OverdueInstallments += overdue
		}
		after = ids[len(ids)-1]
	}

	result.FinishedAt = uc.ledger.Now()
	uc.recordRun("success")
	if uc.metrics != nil {
		uc.metrics.SweepLoansTouched.Add(float64(result.LoansUpdated))
		uc.metrics.OverdueInstallments.Set(float64(result.OverdueInstallments))
	}

	uc.logger.Info().
		Int("scanned", result.LoansScanned).
		Int("updated", result.LoansUpdated).
		Int("skipped", result.LoansSkipped).
		Int("overdue_installments", result.OverdueInstallments).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("overdue sweep finished")

	return result, nil
}

// RefreshLoan refreshes a single loan on demand.
func (uc *OverdueUseCase) RefreshLoan(ctx context.Context, loanID string) (bool, error) {
	updated, _, err := uc.refreshLoan(ctx, loanID)
	return updated, err
}

func (uc *OverdueUseCase) refreshLoan(ctx context.Context, loanID string) (bool, int, error) {
	if uc.locker != nil {
		release, err := uc.locker.Acquire(ctx, loanID, DefaultLoanLockTTL)
		if err != nil {
			return false, 0, err
		}
		defer func() { _ = release(context.WithoutCancel(ctx)) }()
	}

	// Add transaction timeout
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	current, err := uc.loanRepo.GetByIDForUpdate(txCtx, tx, loanID)
	if err != nil {
		return false, 0, err
	}

	next, ev, changed := uc.ledger.Refresh(current)
	overdue := countOverdue(next)
	if !changed {
		return false, overdue, nil
	}

	if err := uc.loanRepo.Save(txCtx, tx, next, current.Version); err != nil {
		return false, 0, err
	}
	if err := uc.outboxRepo.Create(txCtx, tx, domain.NewLoanOutboxEvent(uc.idGen.Generate(), ev)); err != nil {
		return false, 0, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return false, 0, err
	}
	return true, overdue, nil
}

func (uc *OverdueUseCase) recordRun(result string) {
	if uc.metrics != nil {
		uc.metrics.SweepRuns.WithLabelValues(result).Inc()
	}
}

func countOverdue(b *domain.LoanBook) int {
	n := 0
	for _, inst := range b.Open() {
		if inst.Status == domain.InstallmentStatusOverdue {
			n++
		}
	}
	return n
}
