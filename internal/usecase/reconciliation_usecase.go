package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/domain"
)

// ReconciliationUseCase re-checks stored loan books against the ledger
// invariants.
type ReconciliationUseCase struct {
	loanRepo LoanRepository
	clock    domain.Clock
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(loanRepo LoanRepository, clock domain.Clock) *ReconciliationUseCase {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ReconciliationUseCase{loanRepo: loanRepo, clock: clock}
}

// ReconciliationResult represents the result of a reconciliation check
type ReconciliationResult struct {
	LoanID        string
	Version       int64
	TotalPayable  decimal.Decimal
	TotalPaid     decimal.Decimal
	Outstanding   decimal.Decimal
	Discrepancies []domain.Discrepancy
	IsReconciled  bool
	LastChecked   time.Time
}

// ReconcileLoan verifies one stored book.
func (uc *ReconciliationUseCase) ReconcileLoan(ctx context.Context, loanID string) (*ReconciliationResult, error) {
	book, err := uc.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	paid := decimal.Zero
	for _, inst := range book.Installments {
		paid = paid.Add(inst.AmountPaid)
	}

	discrepancies := book.CheckInvariants()
	return &ReconciliationResult{
		LoanID:        loanID,
		Version:       book.Version,
		TotalPayable:  book.Loan.TotalPayable,
		TotalPaid:     paid,
		Outstanding:   book.Outstanding(),
		Discrepancies: discrepancies,
		IsReconciled:  len(discrepancies) == 0,
		LastChecked:   uc.clock.Now(),
	}, nil
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalLoans      int
	ReconciledLoans int
	Discrepancies   []*ReconciliationResult
	CheckedAt       time.Time
}

// GenerateReconciliationReport checks every stored loan, closed ones
// included.
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	report := &ReconciliationReport{
		Discrepancies: make([]*ReconciliationResult, 0),
		CheckedAt:     uc.clock.Now(),
	}

	after := ""
	for {
		ids, err := uc.loanRepo.ListIDs(ctx, "", after, SweepBatchSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			result, err := uc.ReconcileLoan(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile loan %s: %w", id, err)
			}
			report.TotalLoans++
			if result.IsReconciled {
				report.ReconciledLoans++
			} else {
				report.Discrepancies = append(report.Discrepancies, result)
			}
		}
		after = ids[len(ids)-1]
	}

	return report, nil
}
