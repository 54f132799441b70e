package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
	"github.com/iho/microloan/tests/testutil"
)

func TestConcurrentPaymentsOnOneInstallment(t *testing.T) {
	db := testutil.NewTestDB(t)
	stack := db.NewStack(domain.FixedClock(start))
	ctx := context.Background()

	book, err := stack.Loans.CreateLoan(ctx, testutil.ReferenceLoan(start))
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stack.Payments.PayInstallment(ctx, usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, 1, decimal.NewFromInt(303))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrStaleState), errors.Is(err, domain.ErrLoanBusy):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)

	stored, err := stack.LoanRepo.GetByID(ctx, book.Loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.True(t, decimal.NewFromInt(909).Equal(stored.Outstanding()))
}

func TestConcurrentLoansAreIndependent(t *testing.T) {
	db := testutil.NewTestDB(t)
	stack := db.NewStack(domain.FixedClock(start))
	ctx := context.Background()

	const loans = 5
	ids := make([]string, loans)
	for i := range ids {
		book, err := stack.Loans.CreateLoan(ctx, testutil.ReferenceLoan(start))
		require.NoError(t, err)
		ids[i] = book.Loan.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, loans)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := stack.Payments.PayInstallment(ctx, usecase.LoanCommand{LoanID: id, ExpectedVersion: 1}, 1, decimal.NewFromInt(303))
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	report, err := stack.Reconciliation.GenerateReconciliationReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, loans, report.TotalLoans)
	assert.Equal(t, loans, report.ReconciledLoans)
}
