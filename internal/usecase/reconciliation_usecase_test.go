package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

func TestReconciliationUseCase_ReconcileLoan(t *testing.T) {
	f := newFixture(t, nil)
	book := originateFor(t, f)

	_, err := f.paymentUseCase().PayInstallment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, 1, dec("303"))
	require.NoError(t, err)

	uc := usecase.NewReconciliationUseCase(f.loans, f.clock)
	result, err := uc.ReconcileLoan(context.Background(), book.Loan.ID)
	require.NoError(t, err)
	assert.True(t, result.IsReconciled, "discrepancies: %+v", result.Discrepancies)
	assert.True(t, dec("303").Equal(result.TotalPaid))
	assert.True(t, dec("909").Equal(result.Outstanding))
	assert.Equal(t, int64(2), result.Version)
}

func TestReconciliationUseCase_Report(t *testing.T) {
	f := newFixture(t, nil)
	clean := originateFor(t, f)
	broken := originateFor(t, f)

	// corrupt one stored book behind the ledger's back
	f.loans.books[broken.Loan.ID].Installments[2].Amount = dec("1")

	uc := usecase.NewReconciliationUseCase(f.loans, f.clock)
	report, err := uc.GenerateReconciliationReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalLoans)
	assert.Equal(t, 1, report.ReconciledLoans)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, broken.Loan.ID, report.Discrepancies[0].LoanID)
	assert.NotEqual(t, clean.Loan.ID, report.Discrepancies[0].LoanID)

	rules := map[string]bool{}
	for _, d := range report.Discrepancies[0].Discrepancies {
		rules[d.Rule] = true
	}
	assert.True(t, rules["portions"] || rules["schedule_total"], "rules: %v", rules)

	_, err = uc.ReconcileLoan(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}
