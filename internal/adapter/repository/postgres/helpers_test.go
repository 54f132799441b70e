package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

func beginMockTx(t *testing.T, pool pgxmock.PgxPoolIface) usecase.Transaction {
	t.Helper()
	pool.ExpectBeginTx(readCommitted)
	tx, err := newTxManagerWithPool(pool).Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func num(s string) any {
	return decimalToNumeric(decimal.RequireFromString(s))
}

func ts(t time.Time) any {
	return timeToPgTimestamptz(t)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sampleBook is a weekly 1000 @ 20% x 2 loan with its first installment paid.
func sampleBook() *domain.LoanBook {
	created := day(2024, 1, 1).Add(9 * time.Hour)
	paidAt := day(2024, 1, 8).Add(10 * time.Hour)
	d := decimal.RequireFromString

	return &domain.LoanBook{
		Version: 2,
		Loan: domain.Loan{
			ID:                "loan-1",
			ClientID:          "client-1",
			AdvisorID:         "adv-1",
			Principal:         d("1000"),
			InterestRate:      d("20"),
			TermCount:         2,
			Frequency:         domain.FrequencyWeekly,
			OtherFeesRate:     d("0.01"),
			StartDate:         day(2024, 1, 1),
			TotalPayable:      d("1210"),
			InstallmentAmount: d("605"),
			Status:            domain.LoanStatusActive,
			CreatedAt:         created,
			UpdatedAt:         paidAt,
		},
		Installments: []domain.Installment{
			{
				Number: 1, DueDate: day(2024, 1, 8),
				PrincipalPortion: d("500"), InterestPortion: d("100"), OtherPortion: d("5"), Amount: d("605"),
				Status: domain.InstallmentStatusPaid, AmountPaid: d("605"), PaidAt: &paidAt, OperationRef: "adv-1",
			},
			{
				Number: 2, DueDate: day(2024, 1, 15),
				PrincipalPortion: d("500"), InterestPortion: d("100"), OtherPortion: d("5"), Amount: d("605"),
				Status: domain.InstallmentStatusPending,
			},
		},
	}
}

func loanRowColumns() []string {
	return []string{
		"id", "client_id", "advisor_id", "group_id", "principal", "interest_rate", "term_count", "frequency",
		"other_fees_rate", "start_date", "total_payable", "installment_amount", "status", "reschedule_count",
		"version", "created_at", "updated_at",
	}
}

func installmentRowColumns() []string {
	return []string{
		"number", "due_date", "principal_portion", "interest_portion", "other_portion", "amount",
		"carried_surplus", "status", "days_overdue", "mora_amount", "mora_reduction_percent", "observations",
		"amount_paid", "paid_at", "operation_ref", "proof_ref", "prepaid_amount", "prior_status", "rejection_reason",
	}
}

func loanRow(pool pgxmock.PgxPoolIface, b *domain.LoanBook) *pgxmock.Rows {
	l := b.Loan
	return pool.NewRows(loanRowColumns()).AddRow(
		l.ID, l.ClientID, l.AdvisorID, optionalText(l.GroupID),
		decimalToNumeric(l.Principal), decimalToNumeric(l.InterestRate), l.TermCount, string(l.Frequency),
		decimalToNumeric(l.OtherFeesRate), dateToPg(l.StartDate),
		decimalToNumeric(l.TotalPayable), decimalToNumeric(l.InstallmentAmount),
		string(l.Status), l.RescheduleCount, b.Version, ts(l.CreatedAt), ts(l.UpdatedAt),
	)
}

func installmentRows(pool pgxmock.PgxPoolIface, b *domain.LoanBook) *pgxmock.Rows {
	rows := pool.NewRows(installmentRowColumns())
	for _, inst := range b.Installments {
		rows.AddRow(
			inst.Number, dateToPg(inst.DueDate),
			decimalToNumeric(inst.PrincipalPortion), decimalToNumeric(inst.InterestPortion),
			decimalToNumeric(inst.OtherPortion), decimalToNumeric(inst.Amount),
			decimalToNumeric(inst.CarriedSurplus), string(inst.Status), inst.DaysOverdue,
			decimalToNumeric(inst.MoraAmount), decimalToNumeric(inst.MoraReductionPercent), inst.Observations,
			decimalToNumeric(inst.AmountPaid), optionalTime(inst.PaidAt), inst.OperationRef, inst.ProofRef,
			decimalToNumeric(inst.PrepaidAmount), string(inst.PriorStatus), inst.RejectionReason,
		)
	}
	return rows
}
