package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
	"github.com/iho/microloan/internal/usecase/mocks"
)

func onePerDay(days int, _ decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(days))
}

func originateFor(t *testing.T, f *fixture) *domain.LoanBook {
	t.Helper()
	book, err := f.loanUseCase().CreateLoan(advisorCtx(), weeklyLoan())
	require.NoError(t, err)
	f.events, f.audits = nil, nil
	return book
}

func TestPaymentUseCase_PayInstallment(t *testing.T) {
	f := newFixture(t, nil)
	book := originateFor(t, f)
	uc := f.paymentUseCase()

	cmd := usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: book.Version}
	next, err := uc.PayInstallment(advisorCtx(), cmd, 1, dec("350"))
	require.NoError(t, err)

	assert.Equal(t, book.Version+1, next.Version)
	assert.Equal(t, domain.InstallmentStatusPaid, next.Installments[0].Status)
	assert.True(t, dec("47").Equal(next.Installments[1].CarriedSurplus), "carried %s", next.Installments[1].CarriedSurplus)

	require.Len(t, f.events, 1)
	ev := f.events[0]
	assert.Equal(t, domain.EventTypeInstallmentPaid, ev.EventType)
	assert.Equal(t, book.Loan.ID, ev.AggregateID)
	assert.Equal(t, []int{1, 2}, ev.Payload["installments"])
	assert.Equal(t, "adv-1", ev.Payload["operator_ref"])

	require.Len(t, f.audits, 1)
	assert.Equal(t, string(domain.AuditActionInstallmentPay), f.audits[0].Action)
	assert.NotNil(t, f.audits[0].BeforeState)
	assert.NotNil(t, f.audits[0].AfterState)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.InstallmentsPaid))

	stored, err := f.loans.GetByID(context.Background(), book.Loan.ID)
	require.NoError(t, err)
	assert.Equal(t, next.Version, stored.Version)
}

func TestPaymentUseCase_StaleVersion(t *testing.T) {
	f := newFixture(t, nil)
	book := originateFor(t, f)
	uc := f.paymentUseCase()

	cmd := usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: book.Version}
	_, err := uc.PayInstallment(advisorCtx(), cmd, 1, dec("303"))
	require.NoError(t, err)

	// a second caller still holding the old version loses
	_, err = uc.PayInstallment(advisorCtx(), cmd, 2, dec("303"))
	require.ErrorIs(t, err, domain.ErrStaleState)
	assert.Len(t, f.events, 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OperationErrors.WithLabelValues("pay_installment", "stale_state")))

	// the failure is audited outside the transaction
	last := f.audits[len(f.audits)-1]
	assert.Equal(t, string(domain.AuditStatusFailure), last.Status)
	assert.Contains(t, last.ErrorMessage, "stale state")
}

func TestPaymentUseCase_RejectionsLeaveBookUntouched(t *testing.T) {
	tests := []struct {
		name    string
		run     func(uc *usecase.PaymentUseCase, cmd usecase.LoanCommand) error
		wantErr error
	}{
		{
			name: "payment below amount due",
			run: func(uc *usecase.PaymentUseCase, cmd usecase.LoanCommand) error {
				_, err := uc.PayInstallment(advisorCtx(), cmd, 1, dec("302.99"))
				return err
			},
			wantErr: domain.ErrPaymentTooLow,
		},
		{
			name: "out of sequence",
			run: func(uc *usecase.PaymentUseCase, cmd usecase.LoanCommand) error {
				_, err := uc.PayInstallment(advisorCtx(), cmd, 3, dec("303"))
				return err
			},
			wantErr: domain.ErrSequenceViolation,
		},
		{
			name: "fractional cents",
			run: func(uc *usecase.PaymentUseCase, cmd usecase.LoanCommand) error {
				_, err := uc.PayInstallment(advisorCtx(), cmd, 1, dec("303.001"))
				return err
			},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name: "cancel short of outstanding",
			run: func(uc *usecase.PaymentUseCase, cmd usecase.LoanCommand) error {
				_, err := uc.CancelLoan(advisorCtx(), cmd, dec("1000"))
				return err
			},
			wantErr: domain.ErrPaymentTooLow,
		},
		{
			name: "settlement before the overdue window",
			run: func(uc *usecase.PaymentUseCase, cmd usecase.LoanCommand) error {
				_, err := uc.SettleByAgreement(advisorCtx(), cmd, true)
				return err
			},
			wantErr: domain.ErrNotEligible,
		},
		{
			name: "reschedule rate out of range",
			run: func(uc *usecase.PaymentUseCase, cmd usecase.LoanCommand) error {
				_, err := uc.Reschedule(advisorCtx(), cmd, dec("6"))
				return err
			},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name: "unknown installment",
			run: func(uc *usecase.PaymentUseCase, cmd usecase.LoanCommand) error {
				_, err := uc.ApplyMoraReduction(advisorCtx(), cmd, 9, dec("50"))
				return err
			},
			wantErr: domain.ErrInstallmentMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			book := originateFor(t, f)
			uc := f.paymentUseCase()

			err := tt.run(uc, usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: book.Version})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.events)

			stored, err := f.loans.GetByID(context.Background(), book.Loan.ID)
			require.NoError(t, err)
			assert.Equal(t, book.Version, stored.Version)
		})
	}
}

func TestPaymentUseCase_CancelLoan(t *testing.T) {
	f := newFixture(t, nil)
	book := originateFor(t, f)
	uc := f.paymentUseCase()

	next, err := uc.CancelLoan(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, dec("1212"))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusCanceled, next.Loan.Status)
	for _, inst := range next.Installments {
		assert.Equal(t, domain.InstallmentStatusCanceled, inst.Status)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LoansClosed.WithLabelValues("canceled")))

	_, err = uc.PayInstallment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: next.Version}, 1, dec("303"))
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
}

func TestPaymentUseCase_PayOffClosesLoan(t *testing.T) {
	f := newFixture(t, nil)
	book := originateFor(t, f)
	uc := f.paymentUseCase()

	version := book.Version
	var next *domain.LoanBook
	for n := 1; n <= 4; n++ {
		var err error
		next, err = uc.PayInstallment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: version}, n, dec("303"))
		require.NoError(t, err, "installment %d", n)
		version = next.Version
	}
	assert.Equal(t, domain.LoanStatusPaidOff, next.Loan.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LoansClosed.WithLabelValues("paid_off")))
	assert.Equal(t, float64(4), testutil.ToFloat64(f.metrics.InstallmentsPaid))
}

func TestPaymentUseCase_RescheduleAndSettle(t *testing.T) {
	t.Run("reschedule within window", func(t *testing.T) {
		f := newFixture(t, onePerDay)
		book := originateFor(t, f)
		uc := f.paymentUseCase()

		f.clock.Set(day(2024, 1, 12)) // installment 1 four days late
		next, err := uc.Reschedule(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, dec("3"))
		require.NoError(t, err)
		require.Len(t, next.Installments, 8)
		for _, inst := range next.Installments[:4] {
			assert.Equal(t, domain.InstallmentStatusRescheduled, inst.Status)
		}
		assert.Equal(t, 1, next.Loan.RescheduleCount)
		assert.Equal(t, domain.EventTypeLoanRescheduled, f.lastEvent().EventType)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Reschedules))
	})

	t.Run("settlement past window", func(t *testing.T) {
		f := newFixture(t, onePerDay)
		book := originateFor(t, f)
		uc := f.paymentUseCase()

		f.clock.Set(day(2024, 1, 17)) // installment 1 nine days late
		_, err := uc.Reschedule(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, dec("3"))
		require.ErrorIs(t, err, domain.ErrNotEligible)

		next, err := uc.SettleByAgreement(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, false)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusRefinanced, next.Loan.Status)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LoansClosed.WithLabelValues("refinanced")))
	})
}

func TestPaymentUseCase_PrepaymentFlow(t *testing.T) {
	f := newFixture(t, nil)
	book := originateFor(t, f)
	uc := f.paymentUseCase()

	f.proofs.EXPECT().Exists(gomock.Any(), "proof-1").Return(true, nil)
	next, err := uc.SubmitPrepayment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, 1, dec("303"), "proof-1")
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusPrepaid, next.Installments[0].Status)
	assert.Equal(t, domain.EventTypePrepaymentSubmitted, f.lastEvent().EventType)

	next, err = uc.RejectPrepayment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: next.Version}, 1, "blurry photo")
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusPending, next.Installments[0].Status)
	assert.Equal(t, "blurry photo", next.Installments[0].RejectionReason)

	f.proofs.EXPECT().Exists(gomock.Any(), "proof-2").Return(true, nil)
	next, err = uc.SubmitPrepayment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: next.Version}, 1, dec("303"), "proof-2")
	require.NoError(t, err)

	next, err = uc.ConfirmPrepayment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: next.Version}, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusPaid, next.Installments[0].Status)
	assert.Equal(t, "proof-2", f.lastEvent().Payload["proof_ref"])

	for outcome, want := range map[string]float64{"submitted": 2, "rejected": 1, "confirmed": 1} {
		assert.Equal(t, want, testutil.ToFloat64(f.metrics.Prepayments.WithLabelValues(outcome)), outcome)
	}
}

func TestPaymentUseCase_SubmitPrepaymentUnknownProof(t *testing.T) {
	f := newFixture(t, nil)
	book := originateFor(t, f)
	uc := f.paymentUseCase()

	f.proofs.EXPECT().Exists(gomock.Any(), "nope").Return(false, nil)
	_, err := uc.SubmitPrepayment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, 1, dec("303"), "nope")
	assert.ErrorIs(t, err, domain.ErrProofNotFound)
	assert.Empty(t, f.events)
}

func TestPaymentUseCase_MoraReductionAndObservations(t *testing.T) {
	f := newFixture(t, onePerDay)
	book := originateFor(t, f)
	uc := f.paymentUseCase()

	f.clock.Set(day(2024, 1, 18)) // ten days late, mora 10
	next, err := uc.ApplyMoraReduction(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, 1, dec("50"))
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(next.Installments[0].MoraAmount), "mora %s", next.Installments[0].MoraAmount)

	_, err = uc.ApplyMoraReduction(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: next.Version}, 1, dec("50"))
	require.ErrorIs(t, err, domain.ErrAlreadyReduced)

	next, err = uc.UpdateObservations(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: next.Version}, 1, "client travelling")
	require.NoError(t, err)
	assert.Equal(t, "client travelling", next.Installments[0].Observations)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MoraReductions))
}

func TestPaymentUseCase_LoanBusy(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := mocks.NewMockLoanLocker(ctrl)
	locker.EXPECT().Acquire(gomock.Any(), "loan-1", usecase.DefaultLoanLockTTL).Return(nil, domain.ErrLoanBusy)

	// nothing past the lock may be touched
	uc := usecase.NewPaymentUseCase(mocks.NewMockTransactionManager(ctrl), mocks.NewMockLoanRepository(ctrl), nil,
		mocks.NewMockOutboxRepository(ctrl), nil, locker, nil, mocks.NewMockIDGenerator(ctrl),
		domain.NewLedger(nil, nil), nil, 0)

	_, err := uc.PayInstallment(context.Background(), usecase.LoanCommand{LoanID: "loan-1", ExpectedVersion: 1}, 1, dec("10"))
	assert.ErrorIs(t, err, domain.ErrLoanBusy)
}

func TestPaymentUseCase_RetriesThroughRetrier(t *testing.T) {
	f := newFixture(t, nil)
	book := originateFor(t, f)

	retrier := mocks.NewMockRetrier(f.ctrl)
	calls := 0
	retrier.EXPECT().Retry(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, op func() error) error {
		calls++
		return op()
	})

	uc := usecase.NewPaymentUseCase(f.txMgr, f.loans, f.proofs, f.outbox, f.audit, f.locker, retrier, f.idGen, f.ledger, f.metrics, 0)
	_, err := uc.PayInstallment(advisorCtx(), usecase.LoanCommand{LoanID: book.Loan.ID, ExpectedVersion: 1}, 1, dec("303"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestErrorType(t *testing.T) {
	tests := map[string]error{
		"invalid_input":      domain.ErrInvalidInput,
		"payment_too_low":    domain.ErrPaymentTooLow,
		"stale_state":        domain.ErrStaleState,
		"sequence_violation": domain.ErrSequenceViolation,
		"not_found":          domain.ErrLoanNotFound,
		"busy":               domain.ErrLoanBusy,
		"timeout":            context.DeadlineExceeded,
		"internal":           errors.New("disk full"),
	}
	for want, err := range tests {
		assert.Equal(t, want, usecase.ErrorType(err))
	}
}
