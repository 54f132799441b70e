package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus is the lifecycle state of one installment.
type InstallmentStatus string

const (
	InstallmentStatusPending     InstallmentStatus = "pending"
	InstallmentStatusDueToday    InstallmentStatus = "due_today"
	InstallmentStatusOverdue     InstallmentStatus = "overdue"
	InstallmentStatusPaid        InstallmentStatus = "paid"
	InstallmentStatusPrepaid     InstallmentStatus = "prepaid"
	InstallmentStatusCanceled    InstallmentStatus = "canceled"
	InstallmentStatusRefinanced  InstallmentStatus = "refinanced"
	InstallmentStatusRescheduled InstallmentStatus = "rescheduled"
)

// IsValid reports whether s is a known status.
func (s InstallmentStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible.
func (s InstallmentStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

var transitions = map[InstallmentStatus][]InstallmentStatus{
	InstallmentStatusPending: {
		InstallmentStatusDueToday, InstallmentStatusOverdue, InstallmentStatusPaid, InstallmentStatusPrepaid,
		InstallmentStatusCanceled, InstallmentStatusRefinanced, InstallmentStatusRescheduled,
	},
	InstallmentStatusDueToday: {
		InstallmentStatusOverdue, InstallmentStatusPaid, InstallmentStatusPrepaid,
		InstallmentStatusCanceled, InstallmentStatusRefinanced, InstallmentStatusRescheduled,
	},
	InstallmentStatusOverdue: {
		InstallmentStatusPaid, InstallmentStatusPrepaid,
		InstallmentStatusCanceled, InstallmentStatusRefinanced, InstallmentStatusRescheduled,
	},
	// Rejection sends a prepaid installment back to its date-derived state.
	InstallmentStatusPrepaid: {
		InstallmentStatusPaid, InstallmentStatusPending, InstallmentStatusDueToday, InstallmentStatusOverdue,
	},
	InstallmentStatusPaid:        nil,
	InstallmentStatusCanceled:    nil,
	InstallmentStatusRefinanced:  nil,
	InstallmentStatusRescheduled: nil,
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to InstallmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// LateFeePolicy returns the mora owed for an installment amount that is
// daysOverdue days late.
type LateFeePolicy func(daysOverdue int, amount decimal.Decimal) decimal.Decimal

// NoLateFee never charges mora.
func NoLateFee(int, decimal.Decimal) decimal.Decimal { return decimal.Zero }

// Installment is one scheduled payment of a loan.
type Installment struct {
	Number               int
	DueDate              time.Time
	PrincipalPortion     decimal.Decimal
	InterestPortion      decimal.Decimal
	OtherPortion         decimal.Decimal
	Amount               decimal.Decimal
	CarriedSurplus       decimal.Decimal
	Status               InstallmentStatus
	DaysOverdue          int
	MoraAmount           decimal.Decimal
	MoraReductionPercent decimal.Decimal
	Observations         string

	AmountPaid      decimal.Decimal
	PaidAt          *time.Time
	OperationRef    string
	ProofRef        string
	PrepaidAmount   decimal.Decimal
	PriorStatus     InstallmentStatus
	RejectionReason string
}

// AmountDue is the nominal amount less any surplus carried from earlier
// overpayments, floored at zero.
func (i *Installment) AmountDue() decimal.Decimal {
	due := i.Amount.Sub(i.CarriedSurplus)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// TotalDue is what a payment has to cover: amount due plus accrued mora.
func (i *Installment) TotalDue() decimal.Decimal {
	return i.AmountDue().Add(i.MoraAmount)
}

// IsResolved reports whether the installment reached a terminal state.
func (i *Installment) IsResolved() bool {
	return i.Status.IsTerminal()
}

// dateStatus derives pending/due_today/overdue from the due date.
func (i *Installment) dateStatus(today time.Time) (InstallmentStatus, int) {
	days := DaysBetween(i.DueDate, today)
	switch {
	case days < 0:
		return InstallmentStatusPending, 0
	case days == 0:
		return InstallmentStatusDueToday, 0
	default:
		return InstallmentStatusOverdue, days
	}
}

// Refresh recomputes the derived status, days overdue and mora as of today.
// Terminal installments are left alone. Prepaid ones keep their status and
// mora while under review but track the state a rejection would restore.
// Reports whether anything changed.
func (i *Installment) Refresh(today time.Time, lateFee LateFeePolicy) bool {
	if i.IsResolved() {
		return false
	}

	before := *i
	status, days := i.dateStatus(today)

	i.DaysOverdue = days
	if i.Status == InstallmentStatusPrepaid {
		i.PriorStatus = status
	} else {
		i.Status = status
		i.MoraAmount = i.accrueMora(days, lateFee)
	}

	return before.Status != i.Status ||
		before.PriorStatus != i.PriorStatus ||
		before.DaysOverdue != i.DaysOverdue ||
		!before.MoraAmount.Equal(i.MoraAmount)
}

func (i *Installment) accrueMora(days int, lateFee LateFeePolicy) decimal.Decimal {
	if days <= 0 || lateFee == nil {
		return decimal.Zero
	}
	fee := lateFee(days, i.AmountDue())
	if fee.IsNegative() {
		return decimal.Zero
	}
	if i.MoraReductionPercent.IsPositive() {
		fee = fee.Mul(hundred.Sub(i.MoraReductionPercent)).Div(hundred)
	}
	return RoundMoney(fee)
}

// ApplyMoraReduction lowers the accrued mora by pct percent. A reduction is
// granted once per installment; later accruals keep the same discount.
func (i *Installment) ApplyMoraReduction(pct decimal.Decimal) error {
	if i.MoraReductionPercent.IsPositive() {
		return fmt.Errorf("%w: installment %d already has a %s%% reduction", ErrAlreadyReduced, i.Number, i.MoraReductionPercent)
	}
	if i.IsResolved() {
		return fmt.Errorf("%w: installment %d is %s", ErrAlreadyClosed, i.Number, i.Status)
	}
	if pct.LessThan(decimal.NewFromInt(1)) || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: reduction percent must be between 1 and 100", ErrInvalidInput)
	}

	i.MoraAmount = RoundMoney(i.MoraAmount.Mul(hundred.Sub(pct)).Div(hundred))
	i.MoraReductionPercent = pct
	return nil
}

func (i *Installment) transition(to InstallmentStatus) error {
	if i.IsResolved() {
		return fmt.Errorf("%w: installment %d is %s", ErrAlreadyClosed, i.Number, i.Status)
	}
	if !CanTransition(i.Status, to) {
		return fmt.Errorf("%w: installment %d cannot move from %s to %s", ErrInvalidInput, i.Number, i.Status, to)
	}
	i.Status = to
	return nil
}

func (i *Installment) markPaid(amount decimal.Decimal, at time.Time, ref string) error {
	if err := i.transition(InstallmentStatusPaid); err != nil {
		return err
	}
	i.AmountPaid = amount
	i.PaidAt = &at
	i.OperationRef = ref
	i.PrepaidAmount = decimal.Zero
	i.PriorStatus = ""
	return nil
}

// resolve closes an open installment in bulk (cancellation, settlement, reschedule).
func (i *Installment) resolve(to InstallmentStatus, paid decimal.Decimal, at time.Time, ref string) error {
	if err := i.transition(to); err != nil {
		return err
	}
	i.AmountPaid = paid
	i.PaidAt = &at
	i.OperationRef = ref
	return nil
}
