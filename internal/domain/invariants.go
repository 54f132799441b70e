package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Discrepancy is one broken invariant found on a stored book.
type Discrepancy struct {
	InstallmentNumber int    `json:"installment_number,omitempty"`
	Rule              string `json:"rule"`
	Detail            string `json:"detail"`
}

// CheckInvariants re-verifies a persisted book. A clean book returns nil.
func (b *LoanBook) CheckInvariants() []Discrepancy {
	var out []Discrepancy
	add := func(n int, rule, format string, args ...any) {
		out = append(out, Discrepancy{InstallmentNumber: n, Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	for i, inst := range b.Installments {
		if inst.Number != i+1 {
			add(inst.Number, "numbering", "expected installment %d at position %d", i+1, i)
		}
		if !inst.Status.IsValid() {
			add(inst.Number, "status", "unknown status %q", inst.Status)
		}
		parts := inst.PrincipalPortion.Add(inst.InterestPortion).Add(inst.OtherPortion)
		if !parts.Equal(inst.Amount) {
			add(inst.Number, "portions", "portions sum to %s, amount is %s", parts, inst.Amount)
		}
		if inst.CarriedSurplus.IsNegative() || inst.MoraAmount.IsNegative() {
			add(inst.Number, "non_negative", "surplus %s, mora %s", inst.CarriedSurplus, inst.MoraAmount)
		}
		if inst.Amount.IsNegative() || inst.PrincipalPortion.IsNegative() ||
			inst.InterestPortion.IsNegative() || inst.OtherPortion.IsNegative() {
			add(inst.Number, "non_negative", "amount %s, portions %s/%s/%s",
				inst.Amount, inst.PrincipalPortion, inst.InterestPortion, inst.OtherPortion)
		}
		if inst.Status == InstallmentStatusPaid {
			for _, prev := range b.Installments[:i] {
				if !prev.IsResolved() && prev.Status != InstallmentStatusPrepaid {
					add(inst.Number, "sequence", "paid while installment %d is %s", prev.Number, prev.Status)
				}
			}
		}
	}

	if b.Loan.RescheduleCount == 0 && b.Loan.Status != LoanStatusRefinanced && len(b.Installments) == b.Loan.TermCount {
		sum := decimal.Zero
		for _, inst := range b.Installments {
			sum = sum.Add(inst.Amount)
		}
		if !sum.Equal(b.Loan.TotalPayable) {
			add(0, "schedule_total", "installments sum to %s, loan total is %s", sum, b.Loan.TotalPayable)
		}
	}

	paid, owed := decimal.Zero, decimal.Zero
	for _, inst := range b.Installments {
		paid = paid.Add(inst.AmountPaid)
		if inst.Status != InstallmentStatusRescheduled {
			owed = owed.Add(inst.Amount).Add(inst.MoraAmount)
		}
	}
	if paid.GreaterThan(owed) {
		add(0, "overpaid", "paid %s exceeds owed %s", paid, owed)
	}

	return out
}
