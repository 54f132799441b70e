package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BuildSchedule expands loan terms into installments 1..TermCount and
// refreshes them against today, so the first one may already be due.
func BuildSchedule(t Terms, today time.Time, lateFee LateFeePolicy) ([]Installment, Quote, error) {
	if !t.Frequency.IsValid() {
		return nil, Quote{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, t.Frequency)
	}
	if t.StartDate.IsZero() {
		return nil, Quote{}, fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}

	q, err := ComputeTerms(t)
	if err != nil {
		return nil, Quote{}, err
	}

	installments := splitQuote(q, RoundMoney(t.Principal), t.TermCount, t.Frequency, t.StartDate, 1)
	for i := range installments {
		installments[i].Refresh(today, lateFee)
	}
	return installments, q, nil
}

// splitQuote spreads a quote straight-line over n periods. Every installment
// but the last carries InstallmentAmount; the last absorbs the rounding
// remainder so the amounts add up to TotalPayable exactly. Each amount is
// filled with its principal and interest share first and fees after, never
// taking more of a component than is left of it, so every portion column
// also adds up to its quote total and none goes negative.
func splitQuote(q Quote, principal decimal.Decimal, n int, freq Frequency, start time.Time, firstNumber int) []Installment {
	perPrincipal := periodShare(principal, n)
	perInterest := periodShare(q.Interest, n)
	fees := q.TotalPayable.Sub(principal).Sub(q.Interest)

	out := make([]Installment, n)
	var sumAmount, sumPrincipal, sumInterest, sumOther decimal.Decimal

	for k := 0; k < n; k++ {
		leftP := principal.Sub(sumPrincipal)
		leftI := q.Interest.Sub(sumInterest)
		leftO := fees.Sub(sumOther)

		var amount, p, in, other decimal.Decimal
		if k == n-1 {
			amount = q.TotalPayable.Sub(sumAmount)
			p, in, other = leftP, leftI, leftO
		} else {
			amount = q.InstallmentAmount
			p = decimal.Min(perPrincipal, leftP, amount)
			in = decimal.Min(perInterest, leftI, amount.Sub(p))
			other = decimal.Min(amount.Sub(p).Sub(in), leftO)
			spill := amount.Sub(p).Sub(in).Sub(other)
			extra := decimal.Min(spill, leftP.Sub(p))
			p = p.Add(extra)
			in = in.Add(spill.Sub(extra))
		}

		sumAmount = sumAmount.Add(amount)
		sumPrincipal = sumPrincipal.Add(p)
		sumInterest = sumInterest.Add(in)
		sumOther = sumOther.Add(other)

		out[k] = Installment{
			Number:           firstNumber + k,
			DueDate:          freq.Step(start, k+1),
			PrincipalPortion: p,
			InterestPortion:  in,
			OtherPortion:     other,
			Amount:           amount,
			Status:           InstallmentStatusPending,
		}
	}
	return out
}
