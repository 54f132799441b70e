package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half away from zero to cents, which is half-up for the
// non-negative amounts the ledger deals in.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Quote is the result of the flat-interest amortization formula.
type Quote struct {
	OtherFees          decimal.Decimal
	Interest           decimal.Decimal
	TotalPayable       decimal.Decimal
	InstallmentAmount  decimal.Decimal
	PercentOfPrincipal decimal.Decimal // display only
}

// Compute is the single place loan totals are derived from. Interest is a
// flat charge on principal plus fees over the whole term:
//
//	total = (principal + principal*otherFeesRate) * (1 + rate/100)
//
// Money outputs are rounded to cents. Interest is reported as the difference
// between the rounded total and the rounded principal+fees so the three
// components always add up to TotalPayable.
func Compute(principal, interestRatePercent decimal.Decimal, termCount int, otherFeesRate decimal.Decimal) (Quote, error) {
	if !principal.IsPositive() {
		return Quote{}, fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	if !principal.Equal(RoundMoney(principal)) {
		return Quote{}, fmt.Errorf("%w: principal must be a whole number of cents", ErrInvalidInput)
	}
	if termCount <= 0 {
		return Quote{}, fmt.Errorf("%w: term count must be positive", ErrInvalidInput)
	}
	if interestRatePercent.IsNegative() {
		return Quote{}, fmt.Errorf("%w: interest rate cannot be negative", ErrInvalidInput)
	}
	if otherFeesRate.IsNegative() {
		return Quote{}, fmt.Errorf("%w: other fees rate cannot be negative", ErrInvalidInput)
	}

	otherFees := RoundMoney(principal.Mul(otherFeesRate))
	base := principal.Add(otherFees)
	total := RoundMoney(base.Mul(decimal.NewFromInt(1).Add(interestRatePercent.Div(hundred))))

	return Quote{
		OtherFees:          otherFees,
		Interest:           total.Sub(base),
		TotalPayable:       total,
		InstallmentAmount:  periodShare(total, termCount),
		PercentOfPrincipal: RoundMoney(total.Div(principal).Mul(hundred)),
	}, nil
}

// periodShare is amount/n rounded to cents, unless n-1 such shares would
// overrun amount. Then it is amount/n rounded down so the last period of a
// straight-line split never goes negative.
func periodShare(amount decimal.Decimal, n int) decimal.Decimal {
	exact := amount.Div(decimal.NewFromInt(int64(n)))
	share := RoundMoney(exact)
	if share.Mul(decimal.NewFromInt(int64(n - 1))).GreaterThan(amount) {
		return exact.RoundDown(2)
	}
	return share
}

// ComputeTerms is Compute over a Terms value.
func ComputeTerms(t Terms) (Quote, error) {
	return Compute(t.Principal, t.InterestRate, t.TermCount, t.OtherFeesRate)
}
