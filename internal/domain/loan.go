package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency determines how far apart consecutive due dates are.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// IsValid reports whether f is a known frequency.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Step returns the due date of period i counted from start.
func (f Frequency) Step(start time.Time, i int) time.Time {
	start = DateOf(start)
	switch f {
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*i)
	case FrequencyBiweekly:
		return start.AddDate(0, 0, 14*i)
	default:
		return addMonthsClamped(start, i)
	}
}

// addMonthsClamped adds n calendar months, pinning to the last day of the
// target month instead of overflowing into the next one (Jan 31 + 1 = Feb 28).
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// LoanStatus is the aggregate state of a loan, derived by the ledger.
type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "active"
	LoanStatusPaidOff    LoanStatus = "paid_off"
	LoanStatusCanceled   LoanStatus = "canceled"
	LoanStatusRefinanced LoanStatus = "refinanced"
)

// Origination policy for individual loans.
var (
	MinInterestRate     = decimal.NewFromInt(13)
	MaxInterestRate     = decimal.NewFromInt(40)
	MinRescheduleRate   = decimal.NewFromInt(1)
	MaxRescheduleRate   = decimal.NewFromInt(5)
	DefaultOtherFeeRate = decimal.RequireFromString("0.01")
)

const (
	MinTermCount = 2
	MaxTermCount = 8
)

// Terms are the inputs a loan is originated from.
type Terms struct {
	Principal     decimal.Decimal
	InterestRate  decimal.Decimal // percent
	TermCount     int
	Frequency     Frequency
	OtherFeesRate decimal.Decimal // fraction of principal
	StartDate     time.Time
}

// Loan is the header of a loan book.
type Loan struct {
	ID                string
	ClientID          string
	AdvisorID         string
	GroupID           string
	Principal         decimal.Decimal
	InterestRate      decimal.Decimal
	TermCount         int
	Frequency         Frequency
	OtherFeesRate     decimal.Decimal
	StartDate         time.Time
	TotalPayable      decimal.Decimal
	InstallmentAmount decimal.Decimal
	Status            LoanStatus
	RescheduleCount   int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Terms returns the origination terms of the loan.
func (l *Loan) Terms() Terms {
	return Terms{
		Principal:     l.Principal,
		InterestRate:  l.InterestRate,
		TermCount:     l.TermCount,
		Frequency:     l.Frequency,
		OtherFeesRate: l.OtherFeesRate,
		StartDate:     l.StartDate,
	}
}

// IsClosed reports whether the loan accepts no further mutations.
func (l *Loan) IsClosed() bool {
	return l.Status != LoanStatusActive
}

// LoanGroup collects loans originated together under one advisor.
type LoanGroup struct {
	ID        string
	Name      string
	AdvisorID string
	LoanIDs   []string
	CreatedAt time.Time
}

// Validate checks the group header.
func (g *LoanGroup) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	if g.AdvisorID == "" {
		return fmt.Errorf("%w: group advisor is required", ErrInvalidInput)
	}
	return nil
}
