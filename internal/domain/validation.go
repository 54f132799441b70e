package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxPaymentAmount   = "1000000000" // 1 billion
	MaxReferenceLength = 255
	MaxGroupLoans      = 50
	MaxRejectionLength = 500
)

var idRegex = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

// ValidateID checks that id looks like a ULID.
func ValidateID(id string) error {
	if !idRegex.MatchString(strings.ToUpper(id)) {
		return fmt.Errorf("%w: malformed id %q", ErrInvalidInput, id)
	}
	return nil
}

// ValidateMoney validates an operator-entered amount: non-negative, cents
// precision, below the hard ceiling.
func ValidateMoney(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: amount cannot be negative", ErrInvalidInput)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount has more than 2 decimal places", ErrInvalidInput)
	}

	maxAmount, _ := decimal.NewFromString(MaxPaymentAmount)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrInvalidInput, MaxPaymentAmount)
	}
	return nil
}

// ValidateReference validates a free-form operator or proof reference.
func ValidateReference(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("%w: reference cannot be empty", ErrInvalidInput)
	}
	if len(ref) > MaxReferenceLength {
		return fmt.Errorf("%w: reference exceeds %d characters", ErrInvalidInput, MaxReferenceLength)
	}
	return nil
}

// ValidateRejectionReason requires a short, non-empty explanation.
func ValidateRejectionReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}
	if len(reason) > MaxRejectionLength {
		return fmt.Errorf("%w: rejection reason exceeds %d characters", ErrInvalidInput, MaxRejectionLength)
	}
	return nil
}

// ValidateOriginationTerms enforces the individual-loan policy on top of the
// calculator's own input checks.
func ValidateOriginationTerms(t Terms) error {
	if !t.Principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	if !t.Principal.Equal(t.Principal.Round(2)) {
		return fmt.Errorf("%w: principal has more than 2 decimal places", ErrInvalidInput)
	}
	if t.InterestRate.LessThan(MinInterestRate) || t.InterestRate.GreaterThan(MaxInterestRate) {
		return fmt.Errorf("%w: interest rate must be between %s and %s percent", ErrInvalidInput, MinInterestRate, MaxInterestRate)
	}
	if t.TermCount < MinTermCount || t.TermCount > MaxTermCount {
		return fmt.Errorf("%w: term count must be between %d and %d", ErrInvalidInput, MinTermCount, MaxTermCount)
	}
	if !t.Frequency.IsValid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, t.Frequency)
	}
	if t.OtherFeesRate.IsNegative() || t.OtherFeesRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: other fees rate must be in [0, 1)", ErrInvalidInput)
	}
	if t.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	return nil
}

// ValidateRescheduleRate enforces the rate window for rescheduled balances.
func ValidateRescheduleRate(rate decimal.Decimal) error {
	if rate.LessThan(MinRescheduleRate) || rate.GreaterThan(MaxRescheduleRate) {
		return fmt.Errorf("%w: reschedule rate must be between %s and %s percent", ErrInvalidInput, MinRescheduleRate, MaxRescheduleRate)
	}
	return nil
}
