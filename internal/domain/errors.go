package domain

import "errors"

// Error categories. Every failure returned by the ledger wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrPaymentTooLow      = errors.New("payment too low")
	ErrAlreadyReduced     = errors.New("mora already reduced")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrNotEligible        = errors.New("not eligible")
	ErrStaleState         = errors.New("stale state")
	ErrSequenceViolation  = errors.New("installment paid out of sequence")
	ErrLoanNotFound       = errors.New("loan not found")
	ErrLoanGroupNotFound  = errors.New("loan group not found")
	ErrInstallmentMissing = errors.New("installment not found")
	ErrProofNotFound      = errors.New("payment proof not found")
	ErrLoanBusy           = errors.New("loan is being modified by another operation")
)
