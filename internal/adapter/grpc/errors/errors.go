package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/iho/microloan/internal/domain"
)

// MapDomainError converts domain errors to gRPC status errors. Validation
// and state errors keep their message since it names the violated rule;
// anything unexpected becomes Internal without details.
func MapDomainError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrLoanNotFound),
		errors.Is(err, domain.ErrLoanGroupNotFound),
		errors.Is(err, domain.ErrInstallmentMissing),
		errors.Is(err, domain.ErrProofNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())

	// Business rule violations
	case errors.Is(err, domain.ErrPaymentTooLow),
		errors.Is(err, domain.ErrSequenceViolation),
		errors.Is(err, domain.ErrNotEligible),
		errors.Is(err, domain.ErrAlreadyReduced),
		errors.Is(err, domain.ErrAlreadyClosed):
		return status.Error(codes.FailedPrecondition, err.Error())

	// The caller should re-read the loan and retry
	case errors.Is(err, domain.ErrStaleState):
		return status.Error(codes.Aborted, "loan was modified concurrently")
	case errors.Is(err, domain.ErrLoanBusy):
		return status.Error(codes.Unavailable, "loan is locked by another operation")

	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken):
		return status.Error(codes.Unauthenticated, "invalid or expired token")
	case errors.Is(err, domain.ErrInsufficientRole):
		return status.Error(codes.PermissionDenied, "insufficient permissions")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "operation timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "operation was canceled")

	default:
		return status.Error(codes.Internal, "an internal error occurred")
	}
}
