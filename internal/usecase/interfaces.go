package usecase

import (
	"context"
	"time"

	"github.com/iho/microloan/internal/domain"
)

// LoanFilter narrows a loan listing.
type LoanFilter struct {
	Status    domain.LoanStatus
	ClientID  string
	AdvisorID string
	GroupID   string
	Limit     int
	Offset    int
}

// LoanRepository is the persistence gateway for loan books.
type LoanRepository interface {
	Create(ctx context.Context, tx Transaction, book *domain.LoanBook) error
	GetByID(ctx context.Context, id string) (*domain.LoanBook, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.LoanBook, error)
	// Save persists book, failing with domain.ErrStaleState unless the stored
	// version still equals expectedVersion.
	Save(ctx context.Context, tx Transaction, book *domain.LoanBook, expectedVersion int64) error
	List(ctx context.Context, filter LoanFilter) ([]*domain.Loan, error)
	// ListIDs pages loan ids in id order after afterID. An empty status lists all loans.
	ListIDs(ctx context.Context, status domain.LoanStatus, afterID string, limit int) ([]string, error)
}

// LoanGroupRepository defines data access for loan groups.
type LoanGroupRepository interface {
	Create(ctx context.Context, tx Transaction, group *domain.LoanGroup) error
	GetByID(ctx context.Context, id string) (*domain.LoanGroup, error)
}

// ProofRepository stores uploaded proofs of payment.
type ProofRepository interface {
	Create(ctx context.Context, proof *domain.PaymentProof) error
	Exists(ctx context.Context, id string) (bool, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
	GetByResourceID(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation on transient storage failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// LoanLocker serialises mutations of one loan across service instances.
type LoanLocker interface {
	// Acquire takes the lock for loanID or fails with domain.ErrLoanBusy.
	// The returned func releases it.
	Acquire(ctx context.Context, loanID string, ttl time.Duration) (release func(context.Context) error, err error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IdempotencyStore remembers the responses of requests carrying an
// Idempotency-Key.
type IdempotencyStore interface {
	// Reserve claims key for a request in flight. When the key is already
	// taken it returns reserved=false and the stored response, which is nil
	// while the first request is still running.
	Reserve(ctx context.Context, key string, ttl time.Duration) (reserved bool, response []byte, err error)
	// Complete stores the final response for key.
	Complete(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a reservation whose request failed so it can be retried.
	Release(ctx context.Context, key string) error
}
