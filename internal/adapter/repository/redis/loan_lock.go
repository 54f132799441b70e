package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/microloan/internal/domain"
)

// releaseScript deletes the lock only if it still holds our token, so a
// holder whose lease expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LoanLocker implements usecase.LoanLocker with a Redis lease per loan.
type LoanLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewLoanLocker creates a new LoanLocker.
func NewLoanLocker(client redis.UniversalClient) *LoanLocker {
	return &LoanLocker{
		client: client,
		prefix: "lock:loan:",
	}
}

// Acquire takes the lease for loanID for at most ttl. A held lease fails
// with domain.ErrLoanBusy.
func (l *LoanLocker) Acquire(ctx context.Context, loanID string, ttl time.Duration) (func(context.Context) error, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	key := l.prefix + loanID

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock for loan %s: %w", loanID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLoanBusy, loanID)
	}

	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
