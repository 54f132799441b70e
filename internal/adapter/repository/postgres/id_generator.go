package postgres

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/iho/microloan/internal/domain"
)

// ULIDGenerator generates ULID-based IDs. IDs taken from one generator sort
// in creation order, even within a millisecond.
type ULIDGenerator struct {
	mu      sync.Mutex
	clock   domain.Clock
	entropy io.Reader
}

// NewULIDGenerator creates a new ULIDGenerator. A nil clock means the
// system clock.
func NewULIDGenerator(clock domain.Clock) *ULIDGenerator {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ULIDGenerator{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate generates a new ULID.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.clock.Now()), g.entropy).String()
}
