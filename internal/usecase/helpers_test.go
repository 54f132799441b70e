package usecase_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/metrics"
	"github.com/iho/microloan/internal/usecase"
	"github.com/iho/microloan/internal/usecase/mocks"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memLoanRepo is an in-memory LoanRepository with the same version check
// the postgres repository applies.
type memLoanRepo struct {
	mu    sync.Mutex
	books map[string]*domain.LoanBook
}

func newMemLoanRepo() *memLoanRepo {
	return &memLoanRepo{books: make(map[string]*domain.LoanBook)}
}

func (r *memLoanRepo) Create(_ context.Context, _ usecase.Transaction, book *domain.LoanBook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[book.Loan.ID] = book.Clone()
	return nil
}

func (r *memLoanRepo) GetByID(_ context.Context, id string) (*domain.LoanBook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLoanNotFound, id)
	}
	return b.Clone(), nil
}

func (r *memLoanRepo) GetByIDForUpdate(ctx context.Context, _ usecase.Transaction, id string) (*domain.LoanBook, error) {
	return r.GetByID(ctx, id)
}

func (r *memLoanRepo) Save(_ context.Context, _ usecase.Transaction, book *domain.LoanBook, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.books[book.Loan.ID]
	if !ok {
		return domain.ErrLoanNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrStaleState
	}
	r.books[book.Loan.ID] = book.Clone()
	return nil
}

func (r *memLoanRepo) List(_ context.Context, filter usecase.LoanFilter) ([]*domain.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Loan
	for _, b := range r.books {
		if filter.Status != "" && b.Loan.Status != filter.Status {
			continue
		}
		loan := b.Loan
		out = append(out, &loan)
	}
	return out, nil
}

func (r *memLoanRepo) ListIDs(_ context.Context, status domain.LoanStatus, afterID string, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, b := range r.books {
		if id <= afterID || (status != "" && b.Loan.Status != status) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type fixture struct {
	ctrl    *gomock.Controller
	clock   *testClock
	ledger  *domain.Ledger
	loans   *memLoanRepo
	txMgr   *mocks.MockTransactionManager
	outbox  *mocks.MockOutboxRepository
	audit   *mocks.MockAuditRepository
	groups  *mocks.MockLoanGroupRepository
	proofs  *mocks.MockProofRepository
	locker  *mocks.MockLoanLocker
	idGen   *mocks.MockIDGenerator
	metrics *metrics.Metrics
	events  []*domain.OutboxEvent
	audits  []*domain.AuditLog
}

// newFixture wires permissive collaborators: transactions always commit,
// the outbox and audit log record what they receive.
func newFixture(t *testing.T, lateFee domain.LateFeePolicy) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		ctrl:    ctrl,
		clock:   &testClock{now: day(2024, 1, 1)},
		loans:   newMemLoanRepo(),
		txMgr:   mocks.NewMockTransactionManager(ctrl),
		outbox:  mocks.NewMockOutboxRepository(ctrl),
		audit:   mocks.NewMockAuditRepository(ctrl),
		groups:  mocks.NewMockLoanGroupRepository(ctrl),
		proofs:  mocks.NewMockProofRepository(ctrl),
		locker:  mocks.NewMockLoanLocker(ctrl),
		idGen:   mocks.NewMockIDGenerator(ctrl),
		metrics: metrics.NewWithRegisterer(prometheus.NewRegistry()),
	}
	f.ledger = domain.NewLedger(f.clock, lateFee)

	tx := mocks.NewMockTransaction(ctrl)
	tx.EXPECT().Commit(gomock.Any()).Return(nil).AnyTimes()
	tx.EXPECT().Rollback(gomock.Any()).Return(nil).AnyTimes()
	f.txMgr.EXPECT().Begin(gomock.Any()).Return(tx, nil).AnyTimes()

	var seq int
	f.idGen.EXPECT().Generate().DoAndReturn(func() string {
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}).AnyTimes()

	f.outbox.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ usecase.Transaction, ev *domain.OutboxEvent) error {
			f.events = append(f.events, ev)
			return nil
		}).AnyTimes()
	f.audit.EXPECT().CreateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ usecase.Transaction, log *domain.AuditLog) error {
			f.audits = append(f.audits, log)
			return nil
		}).AnyTimes()
	f.audit.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, log *domain.AuditLog) error {
			f.audits = append(f.audits, log)
			return nil
		}).AnyTimes()

	f.locker.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(func(context.Context) error { return nil }, nil).AnyTimes()

	return f
}

func (f *fixture) loanUseCase() *usecase.LoanUseCase {
	return usecase.NewLoanUseCase(f.txMgr, f.loans, f.groups, f.outbox, f.audit, f.idGen, f.ledger, f.metrics)
}

func (f *fixture) paymentUseCase() *usecase.PaymentUseCase {
	return usecase.NewPaymentUseCase(f.txMgr, f.loans, f.proofs, f.outbox, f.audit, f.locker, nil, f.idGen, f.ledger, f.metrics, 0)
}

func (f *fixture) lastEvent() *domain.OutboxEvent {
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

func weeklyLoan() usecase.CreateLoanInput {
	return usecase.CreateLoanInput{
		ClientID:     "client-1",
		AdvisorID:    "adv-1",
		Principal:    dec("1000"),
		InterestRate: dec("20"),
		TermCount:    4,
		Frequency:    domain.FrequencyWeekly,
		StartDate:    day(2024, 1, 1),
	}
}

func weeklyTerms() domain.Terms {
	in := weeklyLoan()
	return domain.Terms{
		Principal:    in.Principal,
		InterestRate: in.InterestRate,
		TermCount:    in.TermCount,
		Frequency:    in.Frequency,
		StartDate:    in.StartDate,
	}
}

func advisorCtx() context.Context {
	return domain.ContextWithUser(context.Background(), &domain.User{ID: "adv-1", Role: domain.RoleAdvisor})
}
