package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := New(zerolog.Nop(), 0)

	err := s.Add("sweep", "every tuesday", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestSchedulerAcceptsFiveAndSixFieldSpecs(t *testing.T) {
	s := New(zerolog.Nop(), 0)

	require.NoError(t, s.Add("nightly", "5 0 * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.Add("with-seconds", "0 5 0 * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.Add("hourly", "@hourly", func(context.Context) error { return nil }))
	assert.Len(t, s.cron.Entries(), 3)
}

func TestSchedulerRunsJobsUntilCancelled(t *testing.T) {
	s := New(zerolog.Nop(), time.Second)

	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("expected job deadline")
		}
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestRunLogsFailureWithoutPanicking(t *testing.T) {
	s := New(zerolog.Nop(), 0)

	assert.NotPanics(t, func() {
		s.run("broken", func(context.Context) error { return errors.New("boom") })
	})
}
