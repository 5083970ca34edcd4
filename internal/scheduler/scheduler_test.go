package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nehasri1207/RankSarthi/internal/logging"
	"github.com/nehasri1207/RankSarthi/internal/normalization"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeRunner counts runs; when gate is non-nil each run blocks until it closes.
type fakeRunner struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
	panic bool
}

func (r *fakeRunner) Run(_ context.Context, examID string) (normalization.RunResult, error) {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if r.panic {
		panic("boom")
	}
	return normalization.RunResult{ExamID: examID, Success: r.err == nil}, r.err
}

func newTestScheduler(r Runner, clock *fakeClock) *Scheduler {
	return New(r, WithClock(clock.Now), WithLogger(logging.Discard()))
}

func TestBurstRunsOnce(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	runner := &fakeRunner{gate: make(chan struct{})}
	s := newTestScheduler(runner, clock)

	outcomes := make([]Outcome, 5)
	for i := range outcomes {
		outcomes[i] = s.RequestRecompute("exam-1")
	}
	assert.Equal(t, []Outcome{Started, Running, Running, Running, Running}, outcomes)

	close(runner.gate)
	s.Wait()
	assert.Equal(t, int32(1), runner.calls.Load())

	running, last := s.Status("exam-1")
	assert.False(t, running)
	assert.Equal(t, clock.Now(), last)
}

func TestCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	runner := &fakeRunner{}
	s := newTestScheduler(runner, clock)

	require.Equal(t, Started, s.RequestRecompute("exam-1"))
	s.Wait()

	clock.Advance(29 * time.Second)
	assert.Equal(t, Cooldown, s.RequestRecompute("exam-1"))
	assert.Equal(t, Started, s.RequestRecompute("exam-2"), "cooldown is per exam")
	s.Wait()

	clock.Advance(time.Second)
	assert.Equal(t, Started, s.RequestRecompute("exam-1"))
	s.Wait()
	assert.Equal(t, int32(3), runner.calls.Load())
}

func TestCustomCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	runner := &fakeRunner{}
	s := New(runner, WithClock(clock.Now), WithLogger(logging.Discard()), WithCooldown(5*time.Second))

	s.RequestRecompute("e")
	s.Wait()
	clock.Advance(5 * time.Second)
	assert.Equal(t, Started, s.RequestRecompute("e"))
	s.Wait()
}

func TestFailedRunDoesNotStampCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	runner := &fakeRunner{err: errors.New("db down")}
	s := newTestScheduler(runner, clock)

	require.Equal(t, Started, s.RequestRecompute("exam-1"))
	s.Wait()
	_, last := s.Status("exam-1")
	assert.True(t, last.IsZero())

	assert.Equal(t, Started, s.RequestRecompute("exam-1"), "no cooldown after a failure")
	s.Wait()
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestPanickingRunReturnsToIdle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	runner := &fakeRunner{panic: true}
	s := newTestScheduler(runner, clock)

	s.RequestRecompute("exam-1")
	s.Wait()
	running, last := s.Status("exam-1")
	assert.False(t, running)
	assert.True(t, last.IsZero())
}

func TestConcurrentTriggersStartOneRun(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	runner := &fakeRunner{gate: make(chan struct{})}
	s := newTestScheduler(runner, clock)

	var started atomic.Int32
	var g errgroup.Group
	for i := 0; i < 64; i++ {
		g.Go(func() error {
			if s.RequestRecompute("exam-1") == Started {
				started.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(runner.gate)
	s.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestCloseRejectsAndWaits(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	runner := &fakeRunner{gate: make(chan struct{})}
	s := newTestScheduler(runner, clock)
	require.Equal(t, Started, s.RequestRecompute("exam-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded, "run still in flight")
	assert.Equal(t, Closed, s.RequestRecompute("exam-2"))

	close(runner.gate)
	assert.NoError(t, s.Close(context.Background()))
}
