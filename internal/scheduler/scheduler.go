package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nehasri1207/RankSarthi/internal/normalization"
	"github.com/nehasri1207/RankSarthi/internal/telemetry"
)

const DefaultCooldown = 30 * time.Second

// Runner performs one normalization run; *normalization.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, examID string) (normalization.RunResult, error)
}

// Outcome reports what RequestRecompute did with a request.
type Outcome string

const (
	Started  Outcome = "started"
	Running  Outcome = "running"  // dropped: a run is in flight
	Cooldown Outcome = "cooldown" // dropped: last run ended too recently
	Closed   Outcome = "closed"   // dropped: scheduler is shutting down
)

type state struct {
	running bool
	lastRun time.Time
}

// Scheduler coalesces recompute requests so each exam has at most one run in
// flight and runs start no sooner than the cooldown after the previous
// successful one.
type Scheduler struct {
	runner   Runner
	cooldown time.Duration
	now      func() time.Time
	log      *slog.Logger
	metrics  *telemetry.Metrics

	mu     sync.Mutex
	states map[string]*state
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

func WithCooldown(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithClock replaces time.Now; tests use it to step past the cooldown.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		cooldown: DefaultCooldown,
		now:      time.Now,
		log:      slog.Default(),
		states:   map[string]*state{},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "scheduler")
	return s
}

// RequestRecompute starts a background run for examID unless one is in
// flight or the cooldown has not elapsed. It never blocks on the run.
func (s *Scheduler) RequestRecompute(examID string) Outcome {
	out := s.admit(examID)
	s.metrics.RecomputeRequested(context.Background(), string(out))
	if out != Started {
		s.log.Debug("recompute dropped", "exam_id", examID, "reason", out)
		return out
	}
	go s.run(examID)
	return out
}

// admit performs the Idle -> Running transition under the lock.
func (s *Scheduler) admit(examID string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Closed
	}
	st, ok := s.states[examID]
	if !ok {
		st = &state{}
		s.states[examID] = st
	}
	if st.running {
		return Running
	}
	if !st.lastRun.IsZero() && s.now().Sub(st.lastRun) < s.cooldown {
		return Cooldown
	}
	st.running = true
	s.wg.Add(1)
	return Started
}

func (s *Scheduler) run(examID string) {
	var err error
	defer s.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			s.log.Error("recompute panicked", "exam_id", examID, "err", err)
		}
		s.finish(examID, err)
	}()

	res, err := s.runner.Run(context.Background(), examID)
	if err != nil {
		s.log.Error("recompute failed", "exam_id", examID, "err", err)
		return
	}
	s.log.Info("recompute finished", "exam_id", examID, "success", res.Success, "count", res.Count, "reason", res.Reason)
}

// finish returns the exam to Idle; only a run without error starts a new cooldown.
func (s *Scheduler) finish(examID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[examID]
	st.running = false
	if err == nil {
		st.lastRun = s.now()
	}
}

// Status reports whether a run is in flight for examID and when the last
// successful one ended.
func (s *Scheduler) Status(examID string) (running bool, lastRun time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[examID]; ok {
		return st.running, st.lastRun
	}
	return false, time.Time{}
}

// Wait blocks until every run started so far has finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Close rejects further requests and waits for in-flight runs, or for ctx.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
