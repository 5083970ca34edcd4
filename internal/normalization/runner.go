package normalization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nehasri1207/RankSarthi/internal/exam"
	syncx "github.com/nehasri1207/RankSarthi/internal/sync"
	"github.com/nehasri1207/RankSarthi/internal/telemetry"
)

var (
	// ErrUnsupportedFamily marks exams whose family has no normalizer. Run
	// reports it in RunResult.Reason rather than returning it.
	ErrUnsupportedFamily = errors.New("normalization: unsupported exam family")
	// ErrPersistence wraps failures to fetch or commit a run's data.
	ErrPersistence = errors.New("normalization: persistence failure")
)

// RunResult summarizes one normalization run.
type RunResult struct {
	ExamID  string      `json:"exam_id"`
	Family  exam.Family `json:"family"`
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Skipped []string    `json:"skipped,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// Runner loads an exam's results, dispatches to the family's normalizer and
// writes the outcome in one batch.
type Runner struct {
	store    exam.Store
	registry *Registry
	log      *slog.Logger
	tracer   trace.Tracer
	metrics  *telemetry.Metrics
	events   syncx.Appender
	now      func() time.Time
}

type Option func(*Runner)

func WithRegistry(r *Registry) Option { return func(rn *Runner) { rn.registry = r } }

func WithLogger(l *slog.Logger) Option { return func(rn *Runner) { rn.log = l } }

func WithTracer(t trace.Tracer) Option { return func(rn *Runner) { rn.tracer = t } }

func WithMetrics(m *telemetry.Metrics) Option { return func(rn *Runner) { rn.metrics = m } }

func WithEvents(a syncx.Appender) Option { return func(rn *Runner) { rn.events = a } }

func NewRunner(store exam.Store, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		registry: DefaultRegistry(),
		log:      slog.Default(),
		tracer:   otel.Tracer(telemetry.TracerName),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "normalization")
	return r
}

// Run normalizes every eligible result of examID. It returns an error wrapping
// exam.ErrExamNotFound for unknown exams and ErrPersistence for store
// failures; an unsupported family yields Success=false with a nil error.
func (r *Runner) Run(ctx context.Context, examID string) (res RunResult, err error) {
	start := r.now()
	res.ExamID = examID
	ctx, span := r.tracer.Start(ctx, "normalization.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("exam.id", examID)))
	defer func() {
		status := "success"
		switch {
		case err != nil:
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case !res.Success:
			status = "skipped"
		default:
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.Int("normalization.count", res.Count), attribute.String("normalization.status", status))
		span.End()
		r.metrics.RunCompleted(ctx, string(res.Family), status, r.now().Sub(start), res.Count)
	}()

	ex, err := r.store.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, exam.ErrExamNotFound) {
			return res, fmt.Errorf("normalize %s: %w", examID, err)
		}
		return res, fmt.Errorf("%w: load exam %s: %w", ErrPersistence, examID, err)
	}
	res.Family = ex.Family
	span.SetAttributes(attribute.String("exam.family", string(ex.Family)))

	n, ok := r.registry.Lookup(ex.Family)
	if !ok {
		res.Reason = fmt.Sprintf("%v: %q (supported: %s, %s)", ErrUnsupportedFamily, ex.Family, exam.FamilySSC, exam.FamilyRailway)
		r.log.InfoContext(ctx, "normalization skipped", "exam_id", examID, "family", ex.Family)
		return res, nil
	}

	set, err := r.store.FetchResultsForExam(ctx, examID)
	if err != nil {
		return res, fmt.Errorf("%w: fetch results %s: %w", ErrPersistence, examID, err)
	}
	res.Skipped = set.Skipped
	if len(set.Skipped) > 0 {
		r.log.WarnContext(ctx, "rows excluded from normalization", "exam_id", examID, "skipped", len(set.Skipped))
	}
	if len(set.Rows) == 0 {
		res.Success = true
		res.Reason = "no results"
		return res, nil
	}

	updates := n.Normalize(set.Rows)
	if err := r.store.ApplyNormalizationBatch(ctx, updates); err != nil {
		return res, fmt.Errorf("%w: apply batch %s: %w", ErrPersistence, examID, err)
	}

	res.Success = true
	res.Count = countOverall(updates)
	r.log.InfoContext(ctx, "normalization complete",
		"exam_id", examID, "family", ex.Family, "count", res.Count, "duration", r.now().Sub(start))
	r.record(ctx, res)
	return res, nil
}

// countOverall counts updates carrying an overall score; zone-only rows are
// not included.
func countOverall(updates []exam.NormalizationUpdate) int {
	n := 0
	for _, u := range updates {
		if u.NormalizedScore != nil {
			n++
		}
	}
	return n
}

func (r *Runner) record(ctx context.Context, res RunResult) {
	if r.events == nil {
		return
	}
	e, err := syncx.NewEvent(syncx.EventNormalizationCompleted, res.ExamID, res)
	if err == nil {
		err = r.events.Append(ctx, e)
	}
	if err != nil {
		r.log.WarnContext(ctx, "append event failed", "exam_id", res.ExamID, "err", err)
	}
}
