package standing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/telemetry"
)

// Standing is a candidate's position within one population.
type Standing struct {
	Rank       int    `json:"rank"`
	Total      int    `json:"total"`
	Percentile string `json:"percentile"`
}

// Standings covers the five scopes reported to a candidate.
type Standings struct {
	Overall      Standing `json:"overall"`
	Category     Standing `json:"category"`
	Zone         Standing `json:"zone"`
	CategoryZone Standing `json:"categoryZone"`
	Shift        Standing `json:"shift"`
}

// Query describes the candidate being placed. An empty Zone or a nil Session
// leaves the dependent scopes at their zero value. An empty Category is a
// population nobody belongs to, so the category scope reports rank 1 of 0.
type Query struct {
	Score    float64
	Category string
	Zone     string
	Session  *exam.SessionKey
	Basis    exam.ScoreBasis
}

// Counter answers population and rank counts; exam.Store satisfies it.
type Counter interface {
	CountAndRank(ctx context.Context, examID string, scope exam.Scope, score float64) (exam.RankCount, error)
}

type Engine struct {
	store   Counter
	metrics *telemetry.Metrics
}

func New(store Counter, metrics *telemetry.Metrics) *Engine {
	return &Engine{store: store, metrics: metrics}
}

// Empty is the standing reported for a scope that was not computed.
var Empty = Standing{Rank: 0, Total: 0, Percentile: "0.00"}

// FromCount turns a scope count into a standing: rank is one more than the
// number of strictly higher scores.
func FromCount(rc exam.RankCount) Standing {
	rank := rc.Above + 1
	return Standing{Rank: rank, Total: rc.Count, Percentile: Percentile(rank, rc.Count)}
}

// Percentile formats ((total-(rank-1))/total)*100 with two decimals, or
// "0.00" for an empty population.
func Percentile(rank, total int) string {
	if total <= 0 {
		return "0.00"
	}
	p := float64(total-(rank-1)) / float64(total) * 100
	return strconv.FormatFloat(p, 'f', 2, 64)
}

// Compute ranks q.Score against the live population of examID. Nothing is
// cached; every call re-counts.
func (e *Engine) Compute(ctx context.Context, examID string, q Query) (Standings, error) {
	basis := q.Basis
	if basis == "" {
		basis = exam.BasisRaw
	}
	e.metrics.StandingComputed(ctx, string(basis))

	out := Standings{Category: Empty, Zone: Empty, CategoryZone: Empty, Shift: Empty}
	if q.Category == "" {
		out.Category = FromCount(exam.RankCount{})
	}
	scopes := []struct {
		dst   *Standing
		scope exam.Scope
		skip  bool
	}{
		{&out.Overall, exam.Scope{}, false},
		{&out.Category, exam.Scope{Category: q.Category}, q.Category == ""},
		{&out.Zone, exam.Scope{Zone: q.Zone}, q.Zone == ""},
		{&out.CategoryZone, exam.Scope{Category: q.Category, Zone: q.Zone}, q.Zone == "" || q.Category == ""},
		{&out.Shift, exam.Scope{Session: q.Session}, q.Session == nil},
	}
	for _, s := range scopes {
		if s.skip {
			continue
		}
		s.scope.Basis = basis
		rc, err := e.store.CountAndRank(ctx, examID, s.scope, q.Score)
		if err != nil {
			return Standings{}, fmt.Errorf("standing %s: %w", examID, err)
		}
		*s.dst = FromCount(rc)
	}
	return out, nil
}
