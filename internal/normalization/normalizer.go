package normalization

import (
	"sync"

	"github.com/nehasri1207/RankSarthi/internal/exam"
)

// Normalizer equates raw scores across the sessions of one exam family.
// Implementations are pure: they read rows and return the updates to persist.
type Normalizer interface {
	Family() exam.Family
	Normalize(rows []exam.ScoreRow) []exam.NormalizationUpdate
}

// Registry maps exam families to their normalizer.
type Registry struct {
	mu sync.RWMutex
	m  map[exam.Family]Normalizer
}

func NewRegistry(ns ...Normalizer) *Registry {
	r := &Registry{m: map[exam.Family]Normalizer{}}
	for _, n := range ns {
		r.Register(n)
	}
	return r
}

// DefaultRegistry knows the SSC and Railway families.
func DefaultRegistry() *Registry {
	return NewRegistry(EquiPercentile{}, BaseShift{})
}

// Register binds n to its family, replacing any previous binding.
func (r *Registry) Register(n Normalizer) {
	if n == nil {
		return
	}
	r.mu.Lock()
	r.m[n.Family()] = n
	r.mu.Unlock()
}

func (r *Registry) Lookup(f exam.Family) (Normalizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.m[f]
	return n, ok && n != nil
}

type sessionGroup struct {
	key  exam.SessionKey
	rows []exam.ScoreRow
}

// groupBySession partitions rows by session, keeping first-appearance order
// for both the groups and the rows inside them.
func groupBySession(rows []exam.ScoreRow) []sessionGroup {
	pos := map[exam.SessionKey]int{}
	var groups []sessionGroup
	for _, r := range rows {
		i, ok := pos[r.Session]
		if !ok {
			i = len(groups)
			pos[r.Session] = i
			groups = append(groups, sessionGroup{key: r.Session})
		}
		groups[i].rows = append(groups[i].rows, r)
	}
	return groups
}

func rawScores(rows []exam.ScoreRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.RawScore
	}
	return out
}

func ptr(v float64) *float64 { return &v }
