package exam

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store used for offline runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	exams    map[string]Exam
	results  map[string]CandidateResult
	order    []string // result ids in insertion order
	bands    []RankBand
	bandSeq  int64
	failNext error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		exams:   map[string]Exam{},
		results: map[string]CandidateResult{},
	}
}

// FailNextBatch makes the next ApplyNormalizationBatch return err without applying anything.
func (m *MemoryStore) FailNextBatch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MemoryStore) CreateExam(_ context.Context, e Exam) (Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TotalMarks == 0 {
		e.TotalMarks = float64(e.QuestionCount) * e.MarksPerQuestion
	}
	e.CreatedAt = time.Now().Unix()
	m.exams[e.ID] = e
	return e, nil
}

func (m *MemoryStore) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrExamNotFound
	}
	return e, nil
}

func (m *MemoryStore) ListExams(_ context.Context, opts ListOpts) ([]Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Exam, 0, len(m.exams))
	for _, e := range m.exams {
		if opts.Family != "" && e.Family != opts.Family {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) SetNormalizationVisible(_ context.Context, id string, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return ErrExamNotFound
	}
	e.NormalizationVisible = visible
	m.exams[id] = e
	return nil
}

func (m *MemoryStore) AddRankBand(_ context.Context, b RankBand) (RankBand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[b.ExamID]; !ok {
		return RankBand{}, ErrExamNotFound
	}
	m.bandSeq++
	b.ID = m.bandSeq
	m.bands = append(m.bands, b)
	return b, nil
}

func (m *MemoryStore) FindRankBand(_ context.Context, examID string, score float64) (RankBand, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  RankBand
		found bool
	)
	for _, b := range m.bands {
		if b.ExamID != examID || score < b.MinScore || score > b.MaxScore {
			continue
		}
		if !found || b.MinScore > best.MinScore {
			best, found = b, true
		}
	}
	return best, found, nil
}

func (m *MemoryStore) MaxBandScore(_ context.Context, examID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	highest := 0.0
	for _, b := range m.bands {
		if b.ExamID == examID && b.MaxScore > highest {
			highest = b.MaxScore
		}
	}
	return highest, nil
}

func (m *MemoryStore) UpsertResult(_ context.Context, r CandidateResult) (CandidateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[r.ExamID]; !ok {
		return CandidateResult{}, ErrExamNotFound
	}
	if r.RollNo != "" {
		for _, id := range m.order {
			cur := m.results[id]
			if cur.ExamID != r.ExamID || cur.RollNo != r.RollNo {
				continue
			}
			cur.RawScore = r.RawScore
			cur.Category = r.Category
			cur.Gender = r.Gender
			cur.State = r.State
			cur.Zone = r.Zone
			cur.Sections = r.Sections
			cur.CorrectCount = r.CorrectCount
			cur.WrongCount = r.WrongCount
			m.results[id] = cur
			return cur, nil
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.NormalizedScore, r.ZoneNormalizedScore, r.Percentile = nil, nil, nil
	r.CreatedAt = time.Now().UTC()
	m.results[r.ID] = r
	m.order = append(m.order, r.ID)
	return r, nil
}

func (m *MemoryStore) GetResultByRoll(_ context.Context, examID, rollNo string) (CandidateResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		r := m.results[id]
		if r.ExamID == examID && r.RollNo == rollNo && rollNo != "" {
			return r, nil
		}
	}
	return CandidateResult{}, ErrResultNotFound
}

func (m *MemoryStore) ListResults(_ context.Context, examID string) ([]CandidateResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CandidateResult
	for _, id := range m.order {
		if r := m.results[id]; r.ExamID == examID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) FetchResultsForExam(_ context.Context, examID string) (ResultSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var set ResultSet
	for _, id := range m.order {
		r := m.results[id]
		if r.ExamID != examID {
			continue
		}
		date, shift := strings.TrimSpace(r.SessionDate), strings.TrimSpace(r.SessionShift)
		if !validRow(r.RawScore, date, shift) {
			set.Skipped = append(set.Skipped, r.ID)
			continue
		}
		set.Rows = append(set.Rows, ScoreRow{
			ID:       r.ID,
			RawScore: *r.RawScore,
			Session:  SessionKey{Date: date, Shift: shift},
			Zone:     strings.TrimSpace(r.Zone),
			Category: r.Category,
		})
	}
	// stable: same ordering contract as the SQL store
	sort.SliceStable(set.Rows, func(i, j int) bool {
		a, b := set.Rows[i].Session, set.Rows[j].Session
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Shift < b.Shift
	})
	return set, nil
}

func (m *MemoryStore) ApplyNormalizationBatch(_ context.Context, updates []NormalizationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	for _, u := range updates {
		if _, ok := m.results[u.ID]; !ok {
			return fmt.Errorf("%w: result %s", ErrStaleBatch, u.ID)
		}
	}
	for _, u := range updates {
		r := m.results[u.ID]
		r.NormalizedScore = copyFloat(u.NormalizedScore)
		r.Percentile = copyFloat(u.Percentile)
		if u.SetZone {
			r.ZoneNormalizedScore = copyFloat(u.ZoneNormalizedScore)
		}
		m.results[u.ID] = r
	}
	return nil
}

func (m *MemoryStore) CountAndRank(_ context.Context, examID string, scope Scope, score float64) (RankCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rc RankCount
	for _, id := range m.order {
		r := m.results[id]
		if r.ExamID != examID {
			continue
		}
		if scope.Category != "" && r.Category != scope.Category {
			continue
		}
		if scope.Zone != "" && r.Zone != scope.Zone {
			continue
		}
		if s := scope.Session; s != nil && (r.SessionDate != s.Date || r.SessionShift != s.Shift) {
			continue
		}
		v := r.RawScore
		if scope.Basis == BasisNormalized {
			v = r.NormalizedScore
			if v == nil {
				continue
			}
		}
		rc.Count++
		if v != nil && *v > score {
			rc.Above++
		}
	}
	return rc, nil
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
