package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/grading"
	"github.com/nehasri1207/RankSarthi/internal/scheduler"
	"github.com/nehasri1207/RankSarthi/internal/standing"
	syncx "github.com/nehasri1207/RankSarthi/internal/sync"
	"github.com/nehasri1207/RankSarthi/internal/telemetry"
)

const anonymousName = "Manual User"

// Submission is a candidate's answer-sheet summary. Either Correct and Wrong,
// Sections, or a RollNo with a stored result must be present.
type Submission struct {
	ExamID       string         `json:"exam_id" validate:"required"`
	RollNo       string         `json:"roll_no,omitempty" validate:"max=64"`
	Name         string         `json:"name,omitempty" validate:"max=128"`
	Category     string         `json:"category,omitempty" validate:"max=32"`
	Gender       string         `json:"gender,omitempty" validate:"max=16"`
	State        string         `json:"state,omitempty" validate:"max=64"`
	Zone         string         `json:"zone,omitempty" validate:"max=64"`
	SessionDate  string         `json:"exam_date,omitempty" validate:"max=32"`
	SessionShift string         `json:"exam_shift,omitempty" validate:"max=32"`
	Correct      *int           `json:"correct,omitempty" validate:"omitempty,min=0"`
	Wrong        *int           `json:"wrong,omitempty" validate:"omitempty,min=0"`
	Sections     []exam.Section `json:"sections,omitempty" validate:"dive"`
}

// Prediction is the admin-entered rank range matching a score.
type Prediction struct {
	MinRank           int    `json:"min_rank"`
	MaxRank           int    `json:"max_rank"`
	CutoffProbability string `json:"cutoff_probability"`
}

var (
	predictionAboveBands = Prediction{MinRank: 1, MaxRank: 10, CutoffProbability: "High"}
	predictionBelowBands = Prediction{MinRank: 50000, MaxRank: 100000, CutoffProbability: "Low"}
)

type Response struct {
	ExamID              string             `json:"exam_id"`
	ResultID            string             `json:"result_id,omitempty"`
	Persisted           bool               `json:"persisted"`
	Score               grading.Result     `json:"score"`
	Standings           standing.Standings `json:"standings"`
	Prediction          Prediction         `json:"prediction"`
	NormalizedScore     *float64           `json:"normalized_score,omitempty"`
	ZoneNormalizedScore *float64           `json:"zone_normalized_score,omitempty"`
}

// Recomputer schedules background normalization; *scheduler.Scheduler satisfies it.
type Recomputer interface {
	RequestRecompute(examID string) scheduler.Outcome
}

type Service struct {
	store     exam.Store
	standings *standing.Engine
	recompute Recomputer
	events    syncx.Appender
	log       *slog.Logger
	metrics   *telemetry.Metrics
}

type Option func(*Service)

func WithEvents(a syncx.Appender) Option { return func(s *Service) { s.events = a } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(store exam.Store, standings *standing.Engine, recompute Recomputer, opts ...Option) *Service {
	s := &Service{store: store, standings: standings, recompute: recompute, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "submission")
	return s
}

// Submit scores a submission, records it, and reports standings and rank
// prediction. A failure to record the row is logged, not returned.
func (s *Service) Submit(ctx context.Context, sub Submission) (Response, error) {
	ex, err := s.store.GetExam(ctx, sub.ExamID)
	if err != nil {
		return Response{}, fmt.Errorf("submit: %w", err)
	}
	if err := s.resolveCounts(ctx, &sub); err != nil {
		return Response{}, err
	}
	score, err := grading.SchemeFor(ex).Score(*sub.Correct, *sub.Wrong)
	if err != nil {
		return Response{}, fmt.Errorf("submit: %w", err)
	}

	resp := Response{ExamID: ex.ID, Score: score}
	row := s.buildRow(ex, sub, score)
	saved, err := s.store.UpsertResult(ctx, row)
	if err != nil {
		s.log.ErrorContext(ctx, "persist result failed", "exam_id", ex.ID, "err", err)
	} else {
		resp.ResultID, resp.Persisted = saved.ID, true
		s.record(ctx, saved)
	}
	s.metrics.SubmissionRecorded(ctx, resp.Persisted)

	if ex.NormalizationVisible && s.recompute != nil {
		s.recompute.RequestRecompute(ex.ID)
	}

	session := exam.SessionKey{Date: row.SessionDate, Shift: row.SessionShift}
	resp.Standings, err = s.standings.Compute(ctx, ex.ID, standing.Query{
		Score:    score.RawScore,
		Category: row.Category,
		Zone:     row.Zone,
		Session:  &session,
		Basis:    exam.BasisRaw,
	})
	if err != nil {
		return Response{}, fmt.Errorf("submit: %w", err)
	}

	if resp.Prediction, err = s.predict(ctx, ex.ID, score.RawScore); err != nil {
		return Response{}, fmt.Errorf("submit: %w", err)
	}

	if ex.NormalizationVisible && rollKnown(sub.RollNo) {
		if cur, err := s.store.GetResultByRoll(ctx, ex.ID, sub.RollNo); err == nil {
			resp.NormalizedScore = cur.NormalizedScore
			resp.ZoneNormalizedScore = cur.ZoneNormalizedScore
		}
	}
	return resp, nil
}

// resolveCounts fills missing counts from sections or from the candidate's
// stored result, also borrowing any profile fields left blank.
func (s *Service) resolveCounts(ctx context.Context, sub *Submission) error {
	if sub.Correct != nil && sub.Wrong != nil {
		return nil
	}
	if len(sub.Sections) > 0 {
		c, w := grading.TotalsFromSections(sub.Sections)
		sub.Correct, sub.Wrong = &c, &w
		return nil
	}
	if !rollKnown(sub.RollNo) {
		return fmt.Errorf("submit: %w: counts missing and no roll number", grading.ErrInvalidCounts)
	}

	prior, err := s.store.GetResultByRoll(ctx, sub.ExamID, sub.RollNo)
	if err != nil {
		return fmt.Errorf("submit: quick check %s: %w", sub.RollNo, err)
	}
	switch {
	case prior.CorrectCount != nil && prior.WrongCount != nil:
		c, w := *prior.CorrectCount, *prior.WrongCount
		sub.Correct, sub.Wrong = &c, &w
	case len(prior.Sections) > 0:
		c, w := grading.TotalsFromSections(prior.Sections)
		sub.Correct, sub.Wrong = &c, &w
		sub.Sections = prior.Sections
	default:
		return fmt.Errorf("submit: quick check %s: %w", sub.RollNo, exam.ErrResultNotFound)
	}
	if len(sub.Sections) == 0 {
		sub.Sections = prior.Sections
	}
	fill(&sub.Name, prior.Name)
	fill(&sub.Category, prior.Category)
	fill(&sub.Gender, prior.Gender)
	fill(&sub.State, prior.State)
	fill(&sub.Zone, prior.Zone)
	fill(&sub.SessionDate, prior.SessionDate)
	fill(&sub.SessionShift, prior.SessionShift)
	return nil
}

func (s *Service) buildRow(ex exam.Exam, sub Submission, score grading.Result) exam.CandidateResult {
	raw := score.RawScore
	c, w := score.Correct, score.Wrong
	row := exam.CandidateResult{
		ExamID:       ex.ID,
		Name:         sub.Name,
		Category:     sub.Category,
		Gender:       sub.Gender,
		State:        sub.State,
		Zone:         sub.Zone,
		SessionDate:  sub.SessionDate,
		SessionShift: sub.SessionShift,
		CorrectCount: &c,
		WrongCount:   &w,
		Sections:     sub.Sections,
		RawScore:     &raw,
	}
	if rollKnown(sub.RollNo) {
		row.RollNo = sub.RollNo
	} else {
		row.Name = anonymousName
	}
	if !rollKnown(sub.RollNo) || row.SessionDate == "" || row.SessionShift == "" {
		row.SessionDate, row.SessionShift = exam.ManualSession, exam.ManualSession
	}
	return row
}

func (s *Service) predict(ctx context.Context, examID string, score float64) (Prediction, error) {
	band, ok, err := s.store.FindRankBand(ctx, examID, score)
	if err != nil {
		return Prediction{}, err
	}
	if ok {
		return Prediction{MinRank: band.MinRank, MaxRank: band.MaxRank, CutoffProbability: band.CutoffProbability}, nil
	}
	highest, err := s.store.MaxBandScore(ctx, examID)
	if err != nil {
		return Prediction{}, err
	}
	if score > highest {
		return predictionAboveBands, nil
	}
	return predictionBelowBands, nil
}

func (s *Service) record(ctx context.Context, r exam.CandidateResult) {
	if s.events == nil {
		return
	}
	e, err := syncx.NewEvent(syncx.EventResultSubmitted, r.ExamID, map[string]any{
		"result_id": r.ID,
		"raw_score": r.RawScore,
		"session":   exam.SessionKey{Date: r.SessionDate, Shift: r.SessionShift}.String(),
	})
	if err == nil {
		err = s.events.Append(ctx, e)
	}
	if err != nil {
		s.log.WarnContext(ctx, "append event failed", "exam_id", r.ExamID, "err", err)
	}
}

func rollKnown(roll string) bool {
	roll = strings.TrimSpace(roll)
	return roll != "" && !strings.EqualFold(roll, "N/A")
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// IsClientError reports whether err stems from the submission itself rather
// than the server.
func IsClientError(err error) bool {
	return errors.Is(err, grading.ErrInvalidCounts) ||
		errors.Is(err, exam.ErrExamNotFound) ||
		errors.Is(err, exam.ErrResultNotFound)
}
