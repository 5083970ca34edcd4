package exam

import (
	"context"
	"errors"
)

var (
	ErrExamNotFound   = errors.New("exam not found")
	ErrResultNotFound = errors.New("result not found")
	// ErrStaleBatch means a normalization update targeted a row that no longer exists.
	ErrStaleBatch = errors.New("normalization batch is stale")
)

type ListOpts struct {
	Family Family
	Limit  int
	Offset int
}

// Store is the Result Store. All normalization writes go through
// ApplyNormalizationBatch, which commits every update or none.
type Store interface {
	CreateExam(ctx context.Context, e Exam) (Exam, error)
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, opts ListOpts) ([]Exam, error)
	SetNormalizationVisible(ctx context.Context, id string, visible bool) error

	AddRankBand(ctx context.Context, b RankBand) (RankBand, error)
	FindRankBand(ctx context.Context, examID string, score float64) (RankBand, bool, error)
	MaxBandScore(ctx context.Context, examID string) (float64, error)

	// UpsertResult inserts r, or updates the existing row with the same
	// (exam, roll number) when r.RollNo is set.
	UpsertResult(ctx context.Context, r CandidateResult) (CandidateResult, error)
	GetResultByRoll(ctx context.Context, examID, rollNo string) (CandidateResult, error)
	ListResults(ctx context.Context, examID string) ([]CandidateResult, error)

	FetchResultsForExam(ctx context.Context, examID string) (ResultSet, error)
	ApplyNormalizationBatch(ctx context.Context, updates []NormalizationUpdate) error
	CountAndRank(ctx context.Context, examID string, scope Scope, score float64) (RankCount, error)
}

// validRow reports whether r carries everything normalization needs.
func validRow(raw *float64, date, shift string) bool {
	return raw != nil && date != "" && shift != ""
}
