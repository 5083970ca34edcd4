package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehasri1207/RankSarthi/internal/exam"
)

func TestScore(t *testing.T) {
	ssc := Scheme{QuestionCount: 100, MarksPerQuestion: 2, NegativeMarks: 0.5}

	tests := []struct {
		name           string
		scheme         Scheme
		correct, wrong int
		want           Result
	}{
		{"typical", ssc, 70, 20, Result{Correct: 70, Wrong: 20, Unattempted: 10, Attempted: 90, RawScore: 130, Accuracy: 77.8}},
		{"nothing attempted", ssc, 0, 0, Result{Unattempted: 100}},
		{"all wrong goes negative", ssc, 0, 10, Result{Wrong: 10, Attempted: 10, Unattempted: 90, RawScore: -5}},
		{"thirds", Scheme{QuestionCount: 100, MarksPerQuestion: 1, NegativeMarks: 1.0 / 3}, 60, 10,
			Result{Correct: 60, Wrong: 10, Attempted: 70, Unattempted: 30, RawScore: 56.67, Accuracy: 85.7}},
		{"no question limit", Scheme{MarksPerQuestion: 1}, 5, 5, Result{Correct: 5, Wrong: 5, Attempted: 10, RawScore: 5, Accuracy: 50}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.scheme.Score(tc.correct, tc.wrong)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestScoreInvalidCounts(t *testing.T) {
	s := Scheme{QuestionCount: 10, MarksPerQuestion: 1}
	_, err := s.Score(-1, 0)
	assert.ErrorIs(t, err, ErrInvalidCounts)
	_, err = s.Score(6, 5)
	assert.ErrorIs(t, err, ErrInvalidCounts)
}

func TestSchemeFor(t *testing.T) {
	s := SchemeFor(exam.Exam{QuestionCount: 150, MarksPerQuestion: 1, NegativeMarks: 0.25})
	assert.Equal(t, Scheme{QuestionCount: 150, MarksPerQuestion: 1, NegativeMarks: 0.25}, s)
}

func TestTotalsFromSections(t *testing.T) {
	c, w := TotalsFromSections([]exam.Section{
		{Name: "Reasoning", Correct: 20, Wrong: 3},
		{Name: "Quant", Correct: 15, Wrong: 7},
		{Name: "English", Correct: 18, Wrong: 2},
	})
	assert.Equal(t, 53, c)
	assert.Equal(t, 12, w)

	c, w = TotalsFromSections(nil)
	assert.Zero(t, c)
	assert.Zero(t, w)
}
