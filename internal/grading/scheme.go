package grading

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nehasri1207/RankSarthi/internal/exam"
)

var ErrInvalidCounts = errors.New("grading: invalid correct/wrong counts")

// Scheme is an exam's marking rule.
type Scheme struct {
	QuestionCount    int
	MarksPerQuestion float64
	NegativeMarks    float64 // deducted per wrong answer
}

func SchemeFor(e exam.Exam) Scheme {
	return Scheme{QuestionCount: e.QuestionCount, MarksPerQuestion: e.MarksPerQuestion, NegativeMarks: e.NegativeMarks}
}

// Result is the score breakdown for one candidate.
type Result struct {
	Correct     int     `json:"correct"`
	Wrong       int     `json:"wrong"`
	Unattempted int     `json:"unattempted"`
	Attempted   int     `json:"attempted"`
	RawScore    float64 `json:"raw_score"`
	Accuracy    float64 `json:"accuracy"` // percent of attempted answered correctly
}

// Score applies the scheme. The raw score is rounded to 2 decimals and the
// accuracy to 1.
func (s Scheme) Score(correct, wrong int) (Result, error) {
	if correct < 0 || wrong < 0 {
		return Result{}, fmt.Errorf("%w: negative count (correct=%d wrong=%d)", ErrInvalidCounts, correct, wrong)
	}
	if s.QuestionCount > 0 && correct+wrong > s.QuestionCount {
		return Result{}, fmt.Errorf("%w: %d answered of %d questions", ErrInvalidCounts, correct+wrong, s.QuestionCount)
	}
	r := Result{
		Correct:   correct,
		Wrong:     wrong,
		Attempted: correct + wrong,
		RawScore:  roundTo(float64(correct)*s.MarksPerQuestion-float64(wrong)*s.NegativeMarks, 2),
	}
	if s.QuestionCount > 0 {
		r.Unattempted = s.QuestionCount - r.Attempted
	}
	if r.Attempted > 0 {
		r.Accuracy = roundTo(float64(correct)/float64(r.Attempted)*100, 1)
	}
	return r, nil
}

// TotalsFromSections sums per-section counts.
func TotalsFromSections(sections []exam.Section) (correct, wrong int) {
	for _, s := range sections {
		correct += s.Correct
		wrong += s.Wrong
	}
	return correct, wrong
}

func roundTo(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
