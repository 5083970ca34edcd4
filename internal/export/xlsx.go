package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/nehasri1207/RankSarthi/internal/exam"
)

const (
	ResultsSheet  = "Results"
	SessionsSheet = "Sessions"
)

var resultHeader = []any{
	"Roll No", "Name", "Category", "Gender", "State", "Zone", "Exam Date", "Shift",
	"Correct", "Wrong", "Raw Score", "Normalized Score", "Zone Normalized Score", "Percentile",
}

var sessionHeader = []any{"Exam Date", "Shift", "Candidates", "Mean Raw", "Max Raw"}

// ContentType is the MIME type of the workbook written by Results.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Results writes an .xlsx workbook with one row per result and a per-session
// summary sheet. Missing scores are left blank.
func Results(w io.Writer, ex exam.Exam, rows []exam.CandidateResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return err
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: ex.Name, Subject: string(ex.Family)}); err != nil {
		return err
	}
	if err := writeRow(f, ResultsSheet, 1, resultHeader); err != nil {
		return err
	}
	for n, r := range rows {
		if err := writeRow(f, ResultsSheet, n+2, resultRow(r)); err != nil {
			return err
		}
	}
	if err := f.SetPanes(ResultsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	if _, err := f.NewSheet(SessionsSheet); err != nil {
		return err
	}
	if err := writeRow(f, SessionsSheet, 1, sessionHeader); err != nil {
		return err
	}
	for n, s := range summarize(rows) {
		if err := writeRow(f, SessionsSheet, n+2, []any{s.key.Date, s.key.Shift, s.count, s.mean(), s.max}); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func resultRow(r exam.CandidateResult) []any {
	return []any{
		r.RollNo, r.Name, r.Category, r.Gender, r.State, r.Zone, r.SessionDate, r.SessionShift,
		intCell(r.CorrectCount), intCell(r.WrongCount),
		floatCell(r.RawScore), floatCell(r.NormalizedScore), floatCell(r.ZoneNormalizedScore), floatCell(r.Percentile),
	}
}

func intCell(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatCell(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

type sessionSummary struct {
	key   exam.SessionKey
	count int
	sum   float64
	max   float64
}

func (s sessionSummary) mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// summarize aggregates scored rows by session, ordered by date then shift.
func summarize(rows []exam.CandidateResult) []sessionSummary {
	idx := map[exam.SessionKey]int{}
	var out []sessionSummary
	for _, r := range rows {
		if r.RawScore == nil {
			continue
		}
		k := exam.SessionKey{Date: r.SessionDate, Shift: r.SessionShift}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, sessionSummary{key: k, max: *r.RawScore})
		}
		s := &out[i]
		s.count++
		s.sum += *r.RawScore
		if *r.RawScore > s.max {
			s.max = *r.RawScore
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.Date != out[j].key.Date {
			return out[i].key.Date < out[j].key.Date
		}
		return out[i].key.Shift < out[j].key.Shift
	})
	return out
}
