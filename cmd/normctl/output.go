package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/normalization"
	"github.com/nehasri1207/RankSarthi/internal/standing"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	good    = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	return t
}

func printExams(w io.Writer, list []exam.Exam) {
	heading.Fprintln(w, "\nExams")
	t := newTable(w, "ID", "Name", "Family", "Questions", "Total Marks", "Visible")
	for _, e := range list {
		t.Append([]string{e.ID, e.Name, string(e.Family), strconv.Itoa(e.QuestionCount), num(e.TotalMarks), strconv.FormatBool(e.NormalizationVisible)})
	}
	t.Render()
}

func printRunResult(w io.Writer, res normalization.RunResult) {
	heading.Fprintf(w, "\nNormalization of %s (%s)\n", res.ExamID, res.Family)
	if !res.Success {
		warn.Fprintf(w, "not normalized: %s\n", res.Reason)
		return
	}
	good.Fprintf(w, "%d results normalized", res.Count)
	if res.Reason != "" {
		fmt.Fprintf(w, " (%s)", res.Reason)
	}
	fmt.Fprintln(w)
	if len(res.Skipped) > 0 {
		warn.Fprintf(w, "%d rows skipped for missing score or session\n", len(res.Skipped))
	}
}

func printResults(w io.Writer, rows []exam.CandidateResult) {
	heading.Fprintln(w, "\nResults")
	t := newTable(w, "Roll No", "Category", "Zone", "Session", "Raw", "Normalized", "Zone Normalized", "Percentile")
	for _, r := range rows {
		t.Append([]string{
			r.RollNo, r.Category, r.Zone,
			exam.SessionKey{Date: r.SessionDate, Shift: r.SessionShift}.String(),
			optNum(r.RawScore), optNum(r.NormalizedScore), optNum(r.ZoneNormalizedScore), optNum(r.Percentile),
		})
	}
	t.Render()
}

func printStandings(w io.Writer, q standing.Query, st standing.Standings) {
	heading.Fprintf(w, "\nStanding of %s (%s basis)\n", num(q.Score), q.Basis)
	t := newTable(w, "Scope", "Rank", "Total", "Percentile")
	add := func(scope string, s standing.Standing) {
		t.Append([]string{scope, strconv.Itoa(s.Rank), strconv.Itoa(s.Total), s.Percentile})
	}
	add("Overall", st.Overall)
	add("Category", st.Category)
	add("Zone", st.Zone)
	add("Category x Zone", st.CategoryZone)
	add("Shift", st.Shift)
	t.Render()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func optNum(p *float64) string {
	if p == nil {
		return "-"
	}
	return num(*p)
}
