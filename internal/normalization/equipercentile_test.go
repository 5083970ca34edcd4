package normalization

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehasri1207/RankSarthi/internal/exam"
)

// sessionRows builds rows for one session with ids "<prefix>-<i>".
func sessionRows(prefix, date, shift string, scores ...float64) []exam.ScoreRow {
	rows := make([]exam.ScoreRow, len(scores))
	for i, s := range scores {
		rows[i] = exam.ScoreRow{
			ID:       fmt.Sprintf("%s-%d", prefix, i),
			RawScore: s,
			Session:  exam.SessionKey{Date: date, Shift: shift},
		}
	}
	return rows
}

func byID(updates []exam.NormalizationUpdate) map[string]exam.NormalizationUpdate {
	m := make(map[string]exam.NormalizationUpdate, len(updates))
	for _, u := range updates {
		m[u.ID] = u
	}
	return m
}

func TestEquiPercentileTwoSessions(t *testing.T) {
	rows := append(
		sessionRows("s1", "2024-09-01", "1", 100, 90, 80),
		sessionRows("s2", "2024-09-01", "2", 80, 70, 60)...,
	)
	got := byID(EquiPercentile{}.Normalize(rows))
	require.Len(t, got, 6)

	want := map[string]float64{
		"s1-0": 90, "s1-1": 80, "s1-2": 70,
		"s2-0": 90, "s2-1": 80, "s2-2": 70,
	}
	for id, w := range want {
		u := got[id]
		require.NotNil(t, u.NormalizedScore, id)
		assert.InDelta(t, w, *u.NormalizedScore, 1e-9, id)
		assert.False(t, u.SetZone, "SSC runs never touch zone scores")
	}

	// harder session's top scorer moves up, easier session's bottom moves down
	assert.Greater(t, *got["s2-0"].NormalizedScore, 80.0)
	assert.Less(t, *got["s1-2"].NormalizedScore, 100.0)

	assert.Equal(t, 100.0, *got["s1-0"].Percentile)
	assert.Equal(t, 66.66667, *got["s1-1"].Percentile)
	assert.Equal(t, 33.33333, *got["s2-2"].Percentile)
}

func TestEquiPercentileIdenticalSessionsKeepRawScores(t *testing.T) {
	scores := []float64{12, 48.5, 33, 33, 90, 71.25, 5}
	var rows []exam.ScoreRow
	for i, shift := range []string{"1", "2", "3"} {
		rows = append(rows, sessionRows(fmt.Sprintf("s%d", i), "2024-09-02", shift, scores...)...)
	}
	updates := EquiPercentile{}.Normalize(rows)
	require.Len(t, updates, len(rows))
	for _, u := range updates {
		var raw float64
		for _, r := range rows {
			if r.ID == u.ID {
				raw = r.RawScore
			}
		}
		assert.InDelta(t, raw, *u.NormalizedScore, 1e-4, u.ID)
	}
}

func TestEquiPercentileSingleSession(t *testing.T) {
	got := EquiPercentile{}.Normalize(sessionRows("only", "d", "s", 10, 20))
	require.Len(t, got, 2)
	m := byID(got)
	assert.Equal(t, 10.0, *m["only-0"].NormalizedScore)
	assert.Equal(t, 20.0, *m["only-1"].NormalizedScore)
	assert.Equal(t, 50.0, *m["only-0"].Percentile)
}

func TestEquiPercentileSingletonPeerSession(t *testing.T) {
	rows := append(sessionRows("a", "d", "1", 40, 60), sessionRows("b", "d", "2", 55)...)
	m := byID(EquiPercentile{}.Normalize(rows))
	// every projection into the one-candidate session lands on its only score
	assert.InDelta(t, (40+55)/2.0, *m["a-0"].NormalizedScore, 1e-9)
	assert.InDelta(t, (60+55)/2.0, *m["a-1"].NormalizedScore, 1e-9)
}

func TestEquiPercentileEmpty(t *testing.T) {
	assert.Empty(t, EquiPercentile{}.Normalize(nil))
}

func TestProject(t *testing.T) {
	curve := []point{{1, 80}, {0.66666667, 70}, {0.33333333, 60}}
	assert.InDelta(t, 80, project(curve, 1), 1e-9)
	assert.InDelta(t, 65, project(curve, 0.5), 1e-6)
	assert.Equal(t, 60.0, project(curve, 0.1), "below every point uses the lowest score")
	assert.Equal(t, 0.0, project(nil, 0.5))
}
