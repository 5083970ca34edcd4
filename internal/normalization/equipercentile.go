package normalization

import (
	"sort"

	"github.com/nehasri1207/RankSarthi/internal/exam"
)

// EquiPercentile is the SSC method: each candidate's session percentile is
// projected onto the score distribution of every session and the projections
// are averaged.
type EquiPercentile struct{}

func (EquiPercentile) Family() exam.Family { return exam.FamilySSC }

type point struct {
	p     float64
	score float64
}

func (EquiPercentile) Normalize(rows []exam.ScoreRow) []exam.NormalizationUpdate {
	if len(rows) == 0 {
		return nil
	}
	groups := groupBySession(rows)

	pcts := make([][]float64, len(groups))
	curves := make([][]point, len(groups))
	for gi, g := range groups {
		ps := Percentiles(rawScores(g.rows))
		curve := make([]point, len(ps))
		for i := range ps {
			ps[i] = round(ps[i], 8)
			curve[i] = point{p: ps[i], score: g.rows[i].RawScore}
		}
		sort.SliceStable(curve, func(a, b int) bool { return curve[a].p > curve[b].p })
		pcts[gi] = ps
		curves[gi] = curve
	}

	n := float64(len(groups))
	updates := make([]exam.NormalizationUpdate, 0, len(rows))
	for gi, g := range groups {
		for i, r := range g.rows {
			P := pcts[gi][i]
			sum := 0.0
			for ti := range groups {
				if ti == gi {
					sum += r.RawScore
					continue
				}
				sum += project(curves[ti], P)
			}
			updates = append(updates, exam.NormalizationUpdate{
				ID:              r.ID,
				NormalizedScore: ptr(round(sum/n, 5)),
				Percentile:      ptr(round(P*100, 5)),
			})
		}
	}
	return updates
}

// project maps percentile P onto a session curve sorted by percentile
// descending. upper is the last point with p >= P, lower the first with p < P.
func project(curve []point, P float64) float64 {
	i := sort.Search(len(curve), func(k int) bool { return curve[k].p < P })
	switch {
	case i > 0 && i < len(curve):
		upper, lower := curve[i-1], curve[i]
		if upper.p == lower.p {
			return lower.score
		}
		return lower.score + (upper.score-lower.score)/(upper.p-lower.p)*(P-lower.p)
	case i > 0:
		return curve[i-1].score
	case i < len(curve):
		return curve[i].score
	}
	return 0
}
