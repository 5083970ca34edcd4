package normalization

import (
	"math"
	"sort"

	"github.com/nehasri1207/RankSarthi/internal/exam"
)

const (
	// A session must hold at least this share of the average session size
	// to be considered as the base session.
	eligibilityRatio = 0.70
	// Percentiles closer than this are treated as the same anchor.
	matchEpsilon = 1e-7
	unknownZone  = "Unknown"
)

// BaseShift is the Railway method: scores are mapped onto the percentile
// curve of a single base session. It runs once over all candidates and once
// per zone.
type BaseShift struct{}

func (BaseShift) Family() exam.Family { return exam.FamilyRailway }

func (BaseShift) Normalize(rows []exam.ScoreRow) []exam.NormalizationUpdate {
	if len(rows) == 0 {
		return nil
	}
	overall := scoreAgainstBase(rows)
	updates := make([]exam.NormalizationUpdate, 0, len(overall))
	index := make(map[string]int, len(overall))
	for _, s := range overall {
		index[s.id] = len(updates)
		updates = append(updates, exam.NormalizationUpdate{
			ID:              s.id,
			NormalizedScore: ptr(s.score),
			Percentile:      ptr(s.p),
			SetZone:         true,
		})
	}

	for _, zone := range groupByZone(rows) {
		for _, s := range scoreAgainstBase(zone) {
			if i, ok := index[s.id]; ok {
				updates[i].ZoneNormalizedScore = ptr(s.score)
				continue
			}
			index[s.id] = len(updates)
			updates = append(updates, exam.NormalizationUpdate{
				ID:                  s.id,
				ZoneNormalizedScore: ptr(s.score),
				SetZone:             true,
			})
		}
	}
	return updates
}

type scored struct {
	id    string
	p     float64
	score float64
}

func scoreAgainstBase(rows []exam.ScoreRow) []scored {
	groups := groupBySession(rows)
	if len(groups) == 0 {
		return nil
	}
	base := selectBase(groups)

	pcts := make([][]float64, len(groups))
	for gi, g := range groups {
		ps := Percentiles(rawScores(g.rows))
		for i := range ps {
			ps[i] = round(ps[i]*100, 5)
		}
		pcts[gi] = ps
	}
	anchors := buildAnchors(groups[base].rows, pcts[base])

	out := make([]scored, 0, len(rows))
	for gi, g := range groups {
		for i, r := range g.rows {
			X := pcts[gi][i]
			out = append(out, scored{id: r.ID, p: X, score: round(interpolate(anchors, X), 5)})
		}
	}
	return out
}

type sessionStats struct {
	idx   int
	count int
	mean  float64
	max   float64
}

// selectBase returns the index of the base session: the highest mean among
// sufficiently large sessions, then highest max, then largest count.
func selectBase(groups []sessionGroup) int {
	stats := make([]sessionStats, len(groups))
	total := 0
	for gi, g := range groups {
		sum, hi := 0.0, math.Inf(-1)
		for _, r := range g.rows {
			sum += r.RawScore
			if r.RawScore > hi {
				hi = r.RawScore
			}
		}
		stats[gi] = sessionStats{idx: gi, count: len(g.rows), mean: sum / float64(len(g.rows)), max: hi}
		total += len(g.rows)
	}

	threshold := float64(total) / float64(len(groups)) * eligibilityRatio
	var eligible []sessionStats
	for _, s := range stats {
		if float64(s.count) >= threshold {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		eligible = stats
	}
	sort.SliceStable(eligible, func(a, b int) bool {
		x, y := eligible[a], eligible[b]
		if x.mean != y.mean {
			return x.mean > y.mean
		}
		if x.max != y.max {
			return x.max > y.max
		}
		return x.count > y.count
	})
	return eligible[0].idx
}

// buildAnchors pairs base-session percentiles with raw scores, sorted by
// percentile descending, keeping the first of each run of equal percentiles.
func buildAnchors(rows []exam.ScoreRow, pcts []float64) []point {
	all := make([]point, len(rows))
	for i, r := range rows {
		all[i] = point{p: pcts[i], score: r.RawScore}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].p > all[b].p })

	anchors := make([]point, 0, len(all))
	for _, a := range all {
		if len(anchors) == 0 || anchors[len(anchors)-1].p != a.p {
			anchors = append(anchors, a)
		}
	}
	return anchors
}

// interpolate maps percentile X onto the anchor curve. Above the top anchor
// the score is clamped; below the lowest it is extrapolated from the two
// lowest anchors.
func interpolate(anchors []point, X float64) float64 {
	if len(anchors) == 0 {
		return 0
	}
	for _, a := range anchors {
		if math.Abs(a.p-X) < matchEpsilon {
			return a.score
		}
	}

	n := len(anchors)
	if X >= anchors[n-1].p {
		var upper, lower *point
		for i := range anchors {
			if anchors[i].p > X {
				upper = &anchors[i]
				continue
			}
			lower = &anchors[i]
			break
		}
		switch {
		case upper != nil && lower != nil:
			return line(*lower, *upper, X)
		case upper != nil:
			return upper.score
		case lower != nil:
			return lower.score
		}
		return 0
	}

	if n >= 2 {
		p1, p2 := anchors[n-1], anchors[n-2]
		return p1.score - ((p2.score-p1.score)/(p2.p-p1.p))*(p1.p-X)
	}
	return anchors[0].score
}

func line(a, b point, x float64) float64 {
	return ((b.score-a.score)/(b.p-a.p))*(x-a.p) + a.score
}

// groupByZone splits rows by zone in first-appearance order, dropping rows
// without a known zone.
func groupByZone(rows []exam.ScoreRow) [][]exam.ScoreRow {
	pos := map[string]int{}
	var zones [][]exam.ScoreRow
	for _, r := range rows {
		if r.Zone == "" || r.Zone == unknownZone {
			continue
		}
		i, ok := pos[r.Zone]
		if !ok {
			i = len(zones)
			pos[r.Zone] = i
			zones = append(zones, nil)
		}
		zones[i] = append(zones[i], r)
	}
	return zones
}
