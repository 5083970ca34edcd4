package normalization

import (
	"sort"
	"strconv"
)

// Percentiles returns, for each score, the inclusive percentile rank m/N where
// m counts the scores less than or equal to it. Ties share a value and the
// result is aligned with the input slice.
func Percentiles(scores []float64) []float64 {
	n := len(scores)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	for start := 0; start < n; {
		end := start
		for end+1 < n && scores[idx[end+1]] == scores[idx[start]] {
			end++
		}
		p := float64(end+1) / float64(n)
		for k := start; k <= end; k++ {
			out[idx[k]] = p
		}
		start = end + 1
	}
	return out
}

// round rounds v to the given number of fractional digits using decimal
// formatting, so stored values match their printed form.
func round(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
