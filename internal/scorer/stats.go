package scorer

import "math"

// z95 is the two-sided 95% normal quantile.
const z95 = 1.96

// Aggregate summarizes the present channel scores of one generation.
type Aggregate struct {
	Mean *float64
	Std  *float64
	CI95 *float64
	N    int
}

// AggregateScores computes the sample mean, the (n-1) standard deviation and
// the 95% half-width 1.96*std/sqrt(n). Std and CI95 need at least two
// scores; Mean needs one.
func AggregateScores(scores []float64) Aggregate {
	agg := Aggregate{N: len(scores)}
	if len(scores) == 0 {
		return agg
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	agg.Mean = &mean

	if len(scores) < 2 {
		return agg
	}

	sumSquaredDiff := 0.0
	for _, s := range scores {
		diff := s - mean
		sumSquaredDiff += diff * diff
	}
	std := math.Sqrt(sumSquaredDiff / float64(len(scores)-1))
	ci := z95 * std / math.Sqrt(float64(len(scores)))
	agg.Std = &std
	agg.CI95 = &ci
	return agg
}
