// Package compare diffs the summaries of two runs.
package compare

import (
	"fmt"
	"slices"
	"strings"

	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

// Output file names written next to each other by WriteReport.
const (
	JSONFile     = "compare.json"
	MarkdownFile = "compare.md"
)

// DefaultMetrics are compared when none are requested.
var DefaultMetrics = []string{
	summary.MetricTrainMean,
	summary.MetricEvalMean,
	summary.MetricTaskPassRate,
	summary.MetricParaphraseSpread,
	summary.MetricFramingSpread,
	summary.MetricContradictionRate,
	summary.MetricStyleShiftDelta,
}

// UnknownMetricError is returned for a metric that is not a summary column.
type UnknownMetricError struct {
	Metric string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric %q (valid: %s)", e.Metric, strings.Join(summary.MetricNames, ", "))
}

// MissingWrapperError is returned when a requested wrapper is absent from
// either summary.
type MissingWrapperError struct {
	WrapperID string
	Side      string
}

func (e *MissingWrapperError) Error() string {
	return fmt.Sprintf("wrapper %s missing from %s summary", e.WrapperID, e.Side)
}

// Delta is one metric on both sides.
type Delta struct {
	Baseline  *float64 `json:"baseline"`
	Candidate *float64 `json:"candidate"`
	Delta     *float64 `json:"delta"`
}

// Report is the full comparison of two runs.
type Report struct {
	BaselineRun  string                      `json:"baseline_run"`
	CandidateRun string                      `json:"candidate_run"`
	Metrics      []string                    `json:"metrics"`
	Wrappers     map[string]map[string]Delta `json:"wrappers"`

	order []string
}

// WrapperIDs returns the compared wrappers in report order.
func (r *Report) WrapperIDs() []string {
	if r.order != nil {
		return r.order
	}
	ids := make([]string, 0, len(r.Wrappers))
	for id := range r.Wrappers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Compare diffs candidate against baseline. Empty wrapperIDs selects the
// wrappers present in both summaries, sorted. Empty metrics selects
// DefaultMetrics.
func Compare(baseline, candidate []summary.Row, wrapperIDs, metrics []string) (*Report, error) {
	if len(metrics) == 0 {
		metrics = DefaultMetrics
	}
	for _, m := range metrics {
		if !slices.Contains(summary.MetricNames, m) {
			return nil, &UnknownMetricError{Metric: m}
		}
	}

	if len(wrapperIDs) == 0 {
		for _, r := range baseline {
			if _, ok := summary.Find(candidate, r.WrapperID); ok {
				wrapperIDs = append(wrapperIDs, r.WrapperID)
			}
		}
		slices.Sort(wrapperIDs)
		wrapperIDs = slices.Compact(wrapperIDs)
	}

	report := &Report{
		Metrics:  metrics,
		Wrappers: make(map[string]map[string]Delta, len(wrapperIDs)),
		order:    wrapperIDs,
	}
	for _, id := range wrapperIDs {
		b, ok := summary.Find(baseline, id)
		if !ok {
			return nil, &MissingWrapperError{WrapperID: id, Side: "baseline"}
		}
		c, ok := summary.Find(candidate, id)
		if !ok {
			return nil, &MissingWrapperError{WrapperID: id, Side: "candidate"}
		}

		deltas := make(map[string]Delta, len(metrics))
		for _, m := range metrics {
			bv, _ := b.Metric(m)
			cv, _ := c.Metric(m)
			d := Delta{Baseline: bv, Candidate: cv}
			if bv != nil && cv != nil {
				diff := *cv - *bv
				d.Delta = &diff
			}
			deltas[m] = d
		}
		report.Wrappers[id] = deltas
	}
	return report, nil
}

// Runs compares the summary.csv of two run directories.
func Runs(baseline, candidate *runs.Run, wrapperIDs, metrics []string) (*Report, error) {
	b, err := summary.ReadRun(baseline)
	if err != nil {
		return nil, fmt.Errorf("baseline run %s: %w", baseline.ID, err)
	}
	c, err := summary.ReadRun(candidate)
	if err != nil {
		return nil, fmt.Errorf("candidate run %s: %w", candidate.ID, err)
	}

	report, err := Compare(b, c, wrapperIDs, metrics)
	if err != nil {
		return nil, err
	}
	report.BaselineRun = baseline.ID
	report.CandidateRun = candidate.ID
	return report, nil
}
