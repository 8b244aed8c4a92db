// Package summary folds a run's scores into one row per wrapper and ranks
// wrappers by their train indicator mean.
package summary

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/controls"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
)

// Column names of the summary artifact.
const (
	ColumnWrapperID             = "wrapper_id"
	MetricTrainMean             = "train_indicator_mean"
	MetricEvalMean              = "eval_indicator_mean"
	MetricTaskPassRate          = "control_task_competence_pass_rate"
	MetricParaphraseSpread      = "control_paraphrase_mean_abs_diff"
	MetricFramingSpread         = "control_framing_mean_abs_diff"
	MetricContradictionRate     = "control_contradiction_inconsistency_rate"
	MetricContradictionCoverage = "control_contradiction_coverage"
	MetricStyleShiftDelta       = "style_shift_eval_indicator_mean_abs_diff"
)

// MetricNames lists every metric column in artifact order.
var MetricNames = []string{
	MetricTrainMean,
	MetricEvalMean,
	MetricTaskPassRate,
	MetricParaphraseSpread,
	MetricFramingSpread,
	MetricContradictionRate,
	MetricContradictionCoverage,
	MetricStyleShiftDelta,
}

// Row is the summary of one wrapper within one run.
type Row struct {
	WrapperID string
	controls.Metrics
}

// Metric returns the named metric and whether the name is known.
func (r Row) Metric(name string) (*float64, bool) {
	switch name {
	case MetricTrainMean:
		return r.TrainMean, true
	case MetricEvalMean:
		return r.EvalMean, true
	case MetricTaskPassRate:
		return r.TaskPassRate, true
	case MetricParaphraseSpread:
		return r.ParaphraseSpread, true
	case MetricFramingSpread:
		return r.FramingSpread, true
	case MetricContradictionRate:
		return r.ContradictionRate, true
	case MetricContradictionCoverage:
		return r.ContradictionCoverage, true
	case MetricStyleShiftDelta:
		return r.StyleShiftDelta, true
	}
	return nil, false
}

func (r *Row) setMetric(name string, v *float64) {
	switch name {
	case MetricTrainMean:
		r.TrainMean = v
	case MetricEvalMean:
		r.EvalMean = v
	case MetricTaskPassRate:
		r.TaskPassRate = v
	case MetricParaphraseSpread:
		r.ParaphraseSpread = v
	case MetricFramingSpread:
		r.FramingSpread = v
	case MetricContradictionRate:
		r.ContradictionRate = v
	case MetricContradictionCoverage:
		r.ContradictionCoverage = v
	case MetricStyleShiftDelta:
		r.StyleShiftDelta = v
	}
}

// Summarize produces one row per wrapper observed in scores, ordered by id.
// lineage resolves style-shift siblings; ids missing from it fall back to
// the identifier convention.
func Summarize(scores []scorer.Score, lineage battery.LineageIndex) []Row {
	g := controls.Group(scores)
	rows := make([]Row, 0, len(g.Wrappers))
	for _, id := range g.Wrappers {
		rows = append(rows, Row{WrapperID: id, Metrics: g.Metrics(id, lineage)})
	}
	return rows
}

// Rank orders rows by train mean descending, then wrapper id descending.
// Rows without a train mean are excluded.
func Rank(rows []Row) []Row {
	ranked := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.TrainMean != nil {
			ranked = append(ranked, r)
		}
	}
	slices.SortStableFunc(ranked, func(a, b Row) int {
		switch {
		case *a.TrainMean > *b.TrainMean:
			return -1
		case *a.TrainMean < *b.TrainMean:
			return 1
		}
		return -strings.Compare(a.WrapperID, b.WrapperID)
	})
	return ranked
}

// Best returns the top k ranked rows. k below 1 is treated as 1.
func Best(rows []Row, k int) []Row {
	if k < 1 {
		k = 1
	}
	ranked := Rank(rows)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Find returns the row for wrapperID.
func Find(rows []Row, wrapperID string) (Row, bool) {
	for _, r := range rows {
		if r.WrapperID == wrapperID {
			return r, true
		}
	}
	return Row{}, false
}

// SummarizeRun reads the run's scores and wrapper snapshot, writes
// summary.csv and returns the rows.
func SummarizeRun(run *runs.Run) ([]Row, error) {
	scores, err := scorer.ReadScores(run.Path(runs.ScoresFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read scores: %w", err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("run %s has no scores", run.ID)
	}

	wrappers, err := run.ReadWrappers()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read wrapper snapshot: %w", err)
	}

	rows := Summarize(scores, battery.IndexLineage(wrappers))
	if err := WriteCSV(run.Path(runs.SummaryFile), rows); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}

	slog.Info("summarized run", "run_id", run.ID, "wrappers", len(rows))
	return rows, nil
}

// ReadRun reads the run's summary.csv.
func ReadRun(run *runs.Run) ([]Row, error) {
	return ReadCSV(run.Path(runs.SummaryFile))
}
