package selection

import (
	"fmt"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

// ComparisonMetrics are the metrics reported in comparison.json.
var ComparisonMetrics = []string{
	summary.MetricEvalMean,
	summary.MetricTaskPassRate,
	summary.MetricParaphraseSpread,
	summary.MetricFramingSpread,
	summary.MetricContradictionRate,
	summary.MetricStyleShiftDelta,
}

// MetricDelta is one metric for the baseline and selected wrappers.
type MetricDelta struct {
	Baseline *float64 `json:"baseline"`
	Selected *float64 `json:"selected"`
	Delta    *float64 `json:"delta"`
}

// Comparison is the selected-vs-baseline readout of the eval stage.
type Comparison struct {
	SelectedWrapper string                 `json:"selected_wrapper"`
	BaselineWrapper string                 `json:"baseline_wrapper"`
	Metrics         map[string]MetricDelta `json:"metrics"`
}

// Compare derives the comparison from eval-stage summary rows.
func Compare(rows []summary.Row, selected, baseline string) (*Comparison, error) {
	sel, ok := summary.Find(rows, selected)
	if !ok {
		return nil, fmt.Errorf("selected wrapper %s missing from eval summary", selected)
	}
	base, ok := summary.Find(rows, baseline)
	if !ok {
		return nil, fmt.Errorf("baseline wrapper %s missing from eval summary", baseline)
	}

	c := &Comparison{
		SelectedWrapper: selected,
		BaselineWrapper: baseline,
		Metrics:         make(map[string]MetricDelta, len(ComparisonMetrics)),
	}
	for _, name := range ComparisonMetrics {
		b, _ := base.Metric(name)
		s, _ := sel.Metric(name)
		d := MetricDelta{Baseline: b, Selected: s}
		if b != nil && s != nil {
			delta := *s - *b
			d.Delta = &delta
		}
		c.Metrics[name] = d
	}
	return c, nil
}

// Example pairs the selected and baseline completions of one held-out prompt.
type Example struct {
	PromptID           string `json:"prompt_id"`
	Prompt             string `json:"prompt"`
	SelectedWrapper    string `json:"selected_wrapper"`
	SelectedCompletion string `json:"selected_completion"`
	BaselineWrapper    string `json:"baseline_wrapper"`
	BaselineCompletion string `json:"baseline_completion"`
}

// PairedExamples returns up to limit eval_indicator prompts answered by both
// wrappers, in generation order.
func PairedExamples(gens []runs.Generation, selected, baseline string, limit int) []Example {
	baselineByPrompt := make(map[string]runs.Generation)
	for _, g := range gens {
		if g.WrapperID == baseline && g.Split == battery.SplitEvalIndicator {
			baselineByPrompt[g.PromptID] = g
		}
	}

	var out []Example
	for _, g := range gens {
		if len(out) >= limit {
			break
		}
		if g.WrapperID != selected || g.Split != battery.SplitEvalIndicator {
			continue
		}
		b, ok := baselineByPrompt[g.PromptID]
		if !ok {
			continue
		}
		out = append(out, Example{
			PromptID:           g.PromptID,
			Prompt:             battery.UserText(g.Messages),
			SelectedWrapper:    selected,
			SelectedCompletion: g.Completion,
			BaselineWrapper:    baseline,
			BaselineCompletion: b.Completion,
		})
	}
	return out
}
