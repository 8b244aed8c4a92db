// Package selection implements the two-stage wrapper selection protocol.
//
// The train stage ranks candidates on train prompts only and persists the
// chosen wrappers before anything else runs. The eval stage then measures
// the frozen selection, plus baselines, on held-out and control prompts.
// Nothing the eval stage produces is ever read when selecting.
package selection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

// ErrNoTrainScores is returned when no wrapper has a train indicator mean.
var ErrNoTrainScores = errors.New("no wrappers had a train_indicator_mean; check scoring output")

// ErrNoCandidates is returned when there is nothing to rank.
var ErrNoCandidates = errors.New("no candidate wrappers to rank")

// Choice is one selected wrapper with the train mean it was selected on.
type Choice struct {
	WrapperID string  `json:"wrapper_id"`
	TrainMean float64 `json:"train_indicator_mean"`
}

// Selection is the frozen outcome of the train stage.
type Selection struct {
	TrainRunID string   `json:"train_run_id"`
	TopK       int      `json:"top_k"`
	Selected   []Choice `json:"selected"`
}

// IDs returns the selected wrapper ids in rank order.
func (s Selection) IDs() []string {
	ids := make([]string, 0, len(s.Selected))
	for _, c := range s.Selected {
		ids = append(ids, c.WrapperID)
	}
	return ids
}

// Select picks the top k rows by train mean. k below 1 is treated as 1.
func Select(rows []summary.Row, k int) (Selection, error) {
	if k < 1 {
		k = 1
	}
	best := summary.Best(rows, k)
	if len(best) == 0 {
		return Selection{}, ErrNoTrainScores
	}
	sel := Selection{TopK: k, Selected: make([]Choice, 0, len(best))}
	for _, r := range best {
		sel.Selected = append(sel.Selected, Choice{WrapperID: r.WrapperID, TrainMean: *r.TrainMean})
	}
	return sel, nil
}

// SelectRun selects from a train run's summary.csv. It reads no other
// artifact.
func SelectRun(run *runs.Run, k int) (Selection, error) {
	rows, err := summary.ReadRun(run)
	if err != nil {
		return Selection{}, fmt.Errorf("failed to read train summary: %w", err)
	}
	sel, err := Select(rows, k)
	if err != nil {
		return Selection{}, err
	}
	sel.TrainRunID = run.ID
	return sel, nil
}

// WriteSelection persists sel as selection.json in the train run.
func WriteSelection(run *runs.Run, sel Selection) error {
	return runs.WriteJSON(run.Path(runs.SelectionFile), sel)
}

// ReadSelection reads selection.json from the train run.
func ReadSelection(run *runs.Run) (Selection, error) {
	var sel Selection
	if err := runs.ReadJSON(run.Path(runs.SelectionFile), &sel); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

// UnknownWrapperError is returned when an eval-stage id resolves to neither
// a candidate nor a base wrapper.
type UnknownWrapperError struct {
	ID string
}

func (e *UnknownWrapperError) Error() string {
	return "unknown wrapper_id in eval set: " + e.ID
}

// EvalSet builds the eval-stage wrapper set: selected ids then baselines,
// without duplicates, each resolved in candidates first and then in bases.
func EvalSet(selected, baselines []string, candidates, bases []battery.Wrapper) ([]battery.Wrapper, error) {
	byCandidate := battery.WrapperByID(candidates)
	byBase := battery.WrapperByID(bases)

	var ids []string
	for _, id := range append(slices.Clone(selected), baselines...) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	out := make([]battery.Wrapper, 0, len(ids))
	for _, id := range ids {
		if w, ok := byCandidate[id]; ok {
			out = append(out, w)
			continue
		}
		if w, ok := byBase[id]; ok {
			out = append(out, w)
			continue
		}
		return nil, &UnknownWrapperError{ID: id}
	}
	return out, nil
}
