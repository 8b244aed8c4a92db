// Package validate checks a run directory for the expected artifacts and
// their basic consistency.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

// RequiredFiles must exist in every complete run.
var RequiredFiles = []string{
	runs.ConfigFile,
	runs.GenerationsFile,
	runs.ScoresFile,
	runs.SummaryFile,
}

// Error lists every problem found in one run directory.
type Error struct {
	Dir      string
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("run %s failed validation: %s", e.Dir, strings.Join(e.Problems, "; "))
}

// Run validates the run directory at dir. With allowPartial, generations
// and scores may differ in length and keys.
func Run(dir string, allowPartial bool) error {
	v := &Error{Dir: dir}

	run, err := runs.Open(dir)
	if err != nil {
		v.add("%v", err)
		return v
	}

	for _, name := range RequiredFiles {
		if !run.Has(name) {
			v.add("missing %s", name)
		}
	}
	if len(v.Problems) > 0 {
		return v
	}

	gens, err := run.ReadGenerations()
	if err != nil {
		v.add("%v", err)
	}
	scores, err := scorer.ReadScores(run.Path(runs.ScoresFile))
	if err != nil {
		v.add("%v", err)
	}
	if len(v.Problems) == 0 && (len(gens) == 0 || len(scores) == 0) {
		v.add("empty generations or scores")
	}

	if len(v.Problems) == 0 && !allowPartial {
		checkPairing(v, gens, scores)
	}
	for _, s := range scores {
		checkSignals(v, s)
	}

	rows, err := summary.ReadCSV(run.Path(runs.SummaryFile))
	switch {
	case errors.Is(err, summary.ErrNoWrapperColumn):
		v.add("%s missing %s column", runs.SummaryFile, summary.ColumnWrapperID)
	case err != nil:
		v.add("%v", err)
	case len(rows) == 0:
		v.add("%s is empty", runs.SummaryFile)
	}

	if len(v.Problems) > 0 {
		return v
	}
	return nil
}

func checkPairing(v *Error, gens []runs.Generation, scores []scorer.Score) {
	if len(gens) != len(scores) {
		v.add("generations and scores length mismatch (%d vs %d)", len(gens), len(scores))
	}

	genKeys := make(map[runs.Key]bool, len(gens))
	for _, g := range gens {
		genKeys[g.Key()] = true
	}
	scoreKeys := make(map[runs.Key]bool, len(scores))
	for _, s := range scores {
		scoreKeys[s.Key()] = true
		if !genKeys[s.Key()] {
			v.add("score %s/%s has no generation", s.WrapperID, s.PromptID)
		}
	}
	for _, g := range gens {
		if !scoreKeys[g.Key()] {
			v.add("generation %s/%s has no score", g.WrapperID, g.PromptID)
		}
	}
}

func checkSignals(v *Error, s scorer.Score) {
	missing := func(field string) {
		v.add("missing %s for %s/%s (split %s)", field, s.WrapperID, s.PromptID, s.Split)
	}
	switch s.Split {
	case battery.SplitTrainIndicator, battery.SplitEvalIndicator, battery.SplitControlFraming:
		if s.IndicatorScore == nil {
			missing("indicator_score")
		}
	case battery.SplitControlParaphrase:
		if s.Probability == nil {
			missing("probability_0_100")
		}
	case battery.SplitControlContradiction:
		if s.ContradictionAnswer == nil {
			missing("contradiction_answer")
		}
	case battery.SplitControlTaskCompetence:
		if s.ControlTaskPass == nil {
			missing("control_task_pass")
		}
	}
}

func (e *Error) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}
