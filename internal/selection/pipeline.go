package selection

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/jsonl"
	"github.com/giantswarm/wrapper-eval/internal/runner"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
	"github.com/giantswarm/wrapper-eval/internal/search"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

const (
	// DefaultTopK is the number of wrappers kept by the train stage.
	DefaultTopK = 1

	// DefaultExampleLimit caps examples.jsonl.
	DefaultExampleLimit = 5

	// DefaultBaseline is compared against the selected wrapper.
	DefaultBaseline = "neutral"
)

// NewGroupID returns a fresh group id such as "search_1a2b3c4d".
func NewGroupID(prefix string) string {
	return prefix + "_" + runs.NewShortID(8)
}

// Config describes one two-stage selection.
type Config struct {
	// OutRoot is the directory holding both stage runs.
	OutRoot string

	// GroupID prefixes the stage run ids and the candidates file.
	GroupID string

	Prompts []battery.Prompt

	// Bases are the wrappers loaded from the wrappers file. Baseline ids
	// resolve against them.
	Bases []battery.Wrapper

	// Candidates are ranked by the train stage. Bases are used when nil; an
	// empty non-nil slice is an error.
	Candidates []battery.Wrapper

	// Baselines are evaluated alongside the selection. The first one is
	// used for comparison.json and examples.jsonl.
	Baselines []string

	TopK         int
	ExampleLimit int

	// Styles are appended to each eval-stage wrapper as extra variants.
	Styles []search.Snippet

	// WriteCandidates writes <group>_candidates_wrappers.jsonl to OutRoot.
	WriteCandidates bool

	PromptsPath  string
	WrappersPath string
}

func (c *Config) applyDefaults() {
	if c.GroupID == "" {
		c.GroupID = NewGroupID("select")
	}
	if c.Candidates == nil {
		c.Candidates = c.Bases
	}
	if len(c.Baselines) == 0 {
		c.Baselines = []string{DefaultBaseline}
	}
	if c.TopK < 1 {
		c.TopK = DefaultTopK
	}
	if c.ExampleLimit < 1 {
		c.ExampleLimit = DefaultExampleLimit
	}
}

// TrainRunID is the id of the train-stage run.
func (c Config) TrainRunID() string { return c.GroupID + "_train" }

// EvalRunID is the id of the eval-stage run.
func (c Config) EvalRunID() string { return c.GroupID + "_eval" }

// CandidatesPath is where the candidate wrappers are written.
func (c Config) CandidatesPath() string {
	return filepath.Join(c.OutRoot, c.GroupID+"_candidates_wrappers.jsonl")
}

// Result collects both stages.
type Result struct {
	GroupID    string
	TrainRun   *runs.Run
	EvalRun    *runs.Run
	Selection  Selection
	EvalRows   []summary.Row
	Comparison *Comparison
	Examples   []Example
}

// Pipeline runs generate, score and summarize for each stage.
type Pipeline struct {
	provider runner.Provider
	scorer   *scorer.Scorer
	progress runner.ProgressFunc
}

// NewPipeline creates a pipeline using one provider and one scorer for both
// stages.
func NewPipeline(provider runner.Provider, sc *scorer.Scorer) *Pipeline {
	return &Pipeline{provider: provider, scorer: sc}
}

// SetProgressFunc sets the generation progress callback for both stages.
func (p *Pipeline) SetProgressFunc(fn runner.ProgressFunc) {
	p.progress = fn
}

// Run executes the train stage and then the eval stage.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*Result, error) {
	cfg.applyDefaults()

	trainRun, sel, err := p.Train(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := p.Evaluate(ctx, cfg, sel)
	if err != nil {
		return nil, err
	}
	res.TrainRun = trainRun
	return res, nil
}

// Train generates and scores the candidates on train prompts, then selects
// and persists the top wrappers in selection.json.
func (p *Pipeline) Train(ctx context.Context, cfg Config) (*runs.Run, Selection, error) {
	cfg.applyDefaults()
	if len(cfg.Candidates) == 0 {
		return nil, Selection{}, ErrNoCandidates
	}

	if cfg.WriteCandidates {
		if err := jsonl.WriteFile(cfg.CandidatesPath(), cfg.Candidates); err != nil {
			return nil, Selection{}, fmt.Errorf("failed to write candidates: %w", err)
		}
	}

	slog.Info("train stage", "group_id", cfg.GroupID, "candidates", len(cfg.Candidates))

	run, _, _, err := p.stage(ctx, cfg, cfg.TrainRunID(), cfg.Candidates, []battery.Split{battery.SplitTrainIndicator})
	if err != nil {
		return nil, Selection{}, fmt.Errorf("train stage: %w", err)
	}

	sel, err := SelectRun(run, cfg.TopK)
	if err != nil {
		return nil, Selection{}, err
	}
	if err := WriteSelection(run, sel); err != nil {
		return nil, Selection{}, fmt.Errorf("failed to write selection: %w", err)
	}

	slog.Info("selected wrappers", "train_run", run.ID, "selected", sel.IDs())
	return run, sel, nil
}

// Evaluate runs the frozen selection and the baselines on the eval and
// control splits, then writes comparison.json and examples.jsonl.
func (p *Pipeline) Evaluate(ctx context.Context, cfg Config, sel Selection) (*Result, error) {
	cfg.applyDefaults()
	if len(sel.Selected) == 0 {
		return nil, ErrNoTrainScores
	}

	wrappers, err := EvalSet(sel.IDs(), cfg.Baselines, cfg.Candidates, cfg.Bases)
	if err != nil {
		return nil, err
	}
	wrappers = search.ExpandStyles(wrappers, cfg.Styles)

	slog.Info("eval stage", "group_id", cfg.GroupID, "wrappers", len(wrappers))

	// Comparison deltas use the unrounded rows, not summary.csv.
	run, gens, rows, err := p.stage(ctx, cfg, cfg.EvalRunID(), wrappers, battery.EvalSplits)
	if err != nil {
		return nil, fmt.Errorf("eval stage: %w", err)
	}

	res := &Result{
		GroupID:   cfg.GroupID,
		EvalRun:   run,
		Selection: sel,
		EvalRows:  rows,
	}

	selected, baseline := sel.Selected[0].WrapperID, cfg.Baselines[0]
	if selected == baseline {
		slog.Info("selected wrapper is the baseline; skipping comparison", "wrapper_id", selected)
		return res, nil
	}

	res.Comparison, err = Compare(rows, selected, baseline)
	if err != nil {
		return nil, err
	}
	if err := runs.WriteJSON(run.Path(runs.ComparisonFile), res.Comparison); err != nil {
		return nil, fmt.Errorf("failed to write comparison: %w", err)
	}

	res.Examples = PairedExamples(gens, selected, baseline, cfg.ExampleLimit)
	if err := jsonl.WriteFile(run.Path(runs.ExamplesFile), res.Examples); err != nil {
		return nil, fmt.Errorf("failed to write examples: %w", err)
	}
	return res, nil
}

func (p *Pipeline) stage(ctx context.Context, cfg Config, runID string, wrappers []battery.Wrapper, splits []battery.Split) (*runs.Run, []runs.Generation, []summary.Row, error) {
	r := runner.NewRunner(p.provider, cfg.OutRoot)
	if p.progress != nil {
		r.SetProgressFunc(p.progress)
	}

	run, gens, err := r.Run(ctx, cfg.Prompts, wrappers, runner.Options{
		RunID:        runID,
		Splits:       splits,
		PromptsPath:  cfg.PromptsPath,
		WrappersPath: cfg.WrappersPath,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := p.scorer.ScoreRun(ctx, run); err != nil {
		return nil, nil, nil, err
	}
	rows, err := summary.SummarizeRun(run)
	if err != nil {
		return nil, nil, nil, err
	}
	return run, gens, rows, nil
}
