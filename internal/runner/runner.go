package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/runs"
)

// ProgressFunc is called to report progress during generation.
type ProgressFunc func(wrapperID string, index, total int)

// Options selects what a generation run covers.
type Options struct {
	// RunID names the run directory. A fresh id is generated when empty.
	RunID string

	// Splits restricts prompts to these splits. Empty keeps all prompts.
	Splits []battery.Split

	// WrapperIDs restricts wrappers to these ids. Empty keeps all wrappers.
	WrapperIDs []string

	// PromptsPath and WrappersPath are recorded in config.json.
	PromptsPath  string
	WrappersPath string
}

// Runner generates completions for every wrapper/prompt pair and records
// them in a new run directory.
type Runner struct {
	provider Provider
	outRoot  string
	progress ProgressFunc
}

// NewRunner creates a new generation runner writing runs under outRoot.
func NewRunner(provider Provider, outRoot string) *Runner {
	return &Runner{
		provider: provider,
		outRoot:  outRoot,
	}
}

// SetProgressFunc sets the progress callback.
func (r *Runner) SetProgressFunc(fn ProgressFunc) {
	r.progress = fn
}

// Run generates completions and writes config.json, wrappers.jsonl and
// generations.jsonl. Execution is strictly sequential; a provider error
// aborts the run.
func (r *Runner) Run(ctx context.Context, prompts []battery.Prompt, wrappers []battery.Wrapper, opts Options) (*runs.Run, []runs.Generation, error) {
	prompts, err := battery.FilterSplits(prompts, opts.Splits)
	if err != nil {
		return nil, nil, err
	}
	wrappers, err = battery.FilterWrappers(wrappers, opts.WrapperIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(prompts) == 0 {
		return nil, nil, fmt.Errorf("no prompts to run")
	}
	if len(wrappers) == 0 {
		return nil, nil, fmt.Errorf("no wrappers to run")
	}

	runID := opts.RunID
	if runID == "" {
		runID = runs.NewRunID()
	}

	run, err := runs.Create(r.outRoot, runID)
	if err != nil {
		return nil, nil, err
	}

	cfg := runs.Config{
		RunID:            runID,
		ProviderSettings: r.provider.Settings(),
		PromptsPath:      opts.PromptsPath,
		WrappersPath:     opts.WrappersPath,
		Splits:           opts.Splits,
		WrapperIDs:       opts.WrapperIDs,
		GitCommit:        runs.GitCommit(),
		CreatedAt:        time.Now().UTC(),
	}
	if err := run.WriteConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to write run config: %w", err)
	}
	if err := run.WriteWrappers(wrappers); err != nil {
		return nil, nil, fmt.Errorf("failed to write wrapper snapshot: %w", err)
	}

	slog.Info("generating completions",
		"run_id", runID,
		"provider", cfg.Provider,
		"wrappers", len(wrappers),
		"prompts", len(prompts),
	)

	start := time.Now()
	total := len(wrappers) * len(prompts)
	gens := make([]runs.Generation, 0, total)

	for _, w := range wrappers {
		for _, p := range prompts {
			if err := ctx.Err(); err != nil {
				slog.Warn("generation cancelled", "run_id", runID, "completed", len(gens), "total", total)
				return nil, nil, err
			}

			if r.progress != nil {
				r.progress(w.ID, len(gens)+1, total)
			}

			messages := make([]battery.Message, 0, len(p.Messages)+1)
			messages = append(messages, battery.Message{Role: "system", Content: w.SystemPrompt})
			messages = append(messages, p.Messages...)

			resp, err := r.provider.Complete(ctx, w, p, messages)
			if err != nil {
				return nil, nil, fmt.Errorf("wrapper %s: %w", w.ID, err)
			}

			gens = append(gens, runs.Generation{
				RunID:      runID,
				WrapperID:  w.ID,
				PromptID:   p.ID,
				Split:      p.Split,
				Messages:   messages,
				Completion: resp.Content,
				Usage:      resp.Usage,
				PromptMeta: runs.PromptMeta{
					Tags:               p.Tags,
					ExpectedSubstrings: p.ExpectedSubstrings,
					PairID:             p.PairID,
				},
			})
		}
	}

	if err := run.WriteGenerations(gens); err != nil {
		return nil, nil, fmt.Errorf("failed to write generations: %w", err)
	}

	slog.Info("generation complete",
		"run_id", runID,
		"generations", len(gens),
		"duration", time.Since(start),
	)

	return run, gens, nil
}
