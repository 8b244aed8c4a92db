package selection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/kserve"
	"github.com/giantswarm/wrapper-eval/internal/runner"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
	"github.com/giantswarm/wrapper-eval/internal/search"
)

// DefaultSearchBases are the base wrappers a search expands by default.
var DefaultSearchBases = []string{DefaultBaseline}

// SearchOptions turns base wrappers into a strategy search.
type SearchOptions struct {
	Catalog *search.Catalog

	// BaseWrappers are the ids of the bases the strategies are appended to.
	// DefaultSearchBases is used when empty.
	BaseWrappers []string

	Strategies  []string
	Styles      []string
	IncludeBase bool
}

// Apply sets cfg.Candidates and cfg.Styles from the catalog. cfg.Bases is
// left whole so baselines still resolve against every wrapper.
func (o SearchOptions) Apply(cfg *Config) error {
	baseIDs := o.BaseWrappers
	if len(baseIDs) == 0 {
		baseIDs = DefaultSearchBases
	}
	seeds, err := battery.FilterWrappers(cfg.Bases, baseIDs)
	if err != nil {
		return err
	}
	strategies, err := o.Catalog.SelectStrategies(o.Strategies)
	if err != nil {
		return err
	}
	styles, err := o.Catalog.SelectStyles(o.Styles)
	if err != nil {
		return err
	}
	candidates := search.BuildCandidates(seeds, strategies, o.IncludeBase)
	if len(candidates) == 0 {
		return ErrNoCandidates
	}
	cfg.Candidates = candidates
	cfg.Styles = styles
	cfg.WriteCandidates = true
	return nil
}

// Subject is the completion provider for a selection, optionally served
// from a model deployed for the duration of the run.
type Subject struct {
	Provider runner.ProviderConfig

	// Model, when set, is deployed with Deployer before the train stage and
	// torn down after the eval stage. Its endpoint replaces
	// Provider.Endpoint.
	Model    *kserve.SubjectModel
	Deployer kserve.Deployer

	Progress runner.ProgressFunc
}

// RunSubject runs both stages against the subject.
func RunSubject(ctx context.Context, subject Subject, sc *scorer.Scorer, cfg Config) (*Result, error) {
	cfg.applyDefaults()

	run := func(ctx context.Context, pcfg runner.ProviderConfig) (*Result, error) {
		provider, err := runner.GetProvider(pcfg)
		if err != nil {
			return nil, err
		}
		p := NewPipeline(provider, sc)
		p.SetProgressFunc(subject.Progress)
		return p.Run(ctx, cfg)
	}

	if subject.Model == nil {
		return run(ctx, subject.Provider)
	}
	if subject.Deployer == nil {
		return nil, fmt.Errorf("deploying %s requires a KServe deployer", subject.Model.ModelURI)
	}

	model := *subject.Model
	if model.Group == "" {
		model.Group = cfg.GroupID
	}

	var res *Result
	err := kserve.Serve(ctx, subject.Deployer, model, func(ctx context.Context, endpoint string) error {
		pcfg := subject.Provider
		pcfg.Name = runner.ProviderOpenAI
		pcfg.Endpoint = endpoint
		pcfg.AllowNoKey = true
		if pcfg.Model == "" {
			pcfg.Model = model.Name
		}
		slog.Info("using deployed subject model", "endpoint", endpoint, "group_id", cfg.GroupID)

		var err error
		res, err = run(ctx, pcfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
