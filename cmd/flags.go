package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/kserve"
	"github.com/giantswarm/wrapper-eval/internal/runner"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
	"github.com/giantswarm/wrapper-eval/internal/selection"
)

const defaultOutRoot = "runs"

// providerFlags configure the completion provider of a generation stage.
type providerFlags struct {
	cfg runner.ProviderConfig
}

func (f *providerFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.cfg.Name, "provider", runner.ProviderStub, "Completion provider: stub or openai")
	fs.StringVar(&f.cfg.Endpoint, "endpoint", runner.DefaultEndpoint, "Chat completions endpoint (openai provider)")
	fs.StringVar(&f.cfg.APIKeyEnv, "api-key-env", runner.DefaultAPIKeyEnv, "Environment variable holding the API key")
	fs.BoolVar(&f.cfg.AllowNoKey, "allow-no-key", false, "Allow a missing API key for non-local endpoints")
	fs.StringVar(&f.cfg.Model, "model", runner.DefaultModel, "Subject model name")
	fs.Float64Var(&f.cfg.Temperature, "temperature", runner.DefaultTemperature, "Sampling temperature")
	fs.IntVar(&f.cfg.MaxTokens, "max-tokens", runner.DefaultMaxTokens, "Maximum completion tokens")
	fs.DurationVar(&f.cfg.Timeout, "timeout", runner.DefaultTimeout, "Per-request timeout")
	fs.DurationVar(&f.cfg.Delay, "delay", 0, "Minimum delay between provider calls")
}

// judgeFlags configure the judge channels. List flags are per channel; a
// single value applies to every channel.
type judgeFlags struct {
	cfg        scorer.ChannelConfig
	rubricFile string
}

func (f *judgeFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&f.cfg.Kinds, "judge", []string{scorer.KindHeuristic}, "Judge channels: heuristic or openai (repeatable)")
	fs.StringSliceVar(&f.cfg.Endpoints, "judge-endpoint", nil, "Judge endpoint per channel")
	fs.StringSliceVar(&f.cfg.APIKeyEnvs, "judge-api-key-env", nil, "Judge API key environment variable per channel")
	fs.StringSliceVar(&f.cfg.Models, "judge-model", nil, "Judge model per channel")
	fs.Float64SliceVar(&f.cfg.Temperatures, "judge-temperature", nil, "Judge temperature per channel")
	fs.IntSliceVar(&f.cfg.MaxTokens, "judge-max-tokens", nil, "Judge max tokens per channel")
	fs.DurationSliceVar(&f.cfg.Timeouts, "judge-timeout", nil, "Judge timeout per channel")
	fs.DurationSliceVar(&f.cfg.Delays, "judge-delay", nil, "Minimum delay between judge calls per channel")
	fs.BoolVar(&f.cfg.AllowNoKey, "judge-allow-no-key", false, "Allow missing judge API keys for non-local endpoints")
	fs.StringVar(&f.rubricFile, "judge-rubric-file", "", "File replacing the default judge rubric")
}

func (f *judgeFlags) config() (scorer.ChannelConfig, error) {
	cfg := f.cfg
	if f.rubricFile != "" {
		data, err := os.ReadFile(f.rubricFile)
		if err != nil {
			return cfg, fmt.Errorf("failed to read judge rubric: %w", err)
		}
		cfg.Rubric = string(data)
	}
	return cfg, nil
}

func (f *judgeFlags) scorer() (*scorer.Scorer, error) {
	cfg, err := f.config()
	if err != nil {
		return nil, err
	}
	return scorer.FromConfig(cfg)
}

// batteryFlags select the prompt and wrapper files. Empty paths use the
// embedded battery.
type batteryFlags struct {
	promptsPath  string
	wrappersPath string
}

func (f *batteryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.promptsPath, "prompts", "", "Prompts JSONL file (default: embedded battery)")
	cmd.Flags().StringVar(&f.wrappersPath, "wrappers", "", "Wrappers JSONL file (default: embedded battery)")
}

func (f *batteryFlags) load() ([]battery.Prompt, []battery.Wrapper, error) {
	prompts, err := battery.LoadPrompts(f.promptsPath)
	if err != nil {
		return nil, nil, err
	}
	wrappers, err := battery.LoadWrappers(f.wrappersPath)
	if err != nil {
		return nil, nil, err
	}
	return prompts, wrappers, nil
}

// deployFlags optionally serve the subject model from KServe.
type deployFlags struct {
	modelURI  string
	name      string
	runtime   string
	gpuCount  int
	inCluster bool
}

func (f *deployFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.modelURI, "deploy-model-uri", "", "Deploy this model URI via KServe as the subject for both stages")
	fs.StringVar(&f.name, "deploy-model-name", "", "InferenceService name (default: <group>-subject)")
	fs.StringVar(&f.runtime, "deploy-runtime", kserve.DefaultRuntime, "KServe serving runtime")
	fs.IntVar(&f.gpuCount, "deploy-gpu-count", kserve.DefaultGPUCount, "GPUs for the deployed subject")
	fs.BoolVar(&f.inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")
}

// subject builds the selection subject, connecting to KServe only when a
// model URI is set.
func (f *deployFlags) subject(cmd *cobra.Command, provider runner.ProviderConfig, groupID string) (selection.Subject, error) {
	subject := selection.Subject{Provider: provider, Progress: printProgress}
	if f.modelURI == "" {
		return subject, nil
	}

	namespace, _ := cmd.Flags().GetString("namespace")
	kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
	manager, err := kserve.NewManager(namespace, kubeconfig, f.inCluster)
	if err != nil {
		return subject, err
	}
	if err := manager.CheckCRDAvailable(cmd.Context()); err != nil {
		return subject, err
	}

	name := f.name
	if name == "" {
		name = groupID + "-subject"
	}
	model := kserve.NewSubjectModel(name, f.modelURI)
	model.Runtime = f.runtime
	model.GPUCount = f.gpuCount
	subject.Model = &model
	subject.Deployer = manager
	return subject, nil
}

func printProgress(wrapperID string, idx, total int) {
	fmt.Printf("\r  [%s] generation %d/%d...", wrapperID, idx, total)
	if idx == total {
		fmt.Println()
	}
}

func printResult(res *selection.Result) {
	fmt.Printf("\nGroup: %s\n", res.GroupID)
	fmt.Printf("Train run: %s\n", res.TrainRun.Dir)
	fmt.Printf("Eval run:  %s\n", res.EvalRun.Dir)
	fmt.Printf("Selected:\n")
	for _, c := range res.Selection.Selected {
		fmt.Printf("  - %s (train indicator mean %.3f)\n", c.WrapperID, c.TrainMean)
	}
	if res.Comparison == nil {
		fmt.Println("Selected wrapper is the baseline; no comparison written.")
		return
	}
	fmt.Printf("Compared %s against %s:\n", res.Comparison.SelectedWrapper, res.Comparison.BaselineWrapper)
	for _, name := range selection.ComparisonMetrics {
		d := res.Comparison.Metrics[name]
		fmt.Printf("  %-45s %s\n", name, formatDelta(d.Delta))
	}
}

func formatDelta(v *float64) string {
	if v == nil {
		return "NA"
	}
	return fmt.Sprintf("%+.3f", *v)
}
