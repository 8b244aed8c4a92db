// Package runs manages run directories and the generation records they own.
//
// A run directory is created once and is append-only: each stage writes
// its own artifact and later stages only read what earlier stages wrote.
package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/jsonl"
	"github.com/giantswarm/wrapper-eval/internal/llm"
)

// Artifact file names inside a run directory.
const (
	ConfigFile      = "config.json"
	WrappersFile    = "wrappers.jsonl"
	GenerationsFile = "generations.jsonl"
	ScoresFile      = "scores.jsonl"
	SummaryFile     = "summary.csv"
	SelectionFile   = "selection.json"
	ComparisonFile  = "comparison.json"
	ExamplesFile    = "examples.jsonl"
)

// ErrRunExists is returned when a run id is already taken.
var ErrRunExists = errors.New("run already exists")

// NewRunID returns a fresh run identifier of the form run_<10 hex>.
func NewRunID() string {
	return "run_" + NewShortID(10)
}

// NewShortID returns n lowercase hex characters derived from a random UUID.
func NewShortID(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(hex) {
		n = len(hex)
	}
	return hex[:n]
}

// Run is a directory-scoped evaluation run.
type Run struct {
	ID  string
	Dir string
}

// Create makes a new run directory under root. The run id must not exist yet.
func Create(root, id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("run id must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output root: %w", err)
	}
	dir := filepath.Join(root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrRunExists)
		}
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &Run{ID: id, Dir: dir}, nil
}

// Open returns the run stored in dir.
func Open(dir string) (*Run, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("missing run directory: %s", dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a run directory: %s", dir)
	}
	return &Run{ID: filepath.Base(filepath.Clean(dir)), Dir: dir}, nil
}

// Path returns the path of an artifact inside the run directory.
func (r *Run) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// Has reports whether the artifact exists.
func (r *Run) Has(name string) bool {
	_, err := os.Stat(r.Path(name))
	return err == nil
}

// ProviderSettings describes the completion provider used for a run.
type ProviderSettings struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Endpoint    string  `json:"endpoint,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	AllowNoKey  bool    `json:"allow_no_key,omitempty"`
}

// Config is the run's config.json.
type Config struct {
	RunID string `json:"run_id"`
	ProviderSettings
	PromptsPath  string          `json:"prompts_path"`
	WrappersPath string          `json:"wrappers_path"`
	Splits       []battery.Split `json:"splits,omitempty"`
	WrapperIDs   []string        `json:"wrapper_ids,omitempty"`
	GitCommit    string          `json:"git_commit,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// WriteConfig writes config.json.
func (r *Run) WriteConfig(cfg Config) error {
	return WriteJSON(r.Path(ConfigFile), cfg)
}

// ReadConfig reads config.json.
func (r *Run) ReadConfig() (*Config, error) {
	var cfg Config
	if err := ReadJSON(r.Path(ConfigFile), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PromptMeta is the snapshot of prompt metadata stored with a generation.
type PromptMeta struct {
	Tags               []string `json:"tags"`
	ExpectedSubstrings []string `json:"expected_substrings"`
	PairID             string   `json:"pair_id,omitempty"`
}

// Generation is one completion for a (wrapper, prompt) pair.
type Generation struct {
	RunID      string            `json:"run_id"`
	WrapperID  string            `json:"wrapper_id"`
	PromptID   string            `json:"prompt_id"`
	Split      battery.Split     `json:"split"`
	Messages   []battery.Message `json:"messages"`
	Completion string            `json:"completion"`
	Usage      *llm.Usage        `json:"usage"`
	PromptMeta PromptMeta        `json:"prompt_meta"`
}

// Key identifies a generation within a run.
type Key struct {
	Wrapper string
	Prompt  string
}

// Key returns the generation's (wrapper, prompt) key.
func (g Generation) Key() Key {
	return Key{Wrapper: g.WrapperID, Prompt: g.PromptID}
}

// WriteWrappers snapshots the wrapper set used by the run.
func (r *Run) WriteWrappers(wrappers []battery.Wrapper) error {
	return jsonl.WriteFile(r.Path(WrappersFile), wrappers)
}

// ReadWrappers reads the wrapper snapshot. The error wraps os.ErrNotExist
// for runs written without one.
func (r *Run) ReadWrappers() ([]battery.Wrapper, error) {
	return jsonl.ReadFile[battery.Wrapper](r.Path(WrappersFile))
}

// WriteGenerations writes generations.jsonl.
func (r *Run) WriteGenerations(gens []Generation) error {
	return jsonl.WriteFile(r.Path(GenerationsFile), gens)
}

// ReadGenerations reads generations.jsonl.
func (r *Run) ReadGenerations() ([]Generation, error) {
	return jsonl.ReadFile[Generation](r.Path(GenerationsFile))
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// GitCommit returns the HEAD commit of the working directory, or "" when
// it cannot be determined.
func GitCommit() string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
