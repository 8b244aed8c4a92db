// Package registry indexes the runs under an output root.
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/selection"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

// Default index file names inside the runs directory.
const (
	IndexCSVFile = "index.csv"
	IndexDBFile  = "index.db"
)

// Entry is the index record of one run.
type Entry struct {
	RunID            string   `json:"run_id"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	GitCommit        string   `json:"git_commit"`
	HasSummary       bool     `json:"has_summary"`
	WrapperCount     int      `json:"wrapper_count"`
	NeutralTrainMean *float64 `json:"neutral_train_indicator_mean"`
	NeutralEvalMean  *float64 `json:"neutral_eval_indicator_mean"`
	SelectedWrapper  string   `json:"selected_wrapper"`
	BaselineWrapper  string   `json:"baseline_wrapper"`
	SelectedEvalMean *float64 `json:"selected_eval_indicator_mean"`
	BaselineEvalMean *float64 `json:"baseline_eval_indicator_mean"`
	Path             string   `json:"path"`
}

// Columns are the header of index.csv.
var Columns = []string{
	"run_id",
	"provider",
	"model",
	"git_commit",
	"has_summary",
	"wrapper_count",
	"neutral_train_indicator_mean",
	"neutral_eval_indicator_mean",
	"selected_wrapper",
	"baseline_wrapper",
	"selected_eval_indicator_mean",
	"baseline_eval_indicator_mean",
	"path",
}

// Scan indexes every run directory directly under root, sorted by name.
// Directories without a readable config.json are skipped. A missing root
// yields no entries.
func Scan(root string) ([]Entry, error) {
	dirents, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			names = append(names, d.Name())
		}
	}
	slices.Sort(names)

	var entries []Entry
	for _, name := range names {
		e, ok := scanRun(filepath.Join(root, name))
		if ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func scanRun(dir string) (Entry, bool) {
	run, err := runs.Open(dir)
	if err != nil || !run.Has(runs.ConfigFile) {
		return Entry{}, false
	}
	cfg, err := run.ReadConfig()
	if err != nil {
		slog.Debug("skipping run with unreadable config", "path", dir, "error", err)
		return Entry{}, false
	}

	e := Entry{
		RunID:     cfg.RunID,
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		GitCommit: cfg.GitCommit,
		Path:      dir,
	}
	if e.RunID == "" {
		e.RunID = run.ID
	}

	var rows []summary.Row
	if run.Has(runs.SummaryFile) {
		rows, err = summary.ReadRun(run)
		if err != nil {
			slog.Debug("ignoring unreadable summary", "path", dir, "error", err)
			rows = nil
		}
	}
	e.HasSummary = len(rows) > 0
	e.WrapperCount = len(rows)
	e.NeutralTrainMean, e.NeutralEvalMean = means(rows, selection.DefaultBaseline)

	var cmp selection.Comparison
	if run.Has(runs.ComparisonFile) {
		if err := runs.ReadJSON(run.Path(runs.ComparisonFile), &cmp); err != nil {
			slog.Debug("ignoring unreadable comparison", "path", dir, "error", err)
			cmp = selection.Comparison{}
		}
	}
	e.SelectedWrapper = cmp.SelectedWrapper
	e.BaselineWrapper = cmp.BaselineWrapper
	if e.SelectedWrapper != "" {
		_, e.SelectedEvalMean = means(rows, e.SelectedWrapper)
	}
	if e.BaselineWrapper != "" {
		_, e.BaselineEvalMean = means(rows, e.BaselineWrapper)
	}
	return e, true
}

func means(rows []summary.Row, wrapperID string) (train, eval *float64) {
	r, ok := summary.Find(rows, wrapperID)
	if !ok {
		return nil, nil
	}
	return r.TrainMean, r.EvalMean
}

func (e Entry) record() []string {
	return []string{
		e.RunID,
		e.Provider,
		e.Model,
		e.GitCommit,
		strconv.FormatBool(e.HasSummary),
		strconv.Itoa(e.WrapperCount),
		summary.FormatValue(e.NeutralTrainMean),
		summary.FormatValue(e.NeutralEvalMean),
		e.SelectedWrapper,
		e.BaselineWrapper,
		summary.FormatValue(e.SelectedEvalMean),
		summary.FormatValue(e.BaselineEvalMean),
		e.Path,
	}
}

// WriteCSV writes entries to path with a header row.
func WriteCSV(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		_ = f.Close()
		return err
	}
	for _, e := range entries {
		if err := w.Write(e.record()); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
