package battery

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/giantswarm/wrapper-eval/internal/jsonl"
)

//go:embed all:testdata
var embeddedBattery embed.FS

// Default embedded inputs, used when no path is given.
const (
	DefaultPromptsFile  = "testdata/prompts_v1.jsonl"
	DefaultWrappersFile = "testdata/wrappers_v1.jsonl"
)

// ErrEmpty is returned when an input file holds no records.
var ErrEmpty = errors.New("no records")

// LoadPrompts loads a prompt battery from path, or the embedded default
// battery when path is empty.
func LoadPrompts(path string) ([]Prompt, error) {
	prompts, err := load[Prompt](path, DefaultPromptsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	seen := make(map[string]bool, len(prompts))
	for i, p := range prompts {
		if p.ID == "" {
			return nil, fmt.Errorf("prompt %d has no id", i+1)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate prompt id %q", p.ID)
		}
		seen[p.ID] = true
		if len(p.Messages) == 0 {
			return nil, fmt.Errorf("prompt %q has no messages", p.ID)
		}
	}
	return prompts, nil
}

// LoadWrappers loads wrappers from path, or the embedded default set when
// path is empty.
func LoadWrappers(path string) ([]Wrapper, error) {
	wrappers, err := load[Wrapper](path, DefaultWrappersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load wrappers: %w", err)
	}

	seen := make(map[string]bool, len(wrappers))
	for i, w := range wrappers {
		if w.ID == "" {
			return nil, fmt.Errorf("wrapper %d has no wrapper_id", i+1)
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("duplicate wrapper_id %q", w.ID)
		}
		seen[w.ID] = true
	}
	return wrappers, nil
}

func load[T any](path, embedded string) ([]T, error) {
	var (
		rows []T
		err  error
	)
	if path != "" {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("input file not found: %s", path)
		}
		rows, err = jsonl.ReadFile[T](path)
	} else {
		var f fs.File
		f, err = embeddedBattery.Open(embedded)
		if err == nil {
			defer f.Close()
			rows, err = jsonl.Decode[T](f)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		name := path
		if name == "" {
			name = embedded
		}
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	return rows, nil
}

// FilterSplits keeps prompts whose split is in splits. An empty splits list
// keeps everything. Matching nothing is an error.
func FilterSplits(prompts []Prompt, splits []Split) ([]Prompt, error) {
	if len(splits) == 0 {
		return prompts, nil
	}
	allowed := make(map[Split]bool, len(splits))
	for _, s := range splits {
		allowed[s] = true
	}
	var out []Prompt
	for _, p := range prompts {
		if allowed[p.Split] {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no prompts matched splits %v", splits)
	}
	return out, nil
}

// FilterWrappers keeps wrappers whose id is in ids, in input order. An empty
// ids list keeps everything. Matching nothing is an error.
func FilterWrappers(wrappers []Wrapper, ids []string) ([]Wrapper, error) {
	if len(ids) == 0 {
		return wrappers, nil
	}
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	var out []Wrapper
	for _, w := range wrappers {
		if allowed[w.ID] {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no wrappers matched wrapper ids %v", ids)
	}
	return out, nil
}

// WrapperByID indexes wrappers by identifier.
func WrapperByID(wrappers []Wrapper) map[string]Wrapper {
	out := make(map[string]Wrapper, len(wrappers))
	for _, w := range wrappers {
		out[w.ID] = w
	}
	return out
}
