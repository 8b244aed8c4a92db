// Package search expands base wrappers into candidate wrappers by appending
// catalog snippets.
package search

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/wrapper-eval/internal/battery"
)

//go:embed catalog/default.yaml
var defaultCatalog embed.FS

const defaultCatalogFile = "catalog/default.yaml"

// Snippet is a named piece of text appended to a system prompt.
type Snippet struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// Catalog holds the search strategies and style shifts.
type Catalog struct {
	Strategies  []Snippet `yaml:"strategies"`
	StyleShifts []Snippet `yaml:"style_shifts"`
}

// LoadCatalog reads a catalog from path, or the embedded default catalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = defaultCatalog.ReadFile(defaultCatalogFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	for kind, snippets := range map[string][]Snippet{"strategy": c.Strategies, "style shift": c.StyleShifts} {
		seen := make(map[string]bool, len(snippets))
		for _, s := range snippets {
			if s.ID == "" || strings.TrimSpace(s.Text) == "" {
				return fmt.Errorf("catalog %s needs an id and text", kind)
			}
			if strings.Contains(s.ID, battery.LineageDelimiter) {
				return fmt.Errorf("catalog %s id %q must not contain %q", kind, s.ID, battery.LineageDelimiter)
			}
			if seen[s.ID] {
				return fmt.Errorf("duplicate catalog %s %q", kind, s.ID)
			}
			seen[s.ID] = true
		}
	}
	return nil
}

// SelectStrategies returns the named strategies in the given order. No ids
// selects every strategy.
func (c *Catalog) SelectStrategies(ids []string) ([]Snippet, error) {
	return pick("strategy", c.Strategies, ids)
}

// SelectStyles returns the named style shifts in the given order. No ids
// selects none: style shifts are opt-in.
func (c *Catalog) SelectStyles(ids []string) ([]Snippet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return pick("style shift", c.StyleShifts, ids)
}

func pick(kind string, snippets []Snippet, ids []string) ([]Snippet, error) {
	if len(ids) == 0 {
		return snippets, nil
	}
	byID := make(map[string]Snippet, len(snippets))
	for _, s := range snippets {
		byID[s.ID] = s
	}
	out := make([]Snippet, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown %s %q", kind, id)
		}
		out = append(out, s)
	}
	return out, nil
}

// BuildCandidates returns the base wrappers (when includeBase is set)
// followed by every base x strategy combination.
func BuildCandidates(bases []battery.Wrapper, strategies []Snippet, includeBase bool) []battery.Wrapper {
	var out []battery.Wrapper
	if includeBase {
		for _, b := range bases {
			out = append(out, battery.Wrapper{ID: b.ID, SystemPrompt: b.SystemPrompt, Lineage: b.Lineage})
		}
	}
	for _, b := range bases {
		for _, s := range strategies {
			out = append(out, derive(b, battery.TransformStrategy, s))
		}
	}
	return out
}

// ExpandStyles returns wrappers followed by one style-shifted variant of
// each wrapper per style.
func ExpandStyles(wrappers []battery.Wrapper, styles []Snippet) []battery.Wrapper {
	out := make([]battery.Wrapper, 0, len(wrappers)*(len(styles)+1))
	out = append(out, wrappers...)
	for _, w := range wrappers {
		for _, s := range styles {
			out = append(out, derive(w, battery.TransformStyle, s))
		}
	}
	return out
}

func derive(parent battery.Wrapper, t battery.Transform, s Snippet) battery.Wrapper {
	return battery.Wrapper{
		ID:           battery.DerivedID(parent.ID, t, s.ID),
		SystemPrompt: strings.TrimRightFunc(parent.SystemPrompt, unicode.IsSpace) + "\n\n" + s.Text,
		Lineage:      &battery.Lineage{Parent: parent.ID, Transform: t, TransformID: s.ID},
	}
}
