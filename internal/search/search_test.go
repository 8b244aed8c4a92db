package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/wrapper-eval/internal/battery"
)

func TestLoadDefaultCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	ids := func(snippets []Snippet) []string {
		out := make([]string, 0, len(snippets))
		for _, s := range snippets {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{
		"structure_calibration", "qualia_vocabulary", "cautious_limits", "vivid_introspection", "minimalist",
	}, ids(c.Strategies))
	assert.Equal(t, []string{"terse", "formal", "casual"}, ids(c.StyleShifts))
	assert.Equal(t, "Be concise (1–2 sentences). Avoid extra commentary.", c.Strategies[4].Text)
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategies:
  - id: hedge
    text: Hedge every claim.
style_shifts:
  - id: pirate
    text: Talk like a pirate.
`), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []Snippet{{ID: "hedge", Text: "Hedge every claim."}}, c.Strategies)
	assert.Equal(t, []Snippet{{ID: "pirate", Text: "Talk like a pirate."}}, c.StyleShifts)
}

func TestLoadCatalogErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	_, err := LoadCatalog(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read catalog")

	_, err = LoadCatalog(write("bad.yaml", "strategies: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse catalog")

	_, err = LoadCatalog(write("dup.yaml", "strategies:\n  - {id: a, text: x}\n  - {id: a, text: y}\n"))
	assert.ErrorContains(t, err, "duplicate catalog strategy")

	_, err = LoadCatalog(write("delim.yaml", "style_shifts:\n  - {id: a__b, text: x}\n"))
	assert.ErrorContains(t, err, "must not contain")

	_, err = LoadCatalog(write("empty.yaml", "strategies:\n  - {id: a, text: ''}\n"))
	assert.ErrorContains(t, err, "needs an id and text")
}

func TestSelect(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	all, err := c.SelectStrategies(nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	some, err := c.SelectStrategies([]string{"minimalist", "cautious_limits"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "minimalist", some[0].ID)

	_, err = c.SelectStrategies([]string{"nope"})
	assert.ErrorContains(t, err, `unknown strategy "nope"`)

	none, err := c.SelectStyles(nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	styles, err := c.SelectStyles([]string{"terse"})
	require.NoError(t, err)
	require.Len(t, styles, 1)
}

func TestBuildCandidates(t *testing.T) {
	bases := []battery.Wrapper{
		{ID: "neutral", SystemPrompt: "You are helpful.  \n\n"},
		{ID: "terse", SystemPrompt: "Be brief."},
	}
	strategies := []Snippet{{ID: "s1", Text: "One."}, {ID: "s2", Text: "Two."}}

	got := BuildCandidates(bases, strategies, false)
	require.Len(t, got, 4)
	assert.Equal(t, "neutral__s1", got[0].ID)
	assert.Equal(t, "You are helpful.\n\nOne.", got[0].SystemPrompt)
	assert.Equal(t, &battery.Lineage{Parent: "neutral", Transform: battery.TransformStrategy, TransformID: "s1"}, got[0].Lineage)
	assert.Equal(t, "terse__s2", got[3].ID)
	assert.Equal(t, "Be brief.\n\nTwo.", got[3].SystemPrompt)

	withBase := BuildCandidates(bases, strategies, true)
	require.Len(t, withBase, 6)
	assert.Equal(t, "neutral", withBase[0].ID)
	assert.Equal(t, "You are helpful.  \n\n", withBase[0].SystemPrompt)
	assert.Nil(t, withBase[0].Lineage)
	assert.Equal(t, "terse", withBase[1].ID)
	assert.Equal(t, "neutral__s1", withBase[2].ID)
}

func TestExpandStyles(t *testing.T) {
	selected := []battery.Wrapper{
		{ID: "neutral__s1", SystemPrompt: "P"},
		{ID: "neutral", SystemPrompt: "Q"},
	}
	styles := []Snippet{{ID: "terse", Text: "Short."}}

	got := ExpandStyles(selected, styles)
	require.Len(t, got, 4)
	assert.Equal(t, selected, got[:2])
	assert.Equal(t, "neutral__s1__style_terse", got[2].ID)
	assert.Equal(t, "P\n\nShort.", got[2].SystemPrompt)
	assert.Equal(t, &battery.Lineage{Parent: "neutral__s1", Transform: battery.TransformStyle, TransformID: "terse"}, got[2].Lineage)
	assert.Equal(t, "neutral__style_terse", got[3].ID)

	// Lineage survives the identifier convention round trip.
	assert.Equal(t, got[2].Lineage, battery.ParseLineage(got[2].ID))

	assert.Equal(t, selected, ExpandStyles(selected, nil))
}
