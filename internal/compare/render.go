package compare

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

// Markdown renders the report as one table per wrapper.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Run comparison\n\n")
	fmt.Fprintf(&b, "- Baseline: `%s`\n", r.BaselineRun)
	fmt.Fprintf(&b, "- Candidate: `%s`\n\n", r.CandidateRun)

	for _, id := range r.WrapperIDs() {
		fmt.Fprintf(&b, "## Wrapper `%s`\n\n", id)
		b.WriteString("| metric | baseline | candidate | delta |\n")
		b.WriteString("|---|---:|---:|---:|\n")
		for _, m := range r.Metrics {
			d := r.Wrappers[id][m]
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", m, cell(d.Baseline), cell(d.Candidate), cell(d.Delta))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cell(v *float64) string {
	if v == nil {
		return "NA"
	}
	return summary.FormatValue(v)
}

// WriteReport writes compare.json and compare.md into dir.
func WriteReport(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := runs.WriteJSON(filepath.Join(dir, JSONFile), r); err != nil {
		return fmt.Errorf("failed to write %s: %w", JSONFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, MarkdownFile), []byte(r.Markdown()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", MarkdownFile, err)
	}
	return nil
}
