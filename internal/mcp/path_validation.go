package mcp

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolveRunPath maps a run id onto its directory directly under runsDir.
func resolveRunPath(runsDir, runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	switch {
	case runID == "":
		return "", fmt.Errorf("run_id is required")
	case strings.ContainsAny(runID, `/\`):
		return "", fmt.Errorf("path separators are not allowed in run_id")
	case runID == "." || !filepath.IsLocal(runID):
		return "", fmt.Errorf("path traversal is not allowed")
	}
	return filepath.Join(runsDir, runID), nil
}
