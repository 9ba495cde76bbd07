package instructions

import (
	"fmt"
	"path/filepath"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// UnifiedDiff renders the change from before to after as a unified diff.
// Identical inputs give an empty string.
func UnifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	name := filepath.Base(path)
	edits := myers.ComputeEdits(span.URIFromPath(path), before, after)
	return fmt.Sprint(gotextdiff.ToUnified("a/"+name, "b/"+name, before, edits))
}
