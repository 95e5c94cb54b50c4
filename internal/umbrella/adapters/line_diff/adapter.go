// Package linediff computes unified diffs between committed and freshly
// rendered manifests.
package linediff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of unchanged lines shown around each hunk.
const DefaultContext = 3

// Adapter implements ports.DiffPort using a line-by-line unified diff.
type Adapter struct {
	context int
}

// New creates a line diff adapter. A negative contextLines falls back to DefaultContext.
func New(contextLines int) *Adapter {
	if contextLines < 0 {
		contextLines = DefaultContext
	}
	return &Adapter{context: contextLines}
}

// ComputeDiff returns a unified diff of base and head, or "" when they are
// byte-identical.
func (a *Adapter) ComputeDiff(baseName, headName string, base, head []byte) string {
	if bytes.Equal(base, head) {
		return ""
	}
	ud := difflib.UnifiedDiff{
		A:        splitLines(base),
		B:        splitLines(head),
		FromFile: baseName,
		ToFile:   headName,
		Context:  a.context,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Sprintf("error computing diff: %s", err)
	}
	return strings.TrimSpace(text)
}

// splitLines keeps an empty document empty instead of yielding one blank line.
func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	return difflib.SplitLines(string(b))
}
