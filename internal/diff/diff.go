// internal/diff/diff.go
package diff

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType
	Content string
	OldNum  int // 1-based, zero for additions
	NewNum  int // 1-based, zero for deletions
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Hunk represents a continuous section of changes. Starts are zero-based
// line offsets.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	return &Engine{
		contextLines: contextLines,
	}
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) (*DiffResult, error) {
	return e.DiffLines(splitLines(string(oldContent)), splitLines(string(newContent))), nil
}

// DiffLines diffs two already split texts.
func (e *Engine) DiffLines(oldLines, newLines []string) *DiffResult {
	result := &DiffResult{}

	matcher := difflib.NewMatcher(oldLines, newLines)
	for _, group := range matcher.GetGroupedOpCodes(e.contextLines) {
		first, last := group[0], group[len(group)-1]
		hunk := Hunk{
			OldStart: first.I1,
			OldLines: last.I2 - first.I1,
			NewStart: first.J1,
			NewLines: last.J2 - first.J1,
		}

		for _, op := range group {
			if op.Tag == 'e' {
				for i := op.I1; i < op.I2; i++ {
					hunk.Lines = append(hunk.Lines, Line{
						Type:    Context,
						Content: oldLines[i],
						OldNum:  i + 1,
						NewNum:  op.J1 + (i - op.I1) + 1,
					})
				}
				continue
			}
			if op.Tag == 'r' || op.Tag == 'd' {
				for i := op.I1; i < op.I2; i++ {
					hunk.Lines = append(hunk.Lines, Line{Type: Deletion, Content: oldLines[i], OldNum: i + 1})
					result.Stats.Deletions++
				}
			}
			if op.Tag == 'r' || op.Tag == 'i' {
				for j := op.J1; j < op.J2; j++ {
					hunk.Lines = append(hunk.Lines, Line{Type: Addition, Content: newLines[j], NewNum: j + 1})
					result.Stats.Additions++
				}
			}
		}

		result.Hunks = append(result.Hunks, hunk)
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	return result
}

// Empty reports whether both sides were identical.
func (r *DiffResult) Empty() bool { return len(r.Hunks) == 0 }

// Header returns the "@@ -a,b +c,d @@" line of a hunk.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%s +%s @@",
		formatRange(h.OldStart, h.OldStart+h.OldLines),
		formatRange(h.NewStart, h.NewStart+h.NewLines))
}

// Format returns the hunks without file labels
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		buf.WriteString(hunk.Header())
		buf.WriteByte('\n')

		for _, line := range hunk.Lines {
			buf.WriteString(line.Prefix())
			buf.WriteString(line.Content)
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// Unified renders a unified diff labeled from/to. Identical sides render
// as the empty string.
func (r *DiffResult) Unified(from, to string) string {
	if r.Empty() {
		return ""
	}
	return "--- " + from + "\n+++ " + to + "\n" + r.Format()
}

// Prefix is the one-character marker of a line in unified output.
func (l Line) Prefix() string {
	switch l.Type {
	case Addition:
		return "+"
	case Deletion:
		return "-"
	}
	return " "
}

// formatRange renders a unified diff range: "N" for a single line, and
// "start,length" otherwise, where an empty range names the line before it.
func formatRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	if length == 1 {
		return fmt.Sprintf("%d", beginning)
	}
	if length == 0 {
		beginning--
	}
	return fmt.Sprintf("%d,%d", beginning, length)
}

// splitLines splits text on "\n". A single trailing newline does not start
// another line, and empty text has no lines.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// Source resolves revisions to text.
type Source interface {
	GetRevision(ctx context.Context, path, id string) (string, error)
}

// Differ diffs revisions of a document.
type Differ struct {
	source Source
	engine *Engine
}

func NewDiffer(source Source) *Differ {
	return &Differ{source: source, engine: NewEngine(3)}
}

// Compare resolves both revisions and diffs them.
func (d *Differ) Compare(ctx context.Context, path, id1, id2 string) (*DiffResult, error) {
	oldText, err := d.source.GetRevision(ctx, path, id1)
	if err != nil {
		return nil, err
	}
	newText, err := d.source.GetRevision(ctx, path, id2)
	if err != nil {
		return nil, err
	}
	return d.engine.DiffLines(splitLines(oldText), splitLines(newText)), nil
}

// GetDiff returns the unified diff from revision id1 to id2 of path.
func (d *Differ) GetDiff(ctx context.Context, path, id1, id2 string) (string, error) {
	result, err := d.Compare(ctx, path, id1, id2)
	if err != nil {
		return "", err
	}
	return result.Unified(id1, id2), nil
}
