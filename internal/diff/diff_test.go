package diff

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vff/internal/errors"
)

func TestDiffSingleLineChange(t *testing.T) {
	result, err := NewEngine(3).Diff([]byte("v1\n"), []byte("v2\n"))
	require.NoError(t, err)

	assert.Equal(t, "--- a\n+++ b\n@@ -1 +1 @@\n-v1\n+v2\n", result.Unified("a", "b"))
	assert.Equal(t, 1, result.Stats.Additions)
	assert.Equal(t, 1, result.Stats.Deletions)
	assert.Equal(t, 2, result.Stats.Changes)
}

func TestDiffIdentical(t *testing.T) {
	for _, text := range []string{"", "one\n", "one\ntwo\nthree"} {
		result, err := NewEngine(3).Diff([]byte(text), []byte(text))
		require.NoError(t, err)
		assert.True(t, result.Empty())
		assert.Equal(t, "", result.Unified("a", "b"))
	}
}

func TestDiffTrailingNewlineIgnored(t *testing.T) {
	result, err := NewEngine(3).Diff([]byte("same"), []byte("same\n"))
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestDiffFromEmpty(t *testing.T) {
	result, err := NewEngine(3).Diff(nil, []byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, "@@ -0,0 +1,2 @@\n+a\n+b\n", result.Format())
}

func TestDiffContextAndHunks(t *testing.T) {
	var old, cur []string
	for i := 1; i <= 20; i++ {
		old = append(old, fmt.Sprintf("line %d", i))
		cur = append(cur, fmt.Sprintf("line %d", i))
	}
	cur[1] = "changed 2"
	cur[17] = "changed 18"

	result := NewEngine(3).DiffLines(old, cur)
	require.Len(t, result.Hunks, 2)

	first := result.Hunks[0]
	assert.Equal(t, "@@ -1,5 +1,5 @@", first.Header())
	assert.Equal(t, Context, first.Lines[0].Type)
	assert.Equal(t, Deletion, first.Lines[1].Type)
	assert.Equal(t, 2, first.Lines[1].OldNum)
	assert.Equal(t, Addition, first.Lines[2].Type)
	assert.Equal(t, 2, first.Lines[2].NewNum)

	second := result.Hunks[1]
	assert.Equal(t, "@@ -15,6 +15,6 @@", second.Header())

	out := result.Unified("x", "y")
	assert.True(t, strings.HasPrefix(out, "--- x\n+++ y\n@@ -1,5 +1,5 @@\n line 1\n-line 2\n+changed 2\n"))
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestDiffDeterministic(t *testing.T) {
	old := []byte("a\nb\nc\nd\ne\n")
	cur := []byte("a\nc\nd\nx\ne\nf\n")

	first, err := NewEngine(3).Diff(old, cur)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := NewEngine(3).Diff(old, cur)
		require.NoError(t, err)
		assert.Equal(t, first.Unified("1", "2"), again.Unified("1", "2"))
	}
}

type mapSource map[string]string

func (m mapSource) GetRevision(_ context.Context, path, id string) (string, error) {
	text, ok := m[path+"@"+id]
	if !ok {
		return "", errors.NotFound("revision %s not found for %s", id, path)
	}
	return text, nil
}

func TestDifferGetDiff(t *testing.T) {
	d := NewDiffer(mapSource{"doc@r1": "v1\n", "doc@r2": "v2\n"})
	ctx := context.Background()

	out, err := d.GetDiff(ctx, "doc", "r1", "r2")
	require.NoError(t, err)
	assert.Contains(t, out, "-v1")
	assert.Contains(t, out, "+v2")
	assert.True(t, strings.HasPrefix(out, "--- r1\n+++ r2\n"))

	same, err := d.GetDiff(ctx, "doc", "r1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "", same)

	_, err = d.GetDiff(ctx, "doc", "r1", "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
