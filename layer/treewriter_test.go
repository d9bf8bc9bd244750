package layer_test

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cscutcher/naruto-aufs-layers/layer"
)

func TestTreeWriterRendersIndentedHighlightedTree(t *testing.T) {
	_, root, c1, _, c2 := buildTree(t)

	var buf strings.Builder
	tw := layer.TreeWriter{Highlight: map[string]bool{c1.ID(): true}}
	assert.NilError(t, tw.Write(&buf, root))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, len(lines), 4) // root, c1, c1a, c2

	assert.Assert(t, strings.HasPrefix(lines[0], "+-- "))
	assert.Assert(t, strings.Contains(lines[1], c1.ID()))
	assert.Assert(t, strings.HasSuffix(lines[1], "*"))
	assert.Assert(t, strings.HasPrefix(lines[1], "  +-- "))
	assert.Assert(t, strings.HasPrefix(lines[2], "    +-- "))
	assert.Assert(t, strings.Contains(lines[3], c2.ID()))
}
