package layer_test

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cscutcher/naruto-aufs-layers/aufs"
	"github.com/cscutcher/naruto-aufs-layers/errdefs"
	"github.com/cscutcher/naruto-aufs-layers/layer"
	"github.com/cscutcher/naruto-aufs-layers/mountdriver"
	"github.com/cscutcher/naruto-aufs-layers/mountinfo"
)

// buildTree constructs R -> c1 -> c1a, R -> c2.
func buildTree(t *testing.T) (sys *layer.System, root, c1, c1a, c2 *layer.Layer) {
	t.Helper()
	home := t.TempDir()
	sys = &layer.System{MountInfo: mountinfo.StringProvider(""), Inspector: aufs.MapInspector{}, Driver: &mountdriver.RecordingDriver{}}

	var err error
	root, err = layer.Create(sys, home, true, "")
	assert.NilError(t, err)
	c1, err = root.CreateChild("c1")
	assert.NilError(t, err)
	c1a, err = c1.CreateChild("c1a")
	assert.NilError(t, err)
	c2, err = root.CreateChild("c2")
	assert.NilError(t, err)
	return sys, root, c1, c1a, c2
}

func TestFindLayerRelativeOperators(t *testing.T) {
	_, root, c1, c1a, c2 := buildTree(t)
	ctx := context.Background()

	got, err := root.FindLayer(ctx, "root")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(root))

	got, err = root.FindLayer(ctx, "root^")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(c1))

	got, err = root.FindLayer(ctx, "root^2")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(c2))

	got, err = root.FindLayer(ctx, "root~")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(c1))

	got, err = root.FindLayer(ctx, "root~2")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(c1a))
}

func TestFindLayerByTag(t *testing.T) {
	_, root, _, _, c2 := buildTree(t)
	assert.NilError(t, c2.SetTags([]string{"wip"}))

	got, err := root.FindLayer(context.Background(), "wip")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(c2))
}

func TestFindLayerEmptyReferenceMeansSelf(t *testing.T) {
	_, _, c1, _, _ := buildTree(t)
	got, err := c1.FindLayer(context.Background(), "")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(c1))
}

func TestFindLayerAscendWithAt(t *testing.T) {
	_, root, c1, c1a, _ := buildTree(t)
	got, err := c1a.FindLayer(context.Background(), "@")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(c1))

	got, err = c1a.FindLayer(context.Background(), "@2")
	assert.NilError(t, err)
	assert.Assert(t, got.Equal(root))
}

func TestFindLayerMissingReferenceIsNotFound(t *testing.T) {
	_, root, _, _, _ := buildTree(t)
	_, err := root.FindLayer(context.Background(), "nonexistent")
	assert.Assert(t, errdefs.IsNotFound(err))
}

func TestFindLayerAscendPastRootIsNotFound(t *testing.T) {
	_, root, _, _, _ := buildTree(t)
	_, err := root.FindLayer(context.Background(), "@")
	assert.Assert(t, errdefs.IsNotFound(err))
}

func TestFindLayerMissingChildIsNotFound(t *testing.T) {
	_, root, _, _, _ := buildTree(t)
	_, err := root.FindLayer(context.Background(), "root^5")
	assert.Assert(t, errdefs.IsNotFound(err))
}

func TestFindLayerUnknownOperatorIsInvalidSpec(t *testing.T) {
	_, root, _, _, _ := buildTree(t)
	_, err := root.FindLayer(context.Background(), "root?")
	assert.Assert(t, errdefs.IsInvalidParameter(err))
}
