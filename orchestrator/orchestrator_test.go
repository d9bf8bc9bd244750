package orchestrator_test

import (
	"context"
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cscutcher/naruto-aufs-layers/aufs"
	"github.com/cscutcher/naruto-aufs-layers/errdefs"
	"github.com/cscutcher/naruto-aufs-layers/internal/narutotest"
	"github.com/cscutcher/naruto-aufs-layers/layer"
	"github.com/cscutcher/naruto-aufs-layers/mountdriver"
	"github.com/cscutcher/naruto-aufs-layers/orchestrator"
)

// remountingDriver records every call on the wrapped RecordingDriver and,
// as the kernel would, applies each "mod:<path>=<perm>" remount to the
// inspector's view of session abc123, so the freeze protocol's final check
// sees the flipped permission.
type remountingDriver struct {
	*mountdriver.RecordingDriver
	inspector aufs.MapInspector
}

func (d remountingDriver) Remount(ctx context.Context, target, fstype, options string) error {
	if err := d.RecordingDriver.Remount(ctx, target, fstype, options); err != nil {
		return err
	}
	if spec, ok := strings.CutPrefix(options, "mod:"); ok {
		path, perm, _ := strings.Cut(spec, "=")
		for i, b := range d.inspector["abc123"] {
			if b.Path == path {
				d.inspector["abc123"][i].Permission = aufs.Permission(perm)
			}
		}
	}
	return nil
}

// mountedSystem mutates ns's inspector to describe one live aufs mount of
// root's contents, rw, at /naruto/tree1, so freeze protocol tests have
// something to operate on.
func mountedSystem(t *testing.T, ns *narutotest.System, root *layer.Layer) *layer.System {
	t.Helper()
	ns.Inspector["abc123"] = []aufs.Branch{{Path: root.ContentsPath(), Permission: aufs.ReadWrite, Index: 0, BrID: 1}}
	sys := ns.WithMountTable("none /naruto/tree1 aufs rw,si=abc123 0 0\n").System
	sys.Driver = remountingDriver{RecordingDriver: ns.Driver, inspector: ns.Inspector}
	return sys
}

func TestFreezeMountsFlipsAndSplices(t *testing.T) {
	home := t.TempDir()
	ns := narutotest.NewSystem()
	root, err := layer.Create(ns.System, home, true, "")
	assert.NilError(t, err)

	sys := mountedSystem(t, ns, root)
	root, err = layer.Load(sys, root.Dir())
	assert.NilError(t, err)

	preserved, err := orchestrator.FreezeMounts(context.Background(), root, true)
	assert.NilError(t, err)
	assert.Assert(t, preserved != nil)

	var sawMod, sawAdd bool
	for _, call := range ns.Driver.Calls {
		if call.Op == "remount" {
			if len(call.Options) >= 4 && call.Options[:4] == "mod:" {
				sawMod = true
			}
			if len(call.Options) >= 4 && call.Options[:4] == "add:" {
				sawAdd = true
				assert.Assert(t, strings.Contains(call.Options, preserved.ContentsPath()))
			}
		}
	}
	assert.Assert(t, sawMod)
	assert.Assert(t, sawAdd)

	children, err := root.Children()
	assert.NilError(t, err)
	assert.Equal(t, len(children), 1)
	assert.Equal(t, children[0].ID(), preserved.ID())
}

func TestFreezeMountsSkipsAlreadyReadOnlyBranch(t *testing.T) {
	home := t.TempDir()
	ns := narutotest.NewSystem()
	root, err := layer.Create(ns.System, home, true, "")
	assert.NilError(t, err)

	ns.Inspector["abc123"] = []aufs.Branch{{Path: root.ContentsPath(), Permission: aufs.ReadOnly, Index: 0, BrID: 1}}
	sys := ns.WithMountTable("none /naruto/tree1 aufs ro,si=abc123 0 0\n").System
	root, err = layer.Load(sys, root.Dir())
	assert.NilError(t, err)

	preserved, err := orchestrator.FreezeMounts(context.Background(), root, true)
	assert.NilError(t, err)
	assert.Assert(t, preserved == nil)
	assert.Equal(t, len(ns.Driver.Calls), 0)
}

func TestCreateChildFreezesFirst(t *testing.T) {
	home := t.TempDir()
	ns := narutotest.NewSystem()
	root, err := layer.Create(ns.System, home, true, "")
	assert.NilError(t, err)

	sys := mountedSystem(t, ns, root)
	root, err = layer.Load(sys, root.Dir())
	assert.NilError(t, err)

	child, err := orchestrator.CreateChild(context.Background(), root, "c1")
	assert.NilError(t, err)

	isRoot, err := child.IsRoot()
	assert.NilError(t, err)
	assert.Assert(t, !isRoot)

	readOnly, err := root.ReadOnly()
	assert.NilError(t, err)
	assert.Assert(t, readOnly)

	description, err := child.Description()
	assert.NilError(t, err)
	assert.Equal(t, description, "c1")

	// The returned child must be the same one freezing spliced in as the
	// mount's new top branch, not a second, disconnected child.
	children, err := root.Children()
	assert.NilError(t, err)
	assert.Equal(t, len(children), 1)
	assert.Equal(t, children[0].ID(), child.ID())

	var sawSplice bool
	for _, call := range ns.Driver.Calls {
		if call.Op == "remount" && strings.HasPrefix(call.Options, "add:") && strings.Contains(call.Options, child.ContentsPath()) {
			sawSplice = true
		}
	}
	assert.Assert(t, sawSplice)
}

func TestDeleteRefusesWhileMounted(t *testing.T) {
	home := t.TempDir()
	ns := narutotest.NewSystem()
	root, err := layer.Create(ns.System, home, true, "")
	assert.NilError(t, err)

	sys := mountedSystem(t, ns, root)
	root, err = layer.Load(sys, root.Dir())
	assert.NilError(t, err)

	err = orchestrator.Delete(context.Background(), root)
	assert.Assert(t, errdefs.IsFailedPrecondition(err))
}

func TestDeleteRemovesUnmountedLayer(t *testing.T) {
	home := t.TempDir()
	ns := narutotest.NewSystem()
	root, err := layer.Create(ns.System, home, true, "")
	assert.NilError(t, err)

	assert.NilError(t, orchestrator.Delete(context.Background(), root))
	_, err = layer.Load(ns.System, root.Dir())
	assert.Assert(t, err != nil)
}
