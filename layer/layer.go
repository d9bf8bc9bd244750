// Package layer implements the persisted layer tree: each Layer is a
// filesystem snapshot — contents directory, metadata record, and child
// layers — plus the discovery operations that tie a Layer back to the live
// mounts that expose it.
package layer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/continuity/fs"
	"github.com/containerd/log"
	"github.com/google/uuid"

	"github.com/cscutcher/naruto-aufs-layers/aufs"
	"github.com/cscutcher/naruto-aufs-layers/errdefs"
	"github.com/cscutcher/naruto-aufs-layers/mountdriver"
	"github.com/cscutcher/naruto-aufs-layers/mountinfo"
	"github.com/cscutcher/naruto-aufs-layers/unionmount"
)

const (
	childrenSubdir = "children"
	contentsSubdir = "contents"
	metadataName   = "naruto_metadata.json"
)

// System bundles the capability collaborators a Layer needs to discover and
// drive live mounts: A (MountInfoProvider), B (UnionFSInspector), and C
// (MountDriver). A Layer value is meaningless without one.
type System struct {
	MountInfo mountinfo.Provider
	Inspector aufs.Inspector
	Driver    mountdriver.Driver
}

// metadata is the on-disk shape of naruto_metadata.json.
type metadata struct {
	IsRoot      bool     `json:"is_root"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Layer is one snapshot directory: contents/, children/, and a metadata
// record, resolved to a canonical on-disk path.
type Layer struct {
	sys *System
	dir string // canonical, symlink-resolved absolute path
}

// Dir returns the layer's canonical on-disk directory.
func (l *Layer) Dir() string { return l.dir }

// ID is the layer's immutable identifier: the basename of its directory.
func (l *Layer) ID() string { return filepath.Base(l.dir) }

// ContentsPath is this layer's backing union-branch directory.
func (l *Layer) ContentsPath() string { return filepath.Join(l.dir, contentsSubdir) }

func (l *Layer) childrenPath() string { return filepath.Join(l.dir, childrenSubdir) }
func (l *Layer) metadataPath() string { return filepath.Join(l.dir, metadataName) }

// Equal reports whether l and other name the same on-disk layer.
func (l *Layer) Equal(other *Layer) bool {
	return other != nil && l.dir == other.dir
}

func (l *Layer) String() string {
	md, err := l.readMetadata()
	if err != nil {
		return fmt.Sprintf("Layer(%s, <unreadable metadata>)", l.ID())
	}
	return fmt.Sprintf("Layer(id=%s, description=%s, tags=%v)", l.ID(), md.Description, md.Tags)
}

// Load resolves dir to a Layer, validating that children/, contents/, and
// the metadata file all exist. Fails with errdefs.InvalidParameter
// otherwise.
func Load(sys *System, dir string) (*Layer, error) {
	resolved, err := resolvePath(dir)
	if err != nil {
		return nil, err
	}
	l := &Layer{sys: sys, dir: resolved}

	for _, sub := range []string{l.childrenPath(), l.ContentsPath()} {
		info, err := os.Stat(sub)
		if err != nil || !info.IsDir() {
			return nil, errdefs.InvalidParameter(fmt.Errorf("expected %s to be a directory", sub))
		}
	}
	info, err := os.Stat(l.metadataPath())
	if err != nil || info.IsDir() {
		return nil, errdefs.InvalidParameter(fmt.Errorf("expected %s to be a file", l.metadataPath()))
	}

	if _, err := l.readMetadata(); err != nil {
		return nil, err
	}
	return l, nil
}

// resolvePath resolves symlinks within dir's ancestry the way
// containerd/continuity/fs.RootPath does for container rootfs paths,
// falling back to the cleaned filepath.Abs result when that resolution
// reports a missing path.
func resolvePath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	parent, base := filepath.Split(abs)
	resolvedParent, err := fs.RootPath(string(filepath.Separator), parent)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(abs), nil
		}
		return "", err
	}
	return filepath.Join(resolvedParent, base), nil
}

func (l *Layer) readMetadata() (metadata, error) {
	raw, err := os.ReadFile(l.metadataPath())
	if err != nil {
		return metadata{}, err
	}
	var md metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return metadata{}, fmt.Errorf("malformed metadata in %s: %w", l.metadataPath(), err)
	}
	return md, nil
}

// writeMetadata persists md via a temp-file-then-rename so a crash mid-write
// never leaves naruto_metadata.json truncated or half-written.
func (l *Layer) writeMetadata(md metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(l.dir, metadataName+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, l.metadataPath())
}

// IsRoot reports whether this layer is its tree's root.
func (l *Layer) IsRoot() (bool, error) {
	md, err := l.readMetadata()
	if err != nil {
		return false, err
	}
	return md.IsRoot, nil
}

// Description returns the layer's free-form description.
func (l *Layer) Description() (string, error) {
	md, err := l.readMetadata()
	if err != nil {
		return "", err
	}
	return md.Description, nil
}

// SetDescription overwrites the layer's description.
func (l *Layer) SetDescription(description string) error {
	md, err := l.readMetadata()
	if err != nil {
		return err
	}
	md.Description = description
	return l.writeMetadata(md)
}

// Tags returns the layer's tag set. Order is not meaningful.
func (l *Layer) Tags() ([]string, error) {
	md, err := l.readMetadata()
	if err != nil {
		return nil, err
	}
	return md.Tags, nil
}

// SetTags overwrites the layer's tag set, deduplicating.
func (l *Layer) SetTags(tags []string) error {
	md, err := l.readMetadata()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(tags))
	var deduped []string
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		deduped = append(deduped, t)
	}
	md.Tags = deduped
	return l.writeMetadata(md)
}

// HasTag reports whether tag is present in this layer's tag set.
func (l *Layer) HasTag(tag string) (bool, error) {
	tags, err := l.Tags()
	if err != nil {
		return false, err
	}
	for _, t := range tags {
		if t == tag {
			return true, nil
		}
	}
	return false, nil
}

// Children returns this layer's direct children, in directory-listing
// order (stable within a process run; no cross-run ordering guarantee).
func (l *Layer) Children() ([]*Layer, error) {
	entries, err := os.ReadDir(l.childrenPath())
	if err != nil {
		return nil, err
	}
	children := make([]*Layer, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		child, err := Load(l.sys, filepath.Join(l.childrenPath(), e.Name()))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// Descendants walks this layer's subtree depth-first, pre-order.
func (l *Layer) Descendants() ([]*Layer, error) {
	children, err := l.Children()
	if err != nil {
		return nil, err
	}
	var out []*Layer
	for _, child := range children {
		out = append(out, child)
		grandchildren, err := child.Descendants()
		if err != nil {
			return nil, err
		}
		out = append(out, grandchildren...)
	}
	return out, nil
}

// HasChildren reports whether this layer has at least one direct child.
func (l *Layer) HasChildren() (bool, error) {
	children, err := l.Children()
	if err != nil {
		return false, err
	}
	return len(children) > 0, nil
}

// ReadOnly reports whether this layer's branch must be mounted ro: true iff
// it has children.
func (l *Layer) ReadOnly() (bool, error) { return l.HasChildren() }

// IsLeaf reports whether this layer has no children (and so may be mounted
// writable).
func (l *Layer) IsLeaf() (bool, error) {
	hasChildren, err := l.HasChildren()
	if err != nil {
		return false, err
	}
	return !hasChildren, nil
}

// Parent returns this layer's structural parent, recovered by path
// arithmetic (../.. of the layer directory) rather than a stored
// back-pointer. Returns (nil, nil) for the root.
func (l *Layer) Parent() (*Layer, error) {
	isRoot, err := l.IsRoot()
	if err != nil {
		return nil, err
	}
	if isRoot {
		return nil, nil
	}
	parentDir := filepath.Dir(filepath.Dir(l.dir))
	return Load(l.sys, parentDir)
}

// Root walks parent pointers up to the tree root.
func (l *Layer) Root() (*Layer, error) {
	isRoot, err := l.IsRoot()
	if err != nil {
		return nil, err
	}
	if isRoot {
		return l, nil
	}
	parent, err := l.Parent()
	if err != nil {
		return nil, err
	}
	return parent.Root()
}

// LayerPermissions returns the ordered branch stack used to mount this
// layer: this layer first (rw if leaf else ro), then each ancestor up to
// the root, all ro.
func (l *Layer) LayerPermissions() ([]aufs.BranchSpec, error) {
	readOnly, err := l.ReadOnly()
	if err != nil {
		return nil, err
	}
	perm := aufs.ReadWrite
	if readOnly {
		perm = aufs.ReadOnly
	}
	stack := []aufs.BranchSpec{{Path: l.ContentsPath(), Permission: perm}}

	isRoot, err := l.IsRoot()
	if err != nil {
		return nil, err
	}
	if isRoot {
		return stack, nil
	}

	parent, err := l.Parent()
	if err != nil {
		return nil, err
	}
	parentStack, err := parent.LayerPermissions()
	if err != nil {
		return nil, err
	}
	return append(stack, parentStack...), nil
}

// Create allocates a fresh layer id under parentDir and writes its initial
// structure and metadata. When isRoot is false, parentDir's parent
// directory must already be a valid layer (enforced by loading it).
func Create(sys *System, parentDir string, isRoot bool, description string) (*Layer, error) {
	if !isRoot {
		if _, err := Load(sys, filepath.Dir(parentDir)); err != nil {
			return nil, err
		}
	}
	if description == "" && isRoot {
		description = "root"
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	dir := filepath.Join(parentDir, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, err
	}
	for _, sub := range []string{childrenSubdir, contentsSubdir} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, err
		}
	}

	l := &Layer{sys: sys}
	resolved, err := resolvePath(dir)
	if err != nil {
		return nil, err
	}
	l.dir = resolved

	if err := l.writeMetadataExclusive(metadata{IsRoot: isRoot, Description: description}); err != nil {
		return nil, err
	}

	log.L.WithField("layer", l.ID()).WithField("parent", parentDir).Info("created layer")
	return l, nil
}

// writeMetadataExclusive creates the metadata file, failing if it already
// exists, so two concurrent creators of the same layer id can't silently
// clobber each other. Used only at layer creation time; every later write
// goes through the atomic writeMetadata path instead.
func (l *Layer) writeMetadataExclusive(md metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.metadataPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(raw)
	return err
}

// CreateChild allocates a new writable child layer under this layer's
// children/ directory. It does not itself freeze any mount that currently
// exposes this layer rw — composing the two is the orchestrator's
// responsibility.
func (l *Layer) CreateChild(description string) (*Layer, error) {
	return Create(l.sys, l.childrenPath(), false, description)
}

// FindMountedBranches returns every live aufs-mount branch currently backed
// by this layer's contents directory. A single layer may appear in many
// mounts (e.g. a shared ancestor).
func (l *Layer) FindMountedBranches(ctx context.Context) ([]*unionmount.Branch, error) {
	entries, err := l.sys.MountInfo.Mounts(ctx)
	if err != nil {
		return nil, err
	}

	var branches []*unionmount.Branch
	for _, entry := range entries {
		if entry.VFSType != "aufs" {
			continue
		}
		mount, err := unionmount.New(ctx, entry, l.sys.Inspector, l.sys.Driver)
		if err != nil {
			return nil, err
		}
		branch, err := mount.BranchByContentsPath(l.ContentsPath())
		if errdefs.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	return branches, nil
}

// Mounted reports whether this layer currently backs any live mount.
func (l *Layer) Mounted(ctx context.Context) (bool, error) {
	branches, err := l.FindMountedBranches(ctx)
	if err != nil {
		return false, err
	}
	return len(branches) > 0, nil
}

// Mount mounts this layer at destination, which must exist, be a
// directory, and be empty.
func (l *Layer) Mount(ctx context.Context, destination string) error {
	entries, err := os.ReadDir(destination)
	if err != nil {
		return errdefs.FailedPrecondition(fmt.Errorf("destination %s must be an empty directory: %w", destination, err))
	}
	if len(entries) != 0 {
		return errdefs.FailedPrecondition(fmt.Errorf("destination %s must be empty, found %d entries", destination, len(entries)))
	}

	stack, err := l.LayerPermissions()
	if err != nil {
		return err
	}
	options := aufs.InitialMountOptions(stack)

	dest, err := filepath.Abs(destination)
	if err != nil {
		return err
	}

	log.L.WithField("layer", l.ID()).WithField("destination", dest).Info("mounting layer")
	return l.sys.Driver.Mount(ctx, "none", dest, "aufs", options)
}

// UnmountAll detaches every live union mount that exposes this layer.
// A mount that has already disappeared between discovery and the unmount
// call is treated as success, since the end state — nothing left mounted —
// is the one the caller wanted.
func (l *Layer) UnmountAll(ctx context.Context) error {
	branches, err := l.FindMountedBranches(ctx)
	if err != nil {
		return err
	}
	for _, b := range branches {
		log.L.WithField("layer", l.ID()).WithField("mountpoint", b.Mount().Mountpoint()).Info("unmounting")
		if err := b.Mount().Unmount(ctx); err != nil && !errdefs.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// FindLayerMountedAtDest resolves dest to its covering mount, requires it
// to be an aufs mount, and returns the Layer whose contents directory is
// the leaf (topmost/writable) branch of that mount.
func FindLayerMountedAtDest(ctx context.Context, sys *System, dest string) (*Layer, error) {
	entry, err := mountinfo.FindMountByDest(ctx, dest, sys.MountInfo)
	if err != nil {
		return nil, err
	}
	if entry.VFSType != "aufs" {
		return nil, errdefs.NotFound(fmt.Errorf("destination %s is not an aufs mount point (vfstype=%s)", dest, entry.VFSType))
	}

	mount, err := unionmount.New(ctx, entry, sys.Inspector, sys.Driver)
	if err != nil {
		return nil, err
	}
	leaf, err := mount.Leaf()
	if err != nil {
		return nil, err
	}
	return Load(sys, filepath.Dir(leaf.Path()))
}
