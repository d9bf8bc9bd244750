// Package unionmount holds the in-memory view of one live aufs union
// mount, and the operations that mutate its branch stack (add/delete/flip
// a branch).
package unionmount

import (
	"context"
	"fmt"

	"github.com/cscutcher/naruto-aufs-layers/aufs"
	"github.com/cscutcher/naruto-aufs-layers/errdefs"
	"github.com/cscutcher/naruto-aufs-layers/mountdriver"
	"github.com/cscutcher/naruto-aufs-layers/mountinfo"
)

// Mount is an in-memory view of one live aufs mount.
type Mount struct {
	entry     mountinfo.Entry
	inspector aufs.Inspector
	driver    mountdriver.Driver
	branches  []Branch
}

// Branch is one element of a Mount's stack, bound back to the Mount that
// owns it so permission changes and splices can issue remounts.
type Branch struct {
	mount      *Mount
	path       string
	permission aufs.Permission
	index      int
	brID       int
}

// Path returns the branch's backing contents directory.
func (b *Branch) Path() string { return b.path }

// Permission returns the branch's current rw/ro state.
func (b *Branch) Permission() aufs.Permission { return b.permission }

// Index returns the branch's stack position (0 = topmost).
func (b *Branch) Index() int { return b.index }

// BrID returns the kernel-assigned branch id.
func (b *Branch) BrID() int { return b.brID }

// Mount returns the owning Mount.
func (b *Branch) Mount() *Mount { return b.mount }

// SICode is the opaque session code the kernel assigns to this mount.
func (m *Mount) SICode() (string, error) {
	code, ok := m.entry.Options["si"]
	if !ok {
		return "", fmt.Errorf("mount %s has no si= option", m.entry.Mountpoint)
	}
	return code, nil
}

// Mountpoint is the destination directory this union is mounted at.
func (m *Mount) Mountpoint() string { return m.entry.Mountpoint }

// Branches returns the current branch stack, sorted topmost-first.
func (m *Mount) Branches() []Branch { return m.branches }

// New constructs a Mount from a MountInfoProvider entry (which must have
// VFSType "aufs") and immediately loads its branch stack.
func New(ctx context.Context, entry mountinfo.Entry, inspector aufs.Inspector, driver mountdriver.Driver) (*Mount, error) {
	if entry.VFSType != "aufs" {
		return nil, errdefs.InvalidParameter(fmt.Errorf("mount %s is not aufs (vfstype=%s)", entry.Mountpoint, entry.VFSType))
	}
	m := &Mount{entry: entry, inspector: inspector, driver: driver}
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Refresh reloads the branch stack from the UnionFSInspector.
func (m *Mount) Refresh(ctx context.Context) error {
	siCode, err := m.SICode()
	if err != nil {
		return err
	}
	raw, err := m.inspector.Branches(ctx, siCode)
	if err != nil {
		return err
	}

	branches := make([]Branch, len(raw))
	for i, b := range raw {
		branches[i] = Branch{
			mount:      m,
			path:       b.Path,
			permission: b.Permission,
			index:      b.Index,
			brID:       b.BrID,
		}
	}
	m.branches = branches
	return nil
}

// BranchByContentsPath does an O(n) lookup of the branch backed by path.
func (m *Mount) BranchByContentsPath(path string) (*Branch, error) {
	for i := range m.branches {
		if m.branches[i].path == path {
			return &m.branches[i], nil
		}
	}
	return nil, errdefs.NotFound(fmt.Errorf("no branch for path %s in mount %s", path, m.entry.Mountpoint))
}

// Leaf returns the topmost (lowest-index) branch.
func (m *Mount) Leaf() (*Branch, error) {
	if len(m.branches) == 0 {
		return nil, errdefs.NotFound(fmt.Errorf("mount %s has no branches", m.entry.Mountpoint))
	}
	leaf := m.branches[0]
	for i := range m.branches {
		if m.branches[i].index < leaf.index {
			leaf = m.branches[i]
		}
	}
	return &leaf, nil
}

// Unmount detaches the whole union mount.
func (m *Mount) Unmount(ctx context.Context) error {
	return m.driver.Unmount(ctx, m.entry.Mountpoint)
}

// SetPermission flips b's permission in the kernel via a remount, then
// refreshes the owning Mount's branch stack.
func (b *Branch) SetPermission(ctx context.Context, perm aufs.Permission) error {
	options := aufs.SetPermissionOptions(b.path, perm)
	if err := b.mount.driver.Remount(ctx, b.mount.entry.Mountpoint, "aufs", options); err != nil {
		return err
	}
	return b.mount.Refresh(ctx)
}

// Delete removes b from the stack via a remount, then refreshes.
func (b *Branch) Delete(ctx context.Context) error {
	options := aufs.DeleteBranchOptions(b.path)
	if err := b.mount.driver.Remount(ctx, b.mount.entry.Mountpoint, "aufs", options); err != nil {
		return err
	}
	return b.mount.Refresh(ctx)
}

// InsertAfter splices a new branch at newPath into b's stack position via a
// remount, so it sits immediately above b (b moves to the next higher
// index), then refreshes.
func (b *Branch) InsertAfter(ctx context.Context, newPath string, perm aufs.Permission) error {
	options := aufs.InsertAfterOptions(b.index, newPath, perm)
	if err := b.mount.driver.Remount(ctx, b.mount.entry.Mountpoint, "aufs", options); err != nil {
		return err
	}
	return b.mount.Refresh(ctx)
}

// String renders "<path> on <mountpoint>", matching
// AUFSMountBranch.__str__ in the Python.
func (b *Branch) String() string {
	return fmt.Sprintf("%s on %s", b.path, b.mount.entry.Mountpoint)
}
