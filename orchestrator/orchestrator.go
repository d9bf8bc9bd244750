// Package orchestrator implements the high-level operations — freeze,
// branch-and-mount, unmount-all, delete, layer discovery — that combine
// layer.Layer and unionmount.Mount through a mountdriver.Driver.
package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/containerd/log"
	"github.com/moby/sys/mountinfo"

	"github.com/cscutcher/naruto-aufs-layers/aufs"
	"github.com/cscutcher/naruto-aufs-layers/errdefs"
	"github.com/cscutcher/naruto-aufs-layers/layer"
)

// FreezeMounts implements the freeze protocol: every live mount that
// currently exposes l rw is flipped to ro, and — when preserveRW is true —
// a single new child layer is spliced in above the old branch in every
// affected mount, so writers keep a writable top branch.
//
// At most one preservation child is allocated per call, even if l is
// exposed rw in several mounts at once: all rw consumers collapse onto one
// new shared top branch. That child is returned so a caller composing a
// description-bearing child out of this freeze (CreateChild below) can
// reuse it instead of allocating a second, disconnected child; it is nil
// when l had no rw mount to preserve.
func FreezeMounts(ctx context.Context, l *layer.Layer, preserveRW bool) (*layer.Layer, error) {
	log.G(ctx).WithField("layer", l.ID()).Info("freezing mounts")

	branches, err := l.FindMountedBranches(ctx)
	if err != nil {
		return nil, err
	}

	var child *layer.Layer
	for _, branch := range branches {
		if branch.Permission() == aufs.ReadOnly {
			continue
		}

		if err := branch.SetPermission(ctx, aufs.ReadOnly); err != nil {
			return nil, err
		}

		if preserveRW {
			if child == nil {
				child, err = l.CreateChild("")
				if err != nil {
					return nil, err
				}
			}
			if err := branch.InsertAfter(ctx, child.ContentsPath(), aufs.ReadWrite); err != nil {
				return nil, err
			}
		}
	}

	if err := validateFrozen(ctx, l); err != nil {
		return nil, err
	}
	return child, nil
}

// validateFrozen confirms no rw branch still points at l's contents. A
// failure here means the freeze loop above missed a branch, or a
// concurrent external actor raced the freeze — fatal and unrecoverable,
// not something worth retrying.
func validateFrozen(ctx context.Context, l *layer.Layer) error {
	readOnly, err := l.ReadOnly()
	if err != nil {
		return err
	}
	if !readOnly {
		return nil
	}

	branches, err := l.FindMountedBranches(ctx)
	if err != nil {
		return err
	}
	for _, branch := range branches {
		if branch.Permission() != aufs.ReadOnly {
			return fmt.Errorf("freeze invariant violated: branch %s is still %s", branch, branch.Permission())
		}
	}
	return nil
}

// CreateChild freezes any current rw mount of l, then returns the new
// child beneath it that callers should use. If l was mounted rw, freezing
// already allocated a preservation child and spliced its contents in as
// the new top branch of every affected mount; that same child is reused
// here and given description, rather than allocating a second, unmounted
// child the freeze never spliced in anywhere. Only when l had no rw mount
// to preserve does this allocate a fresh child itself.
func CreateChild(ctx context.Context, l *layer.Layer, description string) (*layer.Layer, error) {
	child, err := FreezeMounts(ctx, l, true)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return l.CreateChild(description)
	}
	if err := child.SetDescription(description); err != nil {
		return nil, err
	}
	return child, nil
}

// Mount mounts l at destination. Alongside l.Mount's own empty-directory
// check, it asks github.com/moby/sys/mountinfo for a second, independently
// sourced opinion on whether destination is already mount-active: that
// library parses /proc/self/mountinfo rather than the six-field table our
// own mountinfo.Provider reads. The Provider itself is not consulted here,
// and an error from the library check is ignored.
func Mount(ctx context.Context, l *layer.Layer, destination string) error {
	if mounted, err := mountinfo.Mounted(destination); err == nil && mounted {
		return errdefs.FailedPrecondition(fmt.Errorf("destination %s already has an active mount", destination))
	}
	return l.Mount(ctx, destination)
}

// BranchAndMount creates a child of l (freezing l's existing rw mounts in
// the process) and mounts the new child at destination.
func BranchAndMount(ctx context.Context, l *layer.Layer, description, destination string) (*layer.Layer, error) {
	child, err := CreateChild(ctx, l, description)
	if err != nil {
		return nil, err
	}
	if err := Mount(ctx, child, destination); err != nil {
		return nil, err
	}
	return child, nil
}

// Delete removes l's entire on-disk subtree. The caller must have already
// unmounted every reference to l (and its descendants, if any): a
// still-mounted layer surfaces as an explicit error rather than a silent
// no-op.
func Delete(ctx context.Context, l *layer.Layer) error {
	mounted, err := l.Mounted(ctx)
	if err != nil {
		return err
	}
	if mounted {
		return errdefs.FailedPrecondition(fmt.Errorf("layer %s is still mounted", l.ID()))
	}

	log.G(ctx).WithField("layer", l.ID()).Info("deleting layer")
	return os.RemoveAll(l.Dir())
}

// DiscoverCurrentLayer auto-discovers the layer mounted at the current
// working directory, for use when no explicit --layer root is given.
func DiscoverCurrentLayer(ctx context.Context, sys *layer.System) (*layer.Layer, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	found, err := layer.FindLayerMountedAtDest(ctx, sys, cwd)
	if err != nil {
		return nil, errdefs.NotFound(fmt.Errorf("couldn't auto-discover layer: not in a mounted layer directory: %w", err))
	}
	return found, nil
}
