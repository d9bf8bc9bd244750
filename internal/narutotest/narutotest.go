// Package narutotest bundles the in-memory fakes for the three capability
// interfaces (MountInfoProvider, UnionFSInspector, MountDriver) behind a
// single layer.System, so higher-level package tests don't each re-wire
// the same three fakes by hand.
package narutotest

import (
	"github.com/cscutcher/naruto-aufs-layers/aufs"
	"github.com/cscutcher/naruto-aufs-layers/layer"
	"github.com/cscutcher/naruto-aufs-layers/mountdriver"
	"github.com/cscutcher/naruto-aufs-layers/mountinfo"
)

// System is a layer.System wired entirely from in-memory fakes, plus
// handles to those fakes so a test can both drive and assert against them.
type System struct {
	*layer.System
	Inspector aufs.MapInspector
	Driver    *mountdriver.RecordingDriver
}

// NewSystem returns a System with an empty mount table: no live mounts
// until the test adds entries to Inspector and rebuilds one with a mount
// table via WithMountTable.
func NewSystem() *System {
	inspector := aufs.MapInspector{}
	driver := &mountdriver.RecordingDriver{}
	return &System{
		System:    &layer.System{MountInfo: mountinfo.StringProvider(""), Inspector: inspector, Driver: driver},
		Inspector: inspector,
		Driver:    driver,
	}
}

// WithMountTable returns a System sharing this one's Inspector and Driver
// fakes but backed by the given literal /proc/mounts-style mount table —
// useful once a test needs live mounts to exist for discovery operations to
// find.
func (s *System) WithMountTable(table string) *System {
	return &System{
		System:    &layer.System{MountInfo: mountinfo.StringProvider(table), Inspector: s.Inspector, Driver: s.Driver},
		Inspector: s.Inspector,
		Driver:    s.Driver,
	}
}
