// Package mountdriver performs privileged mount/unmount/remount operations,
// modeled as a capability interface so the rest of the core never shells
// out directly.
package mountdriver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/containerd/log"
	"github.com/cscutcher/naruto-aufs-layers/errdefs"
)

// Driver issues privileged mount operations.
type Driver interface {
	Mount(ctx context.Context, source, target, fstype, options string) error
	Unmount(ctx context.Context, target string) error
	Remount(ctx context.Context, target, fstype, options string) error
}

// DriverError is a mount(8)/umount(8) failure, carrying the process exit
// code and captured stderr. It is wrapped in errdefs.Forbidden for exit code
// 1 and in errdefs.Unknown otherwise, so callers that only care about the
// error kind can use errdefs.IsForbidden/IsUnknown without type-asserting.
type DriverError struct {
	Op       string
	ExitCode int
	Stderr   string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: %s", e.Op, e.ExitCode, e.Stderr)
}

// ExecDriver drives the real mount(8)/umount(8) binaries as subprocesses,
// optionally through sudo (non-interactive, matching the Python's
// sh.sudo.bake(non_interactive=True)).
type ExecDriver struct {
	// Sudo, when true, prefixes every invocation with "sudo -n".
	Sudo bool
}

// Mount implements Driver: `mount -t <fstype> <source> <target> -o <options>`.
func (d *ExecDriver) Mount(ctx context.Context, source, target, fstype, options string) error {
	return d.run(ctx, "mount", "mount", "-t", fstype, source, target, "-o", options)
}

// Unmount implements Driver: `umount <target>`.
func (d *ExecDriver) Unmount(ctx context.Context, target string) error {
	return d.run(ctx, "umount", "umount", target)
}

// Remount implements Driver: `mount -t <fstype> none <target> -o remount,<options>`.
func (d *ExecDriver) Remount(ctx context.Context, target, fstype, options string) error {
	return d.run(ctx, "remount", "mount", "-t", fstype, "none", target, "-o", "remount,"+options)
}

func (d *ExecDriver) run(ctx context.Context, op, name string, args ...string) error {
	if d.Sudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger := log.G(ctx).WithField("op", op).WithField("args", args)
	logger.Debug("invoking mount driver")

	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return err
		}
		exitCode := exitErr.ExitCode()
		if exitCode == 1 {
			return errdefs.Forbidden(&DriverError{Op: op, ExitCode: exitCode, Stderr: stderr.String()})
		}
		return errdefs.Unknown(&DriverError{Op: op, ExitCode: exitCode, Stderr: stderr.String()})
	}
	return nil
}

// RecordingDriver is an in-memory Driver fake for tests: it never runs a
// real process, just appends each call for later assertion.
type RecordingDriver struct {
	Calls []Call
	// Fail, if set, is returned (and not recorded as a successful call)
	// for every invocation whose Op matches a key in the map.
	Fail map[string]error
}

// Call records one invocation against RecordingDriver.
type Call struct {
	Op, Source, Target, FSType, Options string
}

// Mount implements Driver.
func (d *RecordingDriver) Mount(ctx context.Context, source, target, fstype, options string) error {
	return d.record("mount", source, target, fstype, options)
}

// Unmount implements Driver.
func (d *RecordingDriver) Unmount(ctx context.Context, target string) error {
	return d.record("unmount", "", target, "", "")
}

// Remount implements Driver.
func (d *RecordingDriver) Remount(ctx context.Context, target, fstype, options string) error {
	return d.record("remount", "", target, fstype, options)
}

func (d *RecordingDriver) record(op, source, target, fstype, options string) error {
	if err, ok := d.Fail[op]; ok {
		return err
	}
	d.Calls = append(d.Calls, Call{Op: op, Source: source, Target: target, FSType: fstype, Options: options})
	return nil
}
