// Package aufs reads a live aufs mount's branch stack out of the kernel's
// per-session sysfs tree, and builds the aufs-flavoured mount option
// strings (br:, mod:, del:, add:) that mountdriver.Driver sends to the
// mount(8) binary.
package aufs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cscutcher/naruto-aufs-layers/errdefs"
)

// Permission is an aufs branch's read/write mode.
type Permission string

const (
	ReadWrite Permission = "rw"
	ReadOnly  Permission = "ro"
)

// Branch is one entry of an aufs mount's ordered stack, as read from
// /sys/fs/aufs/si_<code>/br<N> and brid<N>.
type Branch struct {
	Path       string
	Permission Permission
	Index      int
	BrID       int
	SICode     string
}

// Inspector enumerates a live aufs mount's branch stack by session code.
type Inspector interface {
	Branches(ctx context.Context, siCode string) ([]Branch, error)
}

// SysDir is where the kernel publishes per-mount aufs metadata.
const SysDir = "/sys/fs/aufs"

var branchEntryRE = regexp.MustCompile(`^br(\d+)$`)

// SysfsInspector reads the real kernel-published aufs metadata tree.
type SysfsInspector struct {
	Root string // defaults to SysDir when empty
}

func (s *SysfsInspector) root() string {
	if s.Root == "" {
		return SysDir
	}
	return s.Root
}

// Branches implements Inspector.
func (s *SysfsInspector) Branches(ctx context.Context, siCode string) ([]Branch, error) {
	metaDir := filepath.Join(s.root(), "si_"+siCode)
	info, err := os.Stat(metaDir)
	if err != nil || !info.IsDir() {
		return nil, errdefs.NotFound(fmt.Errorf("no aufs metadata for session %s", siCode))
	}

	entries, err := os.ReadDir(metaDir)
	if err != nil {
		return nil, err
	}

	var branches []Branch
	for _, entry := range entries {
		match := branchEntryRE.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		pathPerm, err := readTrimmedFile(filepath.Join(metaDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		path, perm, ok := strings.Cut(pathPerm, "=")
		if !ok {
			return nil, fmt.Errorf("malformed branch entry %s: %q", entry.Name(), pathPerm)
		}

		bridRaw, err := readTrimmedFile(filepath.Join(metaDir, fmt.Sprintf("brid%d", index)))
		if err != nil {
			return nil, err
		}
		brid, err := strconv.Atoi(bridRaw)
		if err != nil {
			return nil, fmt.Errorf("malformed brid%d: %q", index, bridRaw)
		}

		branches = append(branches, Branch{
			Path:       path,
			Permission: Permission(perm),
			Index:      index,
			BrID:       brid,
			SICode:     siCode,
		})
	}

	sort.Slice(branches, func(i, j int) bool { return branches[i].Index < branches[j].Index })
	return branches, nil
}

func readTrimmedFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// MapInspector is an in-memory Inspector fake for tests, keyed by session
// code.
type MapInspector map[string][]Branch

// Branches implements Inspector.
func (m MapInspector) Branches(ctx context.Context, siCode string) ([]Branch, error) {
	branches, ok := m[siCode]
	if !ok {
		return nil, errdefs.NotFound(fmt.Errorf("no aufs metadata for session %s", siCode))
	}
	sorted := make([]Branch, len(branches))
	copy(sorted, branches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return sorted, nil
}

// InitialMountOptions formats the aufs option string for a fresh mount, one
// branch per (path, permission) pair topmost-first: "br:<p1>=<perm1>:<p2>=<perm2>:…"
func InitialMountOptions(branches []BranchSpec) string {
	parts := make([]string, len(branches))
	for i, b := range branches {
		parts[i] = fmt.Sprintf("%s=%s", b.Path, b.Permission)
	}
	return "br:" + strings.Join(parts, ":")
}

// BranchSpec is a (path, permission) pair used to build mount option
// strings before a branch has a kernel-assigned index or brid.
type BranchSpec struct {
	Path       string
	Permission Permission
}

// SetPermissionOptions formats a remount option flipping the branch at path
// to perm: "mod:<path>=<perm>".
func SetPermissionOptions(path string, perm Permission) string {
	return fmt.Sprintf("mod:%s=%s", path, perm)
}

// DeleteBranchOptions formats a remount option removing the branch at path:
// "del:<path>".
func DeleteBranchOptions(path string) string {
	return fmt.Sprintf("del:%s", path)
}

// InsertAfterOptions formats a remount option adding a new branch at
// position index, so it sits immediately above the branch currently there:
// "add:<index>:<path>=<perm>".
func InsertAfterOptions(index int, path string, perm Permission) string {
	return fmt.Sprintf("add:%d:%s=%s", index, path, perm)
}
