// Package mountinfo reads the kernel's mount table and resolves which
// mount covers a given destination path, parsing the plain six-field
// /proc/mounts format (not the richer /proc/self/mountinfo table that
// github.com/moby/sys/mountinfo targets).
package mountinfo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/containerd/log"
	"github.com/cscutcher/naruto-aufs-layers/errdefs"
)

// Entry is one record of the kernel mount table: source, mountpoint,
// filesystem type, a parsed options map, and the dump/pass fsck fields.
type Entry struct {
	Source     string
	Mountpoint string
	VFSType    string
	Options    map[string]string
	Freq       int
	PassNo     int
}

// HasOption reports whether key is present in Options, with or without a
// value.
func (e Entry) HasOption(key string) bool {
	_, ok := e.Options[key]
	return ok
}

// Provider produces the current mount table as a fully parsed slice. The kernel
// mount table is shared, global, mutable state, so every call is just a
// snapshot of it at that moment.
type Provider interface {
	Mounts(ctx context.Context) ([]Entry, error)
}

// FileProvider reads the real kernel mount table from Path (typically
// /proc/mounts).
type FileProvider struct {
	Path string
}

// DefaultMountsPath is where the Linux kernel always publishes the live
// mount table in six-field fstab form.
const DefaultMountsPath = "/proc/mounts"

// NewFileProvider returns a Provider reading from /proc/mounts.
func NewFileProvider() *FileProvider {
	return &FileProvider{Path: DefaultMountsPath}
}

// Mounts implements Provider.
func (p *FileProvider) Mounts(ctx context.Context) ([]Entry, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMounts(ctx, f)
}

// StringProvider is a Provider backed by a literal mount-table string, for
// tests.
type StringProvider string

// Mounts implements Provider.
func (p StringProvider) Mounts(ctx context.Context) ([]Entry, error) {
	return parseMounts(ctx, strings.NewReader(string(p)))
}

func parseMounts(ctx context.Context, r io.Reader) ([]Entry, error) {
	logger := log.G(ctx)
	scanner := bufio.NewScanner(r)

	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			// A single malformed line is skipped defensively; only a
			// wholesale read failure is fatal.
			logger.WithError(err).WithField("line", line).Debug("skipping unparseable mount table line")
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseLine(line string) (Entry, error) {
	cols := strings.Fields(line)
	if len(cols) != 6 {
		return Entry{}, fmt.Errorf("expected 6 fields, got %d: %q", len(cols), line)
	}

	freq, err := strconv.Atoi(cols[4])
	if err != nil {
		return Entry{}, fmt.Errorf("bad freq field %q: %w", cols[4], err)
	}
	passno, err := strconv.Atoi(cols[5])
	if err != nil {
		return Entry{}, fmt.Errorf("bad passno field %q: %w", cols[5], err)
	}

	return Entry{
		Source:     cols[0],
		Mountpoint: cols[1],
		VFSType:    cols[2],
		Options:    parseOptions(cols[3]),
		Freq:       freq,
		PassNo:     passno,
	}, nil
}

func parseOptions(raw string) map[string]string {
	opts := make(map[string]string)
	for _, opt := range strings.Split(raw, ",") {
		key, value, hasValue := strings.Cut(opt, "=")
		if !hasValue {
			opts[key] = ""
		} else {
			opts[key] = value
		}
	}
	return opts
}

// FindMountByDest resolves dest to an absolute, canonical path (falling
// back to the literal path when resolution fails because dest doesn't
// exist), then returns the mount whose mountpoint is the longest matching
// prefix of that path. Fails with errdefs.NotFound if no mount covers dest.
func FindMountByDest(ctx context.Context, dest string, provider Provider) (Entry, error) {
	resolved, err := filepath.EvalSymlinks(dest)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = dest
		} else {
			return Entry{}, err
		}
	}
	if !filepath.IsAbs(resolved) {
		resolved, err = filepath.Abs(resolved)
		if err != nil {
			return Entry{}, err
		}
	}
	resolved = filepath.Clean(resolved)

	entries, err := provider.Mounts(ctx)
	if err != nil {
		return Entry{}, err
	}

	var matches []Entry
	for _, e := range entries {
		mp := filepath.Clean(e.Mountpoint)
		if isPrefixPath(mp, resolved) {
			matches = append(matches, e)
		}
	}

	if len(matches) == 0 {
		return Entry{}, errdefs.NotFound(fmt.Errorf("unable to find mount for %s", dest))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return pathDepth(matches[i].Mountpoint) > pathDepth(matches[j].Mountpoint)
	})
	return matches[0], nil
}

// isPrefixPath reports whether mountpoint is mp itself or a path ancestor of
// p, using path-component boundaries (so "/dev/pts" isn't considered a
// prefix of "/dev/ptsx").
func isPrefixPath(mp, p string) bool {
	if mp == "/" {
		return true
	}
	if mp == p {
		return true
	}
	return strings.HasPrefix(p, mp+string(filepath.Separator))
}

func pathDepth(p string) int {
	p = filepath.Clean(p)
	if p == "/" {
		return 0
	}
	return strings.Count(p, string(filepath.Separator))
}
