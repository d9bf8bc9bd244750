package mountinfo_test

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cscutcher/naruto-aufs-layers/errdefs"
	"github.com/cscutcher/naruto-aufs-layers/mountinfo"
)

// mockProcMounts is a representative /proc/mounts snapshot from a booted
// Linux system, used as the base table for parser tests below.
const mockProcMounts = `
rootfs / rootfs rw 0 0
sysfs /sys sysfs rw,nosuid,nodev,noexec,relatime 0 0
proc /proc proc rw,nosuid,nodev,noexec,relatime 0 0
udev /dev devtmpfs rw,relatime,size=8187468k,nr_inodes=2046867,mode=755 0 0
devpts /dev/pts devpts rw,nosuid,noexec,relatime,gid=5,mode=620,ptmxmode=000 0 0
tmpfs /run tmpfs rw,nosuid,noexec,relatime,size=1640648k,mode=755 0 0`

func TestMountsParsesAllFields(t *testing.T) {
	entries, err := mountinfo.StringProvider(mockProcMounts).Mounts(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 6)

	udev := entries[3]
	assert.Equal(t, udev.Source, "udev")
	assert.Equal(t, udev.Mountpoint, "/dev")
	assert.Equal(t, udev.VFSType, "devtmpfs")
	assert.Equal(t, udev.HasOption("rw"), true)
	assert.Equal(t, udev.Options["size"], "8187468k")
	assert.Equal(t, udev.Freq, 0)
	assert.Equal(t, udev.PassNo, 0)
}

func TestFindMountByDestLongestPrefix(t *testing.T) {
	provider := mountinfo.StringProvider(mockProcMounts)
	ctx := context.Background()

	for _, tc := range []struct {
		dest string
		want string
	}{
		{"/geoff", "/"},
		{"/proc", "/proc"},
		{"/proc/geoff", "/proc"},
		{"/dev/pts/blah", "/dev/pts"},
	} {
		entry, err := mountinfo.FindMountByDest(ctx, tc.dest, provider)
		assert.NilError(t, err, tc.dest)
		assert.Equal(t, entry.Mountpoint, tc.want, tc.dest)
	}
}

func TestFindMountByDestNoMounts(t *testing.T) {
	_, err := mountinfo.FindMountByDest(context.Background(), "/geoff", mountinfo.StringProvider(""))
	assert.Assert(t, errdefs.IsNotFound(err))
}

func TestMountsSkipsMalformedLines(t *testing.T) {
	table := "not enough fields\n" + mockProcMounts
	entries, err := mountinfo.StringProvider(table).Mounts(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 6)
}
