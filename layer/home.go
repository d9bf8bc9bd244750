package layer

import (
	"os"

	"github.com/containerd/log"
	"github.com/moby/sys/mount"
)

// EnsureHome creates home (and any missing parents) if it doesn't already
// exist, then marks it a private mount so aufs mount/unmount events inside
// one named tree's layers don't propagate into other mount namespaces that
// happen to share this host's home directory.
func EnsureHome(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	if err := mount.MakePrivate(home); err != nil {
		return err
	}
	log.L.WithField("home", home).Debug("ensured naruto home directory")
	return nil
}
