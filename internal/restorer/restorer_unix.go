//go:build !windows

package restorer

import "os"

// nodeChown applies ownership best-effort; on most systems this
// requires root and is expected to fail for non-privileged restores,
// which Restore tolerates (§7).
func nodeChown(path string, uid, gid uint32) error {
	return os.Chown(path, int(uid), int(gid))
}
