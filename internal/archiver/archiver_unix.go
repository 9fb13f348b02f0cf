//go:build !windows

package archiver

import (
	"os"
	"syscall"
)

// nodeOwnership extracts the owning uid/gid from info, best-effort, the
// way the teacher's platform-specific archiver_unix.go isolates
// syscall.Stat_t access behind a build tag rather than letting it leak
// into the portable walk logic.
func nodeOwnership(info os.FileInfo) (uid, gid uint32) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return stat.Uid, stat.Gid
}
