//go:build windows

package restorer

// nodeChown is a no-op on Windows, which has no uid/gid concept; node
// ownership restoration is best-effort everywhere (§7), and on this
// platform there is nothing to restore.
func nodeChown(path string, uid, gid uint32) error {
	return nil
}
