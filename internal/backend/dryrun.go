package backend

import "github.com/strata-backup/strata/internal/debug"

// DryRunBackend passes reads through to an underlying backend but turns
// every mutating call into a no-op that reports success, the same role
// the teacher's internal/backend/dryrun.Backend plays for `backup
// --dry-run`.
type DryRunBackend struct {
	b Backend
}

var _ Backend = (*DryRunBackend)(nil)

// NewDryRun wraps be so that all writes are silently discarded.
func NewDryRun(be Backend) *DryRunBackend {
	debug.Log("created new dry-run backend")
	return &DryRunBackend{b: be}
}

func (d *DryRunBackend) Create() error     { return nil }
func (d *DryRunBackend) RootExists() bool  { return d.b.RootExists() }
func (d *DryRunBackend) Read(path string) ([]byte, error) {
	return d.b.Read(path)
}
func (d *DryRunBackend) ReadSeek(path string, offset, length int64) ([]byte, error) {
	return d.b.ReadSeek(path, offset, length)
}
func (d *DryRunBackend) Write(path string, contents []byte) error { return nil }
func (d *DryRunBackend) Rename(from, to string) error             { return nil }
func (d *DryRunBackend) RemoveFile(path string) error             { return nil }
func (d *DryRunBackend) CreateDir(path string) error              { return nil }
func (d *DryRunBackend) CreateDirAll(path string) error           { return nil }
func (d *DryRunBackend) ReadDir(path string) ([]string, error) {
	return d.b.ReadDir(path)
}
func (d *DryRunBackend) RemoveDir(path string) error    { return nil }
func (d *DryRunBackend) RemoveDirAll(path string) error { return nil }
func (d *DryRunBackend) Exists(path string) bool        { return d.b.Exists(path) }
func (d *DryRunBackend) IsFile(path string) bool        { return d.b.IsFile(path) }
func (d *DryRunBackend) IsDir(path string) bool         { return d.b.IsDir(path) }
