package archiver

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/strata-backup/strata/internal/errors"
)

// virtualRoot is the synthetic root directory (§4.10 step 1): a
// mapping from the name a source path appears under, directly beneath
// the synthetic root, to its real absolute filesystem location.
// Grounded on the teacher's archiver/tree.go Tree.Add name-collision
// renaming loop ("name-1", "name-2", ...), trimmed of the Windows
// volume-name virtual-prefix special case this module's Non-goals don't
// need.
type virtualRoot struct {
	paths map[string]string // synthetic name -> absolute path
	names []string          // paths' keys, pre-sorted lexicographically
}

// buildSyntheticRoot resolves paths to their absolute form and assigns
// each a unique name directly under the synthetic root, later tree
// serialization uses these names, not the original (possibly relative)
// path strings.
func buildSyntheticRoot(paths []string) (*virtualRoot, error) {
	vr := &virtualRoot{paths: make(map[string]string)}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve absolute path for %q", p)
		}

		name := filepath.Base(abs)
		origName := name
		for i := 1; ; i++ {
			existing, ok := vr.paths[name]
			if !ok || existing == abs {
				break
			}
			name = fmt.Sprintf("%s-%d", origName, i)
		}
		vr.paths[name] = abs
	}

	vr.names = make([]string, 0, len(vr.paths))
	for name := range vr.paths {
		vr.names = append(vr.names, name)
	}
	sort.Strings(vr.names)

	return vr, nil
}
