// Package debug provides opt-in tracing for the rest of the module. It is
// a no-op unless STRATA_DEBUG is set in the environment, so call sites can
// log liberally without worrying about the cost in normal operation.
package debug

import (
	"fmt"
	"os"
	"sync"
)

var (
	once    sync.Once
	enabled bool
)

func isEnabled() bool {
	once.Do(func() {
		enabled = os.Getenv("STRATA_DEBUG") != ""
	})
	return enabled
}

// Log writes a formatted trace line to stderr when STRATA_DEBUG is set.
func Log(format string, args ...any) {
	if !isEnabled() {
		return
	}
	fmt.Fprintf(os.Stderr, "[strata debug] "+format+"\n", args...)
}
