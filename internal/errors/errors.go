// Package errors re-exports github.com/pkg/errors so that the rest of the
// module gets stack-annotated errors without importing the upstream
// package directly at every call site.
package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	New    = errors.New
	Errorf = errors.Errorf
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
	Cause  = errors.Cause

	// Is and As forward to the standard library so call sites only need
	// one import for all error handling needs.
	Is = stderrors.Is
	As = stderrors.As
)
