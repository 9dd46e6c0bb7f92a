// Package corerr defines the engine's error taxonomy. Every error the core
// returns across a public boundary belongs to exactly one class here; callers
// classify with errors.Is against the sentinel instances or errors.As against
// *errs.Error to recover the wrapped message.
package corerr

import (
	"errors"

	"github.com/zeebo/errs"
)

// Classes mirror the error kinds of the spec: schema/range/finite/dimension
// violations, missing resources, admission/capacity pressure, deadlines, and
// readiness failures. Each is non-retryable unless documented otherwise.
var (
	InvalidArgument   = errs.Class("invalid_argument")
	NotFound          = errs.Class("not_found")
	Conflict          = errs.Class("conflict")
	ResourceExhausted = errs.Class("resource_exhausted")
	Timeout           = errs.Class("timeout")
	Unavailable       = errs.Class("unavailable")
	Internal          = errs.Class("internal")
)

// Kind is the machine-readable label surfaced to callers; it never includes a
// stack trace, matching the spec's "short machine-readable kind" contract.
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindResourceExhausted Kind = "resource_exhausted"
	KindTimeout           Kind = "timeout"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

var classToKind = map[*errs.Class]Kind{
	&InvalidArgument:   KindInvalidArgument,
	&NotFound:          KindNotFound,
	&Conflict:          KindConflict,
	&ResourceExhausted: KindResourceExhausted,
	&Timeout:           KindTimeout,
	&Unavailable:       KindUnavailable,
	&Internal:          KindInternal,
}

// ClassifyErr returns the Kind of err and its human-readable message. Errors
// that were never wrapped by one of the classes above are reported Internal,
// since an un-classified error reaching a response boundary is itself a bug.
func ClassifyErr(err error) (Kind, string) {
	if err == nil {
		return "", ""
	}
	for class, kind := range classToKind {
		if class.Has(err) {
			return kind, err.Error()
		}
	}
	return KindInternal, err.Error()
}

// Convenience constructors keep call sites terse and avoid importing
// zeebo/errs throughout the tree.
func NewInvalidArgument(format string, args ...interface{}) error {
	return InvalidArgument.New(format, args...)
}

func NewNotFound(format string, args ...interface{}) error {
	return NotFound.New(format, args...)
}

func NewConflict(format string, args ...interface{}) error {
	return Conflict.New(format, args...)
}

func NewResourceExhausted(format string, args ...interface{}) error {
	return ResourceExhausted.New(format, args...)
}

func NewTimeout(format string, args ...interface{}) error {
	return Timeout.New(format, args...)
}

func NewUnavailable(format string, args ...interface{}) error {
	return Unavailable.New(format, args...)
}

func NewInternal(format string, args ...interface{}) error {
	return Internal.New(format, args...)
}

// Is reports whether err carries the named class, unwrapping through
// fmt.Errorf("%w", ...) chains the way errors.Is would.
func Is(err error, class *errs.Class) bool {
	return class.Has(err)
}

// As exists so callers that only hold a standard error can still recover
// whether it is one of ours without importing zeebo/errs directly.
func As(err error, target *error) bool {
	return errors.As(err, target)
}
