// Package errors provides error handling for bgstrip.
//
// It re-exports github.com/cockroachdb/errors so callers get stack traces,
// wrapping and user hints from a single import:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	return errors.WithHint(err, "check the input directory")
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
)

// User-facing messages and details
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

// ErrFatal marks misconfiguration that must abort a run before any file is
// processed. Use Fatal to mark and IsFatal to test.
var ErrFatal = New("fatal")

// Fatal marks err as fatal while keeping its message and chain intact.
// A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return crdb.Mark(err, ErrFatal)
}

// Fatalf creates a new fatal error.
func Fatalf(format string, args ...interface{}) error {
	return Fatal(crdb.Newf(format, args...))
}

// IsFatal reports whether err or anything it wraps was marked fatal.
func IsFatal(err error) bool {
	return err != nil && crdb.Is(err, ErrFatal)
}
