package ingest

import (
	"fmt"

	"github.com/chaos-io/bgstrip/errors"
)

// Reason names why an input was rejected. The set is closed.
type Reason string

const (
	ReasonSymlink           Reason = "symlink"
	ReasonNotRegular        Reason = "not regular file"
	ReasonOutsideRoot       Reason = "outside root"
	ReasonSizeExceeded      Reason = "size exceeded"
	ReasonDimensionExceeded Reason = "dimension exceeded"
	ReasonUnsupportedFormat Reason = "unsupported format"
	ReasonFormatMismatch    Reason = "format mismatch"
	ReasonCorruptData       Reason = "corrupt data"
	ReasonUnsafeOutputName  Reason = "unsafe output name"
)

// RejectError reports that an input failed a validation or resource
// policy. It is expected and per-file, never fatal to a batch.
type RejectError struct {
	Reason Reason
	Path   string
	Err    error
}

func (e *RejectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Reason, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Reason, e.Path, e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }

// Reject builds a *RejectError.
func Reject(reason Reason, path string, err error) error {
	return &RejectError{Reason: reason, Path: path, Err: err}
}

func rejectf(reason Reason, path, format string, args ...interface{}) error {
	return &RejectError{Reason: reason, Path: path, Err: errors.Newf(format, args...)}
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
