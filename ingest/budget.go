package ingest

import "github.com/chaos-io/bgstrip/errors"

const (
	// DefaultMaxFileBytes limits raw input files to 20 MiB.
	DefaultMaxFileBytes int64 = 20 * 1024 * 1024
	// DefaultMaxPixels is roughly 90 megapixels.
	DefaultMaxPixels int64 = 89_478_485
)

// Budget is the immutable decode ceiling pair for a run.
type Budget struct {
	maxFileBytes int64
	maxPixels    int64
}

// NewBudget validates the ceilings. Non-positive values are fatal.
func NewBudget(maxFileBytes, maxPixels int64) (Budget, error) {
	if maxFileBytes <= 0 {
		return Budget{}, errors.Fatalf("max file bytes must be positive, got %d", maxFileBytes)
	}
	if maxPixels <= 0 {
		return Budget{}, errors.Fatalf("max pixel count must be positive, got %d", maxPixels)
	}
	return Budget{maxFileBytes: maxFileBytes, maxPixels: maxPixels}, nil
}

// DefaultBudget returns the default ceilings.
func DefaultBudget() Budget {
	return Budget{maxFileBytes: DefaultMaxFileBytes, maxPixels: DefaultMaxPixels}
}

func (b Budget) MaxFileBytes() int64 { return b.maxFileBytes }

func (b Budget) MaxPixels() int64 { return b.maxPixels }

// Valid reports whether b came from NewBudget or DefaultBudget.
func (b Budget) Valid() bool { return b.maxFileBytes > 0 && b.maxPixels > 0 }
