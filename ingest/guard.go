package ingest

import "github.com/chaos-io/bgstrip/errors"

// Guard enforces the DecodeBudget ceilings. Check runs before any decode;
// CheckDimensions runs after the header is parsed and before the full
// decode buffer is allocated.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// Check rejects files larger than the budget using metadata only.
func (g *Guard) Check(path ValidatedPath, budget Budget) error {
	if !budget.Valid() {
		return errors.New("decode budget is not initialized")
	}
	if path.Info == nil {
		return errors.Newf("no metadata for %s", path.RelPath)
	}
	if size := path.Info.Size(); size > budget.MaxFileBytes() {
		return rejectf(ReasonSizeExceeded, path.RelPath, "%d bytes exceeds limit of %d", size, budget.MaxFileBytes())
	}
	return nil
}

// CheckDimensions rejects a width×height canvas over the pixel ceiling.
// The comparison never multiplies, so hostile header values cannot
// overflow it.
func (g *Guard) CheckDimensions(name string, width, height int, budget Budget) error {
	if width <= 0 || height <= 0 {
		return rejectf(ReasonCorruptData, name, "invalid dimensions %dx%d", width, height)
	}
	if int64(width) > budget.MaxPixels()/int64(height) {
		return rejectf(ReasonDimensionExceeded, name, "%dx%d exceeds limit of %d pixels", width, height, budget.MaxPixels())
	}
	return nil
}
