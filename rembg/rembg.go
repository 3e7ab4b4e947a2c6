// Package rembg holds the background-removal collaborators. Every
// implementation takes a validated RGB buffer and returns the same pixels
// with an alpha matte.
package rembg

import (
	"context"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/imagebuf"
)

// Remover removes the background of one image. Implementations may be
// slow and may not be safe for concurrent use; callers decide how to
// schedule them.
type Remover interface {
	Remove(ctx context.Context, img *imagebuf.RawImage) (*imagebuf.ProcessedImage, error)
}

// Inference error categories. Wrap them with errors.Mark or errors.Wrap so
// callers can classify with errors.Is.
var (
	ErrModelLoad        = errors.New("model load failure")
	ErrUnsupportedInput = errors.New("unsupported input")
	ErrInternal         = errors.New("internal inference fault")
)

// RemoverFunc adapts a function to Remover.
type RemoverFunc func(ctx context.Context, img *imagebuf.RawImage) (*imagebuf.ProcessedImage, error)

func (f RemoverFunc) Remove(ctx context.Context, img *imagebuf.RawImage) (*imagebuf.ProcessedImage, error) {
	return f(ctx, img)
}

// DefaultRemBG keeps every pixel: the matte is fully opaque.
type DefaultRemBG struct{}

func NewDefaultRemBG() *DefaultRemBG {
	return &DefaultRemBG{}
}

func (d *DefaultRemBG) Remove(ctx context.Context, img *imagebuf.RawImage) (*imagebuf.ProcessedImage, error) {
	if err := img.Validate(); err != nil {
		return nil, errors.Mark(err, ErrUnsupportedInput)
	}
	alpha := make([]byte, img.Width*img.Height)
	for i := range alpha {
		alpha[i] = 0xff
	}
	return img.WithAlpha(alpha)
}
