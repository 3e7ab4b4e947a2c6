// Package imagebuf holds the canonical in-memory pixel buffers that flow
// between the loader and the background remover.
//
// RawImage is what the loader produces: row-major RGB8, no alpha.
// ProcessedImage is what a remover returns: row-major non-premultiplied
// RGBA8 with the same dimensions as its source.
package imagebuf

import (
	"image"
	"image/draw"

	"github.com/chaos-io/bgstrip/errors"
)

const (
	RawChannels       = 3
	ProcessedChannels = 4
)

// RawImage is a decoded, bounded RGB8 buffer.
type RawImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// ProcessedImage is a RawImage with an alpha channel added.
type ProcessedImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// FromImage converts any decoded image into a RawImage, dropping alpha.
func FromImage(img image.Image) *RawImage {
	src := toNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	raw := &RawImage{
		Width:    w,
		Height:   h,
		Channels: RawChannels,
		Pix:      make([]byte, w*h*RawChannels),
	}
	for y := 0; y < h; y++ {
		row := y * src.Stride
		out := y * w * RawChannels
		for x := 0; x < w; x++ {
			i := row + x*4
			o := out + x*RawChannels
			raw.Pix[o] = src.Pix[i]
			raw.Pix[o+1] = src.Pix[i+1]
			raw.Pix[o+2] = src.Pix[i+2]
		}
	}
	return raw
}

// Validate checks the buffer is internally consistent.
func (r *RawImage) Validate() error {
	if r == nil {
		return errors.New("nil raw image")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return errors.Newf("invalid dimensions %dx%d", r.Width, r.Height)
	}
	if r.Channels != RawChannels {
		return errors.Newf("raw image has %d channels, want %d", r.Channels, RawChannels)
	}
	if len(r.Pix) != r.Width*r.Height*RawChannels {
		return errors.Newf("raw image pixel length %d does not match %dx%d", len(r.Pix), r.Width, r.Height)
	}
	return nil
}

// RGB returns the colour at (x, y).
func (r *RawImage) RGB(x, y int) (uint8, uint8, uint8) {
	i := (y*r.Width + x) * RawChannels
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// ToNRGBA returns the raw buffer as an opaque *image.NRGBA.
func (r *RawImage) ToNRGBA() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, o := 0, 0; i < len(r.Pix); i, o = i+RawChannels, o+4 {
		dst.Pix[o] = r.Pix[i]
		dst.Pix[o+1] = r.Pix[i+1]
		dst.Pix[o+2] = r.Pix[i+2]
		dst.Pix[o+3] = 0xff
	}
	return dst
}

// WithAlpha builds a ProcessedImage from r and a per-pixel alpha mask of
// Width*Height bytes.
func (r *RawImage) WithAlpha(alpha []byte) (*ProcessedImage, error) {
	if len(alpha) != r.Width*r.Height {
		return nil, errors.Newf("alpha mask length %d does not match %dx%d", len(alpha), r.Width, r.Height)
	}
	p := &ProcessedImage{
		Width:    r.Width,
		Height:   r.Height,
		Channels: ProcessedChannels,
		Pix:      make([]byte, r.Width*r.Height*ProcessedChannels),
	}
	for i, o, a := 0, 0, 0; i < len(r.Pix); i, o, a = i+RawChannels, o+ProcessedChannels, a+1 {
		p.Pix[o] = r.Pix[i]
		p.Pix[o+1] = r.Pix[i+1]
		p.Pix[o+2] = r.Pix[i+2]
		p.Pix[o+3] = alpha[a]
	}
	return p, nil
}

// FromNRGBA copies an NRGBA image into a ProcessedImage.
func FromNRGBA(img image.Image) *ProcessedImage {
	src := toNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	p := &ProcessedImage{
		Width:    w,
		Height:   h,
		Channels: ProcessedChannels,
		Pix:      make([]byte, w*h*ProcessedChannels),
	}
	for y := 0; y < h; y++ {
		copy(p.Pix[y*w*4:(y+1)*w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
	}
	return p
}

// Validate checks the buffer is internally consistent.
func (p *ProcessedImage) Validate() error {
	if p == nil {
		return errors.New("nil processed image")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return errors.Newf("invalid dimensions %dx%d", p.Width, p.Height)
	}
	if p.Channels != ProcessedChannels {
		return errors.Newf("processed image has %d channels, want %d", p.Channels, ProcessedChannels)
	}
	if len(p.Pix) != p.Width*p.Height*ProcessedChannels {
		return errors.Newf("processed image pixel length %d does not match %dx%d", len(p.Pix), p.Width, p.Height)
	}
	return nil
}

// SameDimensions reports whether p has the spatial size of r.
func (p *ProcessedImage) SameDimensions(r *RawImage) bool {
	return p.Width == r.Width && p.Height == r.Height
}

// ToNRGBA wraps the pixel data as *image.NRGBA without copying.
func (p *ProcessedImage) ToNRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    p.Pix,
		Stride: p.Width * ProcessedChannels,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
