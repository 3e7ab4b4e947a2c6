package rembg

import (
	"context"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/imagebuf"
	"github.com/nfnt/resize"
)

const (
	DefaultMaskSize  = 320
	DefaultTolerance = 40.0
	DefaultSoftness  = 60.0
)

// ChromaOptions tunes ChromaRemBG. Zero values select the defaults.
type ChromaOptions struct {
	// MaskSize is the longest side of the working copy the matte is
	// computed on.
	MaskSize int
	// Tolerance is the colour distance under which a pixel is background.
	Tolerance float64
	// Softness is the width of the ramp from transparent to opaque.
	Softness float64
}

// ChromaRemBG is the built-in local model. It estimates the background
// colour from the image border and derives a soft matte from colour
// distance. The result is deterministic.
type ChromaRemBG struct {
	opts ChromaOptions
}

func NewChromaRemBG(opts ChromaOptions) *ChromaRemBG {
	if opts.MaskSize <= 0 {
		opts.MaskSize = DefaultMaskSize
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Softness <= 0 {
		opts.Softness = DefaultSoftness
	}
	return &ChromaRemBG{opts: opts}
}

func (c *ChromaRemBG) Remove(ctx context.Context, img *imagebuf.RawImage) (*imagebuf.ProcessedImage, error) {
	if err := img.Validate(); err != nil {
		return nil, errors.Mark(err, ErrUnsupportedInput)
	}

	// 1. 缩放到工作尺寸（最长边 <= MaskSize）
	work := resizeWithinMax(img.ToNRGBA(), c.opts.MaskSize)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. 用边缘像素估计背景色
	bg := borderMedian(work)

	// 3. 按颜色距离生成 alpha
	mask := image.NewGray(work.Bounds())
	w, h := work.Bounds().Dx(), work.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := y * work.Stride
		for x := 0; x < w; x++ {
			i := row + x*4
			d := distance(work.Pix[i], work.Pix[i+1], work.Pix[i+2], bg)
			mask.Pix[y*mask.Stride+x] = c.ramp(d)
		}
	}

	// 4. 放大回原尺寸
	alpha := scaleMask(mask, img.Width, img.Height)
	return img.WithAlpha(alpha)
}

func (c *ChromaRemBG) ramp(d float64) uint8 {
	v := (d - c.opts.Tolerance) / c.opts.Softness
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	default:
		return uint8(v*255 + 0.5)
	}
}

// resizeWithinMax 缩放（最长边 <= maxSize）
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return imagebuf.FromNRGBA(resized).ToNRGBA()
}

func scaleMask(mask *image.Gray, w, h int) []byte {
	b := mask.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return mask.Pix
	}

	scaled := resize.Resize(uint(w), uint(h), mask, resize.Bilinear)
	out := make([]byte, w*h)
	if g, ok := scaled.(*image.Gray); ok && g.Rect.Dx() == w && g.Rect.Dy() == h {
		for y := 0; y < h; y++ {
			copy(out[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		return out
	}

	sb := scaled.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = color.GrayModel.Convert(scaled.At(sb.Min.X+x, sb.Min.Y+y)).(color.Gray).Y
		}
	}
	return out
}

func borderMedian(img *image.NRGBA) [3]uint8 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var rs, gs, bs []uint8
	add := func(x, y int) {
		i := y*img.Stride + x*4
		rs = append(rs, img.Pix[i])
		gs = append(gs, img.Pix[i+1])
		bs = append(bs, img.Pix[i+2])
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		if h > 1 {
			add(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		if w > 1 {
			add(w-1, y)
		}
	}
	return [3]uint8{median(rs), median(gs), median(bs)}
}

func median(v []uint8) uint8 {
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	return v[len(v)/2]
}

func distance(r, g, b uint8, bg [3]uint8) float64 {
	dr := float64(r) - float64(bg[0])
	dg := float64(g) - float64(bg[1])
	db := float64(b) - float64(bg[2])
	return math.Sqrt(dr*dr + dg*dg + db*db)
}
