package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chaos-io/bgstrip/imagebuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFile(t *testing.T, dir, name string, budget Budget) (*imagebuf.RawImage, error) {
	t.Helper()

	root := newRoot(t, dir)
	vp, err := NewResolver().Resolve(root, CandidateEntry{RelPath: name, Kind: KindRegular})
	require.NoError(t, err)
	return NewLoader().Load(context.Background(), vp, budget)
}

func TestLoader_Load_Formats(t *testing.T) {
	t.Parallel()

	img := gradient(24, 16)
	tests := []struct {
		name   string
		format Format
	}{
		{name: "a.png", format: FormatPNG},
		{name: "a.jpg", format: FormatJPEG},
		{name: "a.jpeg", format: FormatJPEG},
		{name: "a.gif", format: FormatGIF},
		{name: "a.bmp", format: FormatBMP},
		{name: "a.tiff", format: FormatTIFF},
		{name: "UPPER.PNG", format: FormatPNG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, dir, tt.name, encode(t, tt.format, img))

			raw, err := loadFile(t, dir, tt.name, DefaultBudget())
			require.NoError(t, err)
			require.NoError(t, raw.Validate())
			assert.Equal(t, 24, raw.Width)
			assert.Equal(t, 16, raw.Height)
			assert.Equal(t, imagebuf.RawChannels, raw.Channels)
		})
	}
}

func TestLoader_Load_PixelsPreserved(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.png", encode(t, FormatPNG, gradient(8, 8)))

	raw, err := loadFile(t, dir, "a.png", DefaultBudget())
	require.NoError(t, err)

	r, g, b := raw.RGB(3, 2)
	assert.Equal(t, uint8(21), r)
	assert.Equal(t, uint8(10), g)
	assert.Equal(t, uint8(90), b)
}

func TestLoader_Load_Rejections(t *testing.T) {
	t.Parallel()

	png := encode(t, FormatPNG, gradient(10, 10))
	jpg := encode(t, FormatJPEG, gradient(10, 10))

	tests := []struct {
		name string
		data []byte
		want Reason
	}{
		{name: "photo.png", data: []byte("this is just a text file, not an image\n"), want: ReasonUnsupportedFormat},
		{name: "empty.png", data: nil, want: ReasonUnsupportedFormat},
		{name: "renamed.png", data: jpg, want: ReasonFormatMismatch},
		{name: "renamed.jpg", data: png, want: ReasonFormatMismatch},
		{name: "image.txt", data: png, want: ReasonUnsupportedFormat},
		{name: "noext", data: png, want: ReasonUnsupportedFormat},
		{name: "truncated.png", data: png[:len(png)/2], want: ReasonCorruptData},
		{name: "header.png", data: png[:20], want: ReasonCorruptData},
		{name: "bomb.png", data: pngHeaderOnly(100000, 100000), want: ReasonDimensionExceeded},
		{name: "zero.png", data: pngHeaderOnly(0, 10), want: ReasonCorruptData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, dir, tt.name, tt.data)

			raw, err := loadFile(t, dir, tt.name, DefaultBudget())
			assert.Nil(t, raw)
			assertRejected(t, err, tt.want)
		})
	}
}

func TestLoader_Load_UnknownContentDetail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "photo.png", []byte("this is just a text file, not an image\n"))

	_, err := loadFile(t, dir, "photo.png", DefaultBudget())
	assertRejected(t, err, ReasonUnsupportedFormat)
	assert.Contains(t, err.Error(), "content is text/plain")
}

// The declared canvas is checked before the full decode: a header-only PNG
// has no image data, so a full decode would fail as corrupt data instead.
func TestLoader_Load_DimensionCheckedBeforeDecode(t *testing.T) {
	t.Parallel()

	budget, err := NewBudget(DefaultMaxFileBytes, 100*100)
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "over.png", pngHeaderOnly(101, 100))
	writeFile(t, dir, "within.png", pngHeaderOnly(100, 100))

	_, err = loadFile(t, dir, "over.png", budget)
	assertRejected(t, err, ReasonDimensionExceeded)

	_, err = loadFile(t, dir, "within.png", budget)
	assertRejected(t, err, ReasonCorruptData)
}

func TestLoader_Load_SizeRechecked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := encode(t, FormatPNG, gradient(10, 10))
	writeFile(t, dir, "a.png", data)

	budget, err := NewBudget(int64(len(data)-1), DefaultMaxPixels)
	require.NoError(t, err)

	_, err = loadFile(t, dir, "a.png", budget)
	assertRejected(t, err, ReasonSizeExceeded)
}

func TestLoader_Load_ReplacedAfterResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := encode(t, FormatPNG, gradient(10, 10))
	target := writeFile(t, dir, "a.png", data)
	other := writeFile(t, dir, "b.png", data)

	root := newRoot(t, dir)
	vp, err := NewResolver().Resolve(root, CandidateEntry{RelPath: "a.png", Kind: KindRegular})
	require.NoError(t, err)

	require.NoError(t, os.Rename(other, target))

	_, err = NewLoader().Load(context.Background(), vp, DefaultBudget())
	assertRejected(t, err, ReasonSymlink)
}

func TestLoader_Load_SwappedForSymlink(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	dir := filepath.Join(parent, "in")
	data := encode(t, FormatPNG, gradient(10, 10))
	target := writeFile(t, dir, "a.png", data)
	outside := writeFile(t, parent, "outside.png", data)

	root := newRoot(t, dir)
	vp, err := NewResolver().Resolve(root, CandidateEntry{RelPath: "a.png", Kind: KindRegular})
	require.NoError(t, err)

	require.NoError(t, os.Remove(target))
	symlinkOrSkip(t, outside, target)

	_, err = NewLoader().Load(context.Background(), vp, DefaultBudget())
	assertRejected(t, err, ReasonSymlink)
}

func TestLoader_Load_Canceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.png", encode(t, FormatPNG, gradient(4, 4)))
	root := newRoot(t, dir)
	vp, err := NewResolver().Resolve(root, CandidateEntry{RelPath: "a.png", Kind: KindRegular})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewLoader().Load(ctx, vp, DefaultBudget())
	assert.ErrorIs(t, err, context.Canceled)
}
