package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chaos-io/bgstrip/imagebuf"
	"github.com/chaos-io/bgstrip/ingest"
	"github.com/chaos-io/bgstrip/rembg"
	"github.com/stretchr/testify/require"
)

func pattern(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 11), G: uint8(y * 13), B: 200, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, pattern(w, h)))
	return buf.Bytes()
}

func gifBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, pattern(w, h), nil))
	return buf.Bytes()
}

func writeInput(t *testing.T, dir, name string, data []byte) {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

type fixture struct {
	inDir  string
	outDir string
	root   ingest.InputRoot
	out    OutputDir
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	base := t.TempDir()
	f := &fixture{
		inDir:  filepath.Join(base, "input_frames"),
		outDir: filepath.Join(base, "frames"),
	}
	require.NoError(t, os.Mkdir(f.inDir, 0o755))
	return f
}

// open resolves the directories; call it after writing inputs.
func (f *fixture) open(t *testing.T) {
	t.Helper()

	var err error
	f.root, err = ingest.NewInputRoot(f.inDir)
	require.NoError(t, err)
	f.out, err = NewOutputDir(f.outDir)
	require.NoError(t, err)
}

func (f *fixture) pipeline(t *testing.T, budget ingest.Budget, remover rembg.Remover, opts Options) *Pipeline {
	t.Helper()

	f.open(t)
	p, err := New(f.root, budget, f.out, remover, opts)
	require.NoError(t, err)
	return p
}

func smallBudget(t *testing.T, maxBytes int64) ingest.Budget {
	t.Helper()

	b, err := ingest.NewBudget(maxBytes, 1<<20)
	require.NoError(t, err)
	return b
}

// countingLoader records which files reached decode.
type countingLoader struct {
	inner *ingest.Loader
	mu    sync.Mutex
	seen  []string
}

func newCountingLoader() *countingLoader {
	return &countingLoader{inner: ingest.NewLoader()}
}

func (l *countingLoader) Load(ctx context.Context, path ingest.ValidatedPath, budget ingest.Budget) (*imagebuf.RawImage, error) {
	l.mu.Lock()
	l.seen = append(l.seen, path.RelPath)
	l.mu.Unlock()
	return l.inner.Load(ctx, path, budget)
}

func (l *countingLoader) loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.seen))
	copy(out, l.seen)
	return out
}

// concurrencyRemover tracks the peak number of overlapping calls.
type concurrencyRemover struct {
	inner  rembg.Remover
	active atomic.Int32
	peak   atomic.Int32
	delay  time.Duration
}

func (r *concurrencyRemover) Remove(ctx context.Context, img *imagebuf.RawImage) (*imagebuf.ProcessedImage, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(r.delay)
	return r.inner.Remove(ctx, img)
}

func symlinkOrSkip(t *testing.T, target, link string) {
	t.Helper()

	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}
