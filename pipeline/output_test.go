package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/imagebuf"
	"github.com/chaos-io/bgstrip/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputNames(t *testing.T) {
	t.Parallel()

	regular := func(paths ...string) []ingest.CandidateEntry {
		var out []ingest.CandidateEntry
		for _, p := range paths {
			out = append(out, ingest.CandidateEntry{RelPath: filepath.FromSlash(p), Kind: ingest.KindRegular})
		}
		return out
	}

	tests := []struct {
		name       string
		candidates []ingest.CandidateEntry
		want       map[string]string
	}{
		{
			name:       "distinct stems",
			candidates: regular("a.png", "b.jpg", "c"),
			want:       map[string]string{"a.png": "a.png", "b.jpg": "b.png", "c": "c.png"},
		},
		{
			name:       "shared stem",
			candidates: regular("a.jpg", "a.png", "b.png"),
			want:       map[string]string{"a.jpg": "a_jpg.png", "a.png": "a_png.png", "b.png": "b.png"},
		},
		{
			name:       "case only",
			candidates: regular("A.PNG", "a.png"),
			want:       map[string]string{"A.PNG": "A_png.png", "a.png": "a_png_2.png"},
		},
		{
			name:       "nested flattened",
			candidates: regular("sub/a.png", "sub_a.png"),
			want:       map[string]string{"sub/a.png": "sub_a_png.png", "sub_a.png": "sub_a_png_2.png"},
		},
		{
			name: "non-regular skipped",
			candidates: append(regular("a.png"),
				ingest.CandidateEntry{RelPath: "a.jpg", Kind: ingest.KindSymlink}),
			want: map[string]string{"a.png": "a.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			want := make(map[string]string, len(tt.want))
			for k, v := range tt.want {
				want[filepath.FromSlash(k)] = v
			}
			assert.Equal(t, want, outputNames(tt.candidates))
		})
	}
}

func TestSafeOutputName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{name: "a.png", want: true},
		{name: "sub_a_png.png", want: true},
		{name: "", want: false},
		{name: ".", want: false},
		{name: "..", want: false},
		{name: "../a.png", want: false},
		{name: "sub/a.png", want: false},
		{name: `sub\a.png`, want: false},
		{name: "a\x00.png", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, safeOutputName(tt.name))
		})
	}
}

func TestOutputDir_Write(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "frames")
	out, err := NewOutputDir(dir)
	require.NoError(t, err)

	img := &imagebuf.ProcessedImage{Width: 2, Height: 1, Channels: 4, Pix: []byte{1, 2, 3, 255, 4, 5, 6, 0}}
	path, err := out.Write("a.png", img)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out.Path(), "a.png"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())

	entries, err := os.ReadDir(out.Path())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")

	_, err = out.Write("../escape.png", img)
	reason, ok := ingest.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ingest.ReasonUnsafeOutputName, reason)
}

func TestNewOutputDir(t *testing.T) {
	t.Parallel()

	_, err := NewOutputDir("")
	assert.True(t, errors.IsFatal(err))

	base := t.TempDir()
	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewOutputDir(filepath.Join(file, "frames"))
	assert.True(t, errors.IsFatal(err))

	out, err := NewOutputDir(filepath.Join(base, "nested", "frames"))
	require.NoError(t, err)
	assert.DirExists(t, out.Path())
}

func TestNewOutputDirOutside(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	in := filepath.Join(base, "input_frames")
	require.NoError(t, os.Mkdir(in, 0o755))
	root, err := ingest.NewInputRoot(in)
	require.NoError(t, err)

	link := filepath.Join(base, "link")
	symlinkOrSkip(t, in, link)

	tests := []struct {
		name    string
		dir     string
		created string
		wantErr bool
	}{
		{name: "sibling", dir: filepath.Join(base, "frames")},
		{name: "missing sibling tree", dir: filepath.Join(base, "a", "b", "frames")},
		{name: "input itself", dir: in, wantErr: true},
		{name: "nested missing", dir: filepath.Join(in, "new", "frames"), created: filepath.Join(in, "new"), wantErr: true},
		{name: "through symlink", dir: filepath.Join(link, "frames"), created: filepath.Join(in, "frames"), wantErr: true},
		{name: "relative escape back in", dir: filepath.Join(base, "x", "..", "input_frames", "out"), created: filepath.Join(in, "out"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewOutputDirOutside(root, tt.dir)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsFatal(err))
				assert.Contains(t, err.Error(), "inside the input directory")
				if tt.created != "" {
					assert.NoDirExists(t, tt.created)
				}
				return
			}
			require.NoError(t, err)
			assert.DirExists(t, out.Path())
			assert.False(t, ingest.IsDescendant(root.Path(), out.Path()))
		})
	}
}
