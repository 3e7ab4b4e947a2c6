package pipeline

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/imagebuf"
	"github.com/chaos-io/bgstrip/ingest"
	"github.com/chaos-io/bgstrip/util"
)

// OutputDir is the canonical, writable directory results are written to.
type OutputDir struct {
	path string
}

// NewOutputDir creates dir if absent and verifies it is writable. Failure
// is fatal.
func NewOutputDir(dir string) (OutputDir, error) {
	if dir == "" {
		return OutputDir{}, errors.Fatalf("output directory is empty")
	}
	if err := util.CheckWritableDir(dir); err != nil {
		return OutputDir{}, errors.Fatal(errors.WithHint(err, "pass a writable --output directory"))
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return OutputDir{}, errors.Fatal(errors.Wrapf(err, "resolve output directory %q", dir))
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return OutputDir{}, errors.Fatal(errors.Wrapf(err, "resolve output directory %q", dir))
	}
	return OutputDir{path: canonical}, nil
}

// NewOutputDirOutside is NewOutputDir for a directory that must not lie
// inside root. The check runs before anything is created, so a rejected
// dir leaves the input tree untouched.
func NewOutputDirOutside(root ingest.InputRoot, dir string) (OutputDir, error) {
	if dir == "" {
		return OutputDir{}, errors.Fatalf("output directory is empty")
	}
	target, err := resolvePending(dir)
	if err != nil {
		return OutputDir{}, errors.Fatal(errors.Wrapf(err, "resolve output directory %q", dir))
	}
	if err := checkOutsideInput(root.Path(), target); err != nil {
		return OutputDir{}, err
	}
	return NewOutputDir(dir)
}

// resolvePending canonicalizes a path that may not exist yet: the deepest
// existing ancestor is resolved and the missing tail appended.
func resolvePending(dir string) (string, error) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

func checkOutsideInput(root, out string) error {
	if root == out || ingest.IsDescendant(root, out) {
		return errors.Fatal(errors.WithHint(
			errors.Newf("output directory %q is inside the input directory", out),
			"choose an output directory outside the input directory"))
	}
	return nil
}

func (o OutputDir) Path() string { return o.path }

// Write encodes img as PNG under name and returns the written path.
func (o OutputDir) Write(name string, img *imagebuf.ProcessedImage) (string, error) {
	if !safeOutputName(name) {
		return "", ingest.Reject(ingest.ReasonUnsafeOutputName, name, nil)
	}
	target := filepath.Join(o.path, name)
	if !ingest.IsDescendant(o.path, target) || filepath.Dir(target) != o.path {
		return "", ingest.Reject(ingest.ReasonUnsafeOutputName, name, errors.New("escapes output directory"))
	}

	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	err := util.WriteFileAtomic(o.path, name, 0o644, func(w io.Writer) error {
		return enc.Encode(w, img.ToNRGBA())
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

// safeOutputName accepts a single, non-special path element.
func safeOutputName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return name == filepath.Base(name) && filepath.VolumeName(name) == ""
}

// outputNames maps every regular candidate to its output file name.
// sub/a.png becomes sub_a.png; candidates sharing a stem all get their
// extension appended (a.png, a.jpg -> a_png.png, a_jpg.png); anything still
// clashing gets a numeric suffix in path order.
func outputNames(candidates []ingest.CandidateEntry) map[string]string {
	stems := make(map[string]string, len(candidates))
	counts := make(map[string]int)
	for _, c := range candidates {
		if c.Kind != ingest.KindRegular {
			continue
		}
		stem := flattenStem(c.RelPath)
		stems[c.RelPath] = stem
		counts[strings.ToLower(stem)]++
	}

	names := make(map[string]string, len(stems))
	used := make(map[string]bool, len(stems))
	for _, c := range candidates {
		stem, ok := stems[c.RelPath]
		if !ok {
			continue
		}

		base := stem
		if counts[strings.ToLower(stem)] > 1 {
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(c.RelPath)), ".")
			if ext == "" {
				ext = "noext"
			}
			base = stem + "_" + ext
		}

		name := base + ".png"
		for i := 2; used[strings.ToLower(name)]; i++ {
			name = fmt.Sprintf("%s_%d.png", base, i)
		}
		used[strings.ToLower(name)] = true
		names[c.RelPath] = name
	}
	return names
}

func flattenStem(rel string) string {
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(filepath.ToSlash(stem), "/", "_")
}
