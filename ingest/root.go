// Package ingest turns untrusted directory entries into bounded, decoded
// images.
//
// The stages run in a fixed order: Resolver (path and symlink checks),
// Guard (file size ceiling), Loader (signature sniffing, declared
// dimension ceiling, decode). Each stage either advances the file or
// returns a *RejectError.
package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaos-io/bgstrip/errors"
)

// InputRoot is the canonical absolute directory all candidates are
// validated against. The zero value is not usable; use NewInputRoot.
type InputRoot struct {
	path string
}

// NewInputRoot canonicalizes dir. A missing or non-directory path is a
// fatal error.
func NewInputRoot(dir string) (InputRoot, error) {
	if dir == "" {
		return InputRoot{}, errors.Fatalf("input directory is empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return InputRoot{}, errors.Fatal(errors.Wrapf(err, "resolve input directory %q", dir))
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return InputRoot{}, errors.Fatal(errors.WithHint(
			errors.Wrapf(err, "input directory %q", dir),
			"create the directory or pass --input"))
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return InputRoot{}, errors.Fatal(errors.Wrapf(err, "stat input directory %q", dir))
	}
	if !info.IsDir() {
		return InputRoot{}, errors.Fatalf("input path %q is not a directory", dir)
	}

	return InputRoot{path: canonical}, nil
}

// Path returns the canonical root path.
func (r InputRoot) Path() string { return r.path }

// Contains reports whether canonical is strictly inside the root.
func (r InputRoot) Contains(canonical string) bool {
	return IsDescendant(r.path, canonical)
}

// IsDescendant reports whether child is strictly below parent. Both paths
// must already be canonical; the comparison is component-wise, never a
// string prefix test.
func IsDescendant(parent, child string) bool {
	if parent == "" || child == "" {
		return false
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." || filepath.IsAbs(rel) {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// Kind is the type of a directory entry as reported without following
// symlinks.
type Kind int

const (
	KindRegular Kind = iota
	KindSymlink
	KindDir
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindSymlink:
		return "symlink"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// KindOf maps file mode type bits to a Kind.
func KindOf(mode fs.FileMode) Kind {
	switch {
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindDir
	case mode.IsRegular():
		return KindRegular
	default:
		return KindOther
	}
}

// CandidateEntry is a directory entry found during enumeration. RelPath
// is relative to the InputRoot and uses the OS separator.
type CandidateEntry struct {
	RelPath string
	Kind    Kind
}

// ValidatedPath is a candidate that passed the Resolver: Path is canonical,
// strictly inside the root, and no component of it is a symlink. Info is
// the Lstat result captured during resolution.
type ValidatedPath struct {
	Path    string
	RelPath string
	Info    fs.FileInfo
}

// Size returns the file size recorded at resolution time.
func (v ValidatedPath) Size() int64 {
	if v.Info == nil {
		return 0
	}
	return v.Info.Size()
}
