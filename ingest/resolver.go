package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chaos-io/bgstrip/errors"
)

// Resolver validates candidate entries against an InputRoot. It only reads
// filesystem metadata.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the canonical ValidatedPath for candidate, or a
// *RejectError. Any other error is an I/O fault reading metadata.
func (r *Resolver) Resolve(root InputRoot, candidate CandidateEntry) (ValidatedPath, error) {
	name := candidate.RelPath

	// 1. 入口类型来自非跟随的目录项
	switch candidate.Kind {
	case KindSymlink:
		return ValidatedPath{}, Reject(ReasonSymlink, name, nil)
	case KindRegular:
	default:
		return ValidatedPath{}, rejectf(ReasonNotRegular, name, "entry kind %s", candidate.Kind)
	}

	// 2. 词法检查：禁止绝对路径和 ..
	if root.Path() == "" {
		return ValidatedPath{}, errors.New("input root is not initialized")
	}
	if name == "" || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return ValidatedPath{}, rejectf(ReasonOutsideRoot, name, "candidate path is not relative")
	}
	clean := filepath.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return ValidatedPath{}, rejectf(ReasonOutsideRoot, name, "candidate path escapes root")
	}
	lexical := filepath.Join(root.Path(), clean)

	// 3. 重新 Lstat，目录列表可能已过期
	info, err := os.Lstat(lexical)
	if err != nil {
		return ValidatedPath{}, errors.Wrapf(err, "lstat %s", name)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return ValidatedPath{}, Reject(ReasonSymlink, name, nil)
	}
	if !info.Mode().IsRegular() {
		return ValidatedPath{}, rejectf(ReasonNotRegular, name, "mode %s", info.Mode().Type())
	}

	// 4. 规范化后必须严格位于 root 内，且与词法路径一致（链上没有符号链接）
	canonical, err := filepath.EvalSymlinks(lexical)
	if err != nil {
		return ValidatedPath{}, errors.Wrapf(err, "canonicalize %s", name)
	}
	if !root.Contains(canonical) {
		return ValidatedPath{}, rejectf(ReasonOutsideRoot, name, "resolves outside root")
	}
	if canonical != lexical {
		return ValidatedPath{}, rejectf(ReasonSymlink, name, "symlink in path chain")
	}

	return ValidatedPath{Path: canonical, RelPath: clean, Info: info}, nil
}
