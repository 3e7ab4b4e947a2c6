package util

import (
	"io"
	"os"
	"path/filepath"

	"github.com/chaos-io/bgstrip/errors"
)

// WriteFileAtomic 原子写入：先写同目录临时文件，再 rename 到 name
//
// name must be a single path element inside dir. The destination is
// replaced as a directory entry, so a symlink planted at that name is
// overwritten rather than followed.
func WriteFileAtomic(dir, name string, perm os.FileMode, write func(w io.Writer) error) (err error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return errors.Newf("invalid file name %q", name)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err = os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}

// CheckWritableDir creates dir if needed and proves it accepts new files.
func CheckWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create directory %q", dir)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return errors.Wrapf(err, "directory %q is not writable", dir)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
