//go:build unix

package ingest

import (
	"os"

	"golang.org/x/sys/unix"
)

// openNoFollow opens path read-only, refusing a symlink in the final
// component. O_NONBLOCK keeps a fifo swapped in after resolution from
// blocking the open; the caller verifies the descriptor is a regular file.
func openNoFollow(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ELOOP {
			return nil, errSymlinkOpened
		}
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}
