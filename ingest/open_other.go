//go:build !unix

package ingest

import "os"

// openNoFollow opens path and then re-checks the entry with Lstat. The
// caller still compares the descriptor with the resolver's metadata.
func openNoFollow(path string) (*os.File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, errSymlinkOpened
	}
	return os.Open(path)
}
