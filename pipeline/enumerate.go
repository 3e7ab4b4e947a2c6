package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/ingest"
	"github.com/chaos-io/bgstrip/logger"
	"go.uber.org/zap"
)

// enumerate lists root down to maxDepth levels of subdirectories (0 means
// the root only). Directories are never returned as candidates and
// symlinked directories are returned as symlink candidates, not walked.
// The result is sorted by path.
func enumerate(ctx context.Context, root ingest.InputRoot, maxDepth int, log *zap.SugaredLogger) ([]ingest.CandidateEntry, error) {
	var out []ingest.CandidateEntry

	var walk func(rel string, depth int) error
	walk = func(rel string, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := os.ReadDir(filepath.Join(root.Path(), rel))
		if err != nil {
			return errors.Wrapf(err, "read directory %q", rel)
		}

		for _, e := range entries {
			childRel := filepath.Join(rel, e.Name())
			kind := ingest.KindOf(e.Type())

			if kind == ingest.KindDir {
				if depth >= maxDepth {
					log.Debugw("skipping subdirectory", logger.FieldFile, childRel)
					continue
				}
				if err := walk(childRel, depth+1); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Warnw("cannot read subdirectory", logger.FieldFile, childRel, logger.FieldError, err)
				}
				continue
			}

			out = append(out, ingest.CandidateEntry{RelPath: childRel, Kind: kind})
		}
		return nil
	}

	if err := walk("", 0); err != nil {
		return nil, err
	}
	return out, nil
}
