package schedule

import (
	"context"
	"time"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 2 * time.Second

// DirWatcher runs a batch once the watched directory has been quiet for
// the debounce period after a change. Only the directory itself is
// watched, not its subdirectories.
type DirWatcher struct {
	dir      string
	debounce time.Duration
	run      RunFunc
	watcher  *fsnotify.Watcher
	logger   *zap.SugaredLogger
}

// NewDirWatcher starts watching dir. Events that happen after it returns
// are observed by Run.
func NewDirWatcher(dir string, debounce time.Duration, run RunFunc, log *zap.SugaredLogger) (*DirWatcher, error) {
	if run == nil {
		return nil, errors.Fatalf("watch: nil run function")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.Nop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, errors.Fatal(errors.Wrapf(err, "failed to watch directory %s", dir))
	}

	return &DirWatcher{dir: dir, debounce: debounce, run: run, watcher: w, logger: log}, nil
}

// Run blocks until ctx is done and closes the watcher on return.
func (d *DirWatcher) Run(ctx context.Context) error {
	defer func() { _ = d.watcher.Close() }()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	d.logger.Infow("watching directory", logger.FieldFile, d.dir, "debounce", d.debounce.String())
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			d.logger.Debugw("directory changed", logger.FieldFile, event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(d.debounce)
			} else {
				timer.Reset(d.debounce)
			}
			fire = timer.C

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warnw("watcher error", logger.FieldError, err)

		case <-fire:
			fire = nil
			d.run(ctx)
		}
	}
}

func relevant(e fsnotify.Event) bool {
	return e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Rename) || e.Has(fsnotify.Remove)
}
