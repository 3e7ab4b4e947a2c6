// Package server exposes batch runs over HTTP. Directories come from the
// server's configuration; requests never carry paths.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/logger"
	"github.com/chaos-io/bgstrip/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxRuns  = 100
	shutdownTimeout = 10 * time.Second
)

// Runner performs one batch under the given run ID.
type Runner func(ctx context.Context, runID string) (*pipeline.Report, error)

type Server struct {
	runner Runner
	store  *runStore
	engine *gin.Engine
	logger *zap.SugaredLogger

	// runs outlive the request that started them and stop on Close.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Options struct {
	// MaxRuns bounds how many finished runs are kept. Default DefaultMaxRuns.
	MaxRuns int
	Logger  *zap.SugaredLogger
}

func New(runner Runner, opts Options) (*Server, error) {
	if runner == nil {
		return nil, errors.Fatalf("server: nil runner")
	}
	if opts.MaxRuns <= 0 {
		opts.MaxRuns = DefaultMaxRuns
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner:  runner,
		store:   newRunStore(opts.MaxRuns),
		logger:  opts.Logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is done, then shuts down and
// cancels active runs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("http server listening", logger.FieldAddress, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}

// Close cancels active runs and waits for them to record their reports.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// start launches a run unless one is active.
func (s *Server) start() (string, bool) {
	id := ksuid.New().String()
	if active, ok := s.store.begin(id, time.Now()); !ok {
		return active, false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		report, err := s.safeRun(id)
		s.store.finish(id, report, err, time.Now())
		if err != nil {
			s.logger.Errorw("run failed", logger.FieldRunID, id, logger.FieldError, err)
			return
		}
		if report != nil {
			s.logger.Infow("run finished", logger.FieldRunID, id, logger.FieldCount, len(report.Results))
		}
	}()
	return id, true
}

func (s *Server) safeRun(id string) (report *pipeline.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("run panicked: %v", r)
		}
	}()
	return s.runner(s.baseCtx, id)
}
