// Package pipeline drives a batch: enumerate the input root, validate and
// decode each file, run background removal, write the results.
//
// Every enumerated file ends in exactly one Result. A rejection or failure
// of one file never stops the others; only misconfiguration detected in New
// or a failure to list the input root aborts a run.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/imagebuf"
	"github.com/chaos-io/bgstrip/ingest"
	"github.com/chaos-io/bgstrip/logger"
	"github.com/chaos-io/bgstrip/rembg"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultInferenceTimeout = 2 * time.Minute

type PathResolver interface {
	Resolve(root ingest.InputRoot, candidate ingest.CandidateEntry) (ingest.ValidatedPath, error)
}

type SizeGuard interface {
	Check(path ingest.ValidatedPath, budget ingest.Budget) error
}

type ImageLoader interface {
	Load(ctx context.Context, path ingest.ValidatedPath, budget ingest.Budget) (*imagebuf.RawImage, error)
}

// Options tunes a Pipeline. Zero values select the defaults.
type Options struct {
	// Workers bounds concurrent validation and decode. Default NumCPU.
	Workers int
	// InferenceConcurrency bounds concurrent remover calls. Default 1,
	// which serializes a non-reentrant model.
	InferenceConcurrency int
	// InferenceTimeout bounds each remover call. Negative disables it.
	InferenceTimeout time.Duration
	// MaxDepth is how many levels of subdirectories are walked.
	MaxDepth int

	Resolver PathResolver
	Guard    SizeGuard
	Loader   ImageLoader
	Logger   *zap.SugaredLogger
}

type Pipeline struct {
	root    ingest.InputRoot
	budget  ingest.Budget
	out     OutputDir
	remover rembg.Remover
	opts    Options
	slots   *slotPool
	logger  *zap.SugaredLogger
}

// New validates the configuration. All errors are fatal.
func New(root ingest.InputRoot, budget ingest.Budget, out OutputDir, remover rembg.Remover, opts Options) (*Pipeline, error) {
	if root.Path() == "" {
		return nil, errors.Fatalf("input root is not initialized")
	}
	if out.Path() == "" {
		return nil, errors.Fatalf("output directory is not initialized")
	}
	if !budget.Valid() {
		return nil, errors.Fatalf("decode budget is not initialized")
	}
	if remover == nil {
		return nil, errors.Fatalf("no background remover configured")
	}
	if opts.MaxDepth < 0 {
		return nil, errors.Fatalf("max depth must not be negative, got %d", opts.MaxDepth)
	}
	if err := checkOutsideInput(root.Path(), out.Path()); err != nil {
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.InferenceConcurrency <= 0 {
		opts.InferenceConcurrency = 1
	}
	if opts.InferenceTimeout == 0 {
		opts.InferenceTimeout = DefaultInferenceTimeout
	}
	if opts.Resolver == nil {
		opts.Resolver = ingest.NewResolver()
	}
	if opts.Guard == nil {
		opts.Guard = ingest.NewGuard()
	}
	if opts.Loader == nil {
		opts.Loader = ingest.NewLoader()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	return &Pipeline{
		root:    root,
		budget:  budget,
		out:     out,
		remover: remover,
		opts:    opts,
		slots:   newSlotPool(opts.InferenceConcurrency),
		logger:  opts.Logger,
	}, nil
}

// Run processes the batch. The returned report holds every result produced
// so far even when ctx is canceled; the error is then ctx.Err().
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	return p.RunWithID(ctx, ksuid.New().String())
}

// RunWithID is Run with a caller-chosen run ID.
func (p *Pipeline) RunWithID(ctx context.Context, runID string) (*Report, error) {
	report := &Report{
		RunID:     runID,
		InputRoot: p.root.Path(),
		OutputDir: p.out.Path(),
		StartedAt: time.Now(),
	}
	log := p.logger.With(logger.FieldRunID, report.RunID)

	candidates, err := enumerate(ctx, p.root, p.opts.MaxDepth, log)
	if err != nil {
		report.FinishedAt = time.Now()
		if ctx.Err() != nil {
			report.Canceled = true
			return report, ctx.Err()
		}
		return nil, errors.Fatal(err)
	}
	names := outputNames(candidates)
	log.Infow("starting batch", logger.FieldCount, len(candidates), "input", p.root.Path(), logger.FieldOutput, p.out.Path())

	col := &collector{}
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			col.add(p.process(ctx, c, names[c.RelPath], log))
			return nil
		})
	}
	_ = g.Wait()

	report.Results = col.sorted()
	report.FinishedAt = time.Now()

	counts := report.Counts()
	log.Infow("batch completed",
		"succeeded", counts.Succeeded,
		"rejected", counts.Rejected,
		"failed", counts.Failed,
		logger.FieldDurationMS, report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		logger.FieldOutput, p.out.Path())

	if err := ctx.Err(); err != nil {
		report.Canceled = true
		return report, err
	}
	return report, nil
}

// process runs one candidate through every stage and never panics.
func (p *Pipeline) process(ctx context.Context, c ingest.CandidateEntry, outName string, log *zap.SugaredLogger) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Input: c.RelPath, Status: StatusFailed, Reason: FailInternal, Detail: fmt.Sprintf("panic: %v", r)}
		}
		res.Duration = time.Since(start)
		logResult(log, res)
	}()

	if err := ctx.Err(); err != nil {
		return failed(c.RelPath, FailCanceled, err)
	}

	// 1. 路径与符号链接校验
	vp, err := p.opts.Resolver.Resolve(p.root, c)
	if err != nil {
		return classify(ctx, c.RelPath, err)
	}

	// 2. 文件大小上限，不打开文件
	if err := p.opts.Guard.Check(vp, p.budget); err != nil {
		return classify(ctx, c.RelPath, err)
	}

	if !safeOutputName(outName) {
		return rejected(c.RelPath, ingest.ReasonUnsafeOutputName, fmt.Sprintf("derived name %q", outName))
	}

	// 3. 有界解码
	raw, err := p.opts.Loader.Load(ctx, vp, p.budget)
	if err != nil {
		return classify(ctx, c.RelPath, err)
	}

	// 4. 背景去除
	processed, err := p.infer(ctx, raw)
	if err != nil {
		return classifyInference(ctx, c.RelPath, err)
	}
	if err := processed.Validate(); err != nil {
		return failed(c.RelPath, FailInference, err)
	}
	if !processed.SameDimensions(raw) {
		return failed(c.RelPath, FailInference, errors.Newf("remover returned %dx%d for %dx%d input",
			processed.Width, processed.Height, raw.Width, raw.Height))
	}

	// 5. 写出 PNG
	path, err := p.out.Write(outName, processed)
	if err != nil {
		return classify(ctx, c.RelPath, err)
	}

	return Result{Input: c.RelPath, Status: StatusSucceeded, Output: path}
}

func classify(ctx context.Context, input string, err error) Result {
	if reason, ok := ingest.ReasonOf(err); ok {
		return rejected(input, reason, err.Error())
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return failed(input, FailCanceled, err)
	}
	return failed(input, FailIO, err)
}

func classifyInference(ctx context.Context, input string, err error) Result {
	switch {
	case errors.Is(err, errInferenceTimeout):
		return failed(input, FailTimeout, err)
	case ctx.Err() != nil:
		return failed(input, FailCanceled, err)
	case errors.Is(err, errRemoverPanic):
		return failed(input, FailInternal, err)
	default:
		return failed(input, FailInference, err)
	}
}

func rejected(input string, reason ingest.Reason, detail string) Result {
	return Result{Input: input, Status: StatusRejected, Reason: string(reason), Detail: detail}
}

func failed(input, reason string, err error) Result {
	return Result{Input: input, Status: StatusFailed, Reason: reason, Detail: err.Error()}
}

func logResult(log *zap.SugaredLogger, res Result) {
	fields := []interface{}{
		logger.FieldFile, res.Input,
		logger.FieldStatus, string(res.Status),
		logger.FieldDurationMS, res.Duration.Milliseconds(),
	}
	switch res.Status {
	case StatusSucceeded:
		log.Infow("processed", append(fields, logger.FieldOutput, res.Output)...)
	case StatusRejected:
		log.Warnw("rejected", append(fields, logger.FieldReason, res.Reason, "detail", res.Detail)...)
	default:
		log.Errorw("failed", append(fields, logger.FieldReason, res.Reason, "detail", res.Detail)...)
	}
}
