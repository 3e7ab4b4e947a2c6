package schedule

import (
	"context"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron runs a batch on a standard five-field cron expression or a
// descriptor such as "@every 10m". A tick that arrives while the previous
// batch is still running is skipped.
type Cron struct {
	spec   string
	run    RunFunc
	logger *zap.SugaredLogger
}

func NewCron(spec string, run RunFunc, log *zap.SugaredLogger) (*Cron, error) {
	if run == nil {
		return nil, errors.Fatalf("schedule: nil run function")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, errors.Fatal(errors.Wrapf(err, "invalid schedule %q", spec))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cron{spec: spec, run: run, logger: log}, nil
}

func (c *Cron) Run(ctx context.Context) error {
	cl := cronLogger{c.logger}
	sched := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := sched.AddFunc(c.spec, func() { c.run(ctx) }); err != nil {
		return errors.Wrapf(err, "add schedule %q", c.spec)
	}

	c.logger.Infow("schedule started", "schedule", c.spec)
	sched.Start()
	<-ctx.Done()

	// 等待正在执行的任务结束
	<-sched.Stop().Done()
	c.logger.Infow("schedule stopped", "schedule", c.spec)
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.l.Errorw(msg, append(keysAndValues, logger.FieldError, err)...)
}
