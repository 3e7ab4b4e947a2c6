package pipeline

import (
	"context"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/imagebuf"
)

var (
	errInferenceTimeout = errors.New("inference timed out")
	errRemoverPanic     = errors.New("remover panicked")
)

type inferOutcome struct {
	img *imagebuf.ProcessedImage
	err error
}

// infer runs the remover under the inference slot limit and timeout.
//
// The slot is taken before the timeout starts and is given back only when
// the remover returns. A call abandoned on timeout keeps holding its slot,
// so a non-reentrant runtime is never entered twice. When all slots are
// held by abandoned calls, later files fail with a timeout right away.
func (p *Pipeline) infer(ctx context.Context, raw *imagebuf.RawImage) (*imagebuf.ProcessedImage, error) {
	slot, err := p.slots.acquire(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.opts.InferenceTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.opts.InferenceTimeout)
	}
	defer cancel()

	done := make(chan inferOutcome, 1)
	go func() {
		defer p.slots.release(slot)
		defer func() {
			if r := recover(); r != nil {
				done <- inferOutcome{err: errors.Mark(errors.Newf("remover panic: %v", r), errRemoverPanic)}
			}
		}()

		img, err := p.remover.Remove(callCtx, raw)
		done <- inferOutcome{img: img, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, errInferenceTimeout
		}
		return out.img, out.err
	case <-callCtx.Done():
		p.slots.abandon(slot)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errInferenceTimeout
	}
}
