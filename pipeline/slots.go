package pipeline

import (
	"context"
	"sync"
)

// slotPool limits how many remover calls run at once.
//
// A call that is abandoned (its caller returned on timeout or cancellation
// while the remover kept running) still holds its slot until the remover
// returns. Once every slot is held by an abandoned call the runtime is
// wedged and acquire fails with errInferenceTimeout instead of waiting.
type slotPool struct {
	mu      sync.Mutex
	size    int
	busy    int
	stuck   int
	changed chan struct{}
}

// slotCall tracks one acquired slot. Fields are guarded by slotPool.mu.
type slotCall struct {
	finished  bool
	abandoned bool
}

func newSlotPool(size int) *slotPool {
	return &slotPool{size: size, changed: make(chan struct{})}
}

func (s *slotPool) acquire(ctx context.Context) (*slotCall, error) {
	for {
		s.mu.Lock()
		if s.busy < s.size {
			s.busy++
			s.mu.Unlock()
			return &slotCall{}, nil
		}
		if s.stuck >= s.size {
			s.mu.Unlock()
			return nil, errInferenceTimeout
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// release is called once the remover returns.
func (s *slotPool) release(c *slotCall) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.finished = true
	s.busy--
	if c.abandoned {
		s.stuck--
	}
	s.notify()
}

// abandon marks a call whose caller stopped waiting. No-op if the remover
// already returned.
func (s *slotPool) abandon(c *slotCall) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.finished || c.abandoned {
		return
	}
	c.abandoned = true
	s.stuck++
	s.notify()
}

// notify wakes every waiter. Callers hold mu.
func (s *slotPool) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}
