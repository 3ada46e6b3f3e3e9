package engine

import (
	"context"
	"sync"
)

// RunLock serializes runs per key (the account id). Waiting honors ctx.
type RunLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewRunLock() *RunLock {
	return &RunLock{slots: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the lock and must be called exactly once.
func (l *RunLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
