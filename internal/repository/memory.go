package repository

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLocker serializes writers per facility within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[int64]chan struct{})}
}

func (l *MemoryLocker) slot(facilityID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[facilityID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[facilityID] = ch
	}
	return ch
}

func (l *MemoryLocker) Lock(ctx context.Context, facilityID int64) (func(), error) {
	ch := l.slot(facilityID)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire lock for facility %d: %w", facilityID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
