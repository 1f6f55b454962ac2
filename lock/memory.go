package lock

import (
	"context"
	"sync"
)

// Memory is an in-process Locker. Each key is a one-slot channel so a
// waiter can give up when its context is cancelled.
type Memory struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemory returns an in-process Locker.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]chan struct{})}
}

func (m *Memory) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.slots[key] = ch
	}
	return ch
}

// Lock blocks until key is free or ctx is done.
func (m *Memory) Lock(ctx context.Context, key string) (Release, error) {
	ch := m.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			<-ch
			err = nil
		})
		return err
	}, nil
}
