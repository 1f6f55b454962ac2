// Package lock serializes distribution runs per context agent. Claims are
// read-modify-written during a run, so two runs over the same context agent
// must never interleave.
package lock

import (
	"context"
	"errors"
)

// ErrNotHeld is returned when releasing a lock that expired or was taken over.
var ErrNotHeld = errors.New("lock: not held")

// Release gives up a held lock.
type Release func(ctx context.Context) error

// Locker acquires exclusive locks by key, blocking until the lock is free
// or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Release, error)
}

// Key returns the lock key for distribution runs of a context agent.
func Key(contextAgent string) string {
	return "valueflow:distribute:" + contextAgent
}
