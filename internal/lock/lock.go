// Package lock serializes pipeline runs per entity.
//
// The dedup snapshot and the id lookup after an insert both assume that no
// other run writes the same entity at the same time. Local covers a single
// process; Redis covers several processes sharing a database.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned when the lock could not be taken in time.
var ErrLocked = errors.New("entity is locked by another run")

// Release gives a lock back. It is safe to call once.
type Release func(ctx context.Context) error

// Locker hands out named locks.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Key returns the lock name for an entity.
func Key(entity string) string {
	return "regingest:entity:" + entity
}

// Local is an in-process Locker.
type Local struct {
	wait time.Duration

	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocal creates a Local that waits up to wait for a held key.
// A zero wait fails immediately.
func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, held: make(map[string]chan struct{})}
}

// Acquire takes key, waiting while another holder has it.
func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	var timeout <-chan time.Time
	if l.wait > 0 {
		t := time.NewTimer(l.wait)
		defer t.Stop()
		timeout = t.C
	}

	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return l.releaser(key, done), nil
		}
		l.mu.Unlock()

		if timeout == nil {
			return nil, ErrLocked
		}
		select {
		case <-ch:
		case <-timeout:
			return nil, ErrLocked
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Local) releaser(key string, done chan struct{}) Release {
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key] == done {
				delete(l.held, key)
			}
			l.mu.Unlock()
			close(done)
		})
		return nil
	}
}
