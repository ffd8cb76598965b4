// ABOUTME: Per-user import leases so two imports for one user never overlap
// ABOUTME: In-process locker for single binaries and a Redis locker for multiple workers
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrLocked means the key is held by someone else.
var ErrLocked = errors.New("lock is held")

// Release gives a lease back. Calling it more than once is safe.
type Release func()

// Locker hands out expiring leases keyed by string.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

type lease struct {
	owner     string
	expiresAt time.Time
}

// MemoryLocker is a Locker for a single process.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	clock  func() time.Time
}

// NewMemoryLocker creates an in-process locker. A nil clock means time.Now.
func NewMemoryLocker(clock func() time.Time) *MemoryLocker {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLocker{
		leases: make(map[string]lease),
		clock:  clock,
	}
}

// Acquire takes the lease for key, or fails with ErrLocked while an
// unexpired lease exists.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if held, ok := l.leases[key]; ok && now.Before(held.expiresAt) {
		return nil, ErrLocked
	}

	owner := ulid.Make().String()
	l.leases[key] = lease{owner: owner, expiresAt: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// An expired lease may have been taken over; leave the new owner alone.
			if held, ok := l.leases[key]; ok && held.owner == owner {
				delete(l.leases, key)
			}
		})
	}, nil
}
