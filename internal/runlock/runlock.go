// Package runlock serializes reconciliation runs per scope.
package runlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLocked is returned when another run holds the lock.
	ErrLocked = errors.New("runlock: a run is already in progress")
	// ErrNotHeld is returned when releasing a lock that expired or was taken over.
	ErrNotHeld = errors.New("runlock: lock not held")
)

// Locker hands out exclusive, expiring leases on a key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	// Extend pushes the expiry to ttl from now. It fails with ErrNotHeld once the lease
	// expired or was taken over.
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// KeepAlive extends lease every ttl/3 until the returned stop func is called. onLost is
// called once if an extension fails, after which renewal stops. stop waits for the
// renewal goroutine to exit.
func KeepAlive(ctx context.Context, lease Lease, ttl time.Duration, onLost func(error)) (stop func()) {
	interval := ttl / 3
	if interval <= 0 {
		return func() {}
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lease.Extend(ctx, ttl); err != nil {
					if onLost != nil {
						onLost(err)
					}
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
		})
	}
}

// MemoryLocker serializes runs inside one process.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryEntry), clock: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}

	token := uuid.New().String()
	l.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memoryLease) Extend(ctx context.Context, ttl time.Duration) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	now := m.locker.clock()
	e, ok := m.locker.held[m.key]
	if !ok || e.token != m.token || !now.Before(e.expires) {
		return ErrNotHeld
	}
	e.expires = now.Add(ttl)
	m.locker.held[m.key] = e
	return nil
}

func (m *memoryLease) Release(ctx context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	e, ok := m.locker.held[m.key]
	if !ok || e.token != m.token {
		return ErrNotHeld
	}
	delete(m.locker.held, m.key)
	return nil
}
