package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryLocker is the single-process locker used when no Redis address is
// configured.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLease
	now   func() time.Time
	nonce uint64
}

type memoryLease struct {
	nonce     uint64
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]memoryLease),
		now:  time.Now,
	}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		return nil, false, errors.New("lock ttl must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expiresAt) {
		return nil, false, nil
	}
	l.nonce++
	nonce := l.nonce
	l.held[key] = memoryLease{nonce: nonce, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.held[key]; ok && lease.nonce == nonce {
			delete(l.held, key)
		}
		return nil
	}
	return release, true, nil
}
