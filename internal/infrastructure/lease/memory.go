// Package lease provides exclusive, TTL-bounded leases guarding matcher runs.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/google/uuid"
)

// leaseItem is one held key with its owner token and expiration
type leaseItem struct {
	Token      string
	Expiration time.Time
}

// MemoryLocker is a process-local locker with TTL support
type MemoryLocker struct {
	data  map[string]leaseItem
	mutex sync.Mutex
	now   func() time.Time
}

// NewMemoryLocker creates a new in-memory locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		data: make(map[string]leaseItem),
		now:  time.Now,
	}
}

// Acquire takes key for ttl. It fails with ErrLeaseNotAcquired while another holder's lease is live.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	if item, exists := l.data[key]; exists && now.Before(item.Expiration) {
		return nil, domain.ErrLeaseNotAcquired
	}

	token := uuid.NewString()
	l.data[key] = leaseItem{
		Token:      token,
		Expiration: now.Add(ttl),
	}

	return &memoryLock{locker: l, key: key, token: token}, nil
}

// Held reports whether key is currently leased
func (l *MemoryLocker) Held(key string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	item, exists := l.data[key]
	return exists && l.now().Before(item.Expiration)
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	token  string
}

// Refresh pushes the expiration to ttl from now if this lock still owns the key
func (lock *memoryLock) Refresh(ctx context.Context, ttl time.Duration) error {
	l := lock.locker
	l.mutex.Lock()
	defer l.mutex.Unlock()

	item, exists := l.data[lock.key]
	if !exists || item.Token != lock.token {
		return domain.ErrLeaseNotHeld
	}

	item.Expiration = l.now().Add(ttl)
	l.data[lock.key] = item
	return nil
}

// Release frees the key if this lock still owns it
func (lock *memoryLock) Release(ctx context.Context) error {
	l := lock.locker
	l.mutex.Lock()
	defer l.mutex.Unlock()

	item, exists := l.data[lock.key]
	if !exists || item.Token != lock.token {
		return domain.ErrLeaseNotHeld
	}

	delete(l.data, lock.key)
	return nil
}
