package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

var _ domain.LockManager = (*LocalLocks)(nil)

// LocalLocks is an in-process LockManager for single-node deployments where
// no Redis is configured. Expired entries are reclaimed on the next Acquire.
type LocalLocks struct {
	mu    sync.Mutex
	held  map[string]localLock
	now   func() time.Time
	nextN uint64
}

type localLock struct {
	token   uint64
	expires time.Time
}

// NewLocalLocks returns an empty lock table.
func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: make(map[string]localLock), now: time.Now}
}

// Acquire takes key for ttl or returns domain.ErrLockHeld.
func (l *LocalLocks) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, domain.ErrLockHeld
	}
	l.nextN++
	token := l.nextN
	l.held[key] = localLock{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.token == token {
				delete(l.held, key)
			}
		})
	}, nil
}
