package local

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// LockManager implements domain.LockManager within one process. Locks expire
// after their ttl like their Redis counterparts.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]uint64
	until map[string]time.Time
	seq   uint64
	now   func() time.Time
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager on the wall clock.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]uint64),
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Acquire returns domain.ErrLockHeld while another holder owns key.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.held[key]; ok && lm.now().Before(lm.until[key]) {
		return nil, domain.ErrLockHeld
	}
	lm.seq++
	token := lm.seq
	lm.held[key] = token
	lm.until[key] = lm.now().Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if lm.held[key] == token {
				delete(lm.held, key)
				delete(lm.until, key)
			}
		})
	}, nil
}
