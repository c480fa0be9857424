package tokens

import (
	"context"
	"sync"
	"time"
)

// Blacklist records revoked refresh-token IDs until they would have
// expired anyway. Implementations must make Add/Contains atomic.
type Blacklist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// MemoryBlacklist is a process-local Blacklist. It is suitable for
// single-instance deployments and tests; multi-instance deployments
// should use the Redis backend.
type MemoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{revoked: make(map[string]time.Time)}
}

func (b *MemoryBlacklist) Add(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()
	b.revoked[jti] = time.Now().Add(ttl)
	return nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()
	_, ok := b.revoked[jti]
	return ok, nil
}

// prune drops entries whose tokens have expired. Callers hold the lock.
func (b *MemoryBlacklist) prune() {
	now := time.Now()
	for jti, expiry := range b.revoked {
		if now.After(expiry) {
			delete(b.revoked, jti)
		}
	}
}
