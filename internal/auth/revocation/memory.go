package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory revocation list for single-instance deployments
// and tests. Expired entries are pruned lazily on reads.
type Memory struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	clock   func() time.Time
}

type MemoryOption func(*Memory)

func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.clock = clock
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		revoked: make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = m.clock().Add(ttl)
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	m.mu.RLock()
	expiry, ok := m.revoked[jti]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if m.clock().After(expiry) {
		m.mu.Lock()
		delete(m.revoked, jti)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}
