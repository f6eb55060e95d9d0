package lockout

import (
	"context"
	"sync"
	"time"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
)

type entry struct {
	failures    int
	lockedUntil time.Time
}

// MemoryStore is an in-memory LockoutStore for a single instance.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]*entry
	max      int
	cooldown time.Duration
	now      func() time.Time
}

// NewMemoryStore returns a lockout store with given max attempts and cooldown. maxAttempts 0 = disabled.
func NewMemoryStore(maxAttempts, cooldownSeconds int) *MemoryStore {
	cd := time.Duration(cooldownSeconds) * time.Second
	if cd <= 0 {
		cd = 15 * time.Minute
	}
	return &MemoryStore{
		data:     make(map[string]*entry),
		max:      maxAttempts,
		cooldown: cd,
		now:      time.Now,
	}
}

func (s *MemoryStore) IsLocked(ctx context.Context, client string) (locked bool, retryAfterSeconds int) {
	if s.max <= 0 {
		return false, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[client]
	if !ok {
		return false, 0
	}
	remaining := e.lockedUntil.Sub(s.now())
	if remaining <= 0 {
		return false, 0
	}
	secs := int(remaining.Seconds())
	if secs < 1 {
		secs = 1
	}
	return true, secs
}

func (s *MemoryStore) RecordFailure(ctx context.Context, client string) {
	if s.max <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.data[client]
	if e == nil {
		e = &entry{}
		s.data[client] = e
	}
	// an expired lock starts a fresh count
	now := s.now()
	if !e.lockedUntil.IsZero() && now.After(e.lockedUntil) {
		e.failures = 0
		e.lockedUntil = time.Time{}
	}
	e.failures++
	if e.failures >= s.max {
		e.lockedUntil = now.Add(s.cooldown)
	}
}

func (s *MemoryStore) RecordSuccess(ctx context.Context, client string) {
	if s.max <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, client)
}

var _ ports.LockoutStore = (*MemoryStore)(nil)
