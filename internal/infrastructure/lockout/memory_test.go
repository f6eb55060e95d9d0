package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreLocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(3, 60)
	s.now = func() time.Time { return now }

	s.RecordFailure(ctx, "10.0.0.1")
	s.RecordFailure(ctx, "10.0.0.1")
	locked, _ := s.IsLocked(ctx, "10.0.0.1")
	assert.False(t, locked)

	s.RecordFailure(ctx, "10.0.0.1")
	locked, retry := s.IsLocked(ctx, "10.0.0.1")
	assert.True(t, locked)
	assert.Equal(t, 60, retry)

	other, _ := s.IsLocked(ctx, "10.0.0.2")
	assert.False(t, other)

	now = now.Add(61 * time.Second)
	locked, _ = s.IsLocked(ctx, "10.0.0.1")
	assert.False(t, locked)

	// fresh count after the cooldown
	s.RecordFailure(ctx, "10.0.0.1")
	locked, _ = s.IsLocked(ctx, "10.0.0.1")
	assert.False(t, locked)
}

func TestMemoryStoreSuccessClears(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, 60)
	s.RecordFailure(ctx, "c")
	s.RecordSuccess(ctx, "c")
	s.RecordFailure(ctx, "c")
	locked, _ := s.IsLocked(ctx, "c")
	assert.False(t, locked)
}

func TestMemoryStoreDisabled(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 60)
	for i := 0; i < 10; i++ {
		s.RecordFailure(ctx, "c")
	}
	locked, _ := s.IsLocked(ctx, "c")
	assert.False(t, locked)
}
