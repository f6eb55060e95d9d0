package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// RunLedger keeps the latest run per user in memory. Used when DATABASE_URL is not set.
type RunLedger struct {
	mu     sync.RWMutex
	latest map[domain.UserID]domain.RunRef
}

func NewRunLedger() *RunLedger {
	return &RunLedger{latest: make(map[domain.UserID]domain.RunRef)}
}

func (l *RunLedger) Record(ctx context.Context, report domain.Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest[report.UserID] = domain.RunRef{
		RunID:        report.RunID,
		UserID:       report.UserID,
		RequestID:    report.RequestID,
		PhotoRef:     report.PhotoRef,
		PhotoDeleted: report.PhotoDeleted,
		Success:      report.Success,
		Truncated:    report.Truncated(),
		FinishedAt:   report.FinishedAt,
	}
	return nil
}

func (l *RunLedger) ListIncomplete(ctx context.Context, finishedBefore time.Time, limit int) ([]domain.RunRef, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.RunRef
	for _, r := range l.latest {
		if (!r.Success || r.Truncated) && r.FinishedAt.Before(finishedBefore) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.Before(out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *RunLedger) Latest(ctx context.Context, userID domain.UserID) (*domain.RunRef, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.latest[userID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

var _ ports.RunLedger = (*RunLedger)(nil)
