package memory

import (
	"context"
	"sync"
	"time"

	"town-challenge-service/internal/domain"
)

// QuotaTracker is an in-memory implementation of app.QuotaTracker. The
// check-and-increment runs under one lock so concurrent starts near the
// quota boundary cannot both be admitted.
type QuotaTracker struct {
	mu        sync.Mutex
	resetHour int
	clock     func() time.Time
	records   map[string]*domain.QuotaRecord
}

func NewQuotaTracker(resetHour int) *QuotaTracker {
	return &QuotaTracker{
		resetHour: resetHour,
		clock:     time.Now,
		records:   make(map[string]*domain.QuotaRecord),
	}
}

// NewQuotaTrackerWithClock is test-only for deterministic windows.
func NewQuotaTrackerWithClock(resetHour int, clock func() time.Time) *QuotaTracker {
	tracker := NewQuotaTracker(resetHour)
	tracker.clock = clock
	return tracker
}

func (t *QuotaTracker) TryConsume(_ context.Context, userID, challengeType string, limit int) (bool, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record := t.currentLocked(userID, challengeType)
	if record.PlaysUsed >= limit {
		return false, 0, nil
	}
	record.PlaysUsed++
	return true, limit - record.PlaysUsed, nil
}

func (t *QuotaTracker) Remaining(_ context.Context, userID, challengeType string, limit int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record := t.currentLocked(userID, challengeType)
	remaining := limit - record.PlaysUsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// currentLocked returns the record for the current window, resetting the
// counter whenever the window has advanced past the stored boundary.
func (t *QuotaTracker) currentLocked(userID, challengeType string) *domain.QuotaRecord {
	key := userID + "|" + challengeType
	windowStart := domain.QuotaWindowStart(t.clock(), t.resetHour)
	record, ok := t.records[key]
	if !ok || !record.WindowStart.Equal(windowStart) {
		record = &domain.QuotaRecord{
			UserID:        userID,
			ChallengeType: challengeType,
			WindowStart:   windowStart,
		}
		t.records[key] = record
	}
	return record
}
