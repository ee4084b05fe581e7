package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"town-challenge-service/internal/domain"
)

// QuotaTracker implements app.QuotaTracker on Redis. The counter key is
// stamped with the current window start, so a new window naturally begins at
// zero; INCR makes the check-and-increment atomic across instances.
type QuotaTracker struct {
	client    *redis.Client
	resetHour int
	clock     func() time.Time
}

func NewQuotaTracker(client *redis.Client, resetHour int) *QuotaTracker {
	return &QuotaTracker{client: client, resetHour: resetHour, clock: time.Now}
}

// NewQuotaTrackerWithClock is test-only for deterministic windows.
func NewQuotaTrackerWithClock(client *redis.Client, resetHour int, clock func() time.Time) *QuotaTracker {
	tracker := NewQuotaTracker(client, resetHour)
	tracker.clock = clock
	return tracker
}

func (t *QuotaTracker) TryConsume(ctx context.Context, userID, challengeType string, limit int) (bool, int, error) {
	windowStart := domain.QuotaWindowStart(t.clock(), t.resetHour)
	key := t.key(userID, challengeType, windowStart)

	used, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("quota incr: %w", err)
	}
	if used == 1 {
		// keep counters around a little past the window for inspection
		_ = t.client.ExpireAt(ctx, key, domain.QuotaWindowEnd(windowStart).Add(time.Hour)).Err()
	}
	if used > int64(limit) {
		// hand the slot back; the increment that overshot never admits
		_ = t.client.Decr(ctx, key).Err()
		return false, 0, nil
	}
	return true, limit - int(used), nil
}

func (t *QuotaTracker) Remaining(ctx context.Context, userID, challengeType string, limit int) (int, error) {
	windowStart := domain.QuotaWindowStart(t.clock(), t.resetHour)
	used, err := t.client.Get(ctx, t.key(userID, challengeType, windowStart)).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota get: %w", err)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (t *QuotaTracker) key(userID, challengeType string, windowStart time.Time) string {
	return fmt.Sprintf("challenge:quota:%s:%s:%d", userID, challengeType, windowStart.Unix())
}
