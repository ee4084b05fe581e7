package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"town-challenge-service/internal/domain"
	"town-challenge-service/internal/infra/memory"
)

// BankRepository caches problem buckets in Redis (JSON per bucket key) and
// falls back to a loader on cache miss. Buckets include correct answers and
// are only ever read server-side.
type BankRepository struct {
	client *redis.Client
	loader memory.BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewBankRepository(client *redis.Client, loader memory.BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *BankRepository) Problems(ctx context.Context, challengeType string, difficulty domain.Difficulty) ([]domain.Problem, error) {
	key := r.key(challengeType, difficulty)

	if problems, ok := r.cached(ctx, key); ok {
		return problems, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if problems, ok := r.cached(ctx, key); ok {
			return problems, nil
		}

		problems, err := r.loader.LoadBucket(ctx, challengeType, difficulty)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(problems)
		if err != nil {
			return nil, fmt.Errorf("marshal bucket: %w", err)
		}
		_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		return problems, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Problem), nil
}

func (r *BankRepository) cached(ctx context.Context, key string) ([]domain.Problem, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var problems []domain.Problem
	if err := json.Unmarshal(data, &problems); err != nil || len(problems) == 0 {
		return nil, false
	}
	return problems, true
}

func (r *BankRepository) key(challengeType string, difficulty domain.Difficulty) string {
	return fmt.Sprintf("challenge:bank:%s:%s", challengeType, difficulty)
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
