package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"town-challenge-service/internal/domain"
)

// BankLoader fetches a problem bucket from a backing store (files, Postgres).
type BankLoader interface {
	LoadBucket(ctx context.Context, challengeType string, difficulty domain.Difficulty) ([]domain.Problem, error)
}

// BankRepository caches problem buckets with TTL to avoid repeated loads.
// Buckets hold correct answers, so the cache stays server-side only.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedBucket
}

type cachedBucket struct {
	problems  []domain.Problem
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBucket),
	}
}

func (r *BankRepository) Problems(ctx context.Context, challengeType string, difficulty domain.Difficulty) ([]domain.Problem, error) {
	key := challengeType + "|" + string(difficulty)
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.problems, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.problems, nil
		}
		r.mu.RUnlock()

		problems, err := r.loader.LoadBucket(ctx, challengeType, difficulty)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = cachedBucket{
			problems:  problems,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return problems, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Problem), nil
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticBankLoader serves buckets from an in-memory map (tests/demos).
type StaticBankLoader struct {
	buckets map[string]map[domain.Difficulty][]domain.Problem
}

func NewStaticBankLoader(buckets map[string]map[domain.Difficulty][]domain.Problem) *StaticBankLoader {
	return &StaticBankLoader{buckets: buckets}
}

func (l *StaticBankLoader) LoadBucket(_ context.Context, challengeType string, difficulty domain.Difficulty) ([]domain.Problem, error) {
	if byDifficulty, ok := l.buckets[challengeType]; ok {
		if problems, ok := byDifficulty[difficulty]; ok && len(problems) > 0 {
			return problems, nil
		}
	}
	return nil, domain.ErrChallengeNotFound
}
