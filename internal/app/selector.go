package app

import (
	"math/rand"
	"sync"

	"town-challenge-service/internal/domain"
)

// Selector draws problem sets for new sessions. The randomness source is
// injected so tests can seed it deterministically.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector(rnd *rand.Rand) *Selector {
	return &Selector{rnd: rnd}
}

// Draw picks count problems uniformly at random from the bucket. When count
// fits within the bucket each problem appears at most once; larger counts
// fall back to sampling with replacement.
func (s *Selector) Draw(bucket []domain.Problem, count int) []domain.Problem {
	if len(bucket) == 0 || count <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drawn := make([]domain.Problem, 0, count)
	if count <= len(bucket) {
		for _, i := range s.rnd.Perm(len(bucket))[:count] {
			drawn = append(drawn, bucket[i])
		}
		return drawn
	}
	for i := 0; i < count; i++ {
		drawn = append(drawn, bucket[s.rnd.Intn(len(bucket))])
	}
	return drawn
}
