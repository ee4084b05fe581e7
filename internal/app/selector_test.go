package app_test

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"town-challenge-service/internal/app"
	"town-challenge-service/internal/domain"
)

func selectorBucket(n int) []domain.Problem {
	bucket := make([]domain.Problem, n)
	for i := range bucket {
		bucket[i] = domain.Problem{ID: "p" + strconv.Itoa(i)}
	}
	return bucket
}

func TestDrawWithinBucketIsDistinct(t *testing.T) {
	selector := app.NewSelector(rand.New(rand.NewSource(1)))
	bucket := selectorBucket(10)

	drawn := selector.Draw(bucket, 6)
	assert.Len(t, drawn, 6)

	seen := make(map[string]bool)
	for _, problem := range drawn {
		assert.False(t, seen[problem.ID], "no repeats when count fits the bucket")
		seen[problem.ID] = true
	}
}

func TestDrawBeyondBucketSamplesWithReplacement(t *testing.T) {
	selector := app.NewSelector(rand.New(rand.NewSource(1)))
	bucket := selectorBucket(3)

	drawn := selector.Draw(bucket, 8)
	assert.Len(t, drawn, 8)
	for _, problem := range drawn {
		assert.Contains(t, []string{"p0", "p1", "p2"}, problem.ID)
	}
}

func TestDrawIsDeterministicForSeed(t *testing.T) {
	bucket := selectorBucket(12)
	first := app.NewSelector(rand.New(rand.NewSource(7))).Draw(bucket, 5)
	second := app.NewSelector(rand.New(rand.NewSource(7))).Draw(bucket, 5)
	assert.Equal(t, first, second)
}

func TestDrawEmptyBucket(t *testing.T) {
	selector := app.NewSelector(rand.New(rand.NewSource(1)))
	assert.Nil(t, selector.Draw(nil, 5))
	assert.Nil(t, selector.Draw(selectorBucket(3), 0))
}
