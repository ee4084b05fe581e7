package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"town-challenge-service/internal/domain"
)

// HighScoreStore keeps best scores in one sorted set per (type, difficulty).
// ZADD GT keeps the stored score monotonic non-decreasing per member.
type HighScoreStore struct {
	client *redis.Client
}

func NewHighScoreStore(client *redis.Client) *HighScoreStore {
	return &HighScoreStore{client: client}
}

func (s *HighScoreStore) Record(ctx context.Context, score domain.HighScore) (bool, error) {
	key := s.key(score.ChallengeType, score.Difficulty)
	previous, err := s.client.ZScore(ctx, key, score.UserID).Result()
	missing := err == redis.Nil
	if err != nil && !missing {
		return false, fmt.Errorf("highscore read: %w", err)
	}
	err = s.client.ZAddGT(ctx, key, redis.Z{
		Score:  float64(score.BestScore),
		Member: score.UserID,
	}).Err()
	if err != nil {
		return false, fmt.Errorf("highscore update: %w", err)
	}
	return missing || float64(score.BestScore) > previous, nil
}

func (s *HighScoreStore) Best(ctx context.Context, userID, challengeType string, difficulty domain.Difficulty) (int, error) {
	best, err := s.client.ZScore(ctx, s.key(challengeType, difficulty), userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("highscore read: %w", err)
	}
	return int(best), nil
}

func (s *HighScoreStore) key(challengeType string, difficulty domain.Difficulty) string {
	return fmt.Sprintf("challenge:highscore:%s:%s", challengeType, difficulty)
}
