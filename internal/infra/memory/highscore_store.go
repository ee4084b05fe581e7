package memory

import (
	"context"
	"sync"

	"town-challenge-service/internal/domain"
)

// HighScoreStore keeps best scores in a mutex-guarded map.
type HighScoreStore struct {
	mu     sync.Mutex
	scores map[string]int
}

func NewHighScoreStore() *HighScoreStore {
	return &HighScoreStore{scores: make(map[string]int)}
}

func (s *HighScoreStore) Record(_ context.Context, score domain.HighScore) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scoreKey(score.UserID, score.ChallengeType, score.Difficulty)
	previous, exists := s.scores[key]
	if exists && score.BestScore <= previous {
		return false, nil
	}
	s.scores[key] = score.BestScore
	return true, nil
}

func (s *HighScoreStore) Best(_ context.Context, userID, challengeType string, difficulty domain.Difficulty) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[scoreKey(userID, challengeType, difficulty)], nil
}

func scoreKey(userID, challengeType string, difficulty domain.Difficulty) string {
	return userID + "|" + challengeType + "|" + string(difficulty)
}
