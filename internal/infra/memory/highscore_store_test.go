package memory

import (
	"context"
	"testing"

	"town-challenge-service/internal/domain"
)

func TestHighScoreStoreMonotonic(t *testing.T) {
	store := NewHighScoreStore()
	ctx := context.Background()

	improved, err := store.Record(ctx, domain.HighScore{
		UserID: "u1", ChallengeType: "math", Difficulty: domain.DifficultyEasy, BestScore: 3,
	})
	if err != nil || !improved {
		t.Fatalf("first record should improve: improved=%v err=%v", improved, err)
	}

	improved, _ = store.Record(ctx, domain.HighScore{
		UserID: "u1", ChallengeType: "math", Difficulty: domain.DifficultyEasy, BestScore: 2,
	})
	if improved {
		t.Fatalf("lower score must not improve")
	}
	if best, _ := store.Best(ctx, "u1", "math", domain.DifficultyEasy); best != 3 {
		t.Fatalf("expected best 3, got %d", best)
	}

	improved, _ = store.Record(ctx, domain.HighScore{
		UserID: "u1", ChallengeType: "math", Difficulty: domain.DifficultyEasy, BestScore: 3,
	})
	if improved {
		t.Fatalf("equal score must not improve")
	}

	if best, _ := store.Best(ctx, "u1", "math", domain.DifficultyHard); best != 0 {
		t.Fatalf("other difficulty should be empty, got %d", best)
	}
}
