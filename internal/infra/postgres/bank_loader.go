package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"town-challenge-service/internal/domain"
)

// BankLoader loads problem buckets stored as JSONB rows, one per
// (challenge_type, difficulty) pair.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBucket(ctx context.Context, challengeType string, difficulty domain.Difficulty) ([]domain.Problem, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx,
		`SELECT problems FROM problem_banks WHERE challenge_type=$1 AND difficulty=$2`,
		challengeType, string(difficulty),
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load bucket %s/%s: %w", challengeType, difficulty, err)
	}
	var problems []domain.Problem
	if err := json.Unmarshal(raw, &problems); err != nil {
		return nil, fmt.Errorf("unmarshal bucket %s/%s: %w", challengeType, difficulty, err)
	}
	return problems, nil
}
