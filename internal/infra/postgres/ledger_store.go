package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"town-challenge-service/internal/domain"
)

type ledgerRow struct {
	bun.BaseModel `bun:"table:reward_ledger"`

	SessionID        string    `bun:"session_id,pk"`
	UserID           string    `bun:"user_id,notnull"`
	ChallengeType    string    `bun:"challenge_type,notnull"`
	Earnings         int       `bun:"earnings,notnull"`
	ExperiencePoints int       `bun:"experience_points,notnull"`
	Credited         bool      `bun:"credited,notnull"`
	RecordedAt       time.Time `bun:"recorded_at,notnull"`
}

// LedgerStore persists reward ledger entries in Postgres. Inserts are keyed
// by session_id with conflict-ignore, so replaying a finish cannot write a
// second credit.
type LedgerStore struct {
	db *bun.DB
}

func NewLedgerStore(db *bun.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Record(ctx context.Context, entry domain.LedgerEntry) error {
	row := ledgerRow{
		SessionID:        entry.SessionID,
		UserID:           entry.UserID,
		ChallengeType:    entry.ChallengeType,
		Earnings:         entry.Earnings,
		ExperiencePoints: entry.ExperiencePoints,
		Credited:         entry.Credited,
		RecordedAt:       entry.RecordedAt,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (session_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

func (s *LedgerStore) MarkCredited(ctx context.Context, sessionID string) error {
	_, err := s.db.NewUpdate().
		Model((*ledgerRow)(nil)).
		Set("credited = TRUE").
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark credited: %w", err)
	}
	return nil
}

func (s *LedgerStore) Pending(ctx context.Context) ([]domain.LedgerEntry, error) {
	var rows []ledgerRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("credited = FALSE").
		Order("recorded_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending credits: %w", err)
	}
	entries := make([]domain.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.LedgerEntry{
			SessionID:        row.SessionID,
			UserID:           row.UserID,
			ChallengeType:    row.ChallengeType,
			Earnings:         row.Earnings,
			ExperiencePoints: row.ExperiencePoints,
			Credited:         row.Credited,
			RecordedAt:       row.RecordedAt,
		})
	}
	return entries, nil
}
