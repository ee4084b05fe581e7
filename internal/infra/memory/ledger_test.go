package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"town-challenge-service/internal/domain"
)

func TestLedgerRecordIsIdempotent(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	first := domain.LedgerEntry{SessionID: "s1", UserID: "u1", Earnings: 20, RecordedAt: time.Now()}
	if err := ledger.Record(ctx, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Replaying with different amounts must not overwrite the original entry.
	replay := first
	replay.Earnings = 999
	if err := ledger.Record(ctx, replay); err != nil {
		t.Fatalf("replay record: %v", err)
	}

	entries := ledger.Entries()
	if len(entries) != 1 || entries[0].Earnings != 20 {
		t.Fatalf("expected single original entry, got %+v", entries)
	}
}

func TestLedgerPendingAndMarkCredited(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	base := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	_ = ledger.Record(ctx, domain.LedgerEntry{SessionID: "s2", RecordedAt: base.Add(time.Minute)})
	_ = ledger.Record(ctx, domain.LedgerEntry{SessionID: "s1", RecordedAt: base})

	pending, err := ledger.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].SessionID != "s1" {
		t.Fatalf("expected oldest-first pending, got %+v", pending)
	}

	if err := ledger.MarkCredited(ctx, "s1"); err != nil {
		t.Fatalf("mark credited: %v", err)
	}
	pending, _ = ledger.Pending(ctx)
	if len(pending) != 1 || pending[0].SessionID != "s2" {
		t.Fatalf("expected s2 still pending, got %+v", pending)
	}

	if err := ledger.MarkCredited(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
