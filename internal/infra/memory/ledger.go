package memory

import (
	"context"
	"sort"
	"sync"

	"town-challenge-service/internal/domain"
)

// Ledger is an in-memory implementation of app.LedgerStore. Entries are
// keyed by session ID; recording the same session twice is a no-op, which is
// what makes reward replay safe.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]domain.LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]domain.LedgerEntry)}
}

func (l *Ledger) Record(_ context.Context, entry domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[entry.SessionID]; exists {
		return nil
	}
	l.entries[entry.SessionID] = entry
	return nil
}

func (l *Ledger) MarkCredited(_ context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	entry.Credited = true
	l.entries[sessionID] = entry
	return nil
}

func (l *Ledger) Pending(_ context.Context) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var pending []domain.LedgerEntry
	for _, entry := range l.entries {
		if !entry.Credited {
			pending = append(pending, entry)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].RecordedAt.Before(pending[j].RecordedAt)
	})
	return pending, nil
}

// Entries returns a copy of every entry, for tests and operator tooling.
func (l *Ledger) Entries() []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]domain.LedgerEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		entries = append(entries, entry)
	}
	return entries
}
