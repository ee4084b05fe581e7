package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"town-challenge-service/internal/app"
	"town-challenge-service/internal/domain"
)

// SessionStore decorates an inner store with Redis liveness markers.
// Notes:
//   - Session state itself stays in the inner store so the atomic
//     transitions keep their single-lock guarantees.
//   - Redis marks which sessions are live (and could be extended to share
//     session snapshots for cross-instance routing).
type SessionStore struct {
	inner  app.SessionStore
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(inner app.SessionStore, client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{inner: inner, client: client, ttl: ttl}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	if err := s.inner.Create(ctx, session); err != nil {
		return err
	}
	// best-effort liveness marker
	_ = s.client.Set(ctx, s.key(session.ID), session.UserID, s.ttl).Err()
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.inner.Get(ctx, sessionID)
}

func (s *SessionStore) AppendAnswer(ctx context.Context, sessionID string, problemIndex int, value string) (*domain.Session, error) {
	return s.inner.AppendAnswer(ctx, sessionID, problemIndex, value)
}

func (s *SessionStore) TransitionToGrading(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.inner.TransitionToGrading(ctx, sessionID)
}

func (s *SessionStore) Finalize(ctx context.Context, sessionID string, result domain.SessionResult, at time.Time) error {
	if err := s.inner.Finalize(ctx, sessionID, result, at); err != nil {
		return err
	}
	_ = s.client.Del(ctx, s.key(sessionID)).Err()
	return nil
}

func (s *SessionStore) Abort(ctx context.Context, sessionID string, at time.Time) error {
	if err := s.inner.Abort(ctx, sessionID, at); err != nil {
		return err
	}
	_ = s.client.Del(ctx, s.key(sessionID)).Err()
	return nil
}

func (s *SessionStore) ActiveSession(ctx context.Context, userID, challengeType string) (*domain.Session, error) {
	return s.inner.ActiveSession(ctx, userID, challengeType)
}

func (s *SessionStore) ExpiredInProgress(ctx context.Context, deadlineBefore time.Time) ([]string, error) {
	return s.inner.ExpiredInProgress(ctx, deadlineBefore)
}

func (s *SessionStore) key(sessionID string) string {
	return "challenge:session:" + sessionID
}
