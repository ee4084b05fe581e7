package memory

import (
	"context"
	"sync"
	"time"

	"town-challenge-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. All state
// transitions happen under one lock, which is what makes the check-and-set
// operations (duplicate answers, grading transition) atomic.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) AppendAnswer(_ context.Context, sessionID string, problemIndex int, value string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusInProgress {
		return nil, domain.ErrInvalidState
	}
	if problemIndex < 0 || problemIndex >= len(session.Problems) {
		return nil, domain.ErrOutOfRange
	}
	if _, answered := session.Answers[problemIndex]; answered {
		return nil, domain.ErrDuplicateAnswer
	}
	session.Answers[problemIndex] = value
	session.AnswerOrder = append(session.AnswerOrder, problemIndex)
	return cloneSession(session), nil
}

func (s *SessionStore) TransitionToGrading(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusInProgress {
		return nil, domain.ErrAlreadyGraded
	}
	session.Status = domain.StatusGrading
	return cloneSession(session), nil
}

func (s *SessionStore) Finalize(_ context.Context, sessionID string, result domain.SessionResult, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusGrading {
		return domain.ErrInvalidState
	}
	session.Status = domain.StatusCompleted
	session.CompletedAt = at
	session.Result = &result
	return nil
}

func (s *SessionStore) Abort(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusInProgress {
		return domain.ErrInvalidState
	}
	session.Status = domain.StatusAborted
	session.CompletedAt = at
	return nil
}

func (s *SessionStore) ActiveSession(_ context.Context, userID, challengeType string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.Session
	for _, session := range s.sessions {
		if session.UserID != userID || session.ChallengeType != challengeType {
			continue
		}
		if session.Status != domain.StatusInProgress {
			continue
		}
		if latest == nil || session.StartedAt.After(latest.StartedAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(latest), nil
}

func (s *SessionStore) ExpiredInProgress(_ context.Context, deadlineBefore time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, session := range s.sessions {
		if session.Status == domain.StatusInProgress && session.TimeLimit > 0 && session.Deadline().Before(deadlineBefore) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// cloneSession deep-copies the mutable parts so callers never share state
// with the store.
func cloneSession(session *domain.Session) *domain.Session {
	clone := *session
	clone.Problems = append([]domain.Problem(nil), session.Problems...)
	clone.Answers = make(map[int]string, len(session.Answers))
	for k, v := range session.Answers {
		clone.Answers[k] = v
	}
	clone.AnswerOrder = append([]int(nil), session.AnswerOrder...)
	if session.Result != nil {
		result := *session.Result
		clone.Result = &result
	}
	return &clone
}
