package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"town-challenge-service/internal/domain"
)

// SessionStore is the authoritative record of sessions. Mutating calls must
// be atomic with respect to each other for the same session ID.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	AppendAnswer(ctx context.Context, sessionID string, problemIndex int, value string) (*domain.Session, error)
	TransitionToGrading(ctx context.Context, sessionID string) (*domain.Session, error)
	Finalize(ctx context.Context, sessionID string, result domain.SessionResult, at time.Time) error
	Abort(ctx context.Context, sessionID string, at time.Time) error
	ActiveSession(ctx context.Context, userID, challengeType string) (*domain.Session, error)
	ExpiredInProgress(ctx context.Context, deadlineBefore time.Time) ([]string, error)
}

// QuotaTracker admits plays within the current quota window. TryConsume must
// be atomic per (user, challengeType) key.
type QuotaTracker interface {
	TryConsume(ctx context.Context, userID, challengeType string, limit int) (allowed bool, remaining int, err error)
	Remaining(ctx context.Context, userID, challengeType string, limit int) (int, error)
}

// BankRepository serves the per (challengeType, difficulty) problem buckets.
type BankRepository interface {
	Problems(ctx context.Context, challengeType string, difficulty domain.Difficulty) ([]domain.Problem, error)
}

// HighScoreStore keeps monotonic best scores per (user, type, difficulty).
type HighScoreStore interface {
	Record(ctx context.Context, score domain.HighScore) (improved bool, err error)
	Best(ctx context.Context, userID, challengeType string, difficulty domain.Difficulty) (int, error)
}

// LedgerStore records reward credits, keyed by session for idempotent replay.
type LedgerStore interface {
	Record(ctx context.Context, entry domain.LedgerEntry) error
	MarkCredited(ctx context.Context, sessionID string) error
	Pending(ctx context.Context) ([]domain.LedgerEntry, error)
}

// ProgressionBridge is the external job/account system fed by completed
// sessions. Both calls carry the session ID so the bridge can dedupe replays.
type ProgressionBridge interface {
	CreditExperience(ctx context.Context, userID, jobID, sessionID string, points int) (newLevel int, err error)
	CreditCurrency(ctx context.Context, userID, sessionID string, amount int) error
}

// StartResult is what a client gets back from Start. Problems carry no answers.
type StartResult struct {
	SessionID        string                 `json:"sessionId"`
	Problems         []domain.IssuedProblem `json:"problems"`
	TimeLimitSeconds int                    `json:"timeLimit"`
	MaxProblems      int                    `json:"maxProblems"`
	RemainingPlays   int                    `json:"remainingPlays"`
}

// StatusResult summarizes a user's standing for one challenge type.
type StatusResult struct {
	ChallengeType  string             `json:"challengeType"`
	RemainingPlays int                `json:"remainingPlays"`
	DailyLimit     int                `json:"dailyLimit"`
	HighScores     []domain.HighScore `json:"highScores"`
}

// Deps bundles the collaborators of the challenge service.
type Deps struct {
	Sessions SessionStore
	Quotas   QuotaTracker
	Bank     BankRepository
	Scores   HighScoreStore
	Ledger   LedgerStore
	Bridge   ProgressionBridge
	Selector *Selector
	Clock    func() time.Time
	Logger   *logrus.Logger
}

// ChallengeService orchestrates the start/answer/finish protocol. All scoring
// authority lives here and in the stores; clients only ever see answer-free
// problem views and non-authoritative per-answer feedback.
type ChallengeService struct {
	catalog  map[string]domain.Challenge
	sessions SessionStore
	quotas   QuotaTracker
	bank     BankRepository
	scores   HighScoreStore
	ledger   LedgerStore
	bridge   ProgressionBridge
	selector *Selector
	clock    func() time.Time
	log      *logrus.Logger

	// finishing collapses concurrent Finish calls for one session into a
	// single grading pass; the store transition guard covers the rest.
	finishing singleflight.Group
}

func NewChallengeService(catalog []domain.Challenge, deps Deps) *ChallengeService {
	byType := make(map[string]domain.Challenge, len(catalog))
	for _, challenge := range catalog {
		byType[challenge.Type] = challenge
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &ChallengeService{
		catalog:  byType,
		sessions: deps.Sessions,
		quotas:   deps.Quotas,
		bank:     deps.Bank,
		scores:   deps.Scores,
		ledger:   deps.Ledger,
		bridge:   deps.Bridge,
		selector: deps.Selector,
		clock:    clock,
		log:      logger,
	}
}

// Challenge returns the catalog entry for a challenge type.
func (s *ChallengeService) Challenge(challengeType string) (domain.Challenge, bool) {
	challenge, ok := s.catalog[challengeType]
	return challenge, ok
}

// Start admits a new session: consumes one quota slot, draws the problem set
// and returns it stripped of answers. A prior in-progress session for the
// same (user, challengeType) is aborted and forfeits its rewards.
func (s *ChallengeService) Start(ctx context.Context, userID, challengeType string, difficulty domain.Difficulty) (StartResult, error) {
	challenge, ok := s.catalog[challengeType]
	if !ok || !difficulty.Valid() {
		return StartResult{}, domain.ErrChallengeNotFound
	}

	allowed, remaining, err := s.quotas.TryConsume(ctx, userID, challengeType, challenge.DailyLimit)
	if err != nil {
		return StartResult{}, err
	}
	if !allowed {
		return StartResult{}, domain.ErrQuotaExceeded
	}

	bucket, err := s.bank.Problems(ctx, challengeType, difficulty)
	if err != nil {
		return StartResult{}, err
	}

	now := s.clock()
	if prior, err := s.sessions.ActiveSession(ctx, userID, challengeType); err == nil {
		if err := s.sessions.Abort(ctx, prior.ID, now); err != nil && !errors.Is(err, domain.ErrInvalidState) {
			return StartResult{}, err
		}
		s.log.WithFields(logrus.Fields{"session": prior.ID, "user": userID}).Info("aborted stale session on restart")
	}

	session := &domain.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		ChallengeType: challengeType,
		Difficulty:    difficulty,
		Problems:      s.selector.Draw(bucket, challenge.MaxProblems),
		Answers:       make(map[int]string),
		Status:        domain.StatusInProgress,
		StartedAt:     now,
		TimeLimit:     challenge.TimeLimit,
		MaxProblems:   challenge.MaxProblems,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return StartResult{}, err
	}

	return StartResult{
		SessionID:        session.ID,
		Problems:         session.Issued(),
		TimeLimitSeconds: int(challenge.TimeLimit / time.Second),
		MaxProblems:      challenge.MaxProblems,
		RemainingPlays:   remaining,
	}, nil
}

// SubmitAnswer appends one answer and returns immediate feedback. The result
// is for UI display only; rewards come from the terminal grading pass.
// Reaching the session's problem limit triggers the finish path in place.
func (s *ChallengeService) SubmitAnswer(ctx context.Context, userID, sessionID string, problemIndex int, value string) (correct bool, err error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return false, err
	}
	if session.Status != domain.StatusInProgress || session.Expired(s.clock()) {
		return false, domain.ErrInvalidState
	}

	session, err = s.sessions.AppendAnswer(ctx, sessionID, problemIndex, value)
	if err != nil {
		return false, err
	}
	correct = GradeOne(session.Problems[problemIndex], value)

	if session.MaxProblems > 0 && len(session.Answers) >= session.MaxProblems {
		if _, err := s.Finish(ctx, userID, sessionID); err != nil {
			s.log.WithError(err).WithField("session", sessionID).Warn("auto-finish after last answer failed")
		}
	}
	return correct, nil
}

// Finish runs the terminal grading pass. It is idempotent: repeated calls
// return the stored result without recomputing or re-crediting.
func (s *ChallengeService) Finish(ctx context.Context, userID, sessionID string) (domain.SessionResult, error) {
	// Ownership is checked before joining the flight so a non-owner can
	// never ride along on the owner's grading pass.
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return domain.SessionResult{}, err
	}
	v, err, _ := s.finishing.Do(sessionID, func() (interface{}, error) {
		return s.finishOnce(ctx, userID, sessionID)
	})
	if err != nil {
		return domain.SessionResult{}, err
	}
	return v.(domain.SessionResult), nil
}

func (s *ChallengeService) finishOnce(ctx context.Context, userID, sessionID string) (domain.SessionResult, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return domain.SessionResult{}, err
	}
	if session.Status == domain.StatusCompleted && session.Result != nil {
		return *session.Result, nil
	}
	if session.Status == domain.StatusAborted {
		return domain.SessionResult{}, domain.ErrInvalidState
	}

	session, err = s.sessions.TransitionToGrading(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyGraded) {
			return s.priorResult(ctx, userID, sessionID)
		}
		return domain.SessionResult{}, err
	}

	challenge, ok := s.catalog[session.ChallengeType]
	if !ok {
		return domain.SessionResult{}, domain.ErrChallengeNotFound
	}

	grade := GradeSession(session.Problems, session.Answers)
	earnings, experience := ComputeRewards(challenge.Rewards, session.Difficulty, grade.CorrectCount)

	improved, err := s.scores.Record(ctx, domain.HighScore{
		UserID:        session.UserID,
		ChallengeType: session.ChallengeType,
		Difficulty:    session.Difficulty,
		BestScore:     grade.CorrectCount,
	})
	if err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("high score update failed")
	}

	result := domain.SessionResult{
		Score:            grade.CorrectCount,
		TotalAnswered:    grade.TotalAnswered,
		PerProblem:       grade.PerProblem,
		Earnings:         earnings,
		ExperiencePoints: experience,
		NewHighScore:     improved,
	}

	now := s.clock()
	entry := domain.LedgerEntry{
		SessionID:        sessionID,
		UserID:           session.UserID,
		ChallengeType:    session.ChallengeType,
		Earnings:         earnings,
		ExperiencePoints: experience,
		RecordedAt:       now,
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		return domain.SessionResult{}, err
	}
	if err := s.sessions.Finalize(ctx, sessionID, result, now); err != nil {
		return domain.SessionResult{}, err
	}

	// Crediting failures leave the ledger entry pending for the retry loop;
	// the session still completes with its score.
	if err := s.credit(ctx, entry); err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("reward credit pending retry")
	}

	s.log.WithFields(logrus.Fields{
		"session": sessionID,
		"user":    session.UserID,
		"type":    session.ChallengeType,
		"score":   result.Score,
	}).Info("session completed")
	return result, nil
}

func (s *ChallengeService) priorResult(ctx context.Context, userID, sessionID string) (domain.SessionResult, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return domain.SessionResult{}, err
	}
	if session.Result != nil {
		return *session.Result, nil
	}
	return domain.SessionResult{}, domain.ErrAlreadyGraded
}

// Status reports remaining plays and the user's best scores per difficulty.
func (s *ChallengeService) Status(ctx context.Context, userID, challengeType string) (StatusResult, error) {
	challenge, ok := s.catalog[challengeType]
	if !ok {
		return StatusResult{}, domain.ErrChallengeNotFound
	}
	remaining, err := s.quotas.Remaining(ctx, userID, challengeType, challenge.DailyLimit)
	if err != nil {
		return StatusResult{}, err
	}
	status := StatusResult{
		ChallengeType:  challengeType,
		RemainingPlays: remaining,
		DailyLimit:     challenge.DailyLimit,
	}
	for _, difficulty := range domain.Difficulties {
		best, err := s.scores.Best(ctx, userID, challengeType, difficulty)
		if err != nil || best <= 0 {
			continue
		}
		status.HighScores = append(status.HighScores, domain.HighScore{
			UserID:        userID,
			ChallengeType: challengeType,
			Difficulty:    difficulty,
			BestScore:     best,
		})
	}
	return status, nil
}

// ExpireStale aborts in-progress sessions whose deadline passed more than
// grace ago. Sessions aborted here forfeit their rewards.
func (s *ChallengeService) ExpireStale(ctx context.Context, grace time.Duration) (int, error) {
	ids, err := s.sessions.ExpiredInProgress(ctx, s.clock().Add(-grace))
	if err != nil {
		return 0, err
	}
	aborted := 0
	for _, id := range ids {
		if err := s.sessions.Abort(ctx, id, s.clock()); err != nil {
			if !errors.Is(err, domain.ErrInvalidState) {
				s.log.WithError(err).WithField("session", id).Warn("expiry abort failed")
			}
			continue
		}
		aborted++
	}
	if aborted > 0 {
		s.log.WithField("count", aborted).Info("expired stale sessions")
	}
	return aborted, nil
}

// RetryPendingCredits replays uncredited ledger entries against the bridge
// without re-grading the sessions behind them.
func (s *ChallengeService) RetryPendingCredits(ctx context.Context) (int, error) {
	pending, err := s.ledger.Pending(ctx)
	if err != nil {
		return 0, err
	}
	credited := 0
	for _, entry := range pending {
		if err := s.credit(ctx, entry); err != nil {
			s.log.WithError(err).WithField("session", entry.SessionID).Warn("credit retry failed")
			continue
		}
		credited++
	}
	return credited, nil
}

func (s *ChallengeService) credit(ctx context.Context, entry domain.LedgerEntry) error {
	if err := s.bridge.CreditCurrency(ctx, entry.UserID, entry.SessionID, entry.Earnings); err != nil {
		return err
	}
	if _, err := s.bridge.CreditExperience(ctx, entry.UserID, entry.ChallengeType, entry.SessionID, entry.ExperiencePoints); err != nil {
		return err
	}
	return s.ledger.MarkCredited(ctx, entry.SessionID)
}

// ownedSession loads a session and hides its existence from non-owners.
func (s *ChallengeService) ownedSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// ValidateBank checks the startup precondition that every configured
// challenge has a non-empty bucket for every difficulty tier.
func ValidateBank(ctx context.Context, catalog []domain.Challenge, bank BankRepository) error {
	for _, challenge := range catalog {
		for _, difficulty := range domain.Difficulties {
			problems, err := bank.Problems(ctx, challenge.Type, difficulty)
			if err != nil {
				return fmt.Errorf("problem bank %s/%s: %w", challenge.Type, difficulty, err)
			}
			if len(problems) == 0 {
				return fmt.Errorf("problem bank %s/%s: empty bucket", challenge.Type, difficulty)
			}
		}
	}
	return nil
}
