package domain

import "time"

// Difficulty selects both the problem pool and the reward multiplier.
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyExtreme Difficulty = "extreme"
)

// Difficulties lists every known tier, in ascending order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExtreme}

// Valid reports whether d is a known tier.
func (d Difficulty) Valid() bool {
	for _, known := range Difficulties {
		if d == known {
			return true
		}
	}
	return false
}

// SessionStatus is the lifecycle state of a challenge session.
// Transitions are monotonic: in_progress -> grading -> completed,
// with aborted reachable from in_progress only.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusGrading    SessionStatus = "grading"
	StatusCompleted  SessionStatus = "completed"
	StatusAborted    SessionStatus = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Problem is a single question/answer pair. The Answer field is server-side
// only; clients are handed IssuedProblem views instead.
type Problem struct {
	ID          string `json:"id" yaml:"id"`
	Prompt      string `json:"prompt" yaml:"prompt"`
	Answer      string `json:"answer" yaml:"answer"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// IssuedProblem is the answer-free view of a problem handed to clients.
type IssuedProblem struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
}

// Session is the authoritative record of one challenge attempt.
type Session struct {
	ID            string
	UserID        string
	ChallengeType string
	Difficulty    Difficulty
	Problems      []Problem
	Answers       map[int]string
	AnswerOrder   []int
	Status        SessionStatus
	StartedAt     time.Time
	TimeLimit     time.Duration
	MaxProblems   int
	CompletedAt   time.Time
	Result        *SessionResult
}

// Deadline is the wall-clock instant after which answers are rejected.
func (s *Session) Deadline() time.Time {
	return s.StartedAt.Add(s.TimeLimit)
}

// Expired reports whether the session's time budget has run out.
func (s *Session) Expired(now time.Time) bool {
	return s.TimeLimit > 0 && now.After(s.Deadline())
}

// Issued returns the answer-free problem views for the client.
func (s *Session) Issued() []IssuedProblem {
	issued := make([]IssuedProblem, len(s.Problems))
	for i, p := range s.Problems {
		issued[i] = IssuedProblem{Index: i, Prompt: p.Prompt}
	}
	return issued
}

// SessionResult is the terminal outcome of a session, fixed at grading time.
type SessionResult struct {
	Score            int    `json:"score"`
	TotalAnswered    int    `json:"totalAnswered"`
	PerProblem       []bool `json:"perProblem"`
	Earnings         int    `json:"earnings"`
	ExperiencePoints int    `json:"experiencePoints"`
	NewHighScore     bool   `json:"isNewHighScore"`
}

// GradeResult is the aggregate output of grading a full session.
type GradeResult struct {
	CorrectCount  int
	TotalAnswered int
	PerProblem    []bool
}

// QuotaRecord tracks plays used within the current quota window.
type QuotaRecord struct {
	UserID        string
	ChallengeType string
	WindowStart   time.Time
	PlaysUsed     int
}

// HighScore is the best terminal score for a (user, type, difficulty) key.
type HighScore struct {
	UserID        string     `json:"userId"`
	ChallengeType string     `json:"challengeType"`
	Difficulty    Difficulty `json:"difficulty"`
	BestScore     int        `json:"bestScore"`
}

// LedgerEntry records the reward credit owed for a completed session.
// Entries are keyed by session so replays cannot double-credit.
type LedgerEntry struct {
	SessionID        string
	UserID           string
	ChallengeType    string
	Earnings         int
	ExperiencePoints int
	Credited         bool
	RecordedAt       time.Time
}

// RewardTable maps a session score to earnings and experience.
type RewardTable struct {
	BaseRate    float64                `yaml:"baseRate"`
	XPRate      float64                `yaml:"xpRate"`
	Multipliers map[Difficulty]float64 `yaml:"multipliers"`
}

// Challenge is one mini-game variant: problem bank plus limits and rewards.
// The per-variant differences live here as data, not as per-variant code.
type Challenge struct {
	Type        string
	DailyLimit  int
	TimeLimit   time.Duration
	MaxProblems int
	Rewards     RewardTable
}
