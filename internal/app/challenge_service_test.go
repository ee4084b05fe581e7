package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"town-challenge-service/internal/app"
	"town-challenge-service/internal/domain"
	"town-challenge-service/internal/infra/memory"
)

const (
	testUser = "student-1"
	testType = "math"
)

func TestStartIssuesProblemsWithoutAnswers(t *testing.T) {
	env := newTestEnv(t)

	started, err := env.service.Start(context.Background(), testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)
	assert.NotEmpty(t, started.SessionID)
	assert.Len(t, started.Problems, 5)
	assert.Equal(t, 60, started.TimeLimitSeconds)
	assert.Equal(t, 2, started.RemainingPlays)

	// The wire form of the issued set must not contain any answer.
	payload, err := json.Marshal(started)
	require.NoError(t, err)
	for _, problem := range env.bank[testType][domain.DifficultyEasy] {
		assert.NotContains(t, string(payload), `"`+problem.Answer+`"`)
	}
	assert.NotContains(t, string(payload), "answer")
}

func TestFinishScoresAndPaysOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)

	// 3 correct, 2 wrong out of 5 submitted.
	env.answerCorrectly(t, started, 0, 1, 2)
	env.answerWrong(t, started, 3, 4)

	result, err := env.service.Finish(ctx, testUser, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Score)
	assert.Equal(t, 5, result.TotalAnswered)
	// earnings = correct x baseRate x easy multiplier = 3 x 10 x 1
	assert.Equal(t, 30, result.Earnings)
	assert.Equal(t, 15, result.ExperiencePoints)
	assert.True(t, result.NewHighScore)
}

func TestQuotaExhaustedAfterDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
		require.NoError(t, err, "start %d within limit", i+1)
	}
	_, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestConcurrentStartsRespectQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
		}
	}
	assert.Equal(t, 3, admitted, "exactly dailyLimit starts admitted")
}

func TestFinishIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyMedium)
	require.NoError(t, err)
	env.answerCorrectly(t, started, 0, 1)

	first, err := env.service.Finish(ctx, testUser, started.SessionID)
	require.NoError(t, err)
	second, err := env.service.Finish(ctx, testUser, started.SessionID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, env.ledger.Entries(), 1)
	assert.Equal(t, 1, env.bridge.currencyCalls(), "exactly one currency credit")
	assert.Equal(t, 1, env.bridge.experienceCalls(), "exactly one experience credit")
}

func TestConcurrentFinishCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)
	env.answerCorrectly(t, started, 0, 1, 2)

	const callers = 6
	var wg sync.WaitGroup
	results := make([]domain.SessionResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.service.Finish(ctx, testUser, started.SessionID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < callers; i++ {
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, env.bridge.currencyCalls())
	assert.Len(t, env.ledger.Entries(), 1)
}

func TestDuplicateAnswerRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)

	_, err = env.service.SubmitAnswer(ctx, testUser, started.SessionID, 0, "whatever")
	require.NoError(t, err)
	_, err = env.service.SubmitAnswer(ctx, testUser, started.SessionID, 0, "whatever")
	assert.ErrorIs(t, err, domain.ErrDuplicateAnswer)
}

func TestConcurrentDuplicateAnswerOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.service.SubmitAnswer(ctx, testUser, started.SessionID, 1, "guess")
		}(i)
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrDuplicateAnswer):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, duplicates)
}

func TestAnswerOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)

	_, err = env.service.SubmitAnswer(ctx, testUser, started.SessionID, 99, "4")
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
	_, err = env.service.SubmitAnswer(ctx, testUser, started.SessionID, -1, "4")
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestDeadlineEnforcedOnSubmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)
	env.answerCorrectly(t, started, 0, 1)

	env.clock.advance(61 * time.Second)

	_, err = env.service.SubmitAnswer(ctx, testUser, started.SessionID, 2, "anything")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// Finish still grades the answers that made it in before the deadline.
	result, err := env.service.Finish(ctx, testUser, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 2, result.TotalAnswered)
}

func TestLastAnswerTriggersFinish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)
	env.answerCorrectly(t, started, 0, 1, 2, 3, 4)

	// The fifth answer hit maxProblems, so the session is already terminal.
	_, err = env.service.SubmitAnswer(ctx, testUser, started.SessionID, 0, "late")
	assert.Error(t, err)

	result, err := env.service.Finish(ctx, testUser, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Score)
	assert.Len(t, env.ledger.Entries(), 1)
}

func TestStartAbortsPriorInProgressSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)
	second, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	// The abandoned session forfeits: no answers, no finish.
	_, err = env.service.SubmitAnswer(ctx, testUser, first.SessionID, 0, "4")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = env.service.Finish(ctx, testUser, first.SessionID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestExpireStaleAbortsAbandonedSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)

	env.clock.advance(60*time.Second + 2*time.Minute)
	aborted, err := env.service.ExpireStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, aborted)

	_, err = env.service.Finish(ctx, testUser, started.SessionID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestBridgeFailureLeavesCreditPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bridge.setFailing(true)

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)
	env.answerCorrectly(t, started, 0, 1, 2)

	// The session still completes with its score; only the credit is pending.
	result, err := env.service.Finish(ctx, testUser, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Score)

	pending, err := env.ledger.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, started.SessionID, pending[0].SessionID)

	env.bridge.setFailing(false)
	retried, err := env.service.RetryPendingCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	pending, err = env.ledger.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 30, env.bridge.totalCurrency())
}

func TestStatusReportsQuotaAndHighScores(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)
	env.answerCorrectly(t, started, 0, 1, 2, 3)
	_, err = env.service.Finish(ctx, testUser, started.SessionID)
	require.NoError(t, err)

	status, err := env.service.Status(ctx, testUser, testType)
	require.NoError(t, err)
	assert.Equal(t, 3, status.DailyLimit)
	assert.Equal(t, 2, status.RemainingPlays)
	require.Len(t, status.HighScores, 1)
	assert.Equal(t, domain.DifficultyEasy, status.HighScores[0].Difficulty)
	assert.Equal(t, 4, status.HighScores[0].BestScore)
}

func TestSessionHiddenFromOtherUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.Start(ctx, testUser, testType, domain.DifficultyEasy)
	require.NoError(t, err)

	_, err = env.service.SubmitAnswer(ctx, "intruder", started.SessionID, 0, "4")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = env.service.Finish(ctx, "intruder", started.SessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

// --- fixtures ---

type testEnv struct {
	service *app.ChallengeService
	ledger  *memory.Ledger
	bridge  *recordingBridge
	clock   *fakeClock
	bank    map[string]map[domain.Difficulty][]domain.Problem
	answers map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bank := testBank()
	answers := make(map[string]string)
	for _, byDifficulty := range bank {
		for _, problems := range byDifficulty {
			for _, problem := range problems {
				answers[problem.Prompt] = problem.Answer
			}
		}
	}

	clock := &fakeClock{now: time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)}
	ledger := memory.NewLedger()
	bridge := &recordingBridge{}

	service := app.NewChallengeService(testCatalog(), app.Deps{
		Sessions: memory.NewSessionStore(),
		Quotas:   memory.NewQuotaTrackerWithClock(0, clock.Now),
		Bank:     memory.NewBankRepository(memory.NewStaticBankLoader(bank), time.Minute),
		Scores:   memory.NewHighScoreStore(),
		Ledger:   ledger,
		Bridge:   bridge,
		Selector: app.NewSelector(rand.New(rand.NewSource(42))),
		Clock:    clock.Now,
	})

	return &testEnv{
		service: service,
		ledger:  ledger,
		bridge:  bridge,
		clock:   clock,
		bank:    bank,
		answers: answers,
	}
}

// answerCorrectly submits the stored correct answer for each issued index.
func (e *testEnv) answerCorrectly(t *testing.T, started app.StartResult, indexes ...int) {
	t.Helper()
	for _, index := range indexes {
		value, ok := e.answers[started.Problems[index].Prompt]
		if !ok {
			t.Fatalf("no known answer for prompt %q", started.Problems[index].Prompt)
		}
		correct, err := e.service.SubmitAnswer(context.Background(), testUser, started.SessionID, index, value)
		require.NoError(t, err)
		require.True(t, correct, "index %d should grade correct", index)
	}
}

func (e *testEnv) answerWrong(t *testing.T, started app.StartResult, indexes ...int) {
	t.Helper()
	for _, index := range indexes {
		correct, err := e.service.SubmitAnswer(context.Background(), testUser, started.SessionID, index, "definitely wrong")
		require.NoError(t, err)
		require.False(t, correct)
	}
}

func testCatalog() []domain.Challenge {
	return []domain.Challenge{{
		Type:        testType,
		DailyLimit:  3,
		TimeLimit:   60 * time.Second,
		MaxProblems: 5,
		Rewards: domain.RewardTable{
			BaseRate: 10,
			XPRate:   5,
			Multipliers: map[domain.Difficulty]float64{
				domain.DifficultyEasy:    1,
				domain.DifficultyMedium:  1.5,
				domain.DifficultyHard:    2,
				domain.DifficultyExtreme: 3,
			},
		},
	}}
}

func testBank() map[string]map[domain.Difficulty][]domain.Problem {
	bank := map[string]map[domain.Difficulty][]domain.Problem{testType: {}}
	for _, difficulty := range domain.Difficulties {
		problems := make([]domain.Problem, 5)
		for i := range problems {
			problems[i] = domain.Problem{
				ID:     string(difficulty) + "-" + strconv.Itoa(i),
				Prompt: "[" + string(difficulty) + "] problem " + strconv.Itoa(i),
				Answer: strconv.Itoa(i * 7),
			}
		}
		bank[testType][difficulty] = problems
	}
	return bank
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingBridge struct {
	mu       sync.Mutex
	failing  bool
	currency []int
	xp       []int
}

func (b *recordingBridge) CreditCurrency(_ context.Context, _ string, _ string, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return domain.ErrUpstreamFailure
	}
	b.currency = append(b.currency, amount)
	return nil
}

func (b *recordingBridge) CreditExperience(_ context.Context, _, _, _ string, points int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return 0, domain.ErrUpstreamFailure
	}
	b.xp = append(b.xp, points)
	return 1, nil
}

func (b *recordingBridge) setFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

func (b *recordingBridge) currencyCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.currency)
}

func (b *recordingBridge) experienceCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.xp)
}

func (b *recordingBridge) totalCurrency() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, amount := range b.currency {
		total += amount
	}
	return total
}
