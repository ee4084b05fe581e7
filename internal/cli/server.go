package cli

import (
	"context"
	"database/sql"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"town-challenge-service/internal/app"
	"town-challenge-service/internal/config"
	"town-challenge-service/internal/domain"
	"town-challenge-service/internal/infra/bankfile"
	"town-challenge-service/internal/infra/memory"
	pgstore "town-challenge-service/internal/infra/postgres"
	"town-challenge-service/internal/infra/progression"
	redisinfra "town-challenge-service/internal/infra/redis"
	transport "town-challenge-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the challenge engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	catalog := cfg.Catalog()
	if len(catalog) == 0 {
		catalog = sampleCatalog()
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(sampleBank())
	if cfg.Bank.Dir != "" {
		loader = bankfile.NewLoader(cfg.Bank.Dir)
	}
	if pool != nil {
		loader = pgstore.NewBankLoader(pool)
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	var bank app.BankRepository
	if redisClient != nil {
		bank = redisinfra.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		bank = memory.NewBankRepository(loader, bankTTL)
	}

	// Non-empty buckets for every configured challenge and tier is a startup
	// precondition, not a runtime fault.
	if err := app.ValidateBank(ctx, catalog, bank); err != nil {
		return err
	}

	var sessions app.SessionStore = memory.NewSessionStore()
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(sessions, redisClient, redisTTL)
	}

	var quotas app.QuotaTracker
	var scores app.HighScoreStore
	if redisClient != nil {
		quotas = redisinfra.NewQuotaTracker(redisClient, cfg.Quota.ResetHour)
		scores = redisinfra.NewHighScoreStore(redisClient)
	} else {
		quotas = memory.NewQuotaTracker(cfg.Quota.ResetHour)
		scores = memory.NewHighScoreStore()
	}

	var ledger app.LedgerStore = memory.NewLedger()
	if pool != nil {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		ledger = pgstore.NewLedgerStore(db)
	}

	var bridge app.ProgressionBridge = progression.NoopBridge{}
	if cfg.Bridge.URL != "" {
		bridge = progression.NewHTTPBridge(cfg.Bridge.URL)
	}

	service := app.NewChallengeService(catalog, app.Deps{
		Sessions: sessions,
		Quotas:   quotas,
		Bank:     bank,
		Scores:   scores,
		Ledger:   ledger,
		Bridge:   bridge,
		Selector: app.NewSelector(rand.New(rand.NewSource(time.Now().UnixNano()))),
		Logger:   logger,
	})

	wsHandler := transport.NewWSHandler(service, logger)
	handler := transport.NewHandler(service, wsHandler, logger)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	go sweepLoop(loopCtx, service, cfg, logger)
	go creditRetryLoop(loopCtx, service, cfg, logger)

	go func() {
		logger.WithField("port", finalPort).Info("starting challenge service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sweepLoop aborts in-progress sessions whose deadline passed more than the
// grace period ago, so abandoned sessions still reach a terminal state.
func sweepLoop(ctx context.Context, service *app.ChallengeService, cfg config.Config, logger *logrus.Logger) {
	interval := config.TTLDuration(cfg.Sessions.SweepInterval, 30*time.Second)
	grace := config.TTLDuration(cfg.Sessions.ExpiryGrace, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := service.ExpireStale(ctx, grace); err != nil {
				logger.WithError(err).Warn("session sweep failed")
			}
		}
	}
}

// creditRetryLoop replays pending reward credits against the bridge.
func creditRetryLoop(ctx context.Context, service *app.ChallengeService, cfg config.Config, logger *logrus.Logger) {
	interval := config.TTLDuration(cfg.Bridge.RetryInterval, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := service.RetryPendingCredits(ctx); err != nil {
				logger.WithError(err).Warn("credit retry failed")
			} else if n > 0 {
				logger.WithField("count", n).Info("retried pending credits")
			}
		}
	}
}

// sampleCatalog and sampleBank give the service something to serve without
// any configuration; swap in bank files or Postgres rows in production.
func sampleCatalog() []domain.Challenge {
	return []domain.Challenge{
		{
			Type:        "math",
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
		},
	}
}

func sampleBank() map[string]map[domain.Difficulty][]domain.Problem {
	return map[string]map[domain.Difficulty][]domain.Problem{
		"math": {
			domain.DifficultyEasy: {
				{ID: "e1", Prompt: "What is 2 + 2?", Answer: "4", Explanation: "2 + 2 = 4"},
				{ID: "e2", Prompt: "What is 9 - 3?", Answer: "6"},
				{ID: "e3", Prompt: "What is 5 + 7?", Answer: "12"},
				{ID: "e4", Prompt: "What is 10 / 2?", Answer: "5"},
				{ID: "e5", Prompt: "What is 3 x 3?", Answer: "9"},
			},
			domain.DifficultyMedium: {
				{ID: "m1", Prompt: "What is 12 x 12?", Answer: "144"},
				{ID: "m2", Prompt: "What is 17 + 28?", Answer: "45"},
				{ID: "m3", Prompt: "What is 144 / 12?", Answer: "12"},
				{ID: "m4", Prompt: "What is 15% of 200?", Answer: "30"},
				{ID: "m5", Prompt: "What is 7 x 13?", Answer: "91"},
			},
			domain.DifficultyHard: {
				{ID: "h1", Prompt: "What is 23 x 17?", Answer: "391"},
				{ID: "h2", Prompt: "What is the square root of 361?", Answer: "19"},
				{ID: "h3", Prompt: "What is 2 to the power of 10?", Answer: "1024"},
				{ID: "h4", Prompt: "What is 999 + 777?", Answer: "1776"},
				{ID: "h5", Prompt: "What is 840 / 24?", Answer: "35"},
			},
			domain.DifficultyExtreme: {
				{ID: "x1", Prompt: "What is 127 x 43?", Answer: "5461"},
				{ID: "x2", Prompt: "What is 17 squared minus 13 squared?", Answer: "120"},
				{ID: "x3", Prompt: "What is 6! (six factorial)?", Answer: "720"},
				{ID: "x4", Prompt: "What is 3.14 x 100?", Answer: "314"},
				{ID: "x5", Prompt: "What is 2048 / 32?", Answer: "64"},
			},
		},
	}
}
