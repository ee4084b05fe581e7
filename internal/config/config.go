package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"town-challenge-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Bank struct {
		Dir string `yaml:"dir"`
		TTL string `yaml:"ttl"`
	} `yaml:"bank"`
	Quota struct {
		ResetHour int `yaml:"resetHour"`
	} `yaml:"quota"`
	Sessions struct {
		SweepInterval string `yaml:"sweepInterval"`
		ExpiryGrace   string `yaml:"expiryGrace"`
	} `yaml:"sessions"`
	Bridge struct {
		URL           string `yaml:"url"`
		RetryInterval string `yaml:"retryInterval"`
	} `yaml:"bridge"`
	Challenges []ChallengeConfig `yaml:"challenges"`
}

// ChallengeConfig is one mini-game variant. The 20-odd job variants of the
// town economy differ only in this data, not in code.
type ChallengeConfig struct {
	Type             string             `yaml:"type"`
	DailyLimit       int                `yaml:"dailyLimit"`
	TimeLimitSeconds int                `yaml:"timeLimitSeconds"`
	MaxProblems      int                `yaml:"maxProblems"`
	Rewards          domain.RewardTable `yaml:"rewards"`
}

func (c ChallengeConfig) ToDomain() domain.Challenge {
	return domain.Challenge{
		Type:        c.Type,
		DailyLimit:  c.DailyLimit,
		TimeLimit:   time.Duration(c.TimeLimitSeconds) * time.Second,
		MaxProblems: c.MaxProblems,
		Rewards:     c.Rewards,
	}
}

// Load reads YAML config from path and validates the challenge catalog.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Quota.ResetHour < 0 || c.Quota.ResetHour > 23 {
		return fmt.Errorf("quota.resetHour must be 0-23, got %d", c.Quota.ResetHour)
	}
	seen := make(map[string]bool)
	for _, challenge := range c.Challenges {
		if challenge.Type == "" {
			return fmt.Errorf("challenge with empty type")
		}
		if seen[challenge.Type] {
			return fmt.Errorf("duplicate challenge type %q", challenge.Type)
		}
		seen[challenge.Type] = true
		if challenge.DailyLimit <= 0 {
			return fmt.Errorf("challenge %q: dailyLimit must be positive", challenge.Type)
		}
		if challenge.MaxProblems <= 0 {
			return fmt.Errorf("challenge %q: maxProblems must be positive", challenge.Type)
		}
		if challenge.TimeLimitSeconds <= 0 {
			return fmt.Errorf("challenge %q: timeLimitSeconds must be positive", challenge.Type)
		}
		if challenge.Rewards.BaseRate <= 0 {
			return fmt.Errorf("challenge %q: rewards.baseRate must be positive", challenge.Type)
		}
	}
	return nil
}

// Catalog converts the configured challenges to domain form.
func (c Config) Catalog() []domain.Challenge {
	catalog := make([]domain.Challenge, 0, len(c.Challenges))
	for _, challenge := range c.Challenges {
		catalog = append(catalog, challenge.ToDomain())
	}
	return catalog
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
