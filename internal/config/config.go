package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	Port                    int      `env:"PORT" envDefault:"8080"`
	LogLevel                string   `env:"LOG_LEVEL" envDefault:"info"`
	StoreBackend            string   `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL             string   `env:"DATABASE_URL"`
	RedisURL                string   `env:"REDIS_URL"`
	DiscussionSeconds       int      `env:"DISCUSSION_SECONDS" envDefault:"180"`
	VotingSeconds           int      `env:"VOTING_SECONDS" envDefault:"60"`
	HeartbeatTimeoutSeconds int      `env:"HEARTBEAT_TIMEOUT_SECONDS" envDefault:"120"`
	SessionRetentionMinutes int      `env:"SESSION_RETENTION_MINUTES" envDefault:"360"`
	StaleLobbyMinutes       int      `env:"STALE_LOBBY_MINUTES" envDefault:"30"`
	AvailableWindowMinutes  int      `env:"AVAILABLE_WINDOW_MINUTES" envDefault:"10"`
	DefaultMaxPlayers       int      `env:"DEFAULT_MAX_PLAYERS" envDefault:"8"`
	MaxPlayersCeiling       int      `env:"MAX_PLAYERS_CEILING" envDefault:"16"`
	CommitRetries           int      `env:"COMMIT_RETRIES" envDefault:"5"`
	AutoEndVoting           bool     `env:"AUTO_END_VOTING" envDefault:"false"`
	SweepIntervalSeconds    int      `env:"SWEEP_INTERVAL_SECONDS" envDefault:"30"`
	TopicServiceURL         string   `env:"TOPIC_SERVICE_URL" envDefault:""`
	TopicModel              string   `env:"TOPIC_MODEL" envDefault:"llama3"`
	TopicTimeoutSeconds     int      `env:"TOPIC_TIMEOUT_SECONDS" envDefault:"20"`
	AdminKeyHash            string   `env:"ADMIN_KEY_HASH"`
	CORSAllowedOrigins      []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimitEnabled        bool     `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) DiscussionDuration() time.Duration {
	return time.Duration(c.DiscussionSeconds) * time.Second
}

func (c *Config) VotingDuration() time.Duration {
	return time.Duration(c.VotingSeconds) * time.Second
}

func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSeconds) * time.Second
}

func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionMinutes) * time.Minute
}

func (c *Config) StaleLobbyAge() time.Duration {
	return time.Duration(c.StaleLobbyMinutes) * time.Minute
}

func (c *Config) AvailableWindow() time.Duration {
	return time.Duration(c.AvailableWindowMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) TopicTimeout() time.Duration {
	return time.Duration(c.TopicTimeoutSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", BackendPostgres)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=%s", BackendRedis)
		}
	case BackendMemory:
		if isProduction {
			log.Warn().Msg("STORE_BACKEND=memory in production: sessions are lost on restart and not shared between instances")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want postgres, redis or memory)", c.StoreBackend)
	}

	if c.DiscussionSeconds <= 0 || c.VotingSeconds <= 0 {
		return fmt.Errorf("DISCUSSION_SECONDS and VOTING_SECONDS must be positive")
	}
	if c.HeartbeatTimeoutSeconds <= 0 {
		return fmt.Errorf("HEARTBEAT_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxPlayersCeiling < MinPlayers {
		return fmt.Errorf("MAX_PLAYERS_CEILING must be at least %d", MinPlayers)
	}
	if c.DefaultMaxPlayers < MinPlayers || c.DefaultMaxPlayers > c.MaxPlayersCeiling {
		return fmt.Errorf("DEFAULT_MAX_PLAYERS must be between %d and MAX_PLAYERS_CEILING (%d)", MinPlayers, c.MaxPlayersCeiling)
	}
	if c.CommitRetries < 1 {
		return fmt.Errorf("COMMIT_RETRIES must be at least 1")
	}

	if c.AdminKeyHash != "" {
		if !strings.HasPrefix(c.AdminKeyHash, "$2a$") &&
			!strings.HasPrefix(c.AdminKeyHash, "$2b$") &&
			!strings.HasPrefix(c.AdminKeyHash, "$2y$") {
			return fmt.Errorf("ADMIN_KEY_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <key>)")
		}
	} else if isProduction {
		log.Warn().Msg("ADMIN_KEY_HASH is empty in production: maintenance routes are open")
	}

	if isProduction && strings.HasPrefix(c.RedisURL, "redis://") {
		log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
