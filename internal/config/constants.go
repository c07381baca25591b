package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Store ping timeout for startup and health checks
const StorePingTimeout = 5 * time.Second

// Background sweep budget per tick
const SweepTimeout = 30 * time.Second

// Roster bounds
const MinPlayers = 2

// Session code format
const (
	SessionCodeLength   = 5
	SessionCodeChars    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	SessionCodeAttempts = 10
)

// Input limits
const (
	MaxDisplayNameLength = 30
	MaxCategoryLength    = 50
)

// Per-IP route limits (requests per RateLimitWindow)
const (
	RateLimitWindow     = time.Minute
	RateLimitCreate     = 5
	RateLimitJoin       = 25
	RateLimitStart      = 10
	RateLimitRead       = 200
	RateLimitVote       = 60
	RateLimitEndVoting  = 60
	RateLimitTransition = 10
	RateLimitNewRound   = 10
	RateLimitHeartbeat  = 120
	RateLimitDelete     = 10
	RateLimitList       = 60
)
