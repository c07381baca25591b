package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/imposter-server-go/internal/config"
	"github.com/openclaw/imposter-server-go/internal/database"
	"github.com/openclaw/imposter-server-go/internal/handler"
	"github.com/openclaw/imposter-server-go/internal/jobs"
	"github.com/openclaw/imposter-server-go/internal/middleware"
	"github.com/openclaw/imposter-server-go/internal/redis"
	"github.com/openclaw/imposter-server-go/internal/repository"
	"github.com/openclaw/imposter-server-go/internal/service"
	"github.com/openclaw/imposter-server-go/internal/topic"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	var store repository.SessionStore
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.StorePingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := db.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
		cancel()
		log.Info().Msg("database connected")
		store = repository.NewPostgresStore(db)
	case config.BackendRedis:
		store = repository.NewRedisStore(redisClient.Client)
	default:
		store = repository.NewMemoryStore()
	}
	log.Info().Str("backend", cfg.StoreBackend).Msg("session store ready")

	topics := topic.Instrument("fallback", topic.NewFallbackProvider(nil))
	if cfg.TopicServiceURL != "" {
		llm := topic.Instrument("llm", topic.NewLLMClient(cfg.TopicServiceURL, cfg.TopicModel, cfg.TopicTimeout()))
		topics = topic.WithFallback(llm, topics)
		log.Info().Str("url", cfg.TopicServiceURL).Str("model", cfg.TopicModel).Msg("topic service enabled")
	}

	gameService := service.NewGameService(store, topics, service.SettingsFromConfig(cfg))

	var limiter middleware.Limiter
	if cfg.RateLimitEnabled {
		if redisClient != nil {
			limiter = middleware.NewRedisRateLimiter(redisClient.Client)
		} else {
			limiter = middleware.NewRateLimiter()
		}
	}

	var adminKey *middleware.AdminKeyMiddleware
	if cfg.AdminKeyHash != "" {
		adminKey = middleware.NewAdminKeyMiddleware(cfg.AdminKeyHash)
	}

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	gameHandler := handler.NewGameHandler(gameService, limiter, adminKey)
	healthHandler := handler.NewHealthHandler(store, cfg.StoreBackend)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.AdminKeyHeader},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Mount("/", gameHandler.Routes())
	})

	if interval := cfg.SweepInterval(); interval > 0 {
		sweepJob := jobs.NewSweepJob(gameService, interval)
		sweepJob.Start()
		defer sweepJob.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
