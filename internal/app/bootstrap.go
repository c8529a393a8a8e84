package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"

	"publish-auth/internal/auth"
	"publish-auth/internal/config"
	"publish-auth/internal/db"
	"publish-auth/internal/maintenance"
	"publish-auth/internal/observability"
)

const apiPrefix = "/api/blog/v1"

type Options struct {
	LoadDotEnv bool
	// RunMigrations forces migrations even when RUN_MIGRATIONS_ON_STARTUP is off.
	RunMigrations bool
}

type Runtime struct {
	Config  *config.Config
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(config.Options{LoadDotEnv: options.LoadDotEnv})
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pingWithRetry(ctx, database, logger); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations || cfg.RunMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	handler, err := NewHandler(ctx, cfg, database, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	return &Runtime{
		Config:  cfg,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

// NewHandler wires the auth engine onto database and returns the full
// route tree wrapped in recovery and request logging.
func NewHandler(ctx context.Context, cfg *config.Config, database *sql.DB, logger *observability.Logger) (http.Handler, error) {
	authRepo := auth.NewRepository(database)

	hasher := auth.NewArgon2idHasher(auth.Argon2Params{
		Time:      cfg.Argon2Time,
		MemoryKiB: cfg.Argon2MemoryKiB,
		Threads:   cfg.Argon2Threads,
	})
	signer, err := auth.NewTokenSigner(auth.SignerConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		Leeway: cfg.TokenLeeway,
	})
	if err != nil {
		return nil, fmt.Errorf("init token signer: %w", err)
	}

	authService, err := auth.NewService(authRepo, hasher, signer)
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	if err := authService.WithSecurityConfig(cfg.AccessTokenTTL, cfg.RefreshTokenTTL); err != nil {
		return nil, fmt.Errorf("configure auth service: %w", err)
	}
	if cfg.RefreshReuseDetection {
		authService.WithRefreshLedger(authRepo)
	}
	authService.WithLogger(logger)

	if err := authService.BootstrapAccount(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	authHandler := auth.NewHandler(authService, auth.NewCookiePolicy(cfg.CookieSecure), logger)
	cleanupHandler := maintenance.NewCleanupHandler(authRepo, logger, cfg.CronSecret, cfg.CleanupBatchSize)
	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiPrefix+"/auth/signup", authHandler.Signup)
	mux.Handle("POST "+apiPrefix+"/auth/signin", loginLimiter.Middleware(http.HandlerFunc(authHandler.Signin)))
	mux.HandleFunc("POST "+apiPrefix+"/auth/refresh-token", authHandler.RefreshToken)
	mux.HandleFunc("POST "+apiPrefix+"/auth/signout", authHandler.Signout)
	mux.Handle("GET "+apiPrefix+"/users/user_info", auth.RequireAccess(authService, http.HandlerFunc(authHandler.UserInfo)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(authRepo))

	registry := prometheus.NewRegistry()
	observability.RegisterMetrics(registry)
	mux.Handle("GET /metrics", observability.MetricsHandler(registry))

	return observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux)), nil
}

// pingWithRetry gives a cold database a few attempts before startup fails.
func pingWithRetry(ctx context.Context, database *sql.DB, logger *observability.Logger) error {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(250*time.Millisecond))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := database.PingContext(ctx); err != nil {
			logger.Warn("ping_database_failed", map[string]any{"attempt": attempt, "error": err})
			return retry.RetryableError(err)
		}
		return nil
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(store pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := store.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
