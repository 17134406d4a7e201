package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/pkg/config"
	"github.com/guildboard/guildboard/pkg/guard"
	"github.com/guildboard/guildboard/pkg/httputil"
	"github.com/guildboard/guildboard/pkg/identity"
	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/ratelimit"
	"github.com/guildboard/guildboard/pkg/rbac"
	"github.com/guildboard/guildboard/pkg/session"
	"github.com/guildboard/guildboard/pkg/store"
	"github.com/guildboard/guildboard/pkg/tenant"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.PostgresURL)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	rowStore := store.NewSQLStore(db)
	if err := rowStore.Migrate(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to migrate store")
	}

	limitStore, err := buildLimitStore(ctx, cfg, db)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize rate limit store")
	}

	var verifier *identity.TokenVerifier
	if cfg.Identity.OIDCIssuer != "" {
		verifier, err = identity.NewTokenVerifier(ctx, cfg.Identity.OIDCIssuer, cfg.Identity.OIDCClientID, false)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to configure OIDC verifier")
		}
		logrus.WithField("issuer", cfg.Identity.OIDCIssuer).Info("OIDC token verification enabled")
	}

	provider := identity.NewHTTPClient(identity.Config{
		BaseURL:     cfg.Identity.BaseURL,
		APIKey:      cfg.Identity.APIKey,
		SessionFile: cfg.Identity.SessionFile,
		Verifier:    verifier,
		Logger:      logger,
	})
	defer provider.Close()

	manager := session.NewManager(session.Config{
		Provider:             provider,
		Store:                rowStore,
		LoginLimiter:         ratelimit.NewLimiter(ratelimit.LoginConfig(), limitStore, logger, metrics),
		RegisterLimiter:      ratelimit.NewLimiter(ratelimit.RegisterConfig(), limitStore, logger, metrics),
		PasswordResetLimiter: ratelimit.NewLimiter(ratelimit.PasswordResetConfig(), limitStore, logger, metrics),
		MagicLinkLimiter:     ratelimit.NewLimiter(ratelimit.MagicLinkConfig(), limitStore, logger, metrics),
		StateDir:             cfg.Session.StateDir,
		ProbeSchedule:        cfg.Session.ProbeSchedule,
		Logger:               logger,
		Metrics:              metrics,
	})
	defer manager.Close()
	manager.Initialize(ctx)

	resolver, err := tenant.NewResolver(manager, rowStore, logger, metrics)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create tenant resolver")
	}

	g := guard.New(guard.Config{
		Sessions:   manager,
		Tenants:    resolver,
		Engine:     rbac.NewEngine(),
		BaseDomain: cfg.Tenant.BaseDomain,
		Logger:     logger,
		Metrics:    metrics,
	})

	onboarder := tenant.NewOnboarder(manager, rowStore, rowStore, logger)

	router := buildRouter(cfg, manager, g, onboarder, metrics, db)
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	)(router)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", srv.Addr).Info("Guildboard access core listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		logrus.WithError(err).Fatal("Server failed")
	case <-ctx.Done():
	}

	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Shutdown did not complete cleanly")
	}
}

// buildLimitStore selects Redis when configured, falling back to the SQL
// attempt log in the main database
func buildLimitStore(ctx context.Context, cfg *config.Config, db *sql.DB) (ratelimit.Store, error) {
	if cfg.Redis.URL == "" {
		sqlStore := ratelimit.NewSQLStore(db)
		if err := sqlStore.Migrate(ctx); err != nil {
			return nil, err
		}
		logrus.Info("Rate limiting backed by SQL attempt log")
		return sqlStore, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	logrus.Info("Rate limiting backed by Redis")
	return ratelimit.NewRedisStore(client, "guildboard:ratelimit", 25*time.Hour), nil
}
