package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thriveai/companion/internal/config"
	"github.com/thriveai/companion/internal/domain/account"
	"github.com/thriveai/companion/internal/domain/ehr"
	"github.com/thriveai/companion/internal/domain/insights"
	"github.com/thriveai/companion/internal/domain/metrics"
	"github.com/thriveai/companion/internal/platform/auth"
	"github.com/thriveai/companion/internal/platform/db"
	"github.com/thriveai/companion/internal/platform/events"
	"github.com/thriveai/companion/internal/platform/middleware"
	"github.com/thriveai/companion/internal/platform/rtc"
	ws "github.com/thriveai/companion/internal/platform/websocket"
)

const migrationsDir = "migrations"

func main() {
	root := &cobra.Command{
		Use:   "companion-server",
		Short: "Health companion API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(true)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(false)
			},
		},
	)

	root.AddCommand(serve, migrate)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMigrate(apply bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator := db.NewMigrator(pool, migrationsDir)
	if apply {
		n, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", n).Msg("migrations complete")
		return nil
	}

	statuses, err := migrator.Status(ctx)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied " + s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Printf("%03d %-30s %s\n", s.Version, s.Name, state)
	}
	return nil
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Event sinks are optional; the dispatcher with zero sinks is a no-op.
	var sinks []events.Sink
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("kafka event sink enabled")
	}
	if cfg.RabbitMQURL != "" {
		sink, err := events.NewAMQPSink(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq sink unavailable, continuing without it")
		} else {
			sinks = append(sinks, sink)
			logger.Info().Msg("rabbitmq event sink enabled")
		}
	}
	if cfg.ClickHouseAddr != "" {
		sink, err := events.NewClickHouseSink(cfg.ClickHouseAddr, cfg.ClickHouseDatabase, cfg.ClickHouseUser, cfg.ClickHousePassword, "events")
		if err != nil {
			logger.Warn().Err(err).Msg("clickhouse sink unavailable, continuing without it")
		} else {
			sinks = append(sinks, sink)
			logger.Info().Msg("clickhouse event sink enabled")
		}
	}
	dispatcher := events.NewDispatcher(logger, sinks...)
	defer dispatcher.Close()

	// Pending authorizations live in Redis when available so entries expire
	// natively; otherwise Postgres plus the sweeper covers it.
	var pendingStore ehr.PendingAuthStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		pendingStore = ehr.NewPendingAuthStoreRedis(redis.NewClient(opts), ehr.PendingAuthRetention)
		logger.Info().Msg("auth sessions stored in redis")
	} else {
		pendingStore = ehr.NewPendingAuthStorePG(pool)
	}

	provider := ehr.NewProviderClient(ehr.ProviderConfig{
		AuthorizeURL: cfg.EHRAuthorizeURL,
		TokenURL:     cfg.EHRTokenURL,
		ClientID:     cfg.EHRClientID,
		ClientSecret: cfg.EHRClientSecret,
		RedirectURI:  cfg.EHRRedirectURI,
		Scopes:       cfg.EHRScopes,
		FHIRBaseURL:  cfg.EHRFHIRBaseURL,
	})
	ehrSvc := ehr.NewService(
		ehr.NewConnectionRepoPG(pool), pendingStore, provider,
		ehr.NewVitalsClient(), dispatcher, logger,
	)
	ehrSvc.StartPendingSweeper(ctx, time.Minute)

	hub := ws.NewHub(logger)
	defer hub.Shutdown()

	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/health" || p == "/v1/ehr/callback" || p == "/v1/metrics/stream"
		},
	}
	if cfg.AuthIssuer != "" {
		jwksURL := cfg.AuthJWKSURL
		if jwksURL == "" {
			jwksURL = auth.JWKSURLForIssuer(cfg.AuthIssuer)
		}
		jwtCfg.Keys = auth.NewJWKSCache(jwksURL, 5*time.Minute)
	} else if cfg.IsDev() {
		// Lets the metrics stream verify locally minted HS256 tokens when no
		// identity provider is configured.
		jwtCfg.SigningKey = []byte("companion-dev-secret")
	}

	metricsSvc := metrics.NewService(metrics.NewRepoPG(pool), hub, dispatcher, logger)
	accountSvc := account.NewService(account.NewRepoPG(pool), logger)

	var generator insights.Generator
	if cfg.InsightProvider == "openai" && cfg.OpenAIAPIKey != "" {
		generator = insights.NewOpenAIGenerator(cfg.OpenAIAPIKey, "")
	}
	insightsSvc := insights.NewService(insights.NewRepoPG(pool), metricsSvc, generator, dispatcher, logger)

	minter := rtc.NewTokenMinter(rtc.Config{
		APIKey:    cfg.LiveKitAPIKey,
		APISecret: cfg.LiveKitAPISecret,
		ServerURL: cfg.LiveKitURL,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/health", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/v1")
	if cfg.IsDev() && cfg.AuthIssuer == "" {
		v1.Use(auth.DevAuthMiddleware())
	} else {
		v1.Use(auth.JWTMiddleware(jwtCfg))
	}

	ehr.NewHandler(ehrSvc, logger).Register(v1)
	account.NewHandler(accountSvc).Register(v1)
	insights.NewHandler(insightsSvc).Register(v1)
	rtc.NewHandler(minter).Register(v1)

	metricsHandler := metrics.NewHandler(metricsSvc, hub, jwtCfg, logger)
	metricsHandler.Register(v1)
	metricsHandler.RegisterStream(v1)

	go func() {
		addr := ":" + strings.TrimPrefix(cfg.Port, ":")
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
