package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/bodymap/internal/config"
	"github.com/ehr/bodymap/internal/domain/bodymap"
	"github.com/ehr/bodymap/internal/platform/auth"
	"github.com/ehr/bodymap/internal/platform/cache"
	"github.com/ehr/bodymap/internal/platform/db"
	"github.com/ehr/bodymap/internal/platform/events"
	"github.com/ehr/bodymap/internal/platform/hipaa"
	"github.com/ehr/bodymap/internal/platform/middleware"
	"github.com/ehr/bodymap/internal/platform/telemetry"
	"github.com/ehr/bodymap/internal/platform/webhook"
	"github.com/ehr/bodymap/internal/platform/websocket"
	"github.com/ehr/bodymap/migrations"
)

const (
	wsPath          = "/api/v1/ws"
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bodymap-server",
		Short:        "Patient body-map marker service",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tenantCmd())
	root.AddCommand(catalogCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the body-map API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

// openCache returns a Redis-backed store when url is set and an in-process
// one otherwise. The Redis client is nil in the second case.
func openCache(ctx context.Context, url string) (cache.Store, *redis.Client, error) {
	if url == "" {
		return cache.NewMemoryStore(), nil, nil
	}
	client, err := cache.NewRedisClient(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedisStore(client, "bodymap:"), client, nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svc := bodymap.NewService(
		bodymap.NewMarkerRepo(pool),
		bodymap.NewHistoryRepo(pool),
		bodymap.DefaultCatalog(),
		bodymap.DefaultRegions(),
	)
	svc.SetTransactor(db.NewTransactor(pool))
	svc.SetLogger(logger)
	svc.SetAttentionThreshold(cfg.AttentionThreshold)

	store, redisClient, err := openCache(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info().Msg("connected to redis")
	}
	svc.SetCache(bodymap.NewSummaryCache(store, cfg.CacheTTL()))
	checks := []db.DependencyCheck{{Name: "cache", Check: store.Ping}}

	// Event fan-out
	hub := websocket.NewHub(logger)
	hub.SetTopicFilter(bodymap.IsMarkerTopic)
	metrics := telemetry.New(true)
	metrics.RegisterPool(pool)
	sinks := events.Multi{events.NewLogSink(logger), hub, metrics}
	if redisClient != nil {
		sinks = append(sinks, events.NewRedisStreamSink(redisClient, cfg.EventStream, 0))
	}

	if cfg.MQTTBroker != "" {
		client, err := events.ConnectMQTT(events.MQTTConfig{Broker: cfg.MQTTBroker, ClientID: cfg.MQTTClientID})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer client.Disconnect(250)
		sinks = append(sinks, events.NewMQTTSink(client, cfg.MQTTTopicPrefix, 1))
		checks = append(checks, db.DependencyCheck{Name: "mqtt", Check: mqttCheck(client)})

		ingestor := bodymap.NewIngestor(svc, func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
			return db.WithTenant(ctx, pool, tenantID, fn)
		}, logger)
		topic := bodymap.IngestTopic(cfg.MQTTTopicPrefix)
		onError := func(topic string, err error) {
			logger.Warn().Err(err).Str("topic", topic).Msg("mention ingest failed")
		}
		if err := events.Subscribe(client, topic, 1, ingestor.Handle, onError); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe to mention topic")
		}
		logger.Info().Str("broker", cfg.MQTTBroker).Str("topic", topic).Msg("mqtt ingest subscribed")
	}

	if cfg.WebhookURL != "" {
		dispatcher, err := webhook.NewDispatcher([]webhook.Endpoint{{
			URL:    cfg.WebhookURL,
			Secret: cfg.WebhookSecret,
			Events: cfg.WebhookEvents,
		}}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid webhook endpoint")
		}
		go dispatcher.Run(ctx)
		defer dispatcher.Close()
		sinks = append(sinks, dispatcher)
	}
	svc.SetEventSink(sinks)

	e := newEcho(cfg, pool, svc, hub, metrics, logger, checks)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
		return err
	}
	return nil
}

func newEcho(cfg *config.Config, pool *pgxpool.Pool, svc *bodymap.Service, hub *websocket.Hub, metrics *telemetry.Metrics, logger zerolog.Logger, checks []db.DependencyCheck) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(requestTimeout, wsPath))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	}

	// The websocket resolves its tenant itself and must not pin a
	// connection for its whole lifetime.
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, "/health", "/metrics", wsPath))
	e.Use(middleware.Audit(logger, hipaa.NewAccessLog(pool)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))
	e.GET("/metrics", metrics.Handler())

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	rateLimit := middleware.RateLimit(rateLimitCfg)

	apiV1 := e.Group("/api/v1", rateLimit)
	fhirGroup := e.Group("/fhir", rateLimit)

	bodymap.NewHandler(svc).RegisterRoutes(apiV1, fhirGroup)

	wsHandler := websocket.NewHandler(hub, cfg.CORSOrigins, func(c echo.Context) (string, error) {
		return db.ResolveTenant(c, cfg.DefaultTenant)
	})
	wsHandler.RegisterRoutes(apiV1, auth.RequireRole(auth.RolePhysician, auth.RoleNurse))

	return e
}

func mqttCheck(client mqtt.Client) func(ctx context.Context) error {
	return func(context.Context) error {
		if !client.IsConnectionOpen() {
			return fmt.Errorf("mqtt connection is down")
		}
		return nil
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	migrator := func(pool *pgxpool.Pool, dir string) *db.Migrator {
		if dir != "" {
			return db.NewMigrator(pool, dir)
		}
		return db.NewMigratorFS(pool, migrations.FS)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running migrations on schema: %s\n", schema)
			count, err := migrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply the body-map migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %q created (schema tenant_%s).\n", name, name)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (letters, digits, underscore)")
	cmd.AddCommand(createCmd)

	return cmd
}
