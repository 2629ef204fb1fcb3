// @title           Careline API
// @version         1.0.0
// @description     Health-only chat gateway: session login, keyword and policy admission, digest-only audit trail
// @license.name    Apache-2.0
// @basePath        /
// @schemes         http https
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090) that is separate from the main API server. Configure the port with CARELINE_TELEMETRY_METRICS_PROMETHEUS_PORT. The endpoint path is always GET /metrics.

// Package main is the entry point for the Careline gateway binary.
// It dispatches its subcommands (serve, migrate, audit, version) via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place.
// The serve command runs auto-migration on startup when the audit trail is
// stored in PostgreSQL.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/careline/careline/internal/api"
	"github.com/careline/careline/internal/audit"
	"github.com/careline/careline/internal/auth"
	"github.com/careline/careline/internal/cache"
	"github.com/careline/careline/internal/chat"
	"github.com/careline/careline/internal/clinic"
	"github.com/careline/careline/internal/config"
	"github.com/careline/careline/internal/crypto"
	"github.com/careline/careline/internal/db"
	"github.com/careline/careline/internal/db/repositories"
	"github.com/careline/careline/internal/filter"
	"github.com/careline/careline/internal/generator"
	"github.com/careline/careline/internal/safego"
	"github.com/careline/careline/internal/session"
	"github.com/careline/careline/internal/telemetry"
)

const (
	shutdownTimeout   = 10 * time.Second
	auditDrainTimeout = 5 * time.Second
	janitorInterval   = time.Minute
	defaultAuditLimit = 20
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	// Parse command from args
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("Careline v%s\n", api.Version)
		return nil
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Execute command
	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "audit":
		return runAudit(cfg, os.Args[2:])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, audit, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Telemetry.ServiceName)

	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	secret, err := audit.ResolveSecret(cfg.Audit.Secret, config.IsDevMode())
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	digester, err := audit.NewDigester(secret)
	if err != nil {
		return err
	}

	// Audit store
	var (
		auditStore audit.Store
		sqlDB      *sql.DB
	)
	switch cfg.Audit.Store {
	case "postgres":
		database, err := connectAndMigrate(cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		sqlDB = database.DB
		auditStore = repositories.NewChatLogRepository(database)
	default:
		slog.Warn("audit trail is kept in process memory and lost on restart", "store", cfg.Audit.Store)
		auditStore = audit.NewMemoryStore()
	}

	shippers, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	auditOpts := []audit.Option{audit.WithWriteTimeout(cfg.Audit.WriteTimeout)}
	if shippers.Len() > 0 {
		auditOpts = append(auditOpts, audit.WithShipper(shippers))
		slog.Info("audit shippers enabled", "count", shippers.Len())
	}
	auditLog := audit.NewLogger(digester, auditStore, auditOpts...)

	// Session store
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.Connect(context.Background(), cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	var sessionStore session.Store
	if rdb != nil {
		sealer, err := crypto.DeriveSealer(secret, "session-identity")
		if err != nil {
			return fmt.Errorf("failed to derive session key: %w", err)
		}
		sessionStore = session.NewRedisStore(rdb, cfg.Redis.KeyPrefix, sealer)
	} else {
		memStore := session.NewMemoryStore()
		memStore.StartJanitor(janitorInterval)
		defer memStore.Stop()
		sessionStore = memStore
	}
	registry := session.NewRegistry(sessionStore, session.WithTTL(cfg.Auth.SessionTTL))

	credentials, err := auth.NewCredentialStore(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if credentials.Len() == 0 {
		slog.Warn("no login credentials configured; every login will be rejected")
	}

	// Chat pipeline
	prompt, err := generator.LoadSystemPrompt(cfg.Generator.SystemPromptFile)
	if err != nil {
		return err
	}
	chatOpts := []chat.Option{
		chat.WithPolicyPrompt(prompt),
		chat.WithGenerateTimeout(cfg.Generator.Timeout),
		chat.WithMaxMessageLength(cfg.Chat.MaxMessageLength),
	}
	if cfg.Clinic.Enabled {
		chatOpts = append(chatOpts, chat.WithClinicLocator(clinic.NewLocator(cfg.Clinic)))
		slog.Info("clinic lookup enabled", "radius_meters", cfg.Clinic.RadiusMeters)
	}
	orchestrator := chat.NewOrchestrator(registry, filter.New(), generator.New(cfg.Generator), auditLog, chatOpts...)

	// Start Prometheus metrics endpoint on a dedicated port so it is not reachable
	// through the public API ingress path.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		safego.Go(func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	// Create router
	router, bgServices := api.NewRouter(cfg, api.Deps{
		Credentials: credentials,
		Sessions:    registry,
		Chat:        orchestrator,
		DB:          sqlDB,
		Redis:       rdb,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"audit_store", cfg.Audit.Store,
			"redis", cfg.Redis.Enabled,
			"tls", cfg.Security.TLS.Enabled,
		)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Flush audit writes started by the last requests before closing the stores
	drainCtx, drainCancel := context.WithTimeout(context.Background(), auditDrainTimeout)
	defer drainCancel()
	if err := auditLog.Drain(drainCtx); err != nil {
		slog.Warn("audit writes did not finish before shutdown", "error", err)
	}

	// Stop rate limiter goroutines
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

// connectAndMigrate opens the audit database, starts pool metrics and applies
// pending migrations.
func connectAndMigrate(cfg *config.Config) (*sqlx.DB, error) {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	// Begin exporting DB pool statistics to Prometheus.
	telemetry.StartDBStatsCollector(database.DB)

	if err := db.RunMigrations(database.DB, "up"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}
	return database, nil
}

func runMigrations(cfg *config.Config, direction string) error {
	// Connect to database
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	// Run migrations
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Get current version
	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}

// runAudit inspects the persisted audit trail:
//
//	careline audit recent [limit]
//	careline audit lookup <text> [limit]
//
// lookup digests text with APP_SECRET and lists the records whose query matches.
func runAudit(cfg *config.Config, args []string) error {
	usage := fmt.Errorf("usage: %s audit <recent [limit] | lookup <text> [limit]>", os.Args[0])
	if len(args) == 0 {
		return usage
	}
	if cfg.Audit.Store != "postgres" {
		return errors.New("audit inspection requires audit.store=postgres")
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	var reader audit.Reader = repositories.NewChatLogRepository(database)
	ctx := context.Background()

	var entries []*audit.Entry
	switch args[0] {
	case "recent":
		limit, err := parseLimit(args[1:])
		if err != nil {
			return err
		}
		entries, err = reader.ListRecent(ctx, limit)
		if err != nil {
			return err
		}
	case "lookup":
		if len(args) < 2 || args[1] == "" {
			return usage
		}
		limit, err := parseLimit(args[2:])
		if err != nil {
			return err
		}
		// An ephemeral secret would never match stored digests.
		secret, err := audit.ResolveSecret(cfg.Audit.Secret, false)
		if err != nil {
			return err
		}
		digester, err := audit.NewDigester(secret)
		if err != nil {
			return err
		}
		entries, err = reader.ListByQueryDigest(ctx, digester.Digest(args[1]), limit)
		if err != nil {
			return err
		}
	default:
		return usage
	}

	return printEntries(os.Stdout, entries)
}

func parseLimit(args []string) (int, error) {
	if len(args) == 0 {
		return defaultAuditLimit, nil
	}
	limit, err := strconv.Atoi(args[0])
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit: %q", args[0])
	}
	return limit, nil
}

func printEntries(out io.Writer, entries []*audit.Entry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tHASHED_QUERY\tHASHED_RESPONSE")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.Timestamp.Format(time.RFC3339), e.HashedQuery, e.HashedResponse)
	}
	return w.Flush()
}
