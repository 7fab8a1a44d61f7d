package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicflow/clinic/internal/config"
	"github.com/clinicflow/clinic/internal/domain/billing"
	"github.com/clinicflow/clinic/internal/domain/catalog"
	"github.com/clinicflow/clinic/internal/domain/charting"
	"github.com/clinicflow/clinic/internal/domain/clinicalnote"
	"github.com/clinicflow/clinic/internal/domain/encounter"
	"github.com/clinicflow/clinic/internal/domain/inventory"
	"github.com/clinicflow/clinic/internal/domain/prescription"
	"github.com/clinicflow/clinic/internal/domain/scheduling"
	"github.com/clinicflow/clinic/internal/domain/treatment"
	"github.com/clinicflow/clinic/internal/platform/auth"
	"github.com/clinicflow/clinic/internal/platform/cache"
	"github.com/clinicflow/clinic/internal/platform/db"
	"github.com/clinicflow/clinic/internal/platform/logging"
	"github.com/clinicflow/clinic/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Dental clinic encounter workflow API",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				writeMigrationStatus(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
		c.Flags().String("dir", "./migrations", "Path to migrations directory")
		cmd.AddCommand(c)
	}
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if schema == "" {
		schema = cfg.DBSchema
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, os.DirFS(dir), schema), schema)
}

func writeMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// authMiddleware validates HS256 bearer tokens. In development, requests
// without a token act as the dev practitioner.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtMW := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtMW)
	}
	return jwtMW
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDev(),
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
	})
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	rdb, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()
	logger.Info().Msg("connected to redis")

	rules, err := charting.LoadRules(cfg.ChartingRulesFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.ChartingRulesFile).Msg("failed to load charting rules")
	}

	e := newServer(cfg, logger, pool, rdb, rules)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb redis.Cmdable, rules *charting.Rules) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1", authMiddleware(cfg))

	catalogReader := catalog.NewReaderPG(pool)
	apptSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), cfg.CompletedStatusFallbackID, logger)
	planSvc := treatment.NewService(treatment.NewPlanRepoPG(pool))
	chartSvc := charting.NewService(charting.NewToothRecordRepoPG(pool))
	rxSvc := prescription.NewService(prescription.NewPrescriptionRepoPG(pool))
	ledger := inventory.NewLedger(inventory.NewRepoPG(pool), catalogReader, logger)
	aggregator := billing.NewAggregator(billing.NewInvoiceRepoPG(pool), catalogReader, logger)
	finalizer := clinicalnote.NewFinalizer(clinicalnote.NewNoteRepoPG(pool), planSvc, apptSvc, logger)

	wf := encounter.NewWorkflow(encounter.Deps{
		Appointments:  apptSvc,
		Catalog:       catalogReader,
		Plans:         planSvc,
		Charts:        chartSvc,
		Prescriptions: rxSvc,
		Ledger:        ledger,
		Billing:       aggregator,
		Finalizer:     finalizer,
		Tx:            db.NewTxRunner(pool),
		Rules:         rules,
		Logger:        logger,
	})

	scheduling.NewHandler(apptSvc).RegisterRoutes(apiV1)
	encounter.NewHandler(wf, encounter.NewRedisStore(rdb, cfg.DraftTTL), logger).RegisterRoutes(apiV1)
	billing.NewHandler(aggregator).RegisterRoutes(apiV1)
	inventory.NewHandler(ledger).RegisterRoutes(apiV1)

	return e
}
