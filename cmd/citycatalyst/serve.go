package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/calculator"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/catalog"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/config"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/db"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/hiap"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/locking"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/logger"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/server"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var (
	servePort           int
	serveMigrate        bool
	serveCatalogRefresh time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server and HIAP worker pool",
	Long:  `Start an HTTP server that exposes inventory totals and HIAP job endpoints, backed by PostgreSQL.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config and PORT)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply the database schema before serving")
	serveCmd.Flags().DurationVar(&serveCatalogRefresh, "catalog-refresh", 5*time.Minute, "Interval for reloading emissions factors from the database (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if serveMigrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
	}

	factors := catalog.New(log)
	if _, _, err := factors.Refresh(ctx, database); err != nil {
		return err
	}
	if serveCatalogRefresh > 0 {
		go refreshCatalog(ctx, factors, database, serveCatalogRefresh, log)
	}

	locker, closeLocker, err := newLocker(ctx, cfg.RedisURL, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	calc := calculator.New(database, factors, locker, log)

	manager := hiap.NewManager(cfg.Hiap(), database, database, calc, database, locker, log)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HIAP manager: %w", err)
	}
	defer manager.Stop()

	srv := server.New(server.Config{Port: cfg.Port, RateLimit: ratelimit.LoadConfig()}, manager, calc, database, log)
	return srv.Run(ctx)
}

// newLocker returns a Redis-backed locker when redisURL is set, otherwise an in-process one.
func newLocker(ctx context.Context, redisURL string, log *logger.Logger) (locking.Locker, func(), error) {
	if redisURL == "" {
		log.Info("REDIS_URL not set, inventory and admission locks are process-local")
		return locking.NewLocalLocker(), func() {}, nil
	}
	rl, err := locking.NewRedisLocker(ctx, redisURL, "")
	if err != nil {
		return nil, nil, err
	}
	return rl, func() { _ = rl.Close() }, nil
}

func refreshCatalog(ctx context.Context, c *catalog.Catalog, src catalog.FactorSource, every time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := c.Refresh(ctx, src); err != nil {
				log.Warn("Failed to refresh emissions factor catalog", "error", err)
			}
		}
	}
}
