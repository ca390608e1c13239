// Command observatory is the arbitrage observatory's process root: a cobra
// CLI replacing the teacher's flag-less main.go with a structured command
// surface (run/migrate/healthcheck), grounded on sawpanic-cryptorun's and
// NimbleMarkets-dbn-go's use of cobra/pflag for their own CLIs.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"arbitrage/internal/config"
	"arbitrage/internal/pipeline"
	"arbitrage/internal/storage"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "observatory",
		Short: "Cross-venue cryptocurrency arbitrage observatory",
	}
	root.AddCommand(runCmd(), migrateCmd(), healthcheckCmd())
	return root
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

// runCmd starts the pipeline and the internal HTTP surface, blocking until
// SIGINT/SIGTERM.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the observatory pipeline and HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()

			pl, err := pipeline.New(cfg, log)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer pl.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			server := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:      pl.Router(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 2)
			go func() {
				log.Info("starting pipeline")
				errCh <- pl.Run(ctx)
			}()
			go func() {
				log.Info("starting http surface", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- fmt.Errorf("http surface: %w", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-quit:
				log.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					log.Error("pipeline exited", zap.Error(err))
				}
			}

			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("http shutdown error", zap.Error(err))
			}

			return nil
		},
	}
}

// migrateCmd applies internal/storage/migrations, an external collaborator
// entrypoint (schema management is thin and out of core scope per spec §1).
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password,
				cfg.Database.Name, cfg.Database.SSLMode)
			db, err := sql.Open("postgres", dsn)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if err := storage.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

// healthcheckCmd does a one-shot ping of Postgres and Redis, for container
// orchestration probes.
func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "One-shot ping of Postgres and Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := zap.NewNop()

			pl, err := pipeline.New(cfg, log)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer pl.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pl.Ping(ctx); err != nil {
				return fmt.Errorf("healthcheck failed: %w", err)
			}
			fmt.Println("ok")
			return nil
		},
	}
}
