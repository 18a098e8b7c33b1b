/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the care billing server, and hosts the operator
  subcommands that work against the same database.

STARTUP SEQUENCE:
  1. Load .env (optional) and environment configuration
  2. Apply command-line flag overrides
  3. Configure the zerolog logger
  4. Open the SQLite store (migrations run on open)
  5. Run the selected command

COMMANDS:
  serve     HTTP API with the overdue scheduler (default)
  summary   Print the ledger summary as JSON
  export    Write the invoice CSV export
  migrate   Apply migrations and print their status

FLAGS (all commands):
  --db      SQLite database path, overrides DB_PATH
            Use ":memory:" for an in-memory database
  --port    HTTP server port, overrides PORT (serve only)

ENVIRONMENT:
  See internal/config. A .env file in the working directory is loaded
  first; real environment variables take precedence.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the overdue scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server --db=./data/billing.db
  ./server serve --port=3000
  ./server summary --as-of=2025-06-30
  ./server export --out=invoices.csv

SEE ALSO:
  - api/server.go: Router configuration
  - internal/config/config.go: Environment variables
  - store/sqlite/sqlite.go: Database implementation
*/
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

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/warp/care-billing/api"
	"github.com/warp/care-billing/internal/config"
	"github.com/warp/care-billing/internal/logger"
	"github.com/warp/care-billing/store/sqlite"
)

var version = "0.1.0"

// app carries what every subcommand needs once PersistentPreRunE has run.
type app struct {
	cfg       *config.Config
	logCloser io.Closer
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "server",
		Short: "Care billing engine",
		Long: `Care billing prices care activities into invoices, tracks
their payment lifecycle and reports on outstanding balances.

Running without a subcommand starts the HTTP API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	root.PersistentFlags().String("db", "", "SQLite database path (overrides DB_PATH)")
	root.PersistentFlags().Int("port", 0, "HTTP server port (overrides PORT)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
		a.summaryCmd(),
		a.exportCmd(),
		a.migrateCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Database.Path = db
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	closer, err := logger.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	a.cfg = cfg
	a.logCloser = closer
	return nil
}

func (a *app) openStore() (*sqlite.Store, error) {
	store, err := sqlite.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (a *app) newHandler(store *sqlite.Store) *api.Handler {
	return api.NewHandler(store, api.Options{
		SystemRules:      a.cfg.SystemRules(),
		OverdueAfterDays: a.cfg.Scheduler.OverdueAfterDays,
		Logger:           logger.WithComponent("api"),
	})
}

// =============================================================================
// SERVE
// =============================================================================

func (a *app) serve(ctx context.Context) error {
	serverLog := logger.WithComponent("server")

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	handler := a.newHandler(store)
	handler.Overdue.Enabled = a.cfg.Scheduler.Enabled
	handler.Overdue.CheckInterval = a.cfg.Scheduler.CheckInterval
	handler.Overdue.Start()
	defer handler.Overdue.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      api.NewRouter(handler, a.cfg.Server.CORSOrigins),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		serverLog.Info().
			Int("port", a.cfg.Server.Port).
			Str("db", a.cfg.Database.Path).
			Str("version", version).
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	serverLog.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	serverLog.Info().Msg("Server stopped")
	return nil
}
