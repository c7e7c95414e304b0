// Package cmd defines and implements the CLI commands for the catalog executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/midcolumbia-catalog/internal/config"
	"github.com/JakeFAU/midcolumbia-catalog/internal/id/uuid"
	"github.com/JakeFAU/midcolumbia-catalog/internal/logging"
	"github.com/JakeFAU/midcolumbia-catalog/internal/metrics"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App holds the services shared by every subcommand for one run.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	RunID   string

	stopMetrics func()
	closeOnce   sync.Once
}

// newApp loads configuration and builds the logger, run ID and metrics.
func newApp(cfgFile string) (*App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("run_id", runID))

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics.New(),
		RunID:       runID,
		stopMetrics: func() {},
	}
	if cfg.Metrics.Addr != "" {
		stop, err := app.Metrics.Serve(cfg.Metrics.Addr, logger)
		if err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		app.stopMetrics = stop
	}
	return app, nil
}

// Close stops the metrics server and flushes the logger. It is idempotent.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.stopMetrics()
		_ = a.Logger.Sync() //nolint:errcheck // stdout sync fails on some terminals
	})
}

func resolveApp(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey).(*App)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}

// withApp adapts fn to a RunE. The App is closed on every return path,
// including when fn fails.
func withApp(fn func(cmd *cobra.Command, app *App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		app, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(cmd, app)
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Scrapes the Mid-Columbia Libraries catalog into JSON lines.",
		Long: `catalog collects the public search results of the Mid-Columbia Libraries
catalog in two stages. "fetch" drives a headless browser through every results
page and appends the raw markup to a text file; "extract" turns that file into
one JSON object per book.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); CATALOG_* env vars override it")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newExtractCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
