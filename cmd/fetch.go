package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/midcolumbia-catalog/internal/browser"
	"github.com/JakeFAU/midcolumbia-catalog/internal/config"
	"github.com/JakeFAU/midcolumbia-catalog/internal/fetcher"
	"github.com/JakeFAU/midcolumbia-catalog/internal/storage/local"
)

// session is a browser the fetcher can drive and the command must close.
type session interface {
	fetcher.Driver
	Close() error
}

// openBrowser launches the browser. Tests replace it with a fake.
var openBrowser = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (session, error) {
	return browser.New(ctx, browser.Config{
		Headless:     cfg.Browser.Headless,
		NoSandbox:    cfg.Browser.NoSandbox,
		UserAgent:    cfg.Browser.UserAgent,
		ExecPath:     cfg.Browser.ExecPath,
		ImplicitWait: cfg.ImplicitWait(),
	}, logger)
}

// newFetchCmd creates the 'fetch' subcommand.
func newFetchCmd() *cobra.Command {
	var startPage, totalPages int

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Saves every catalog results page to the page file",
		Long: `Opens the catalog in a headless browser, switches to 100 results per page and
appends the results container of each page to fetcher.output_path. Use
--start_page to resume after an interrupted run.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			cfg := app.Config
			if cmd.Flags().Changed("start_page") {
				cfg.Fetcher.StartPage = startPage
			}
			if cmd.Flags().Changed("total_pages") {
				cfg.Fetcher.TotalPages = totalPages
				cfg.Fetcher.DeriveTotalPages = false
			}
			return runFetch(cmd.Context(), app, cfg)
		}),
	}
	cmd.Flags().IntVar(&startPage, "start_page", 0, "zero-based page to start fetching from")
	cmd.Flags().IntVar(&totalPages, "total_pages", 0, "exclusive upper page bound (overrides fetcher.total_pages)")
	return cmd
}

func runFetch(ctx context.Context, app *App, cfg config.Config) error {
	logger := app.Logger
	if cfg.Fetcher.StartPage < 0 {
		return fmt.Errorf("start_page must be >= 0, got %d", cfg.Fetcher.StartPage)
	}

	sink, err := local.NewAppendLog(cfg.Fetcher.OutputPath)
	if err != nil {
		return fmt.Errorf("open page file: %w", err)
	}

	driver, err := openBrowser(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := driver.Close(); cerr != nil {
			logger.Warn("Failed to close browser", zap.Error(cerr))
		}
	}()

	f, err := fetcher.New(fetcher.Config{
		BaseURL:             cfg.Fetcher.BaseURL,
		TotalPages:          cfg.Fetcher.TotalPages,
		ResultsPerPage:      cfg.Fetcher.ResultsPerPage,
		DropdownID:          cfg.Fetcher.DropdownID,
		ContainerID:         cfg.Fetcher.ContainerID,
		SetupWait:           cfg.SetupWait(),
		PerPageSettingWait:  cfg.PerPageSettingWait(),
		PageWait:            cfg.PageWait(),
		RequestsPerSecond:   cfg.Fetcher.RequestsPerSecond,
		DeriveTotalPages:    cfg.Fetcher.DeriveTotalPages,
		ResultCountSelector: cfg.Fetcher.ResultCountSelector,
		OutputPath:          sink.Path(),
	}, driver, sink, logger, app.Metrics)
	if err != nil {
		return fmt.Errorf("init fetcher: %w", err)
	}

	_, err = f.Run(ctx, cfg.Fetcher.StartPage)
	switch {
	case err == nil:
	case errors.Is(err, fetcher.ErrSetup):
		// Already logged; nothing was fetched.
	default:
		logger.Warn("Fetching stopped early", zap.Error(err))
	}
	return nil
}
