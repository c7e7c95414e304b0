// Package fetcher drives a browser through the catalog's paginated search
// results and appends each page's results container to a sink.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/midcolumbia-catalog/internal/metrics"
	"github.com/JakeFAU/midcolumbia-catalog/internal/policy/ratelimit"
)

// ErrSetup reports that the initial results-per-page configuration failed.
// No page is fetched after it.
var ErrSetup = errors.New("fetcher setup failed")

// Driver is the subset of a browser session the fetcher needs.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitForID(ctx context.Context, id string, timeout time.Duration) error
	SelectOption(ctx context.Context, id, value string, timeout time.Duration) error
	OuterHTMLByID(ctx context.Context, id string, timeout time.Duration) (string, error)
	OuterHTMLByQuery(ctx context.Context, selector string, timeout time.Duration) (string, error)
}

// PageSink persists one page of markup and reports the bytes written.
type PageSink interface {
	AppendPage(ctx context.Context, page int, markup string) (int, error)
}

// Config controls pagination, waits and pacing.
type Config struct {
	BaseURL             string
	TotalPages          int
	ResultsPerPage      string
	DropdownID          string
	ContainerID         string
	SetupWait           time.Duration
	PerPageSettingWait  time.Duration
	PageWait            time.Duration
	RequestsPerSecond   float64
	DeriveTotalPages    bool
	ResultCountSelector string
	OutputPath          string
}

// Stats summarizes one fetch run.
type Stats struct {
	TotalPages int
	Attempted  int
	Saved      int
	Failed     int
	Bytes      int
}

// Fetcher walks the page range sequentially.
type Fetcher struct {
	cfg     Config
	driver  Driver
	sink    PageSink
	logger  *zap.Logger
	metrics *metrics.Metrics
	limiter *ratelimit.Limiter
}

// New builds a Fetcher. logger and m may be nil.
func New(cfg Config, driver Driver, sink PageSink, logger *zap.Logger, m *metrics.Metrics) (*Fetcher, error) {
	if driver == nil {
		return nil, errors.New("fetcher requires a driver")
	}
	if sink == nil {
		return nil, errors.New("fetcher requires a page sink")
	}
	if cfg.TotalPages <= 0 {
		return nil, fmt.Errorf("total pages must be > 0, got %d", cfg.TotalPages)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:     cfg,
		driver:  driver,
		sink:    sink,
		logger:  logger,
		metrics: m,
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.RequestsPerSecond}, m),
	}, nil
}

// Run configures results per page, then fetches pages [startPage, total). A
// setup failure returns ErrSetup; a failed page is logged and skipped. Only
// cancellation of ctx ends the loop early.
func (f *Fetcher) Run(ctx context.Context, startPage int) (Stats, error) {
	if startPage < 0 {
		return Stats{}, fmt.Errorf("start page must be >= 0, got %d", startPage)
	}
	if err := f.setup(ctx); err != nil {
		f.logger.Error("Failed to set results per page",
			zap.String("results_per_page", f.cfg.ResultsPerPage), zap.Error(err))
		return Stats{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	stats := Stats{TotalPages: f.totalPages(ctx)}
	for page := startPage; page < stats.TotalPages; page++ {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("fetch canceled at page %d: %w", page+1, err)
		}
		f.logger.Info(fmt.Sprintf("Processing page %d/%d...", page+1, stats.TotalPages))
		if err := f.wait(ctx); err != nil {
			return stats, fmt.Errorf("fetch canceled at page %d: %w", page+1, err)
		}

		stats.Attempted++
		n, err := f.fetchPage(ctx, page)
		if err != nil {
			stats.Failed++
			f.metrics.ObservePage(metrics.PageFailed, 0)
			f.logger.Error(fmt.Sprintf("ERROR fetching page %d", page+1), zap.Int("page", page+1), zap.Error(err))
			continue
		}
		stats.Saved++
		stats.Bytes += n
		f.metrics.ObservePage(metrics.PageSaved, n)
		f.logger.Info(fmt.Sprintf("Page %d saved.", page+1))
	}

	f.logger.Info("Fetching complete.",
		zap.String("path", f.cfg.OutputPath),
		zap.Int("attempted", stats.Attempted),
		zap.Int("saved", stats.Saved),
		zap.Int("failed", stats.Failed),
		zap.Int("bytes", stats.Bytes),
	)
	return stats, nil
}

func (f *Fetcher) setup(ctx context.Context) error {
	if err := f.driver.Navigate(ctx, PageURL(f.cfg.BaseURL, 0), f.cfg.SetupWait); err != nil {
		return err
	}
	if err := f.driver.WaitForID(ctx, f.cfg.DropdownID, f.cfg.SetupWait); err != nil {
		return err
	}
	if err := f.driver.SelectOption(ctx, f.cfg.DropdownID, f.cfg.ResultsPerPage, f.cfg.SetupWait); err != nil {
		return err
	}
	return f.driver.WaitForID(ctx, f.cfg.ContainerID, f.cfg.PerPageSettingWait)
}

func (f *Fetcher) fetchPage(ctx context.Context, page int) (int, error) {
	if err := f.driver.Navigate(ctx, PageURL(f.cfg.BaseURL, page), f.cfg.PageWait); err != nil {
		return 0, err
	}
	if err := f.driver.WaitForID(ctx, f.cfg.ContainerID, f.cfg.PageWait); err != nil {
		return 0, err
	}
	markup, err := f.driver.OuterHTMLByID(ctx, f.cfg.ContainerID, f.cfg.PageWait)
	if err != nil {
		return 0, err
	}
	if markup == "" {
		return 0, fmt.Errorf("results container #%s is empty", f.cfg.ContainerID)
	}
	return f.sink.AppendPage(ctx, page, markup)
}

// totalPages returns the configured total, or the total derived from the
// result count when enabled and readable.
func (f *Fetcher) totalPages(ctx context.Context) int {
	if !f.cfg.DeriveTotalPages || f.cfg.ResultCountSelector == "" {
		return f.cfg.TotalPages
	}
	perPage, err := strconv.Atoi(f.cfg.ResultsPerPage)
	if err != nil || perPage <= 0 {
		f.logger.Warn("Results per page is not numeric; using configured total",
			zap.String("results_per_page", f.cfg.ResultsPerPage))
		return f.cfg.TotalPages
	}
	markup, err := f.driver.OuterHTMLByQuery(ctx, f.cfg.ResultCountSelector, f.cfg.PerPageSettingWait)
	if err != nil {
		f.logger.Warn("Result count unavailable; using configured total", zap.Error(err))
		return f.cfg.TotalPages
	}
	count, err := ParseResultCount(markup)
	if err != nil {
		f.logger.Warn("Result count unreadable; using configured total", zap.Error(err))
		return f.cfg.TotalPages
	}
	pages := PagesFor(count, perPage)
	if pages <= 0 {
		return f.cfg.TotalPages
	}
	f.logger.Info("Derived total pages from result count",
		zap.Int("results", count), zap.Int("total_pages", pages))
	return pages
}

func (f *Fetcher) wait(ctx context.Context) error {
	return f.limiter.Wait(ctx)
}
