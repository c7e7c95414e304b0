// Package extractor turns the raw page file produced by the fetcher into book
// records. The input is streamed one results container at a time.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/midcolumbia-catalog/internal/catalog"
	"github.com/JakeFAU/midcolumbia-catalog/internal/metrics"
)

// DefaultContainerID is the id of the results container on catalog search pages.
const DefaultContainerID = "searchResultsDIV"

var candidateXPath = xpath.MustCompile(`//div[contains(@class, 'content-module')]`)

// RecordSink receives every emitted record.
type RecordSink interface {
	WriteRecord(ctx context.Context, rec *catalog.Record) error
}

// Config controls how containers are located.
type Config struct {
	ContainerID string
}

// Stats summarizes one extraction run. Records counts emitted records only.
type Stats struct {
	Pages      int
	Candidates int
	Records    int
	Skipped    int
	Failed     int
	Unique     int
}

// Extractor walks results containers and emits one record per titled content module.
type Extractor struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds an Extractor. logger and m may be nil.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Extractor {
	if cfg.ContainerID == "" {
		cfg.ContainerID = DefaultContainerID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger, metrics: m}
}

// ParseHTMLToJSON extracts every record in inputPath and appends them to
// outputPath as JSON lines.
func (e *Extractor) ParseHTMLToJSON(ctx context.Context, inputPath, outputPath string) (Stats, error) {
	out, err := NewJSONLWriter(outputPath)
	if err != nil {
		return Stats{}, err
	}
	stats, runErr := e.RunFile(ctx, inputPath, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return stats, runErr
}

// RunFile opens inputPath and runs the extraction into sink.
func (e *Extractor) RunFile(ctx context.Context, inputPath string, sink RecordSink) (Stats, error) {
	// #nosec G304 -- the input path comes from operator configuration.
	f, err := os.Open(inputPath)
	if err != nil {
		return Stats{}, fmt.Errorf("open input %s: %w", inputPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	return e.Run(ctx, f, sink)
}

// Run streams input and writes each titled record to sink. Record-level
// failures are counted and skipped; a read, parse or sink error ends the run
// and is returned together with the stats gathered so far.
func (e *Extractor) Run(ctx context.Context, input io.Reader, sink RecordSink) (Stats, error) {
	var (
		stats  Stats
		unique = make(map[string]struct{})
		prev   *html.Node
	)
	scanner := NewContainerScanner(input, e.cfg.ContainerID, e.logger)
	for {
		if err := ctx.Err(); err != nil {
			release(prev)
			return stats, fmt.Errorf("extraction canceled: %w", err)
		}
		markup, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			release(prev)
			e.logger.Error("An error occurred while reading input", zap.Error(err))
			return stats, fmt.Errorf("scan input: %w", err)
		}

		stats.Pages++
		release(prev)
		doc, err := htmlquery.Parse(bytes.NewReader(markup))
		if err != nil {
			e.logger.Error("An error occurred while parsing a page", zap.Int("page", stats.Pages), zap.Error(err))
			return stats, fmt.Errorf("parse page %d: %w", stats.Pages, err)
		}
		if err := e.processPage(ctx, doc, sink, &stats, unique); err != nil {
			release(doc)
			e.logger.Error("An error occurred while writing records", zap.Int("page", stats.Pages), zap.Error(err))
			return stats, err
		}
		prev = doc

		stats.Unique = len(unique)
		e.metrics.ObservePageParsed(stats.Unique)
		e.logger.Info(fmt.Sprintf("%d total %d unique", stats.Records, stats.Unique), zap.Int("page", stats.Pages))
		e.logger.Info(fmt.Sprintf("Ending %s, page: %d", e.cfg.ContainerID, stats.Pages))
	}
	release(prev)

	e.logger.Info("Parsing complete.",
		zap.Int("pages", stats.Pages),
		zap.Int("candidates", stats.Candidates),
		zap.Int("total_records", stats.Records),
		zap.Int("unique", stats.Unique),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (e *Extractor) processPage(
	ctx context.Context,
	doc *html.Node,
	sink RecordSink,
	stats *Stats,
	unique map[string]struct{},
) error {
	for _, candidate := range htmlquery.QuerySelectorAll(doc, candidateXPath) {
		stats.Candidates++
		rec, err := ExtractContentModule(candidate)
		if err != nil {
			stats.Failed++
			e.metrics.ObserveRecord(metrics.RecordFailed)
			e.logger.Warn("Failed to extract record", zap.Int("candidate", stats.Candidates), zap.Error(err))
			continue
		}
		if rec.Title() == "" {
			stats.Skipped++
			e.metrics.ObserveRecord(metrics.RecordSkipped)
			continue
		}
		if err := sink.WriteRecord(ctx, rec); err != nil {
			return fmt.Errorf("write record %d: %w", stats.Records+1, err)
		}
		stats.Records++
		e.metrics.ObserveRecord(metrics.RecordEmitted)
		cn, ok := rec.CatalogNumber()
		if ok {
			unique[cn] = struct{}{}
		}
		e.logger.Debug("Record extracted",
			zap.Int("record", stats.Records),
			zap.String("title", rec.Title()),
			zap.String("midcolumbia_cn", cn),
		)
	}
	return nil
}

// release unlinks the children of n so a finished page tree can be collected
// even while n itself is still referenced.
func release(n *html.Node) {
	if n == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// MultiSink writes each record to every sink in order. The first error wins.
type MultiSink []RecordSink

// WriteRecord implements RecordSink.
func (m MultiSink) WriteRecord(ctx context.Context, rec *catalog.Record) error {
	for _, s := range m {
		if err := s.WriteRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
