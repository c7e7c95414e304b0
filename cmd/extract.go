package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/midcolumbia-catalog/internal/config"
	"github.com/JakeFAU/midcolumbia-catalog/internal/extractor"
	"github.com/JakeFAU/midcolumbia-catalog/internal/storage"
	"github.com/JakeFAU/midcolumbia-catalog/internal/storage/postgres"
)

// newExtractCmd creates the 'extract' subcommand.
func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extracts book records from the page file into JSON lines",
		Long: `Streams extractor.input_path one results container at a time and appends one
JSON object per titled record to extractor.output_path. When database.dsn is
set the records are also upserted into Postgres, and when export.provider is
set the output file is copied to the blob store afterwards.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			return runExtract(cmd.Context(), app)
		}),
	}
}

func runExtract(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger

	out, err := extractor.NewJSONLWriter(cfg.Extractor.OutputPath)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	sinks := extractor.MultiSink{out}

	if cfg.Database.DSN != "" {
		store, err := openRecordStore(ctx, cfg)
		if err != nil {
			_ = out.Close()
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	ex := extractor.New(extractor.Config{ContainerID: cfg.Extractor.ContainerID}, logger, app.Metrics)
	_, runErr := ex.RunFile(ctx, cfg.Extractor.InputPath, sinks)
	if cerr := out.Close(); cerr != nil && runErr == nil {
		runErr = cerr
	}
	if runErr != nil {
		logger.Error("An error occurred", zap.Error(runErr))
		return nil
	}

	return exportOutput(ctx, app, out.Path())
}

func openRecordStore(ctx context.Context, cfg config.Config) (*postgres.RecordStore, error) {
	store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
		DSN:   cfg.Database.DSN,
		Table: cfg.Database.Table,
	})
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func exportOutput(ctx context.Context, app *App, path string) error {
	cfg := app.Config.Export
	store, closeStore, err := storage.Open(ctx, storage.Config{
		Provider:  cfg.Provider,
		LocalDir:  cfg.LocalDir,
		GCSBucket: cfg.GCSBucket,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			app.Logger.Warn("Failed to close blob store", zap.Error(cerr))
		}
	}()
	if store == nil {
		return nil
	}

	uri, err := storage.Export(ctx, store, cfg.Prefix, app.RunID, path, cfg.ContentType)
	if err != nil {
		return err
	}
	app.Logger.Info("Export complete.", zap.String("uri", uri))
	return nil
}
