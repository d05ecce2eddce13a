package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/heartmarshall/edict-ingest/internal/adapter/postgres"
	"github.com/heartmarshall/edict-ingest/internal/adapter/postgres/corpus"
	"github.com/heartmarshall/edict-ingest/internal/adapter/postgres/entry"
	"github.com/heartmarshall/edict-ingest/internal/adapter/sqlite"
	"github.com/heartmarshall/edict-ingest/internal/app"
	"github.com/heartmarshall/edict-ingest/internal/app/importer"
	"github.com/heartmarshall/edict-ingest/internal/config"
)

// errPhaseFailed is returned when the pipeline finished but a phase failed.
var errPhaseFailed = errors.New("pipeline completed with errors")

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "importer",
		Usage:     "Import EDICT2 dictionary files into a database.",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "application config `FILE` (storage, log)",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:  "import-config",
				Usage: "import config `FILE` (input paths, batch size)",
			},
			&cli.StringSliceFlag{
				Name:  "phase",
				Usage: "phases to run, comma-separated (default: all)",
			},
			&cli.StringFlag{
				Name:  "edict",
				Usage: "EDICT2 input `FILE`, overrides the import config",
			},
			&cli.StringFlag{
				Name:  "encoding",
				Usage: "input `ENCODING`, overrides the import config",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "entries per transaction, overrides the import config",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "parse inputs without writing to storage",
			},
			&cli.BoolFlag{
				Name:               "version",
				Usage:              "print version information and exit",
				Aliases:            []string{"V"},
				DisableDefaultText: true,
			},
		},
		HideHelpCommand: true,
		Action:          run,
	}
}

func run(c *cli.Context) error {
	if c.Bool("version") {
		_, err := fmt.Fprintf(c.App.Writer, "importer %s\n", app.BuildVersion())
		return err
	}

	appCfg, err := config.LoadFrom(c.String("config"))
	if err != nil {
		return err
	}
	logger := app.NewLogger(appCfg.Log)

	importCfg, err := importer.LoadConfig(c.String("import-config"))
	if err != nil {
		return err
	}

	// CLI flags override config.
	if c.IsSet("edict") {
		importCfg.EdictPath = c.String("edict")
	}
	if c.IsSet("encoding") {
		importCfg.Encoding = c.String("encoding")
	}
	if c.IsSet("batch-size") {
		importCfg.BatchSize = c.Int("batch-size")
	}
	if c.Bool("dry-run") {
		importCfg.DryRun = true
	}
	if err := importCfg.Validate(); err != nil {
		return err
	}

	phases, err := importer.Phases(c.StringSlice("phase"))
	if err != nil {
		return err
	}

	logger.Info("importer starting",
		slog.String("version", app.BuildVersion()),
		slog.String("driver", appCfg.Storage.Driver),
		slog.Any("phases", phases),
	)

	entries, corpusStore, closeStores, err := openStores(c.Context, appCfg)
	if err != nil {
		return err
	}
	defer closeStores()

	start := time.Now()
	pipeline := importer.NewPipeline(logger, entries, corpusStore, *importCfg)
	runErr := pipeline.Run(c.Context, phases)

	printSummary(c.App.Writer, phases, pipeline.Results())

	if runErr != nil {
		logger.Error("pipeline failed", slog.String("error", runErr.Error()))
		return runErr
	}
	if pipeline.HasErrors() {
		return errPhaseFailed
	}

	logger.Info("pipeline completed successfully", slog.Duration("duration", time.Since(start)))
	return nil
}

// openStores connects the configured storage backend. The SQLite backend has
// no corpus tables, so its CorpusStore is nil.
func openStores(ctx context.Context, cfg *config.Config) (importer.EntryStore, importer.CorpusStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLite)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, func() { _ = store.Close() }, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		txm := postgres.NewTxManager(pool)
		return entry.New(pool, txm), corpus.New(pool, txm), pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
