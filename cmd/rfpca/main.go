package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rfpca/internal/cfg"
	"rfpca/internal/common"
	"rfpca/internal/metrics"
	"rfpca/internal/pipeline"
	"rfpca/internal/report"
	"rfpca/internal/storage"
	"rfpca/internal/table"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		input      = flag.String("input", "", "Feature table path or http(s) URL")
		format     = flag.String("format", "", "Input format: auto, csv, json, xlsx, parquet, boltdb")
		tableName  = flag.String("table", common.DefaultTableName, "Table name inside a BoltDB store")
		outputPath = flag.String("output", "", "Output directory for reports")
		strategy   = flag.String("strategy", "", "Importance strategy: permutation, impurity")
		solver     = flag.String("solver", "", "Decomposition solver: eigen, randomized")
		seed       = flag.Uint64("seed", 0, "Random seed")
		estimators = flag.Int("estimators", 0, "Number of trees")
		topK       = flag.Int("top", 0, "Number of top-ranked features to decompose")
		workers    = flag.Int("workers", 0, "Worker goroutines (0: all CPUs)")
		embed      = flag.Bool("embed", false, "Include the component scores of the real rows in the report")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
		listRuns   = flag.Bool("list-runs", false, "List stored runs and exit")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// Command line arguments override config
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			settings.InputPath = *input
		case "format":
			settings.Format = *format
		case "output":
			settings.OutputPath = *outputPath
		case "strategy":
			settings.Strategy = *strategy
		case "solver":
			settings.Solver = *solver
		case "seed":
			settings.Seed = *seed
		case "estimators":
			settings.NEstimators = *estimators
		case "top":
			settings.TopFeatures = *topK
		case "workers":
			settings.Workers = *workers
		case "embed":
			settings.Embed = *embed
		case "log-level":
			settings.LogLevel = *logLevel
		}
	})

	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := cfg.Validate(&settings); err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}

	if *listRuns {
		if err := printRuns(settings.StorePath); err != nil {
			log.Fatal().Err(err).Msg("Failed to list runs")
		}
		return
	}

	if settings.InputPath == "" {
		log.Fatal().Msg("no input given; set -input or INPUT_PATH")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	t, err := autoLoadData(settings, *tableName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	result, err := pipeline.New(settings, mw).Run(ctx, t)
	writeMetrics(m, settings.MetricsFile)
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			log.Fatal().Err(stageErr.Err).Str("stage", stageErr.Stage).Msg("Pipeline failed")
		}
		log.Fatal().Err(err).Msg("Pipeline failed")
	}

	reporter := report.NewReporter(result, settings.OutputPath, settings.TopReport)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}
	reporter.WriteSummary(os.Stdout)

	if settings.StorePath != "" {
		if err := saveRun(settings, result); err != nil {
			log.Error().Err(err).Msg("Failed to store run")
		}
	}

	log.Info().
		Str("run_id", result.RunID).
		Str("output", settings.OutputPath).
		Msg("Analysis completed successfully")
}

// autoLoadData resolves the input to a table: remote files are downloaded
// first, BoltDB stores are read through the storage package and everything
// else goes to the file loaders.
func autoLoadData(settings cfg.Settings, tableName string) (*table.Table, error) {
	path := settings.InputPath
	if table.IsRemote(path) {
		local, err := table.Fetch(path, filepath.Join(settings.OutputPath, "input"), common.DefaultFetchTimeout)
		if err != nil {
			return nil, err
		}
		path = local
	}

	format := settings.Format
	if format == common.FormatAuto {
		detected, err := table.DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	if format == common.FormatBoltDB {
		store, err := storage.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open BoltDB: %w", err)
		}
		defer store.Close()
		return store.LoadTable(tableName)
	}
	return table.LoadFile(path, format, settings.IDColumn)
}

func saveRun(settings cfg.Settings, result *pipeline.Result) error {
	data, err := report.JSON(result)
	if err != nil {
		return err
	}

	store, err := storage.New(settings.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.SaveRun(storage.RunRecord{
		ID:        result.RunID,
		Timestamp: result.StartedAt,
		Input:     settings.InputPath,
		Report:    data,
	})
}

func printRuns(storePath string) error {
	if storePath == "" {
		return fmt.Errorf("no store configured; set STORE_PATH")
	}
	store, err := storage.New(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(time.Time{}, time.Now())
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %s\n", r.Timestamp.Format(time.RFC3339), r.ID, r.Input)
	}
	return nil
}

func writeMetrics(m *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write metrics")
	}
}
