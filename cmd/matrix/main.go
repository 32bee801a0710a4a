package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"rfpca/internal/cfg"
	"rfpca/internal/common"
	"rfpca/internal/matrix"
	"rfpca/internal/storage"
	"rfpca/internal/table"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		output    = flag.String("output", "features.parquet", "Output file: .parquet, .csv or a BoltDB .db store")
		tableName = flag.String("table", common.DefaultTableName, "Table name when writing to a BoltDB store")
		rawRoot   = flag.String("raw-root", "", "Base directory of stored raw payloads")
		prefix    = flag.String("prefix", "", "Raw payload source, also the column prefix")
		logLevel  = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *rawRoot != "" {
		settings.RawRoot = *rawRoot
	}
	if *prefix != "" {
		settings.PayloadPrefix = *prefix
	}
	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}

	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := settings.ValidateMatrix(); err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := matrix.Connect(settings.DatabaseDriver, settings.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer src.Close()

	b := &matrix.Builder{Source: src, RawRoot: settings.RawRoot, Prefix: settings.PayloadPrefix}
	t, err := b.Build(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build feature matrix")
	}

	if err := writeTable(*output, *tableName, settings.IDColumn, t); err != nil {
		log.Fatal().Err(err).Msg("Failed to write feature matrix")
	}

	log.Info().
		Str("output", *output).
		Int("rows", t.NumRows()).
		Int("columns", t.NumCols()).
		Msg("Feature matrix written")
}

func writeTable(path, tableName, idColumn string, t *table.Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return table.SaveParquet(path, t, idColumn)
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := table.WriteCSV(f, t, idColumn); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case ".db":
		store, err := storage.New(path)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.SaveTable(tableName, t)
	default:
		return fmt.Errorf("cannot determine output format for: %s", path)
	}
}
