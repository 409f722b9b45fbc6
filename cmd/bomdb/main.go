package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/bomdb/bomdb/internal/bom"
	"github.com/bomdb/bomdb/internal/cebridge"
	"github.com/bomdb/bomdb/internal/config"
	"github.com/bomdb/bomdb/internal/export"
	"github.com/bomdb/bomdb/internal/logging"
	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store/postgres"
)

const usage = `Usage: bomdb <command> [flags]

Commands:
  import     import a BOM file into an assembly
  export     build an export package for an assembly
  set-mode   switch an assembly's test mode
  init-db    create database tables

Run "bomdb <command> -h" for command flags.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var runErr error
	switch os.Args[1] {
	case "import":
		runErr = runImport(ctx, cfg, st, os.Args[2:])
	case "export":
		runErr = runExport(ctx, cfg, st, os.Args[2:])
	case "set-mode":
		runErr = runSetMode(ctx, st, os.Args[2:])
	case "init-db":
		runErr = st.EnsureSchema(ctx)
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if runErr != nil {
		slog.Error("command failed", "command", os.Args[1], "error", runErr)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if u, perr := url.Parse(cfg.Database.URL); perr == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return postgres.New(pool), nil
}

func runImport(ctx context.Context, cfg *config.Config, st *postgres.Store, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	assemblyID := fs.Int64("assembly", 0, "assembly id to import into (required)")
	file := fs.String("file", "", "BOM file, .csv or .xlsx (required)")
	fs.Parse(args)
	if *assemblyID == 0 || *file == "" {
		fs.Usage()
		return fmt.Errorf("import: -assembly and -file are required")
	}

	info, err := os.Stat(*file)
	if err != nil {
		return fmt.Errorf("stat %s: %w", *file, err)
	}
	if info.Size() > cfg.Import.MaxFileSize {
		return fmt.Errorf("%s exceeds the %d byte import limit", *file, cfg.Import.MaxFileSize)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read %s: %w", *file, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Import.Timeout)
	defer cancel()
	ctx = logging.WithTraceID(ctx, uuid.New().String())

	tx, err := st.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import batch: %w", err)
	}
	defer tx.Rollback(ctx)

	report := bom.NewImporter(st.WithTx(tx)).ImportBOM(ctx, *assemblyID, data)
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import batch: %w", err)
	}
	logging.FromContext(ctx).Info("import finished",
		"total", report.Total,
		"matched", report.Matched,
		"unmatched", report.Unmatched,
		"tasks", len(report.CreatedTaskIDs),
		"errors", len(report.Errors),
	)
	return printJSON(report)
}

func runExport(ctx context.Context, cfg *config.Config, st *postgres.Store, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	assemblyID := fs.Int64("assembly", 0, "assembly id to export (required)")
	outDir := fs.String("out", cfg.Export.BaseDir, "base directory for the export run folder")
	fs.Parse(args)
	if *assemblyID == 0 {
		fs.Usage()
		return fmt.Errorf("export: -assembly is required")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Export.Timeout)
	defer cancel()
	ctx = logging.WithTraceID(ctx, uuid.New().String())

	bridge := cebridge.NewHTTPClient(cfg.Bridge.URL, cfg.Bridge.Token, cfg.Bridge.Timeout)
	builder := export.NewBuilder(st, bridge, logging.FromContext(ctx))
	outcome, err := builder.BuildExport(ctx, *assemblyID, *outDir)
	if err != nil {
		// Folder and manifest may still exist; show what was produced.
		if outcome.ManifestPath != "" {
			logging.FromContext(ctx).Warn("export incomplete", "manifest", outcome.ManifestPath)
		}
		return err
	}
	return printJSON(outcome)
}

func runSetMode(ctx context.Context, st *postgres.Store, args []string) error {
	fs := flag.NewFlagSet("set-mode", flag.ExitOnError)
	assemblyID := fs.Int64("assembly", 0, "assembly id (required)")
	mode := fs.String("mode", "", "test mode: powered or unpowered (required)")
	fs.Parse(args)
	if *assemblyID == 0 || *mode == "" {
		fs.Usage()
		return fmt.Errorf("set-mode: -assembly and -mode are required")
	}

	var m model.TestMode
	switch strings.ToLower(*mode) {
	case string(model.ModePowered):
		m = model.ModePowered
	case string(model.ModeUnpowered):
		m = model.ModeUnpowered
	default:
		return fmt.Errorf("set-mode: mode must be powered or unpowered, got %q", *mode)
	}
	if err := st.UpdateAssemblyTestMode(ctx, *assemblyID, m); err != nil {
		return err
	}
	slog.Info("test mode updated", "assembly_id", *assemblyID, "mode", string(m))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
