package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/avalia-edu/avalia/internal/handler"
	appI18n "github.com/avalia-edu/avalia/internal/i18n"
	"github.com/avalia-edu/avalia/internal/importer"
	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/scoring"
	"github.com/avalia-edu/avalia/internal/series"
	"github.com/avalia-edu/avalia/internal/storage"
	"github.com/avalia-edu/avalia/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error reading .env file", "error", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "avalia",
		Short: "Import and consolidate school assessment spreadsheets",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `avalia --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// storeFlags are shared by every command that opens the database.
func storeFlags(f *pflag.FlagSet) {
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db-dsn", "", "Database DSN (default: avalia.db in --data-dir for sqlite)")
	f.String("data-dir", "data", "Directory for the SQLite database and uploaded spreadsheets")
	f.String("series-config", "", "JSON file with the grade/discipline configuration to seed")
	f.StringP("lang", "l", appI18n.DefaultLang, "Message language (pt-BR, en)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// jobFlags tune import jobs.
func jobFlags(f *pflag.FlagSet) {
	f.Int("batch-size", importer.DefaultBatchSize, "Per-question rows per upsert statement")
	f.Int("checkpoint-rows", 50, "Rows between pause/cancel checks")
	f.Int("max-errors", 100, "Row errors kept per job")
	f.String("overall-level-rule", string(scoring.RuleMean), "Overall level rule (media, maioria)")
	f.Float64("production-weight", 0, "Weight of production writing in the early-grade average (0 = fixed divisor)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP import API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the API from a browser")
	storeFlags(f)
	jobFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one spreadsheet and wait for it to finish",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "", "Spreadsheet to import (.xlsx or .csv)")
	f.IntP("year", "y", 0, "Academic year of the assessment")
	storeFlags(f)
	jobFlags(f)

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export consolidated results of an academic year as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.IntP("year", "y", 0, "Academic year to export")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	storeFlags(f)

	_ = cmd.MarkFlagRequired("year")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AVALIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("avalia")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/avalia")
	v.AddConfigPath("/etc/avalia")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openStore opens the configured database, seeds the series configuration and
// initializes message localization.
func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	driver := store.Driver(strings.ToLower(v.GetString("db-driver")))
	dsn := v.GetString("db-dsn")
	if driver == store.DriverSQLite && dsn == "" {
		dir := v.GetString("data-dir")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = store.SQLiteFileDSN(filepath.Join(dir, "avalia.db"))
	}
	db, err := store.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path := v.GetString("series-config"); path != "" {
		if err := seedSeriesConfig(ctx, db, path); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed series config: %w", err)
		}
	}
	return db, nil
}

// seedSeriesConfig replaces the stored configuration with the file at path unless the
// file is unchanged since it was last loaded.
func seedSeriesConfig(ctx context.Context, db *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(ctx, path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("series config unchanged, skipping", "path", path)
		return nil
	}

	var cfg model.SeriesConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	// Overlapping ranges would map one question to two disciplines.
	if _, err := series.NewResolver(cfg.Disciplines); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	if err := db.ReplaceSeriesConfig(ctx, cfg); err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}
	if err := db.SetImportedFileHash(ctx, path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("loaded series config", "path", path,
		"disciplines", len(cfg.Disciplines), "levels", len(cfg.Levels))
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func jobOptions(v *viper.Viper) (importer.Options, error) {
	rule, err := scoring.ParseOverallRule(v.GetString("overall-level-rule"))
	if err != nil {
		return importer.Options{}, err
	}
	weight := v.GetFloat64("production-weight")
	if weight < 0 || weight >= 1 {
		return importer.Options{}, fmt.Errorf("production-weight must be in [0, 1), got %v", weight)
	}
	return importer.Options{
		BatchSize:      v.GetInt("batch-size"),
		CheckpointRows: v.GetInt("checkpoint-rows"),
		MaxErrors:      v.GetInt("max-errors"),
		Lang:           v.GetString("lang"),
		Policy: scoring.Policy{
			ProductionWeight: weight,
			OverallRule:      rule,
		},
	}, nil
}

func openBlobs(v *viper.Viper) (*storage.FSStore, error) {
	blobs, err := storage.NewFSStore(filepath.Join(v.GetString("data-dir"), "uploads"))
	if err != nil {
		return nil, fmt.Errorf("open upload store: %w", err)
	}
	return blobs, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := openBlobs(v)
	if err != nil {
		return err
	}
	opts, err := jobOptions(v)
	if err != nil {
		return err
	}
	jobs := importer.NewManager(db, blobs, opts)
	if n, err := jobs.Recover(ctx); err != nil {
		slog.Error("recover interrupted imports", "error", err)
	} else if n > 0 {
		slog.Info("relaunched interrupted imports", "count", n)
	}

	lang := v.GetString("lang")
	h := handler.New(db, jobs)
	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           h.Router(lang, v.GetStringSlice("cors-origins")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server",
			"addr", srv.Addr,
			"db_driver", v.GetString("db-driver"),
			"lang", lang,
			"batch_size", opts.BatchSize,
			"checkpoint_rows", opts.CheckpointRows,
			"overall_level_rule", opts.Policy.OverallRule,
			"production_weight", opts.Policy.ProductionWeight,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Running jobs stay processando and are relaunched on the next start.
		if jerr := jobs.Shutdown(shutdownCtx); jerr != nil {
			slog.Warn("imports still running at shutdown", "error", jerr)
		}
		return err
	})
	return g.Wait()
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := openBlobs(v)
	if err != nil {
		return err
	}
	opts, err := jobOptions(v)
	if err != nil {
		return err
	}
	opts.OnCheckpoint = func(job model.ImportJob) {
		slog.Info("import progress",
			"job_id", job.ID,
			"processed", job.ProcessedRows,
			"total", job.TotalRows,
			"percent", fmt.Sprintf("%.1f", job.Percentage()),
			"errors", job.ErrorRows,
		)
	}
	jobs := importer.NewManager(db, blobs, opts)
	defer jobs.Shutdown(ctx)

	path := v.GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	job, err := jobs.Start(ctx, filepath.Base(path), data, v.GetInt("year"))
	if err != nil {
		return fmt.Errorf("start import: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigs:
		case <-done:
			return
		}
		slog.Info("interrupt received, cancelling import at the next checkpoint", "job_id", job.ID)
		if _, err := jobs.Cancel(context.Background(), job.ID); err != nil {
			slog.Warn("cancel import", "job_id", job.ID, "error", err)
		}
	}()

	if _, err := jobs.Wait(ctx, job.ID); err != nil {
		return fmt.Errorf("wait for import: %w", err)
	}
	res, err := jobs.Result(appI18n.WithLang(ctx, v.GetString("lang")), job.ID)
	if err != nil {
		return fmt.Errorf("read import result: %w", err)
	}
	if err := writeJSON(os.Stdout, res); err != nil {
		return err
	}
	if res.Status == model.StatusFailed {
		return fmt.Errorf("import %s failed: %s", res.JobID, res.Message)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportResults(ctx, v.GetInt("year"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeJSON(w, export); err != nil {
		return err
	}
	slog.Info("exported results", "year", export.Year, "students", len(export.Results))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
