package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/core"
	"github.com/joseph-ayodele/podcheck/internal/export"
	"github.com/joseph-ayodele/podcheck/internal/ingest"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
	"github.com/joseph-ayodele/podcheck/internal/repository"
	"github.com/joseph-ayodele/podcheck/internal/storage"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	mode       string
	useGate    bool
	imagesDir  string
	outputDir  string
	workers    int
	ratePerSec float64
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:   "podcheck",
		Short: "OCR and validate proof-of-delivery receipts",
		Long: `podcheck reads delivery receipt scans, runs them through an OCR provider
(Datalab, Google Document AI, OpenAI or a chandra vLLM server), extracts the
delivery fields and decides whether each receipt is OK, needs review or is rejected.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&gf.configPath, "config", "", "TOML config file (environment variables override it)")
	pf.StringVar(&gf.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&gf.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&gf.mode, "mode", "", "pipeline mode: "+strings.Join(constants.Modes(), ", "))
	pf.BoolVar(&gf.useGate, "use-gate", false, "run the Document AI quality gate before the primary provider")
	pf.StringVar(&gf.imagesDir, "images-dir", "", "directory (or single file) to process")
	pf.StringVar(&gf.outputDir, "output-dir", "", "directory receiving the artifacts")
	pf.IntVar(&gf.workers, "workers", 0, "documents processed concurrently")
	pf.Float64Var(&gf.ratePerSec, "rate", 0, "maximum documents started per second (0 = unlimited)")

	root.AddCommand(newRunCmd(gf), newWatchCmd(gf), newCompareCmd(gf), newOutcomesCmd(gf))
	return root
}

// loadConfig merges file, environment and explicitly set flags. Provider
// settings are validated only when validate is set.
func (gf *globalFlags) loadConfig(cmd *cobra.Command, validate bool) (*common.Config, error) {
	cfg, err := common.LoadConfigFile(gf.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("mode") {
		m, ok := constants.CanonicalizeMode(gf.mode)
		if !ok {
			m = constants.Mode(gf.mode)
		}
		cfg.Pipeline.Mode = m
	}
	if flags.Changed("use-gate") {
		cfg.Pipeline.UseGate = gf.useGate
	}
	if flags.Changed("images-dir") {
		cfg.Pipeline.ImagesDir = gf.imagesDir
	}
	if flags.Changed("output-dir") {
		cfg.Pipeline.OutputDir = gf.outputDir
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = gf.workers
	}
	if flags.Changed("rate") {
		cfg.Pipeline.RatePerSec = gf.ratePerSec
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = gf.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = gf.logFormat
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app wires every component built from the configuration.
type app struct {
	cfg       *common.Config
	logger    *slog.Logger
	repo      *ingest.Repository
	pipeline  *pipeline.Pipeline
	processor *core.Processor
	outcomes  repository.OutcomeRepository
	uploader  storage.Uploader
}

func newApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	a.repo = ingest.NewRepository(cfg.Pipeline.ImagesDir, logger)

	pl, err := pipeline.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.pipeline = pl

	opts := []core.Option{core.WithConcurrency(cfg.Pipeline.Workers, cfg.Pipeline.RatePerSec)}
	if cfg.Storage.Bucket != "" {
		up, err := storage.NewGCSUploader(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.uploader = up
		opts = append(opts, core.WithUploader(up))
	}
	if cfg.Database.DSN != "" {
		db, err := repository.Open(ctx, repository.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("database: %w", err)
		}
		outcomes, err := repository.NewOutcomeRepository(ctx, db, logger)
		if err != nil {
			db.Close(logger)
			a.Close()
			return nil, err
		}
		a.outcomes = outcomes
		opts = append(opts, core.WithOutcomeRepository(outcomes))
	}

	writer := export.NewArtifactWriter(cfg.Pipeline.OutputDir, logger)
	a.processor = core.NewProcessor(pl, a.repo, writer, logger, opts...)
	return a, nil
}

// Close releases providers, the uploader and the database.
func (a *app) Close() {
	if a.pipeline != nil {
		if err := a.pipeline.Close(); err != nil {
			a.logger.Warn("pipeline.close.failed", "err", err)
		}
	}
	if a.uploader != nil {
		if err := a.uploader.Close(); err != nil {
			a.logger.Warn("storage.close.failed", "err", err)
		}
	}
	if a.outcomes != nil {
		a.outcomes.Close()
	}
}

// setup loads the configuration, installs the logger and builds the app.
func (gf *globalFlags) setup(cmd *cobra.Command) (*app, error) {
	cfg, err := gf.loadConfig(cmd, true)
	if err != nil {
		return nil, err
	}
	logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return newApp(cmd.Context(), cfg, logger)
}
