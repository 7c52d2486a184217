package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/core"
	"github.com/joseph-ayodele/podcheck/internal/export"
	"github.com/joseph-ayodele/podcheck/internal/ingest"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
)

func newCompareCmd(gf *globalFlags) *cobra.Command {
	var modes string
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run the same documents through several modes and compare the decisions",
		Long: `Processes the images directory once per mode. Each mode writes its artifacts
and summary.xlsx under <output-dir>/<mode>/, and comparison.xlsx in the output
directory lists every document per mode with its decision, scores and latencies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := gf.loadConfig(cmd, false)
			if err != nil {
				return err
			}
			selected, err := parseModes(modes)
			if err != nil {
				return err
			}
			configs, err := modeConfigs(base, selected)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, base.Log.Level, base.Log.Format)
			slog.SetDefault(logger)

			ctx := cmd.Context()
			repo := ingest.NewRepository(base.Pipeline.ImagesDir, logger)
			paths, _, err := repo.List(ctx)
			if err != nil {
				return fmt.Errorf("images directory %q: %w", base.Pipeline.ImagesDir, err)
			}
			if len(paths) == 0 {
				cmd.Println("No supported files found.")
				return nil
			}

			runs := make([]core.ModeRun, 0, len(configs))
			for _, cfg := range configs {
				pl, err := pipeline.NewFromConfig(ctx, cfg, logger)
				if err != nil {
					return fmt.Errorf("%s: %w", cfg.Pipeline.Mode, err)
				}
				defer func() {
					if err := pl.Close(); err != nil {
						logger.Warn("pipeline.close.failed", "mode", string(cfg.Pipeline.Mode), "err", err)
					}
				}()
				writer := export.NewArtifactWriter(cfg.Pipeline.OutputDir, logger)
				proc := core.NewProcessor(pl, repo, writer, logger.With("mode", string(cfg.Pipeline.Mode)),
					core.WithConcurrency(cfg.Pipeline.Workers, cfg.Pipeline.RatePerSec))
				runs = append(runs, core.ModeRun{Mode: cfg.Pipeline.Mode, Processor: proc})
			}

			cmp, err := core.Compare(ctx, runs, paths, base.Pipeline.OutputDir, logger)
			for _, m := range export.DecisionCounts(cmp.Rows) {
				parts := make([]string, 0, len(decisionOrder))
				for _, d := range decisionOrder {
					parts = append(parts, fmt.Sprintf("%s=%d", d, m.Counts[d]))
				}
				cmd.Printf("%s: %s\n", m.Mode, strings.Join(parts, ", "))
			}
			if cmp.Path != "" {
				cmd.Printf("Comparison: %s\n", cmp.Path)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&modes, "modes", "datalab_api,gdocai", "comma-separated modes to compare")
	return cmd
}

// parseModes canonicalizes a comma-separated mode list, dropping repeats.
func parseModes(s string) ([]constants.Mode, error) {
	var out []constants.Mode
	seen := map[constants.Mode]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, ok := constants.CanonicalizeMode(part)
		if !ok {
			return nil, common.NewConfigurationError(fmt.Sprintf("unknown mode %q", part), common.ErrUnsupportedMode)
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, common.NewConfigurationError("no modes given", common.ErrInvalidInput)
	}
	return out, nil
}

// modeConfigs derives one validated configuration per mode, each writing
// under its own subdirectory of the output directory.
func modeConfigs(base *common.Config, modes []constants.Mode) ([]*common.Config, error) {
	out := make([]*common.Config, 0, len(modes))
	for _, m := range modes {
		cfg := *base
		cfg.Pipeline.Mode = m
		cfg.Pipeline.OutputDir = filepath.Join(base.Pipeline.OutputDir, string(m))
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		out = append(out, &cfg)
	}
	return out, nil
}
