package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/ingest"
)

func newRunCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every supported document in the images directory",
		Long: `Processes the configured images directory (or a single file) once,
writing per-document artifacts and summary.xlsx to the output directory.
Documents that fail are reported and skipped; the run always continues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := gf.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			paths, stats, err := a.repo.List(ctx)
			if err != nil {
				if errors.Is(err, ingest.ErrNotFound) {
					return fmt.Errorf("images directory %q: %w", a.cfg.Pipeline.ImagesDir, err)
				}
				return err
			}
			a.logger.Info("ingest.list.ok",
				"root", a.repo.Root(),
				"scanned", stats.Scanned,
				"matched", stats.Matched,
				"hidden", stats.Hidden,
			)
			if len(paths) == 0 {
				cmd.Println("No supported files found.")
				return nil
			}

			sum, err := a.processor.RunAll(ctx, paths)
			cmd.Printf("Run %s: %d documents, %d processed, %d skipped by quality gate, %d failed\n",
				sum.RunID, sum.Total, sum.Processed, sum.Skipped, sum.Failed)
			for _, d := range decisionOrder {
				if n := sum.Decisions[d]; n > 0 {
					cmd.Printf("  %s: %d\n", d, n)
				}
			}
			if sum.SummaryPath != "" {
				cmd.Printf("Summary: %s\n", sum.SummaryPath)
			}
			return err
		},
	}
}

// decisionOrder lists decisions from least to most severe.
var decisionOrder = []entity.Decision{entity.DecisionOK, entity.DecisionNeedsReview, entity.DecisionRejected}
