package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/export"
)

// ModeRun is the processor configured for one mode of a comparison.
type ModeRun struct {
	Mode      constants.Mode
	Processor *Processor
}

// Comparison is the outcome of running the same documents through several modes.
type Comparison struct {
	Summaries []Summary // in the order of the runs
	Rows      []export.ComparisonRow
	Path      string
}

// Compare runs paths through every mode in turn and writes comparison.xlsx
// to outDir. Each processor keeps writing its own artifacts and summary.
func Compare(ctx context.Context, runs []ModeRun, paths []string, outDir string, logger *slog.Logger) (Comparison, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var cmp Comparison
	if len(runs) == 0 {
		return cmp, errors.New("compare: no modes given")
	}
	start := time.Now()

	for _, run := range runs {
		sum, err := run.Processor.RunAll(ctx, paths)
		cmp.Summaries = append(cmp.Summaries, sum)
		cmp.Rows = append(cmp.Rows, export.ComparisonRows(string(run.Mode), sum.Results)...)
		if err != nil {
			return cmp, fmt.Errorf("compare %s: %w", run.Mode, err)
		}
		logger.Info("compare.mode.done",
			"mode", string(run.Mode),
			"run_id", sum.RunID.String(),
			"processed", sum.Processed,
			"skipped", sum.Skipped,
			"failed", sum.Failed,
		)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return cmp, fmt.Errorf("create output dir: %w", err)
	}
	cmp.Path = filepath.Join(outDir, export.ComparisonFile)
	if err := export.WriteComparison(cmp.Path, cmp.Rows, logger); err != nil {
		return cmp, err
	}
	for _, m := range export.DecisionCounts(cmp.Rows) {
		logger.Info("compare.decisions", "mode", m.Mode, "total", m.Total, "counts", m.Counts)
	}
	logger.Info("compare.done", "modes", len(runs), "rows", len(cmp.Rows), "elapsed_ms", time.Since(start).Milliseconds())
	return cmp, nil
}
