package export

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/podcheck/internal/pipeline"
)

const summarySheet = "Summary"

// SummaryWorkbook returns an XLSX workbook (as bytes) with one row per result.
func SummaryWorkbook(runID string, results []pipeline.Result, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Run",
		"File",
		"Status",
		"Mode",
		"Engine",
		"Engine Chain",
		"Decision",
		"Decision Score",
		"Quality Min",
		"Quality Avg",
		"Issues",
		"Total (s)",
		"Error",
	}
	for i, h := range headers {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(summarySheet, c, h)
	}

	row := 2
	for _, r := range results {
		write := func(col int, v any) {
			c, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(summarySheet, c, v)
		}
		write(1, runID)
		write(2, r.Filename())
		write(3, string(r.Status()))
		if o := r.Outcome; o != nil {
			write(4, o.Mode)
			write(5, o.EngineUsed)
			write(6, strings.Join(o.EngineChain, ", "))
			write(12, o.Latencies["total"])
		}
		if v := r.Validation; v != nil {
			write(7, string(v.Decision))
			write(8, v.DecisionScore)
			if v.Quality.ScoreMin != nil {
				write(9, *v.Quality.ScoreMin)
			}
			if v.Quality.ScoreAvg != nil {
				write(10, *v.Quality.ScoreAvg)
			}
			write(11, truncate(strings.Join(v.Issues, "; "), 500))
		}
		if r.Err != nil {
			write(13, truncate(r.Err.Error(), 500))
		}
		row++
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 38) // run id
	_ = f.SetColWidth(summarySheet, "B", "B", 32) // file
	_ = f.SetColWidth(summarySheet, "C", "G", 16)
	_ = f.SetColWidth(summarySheet, "H", "J", 12) // scores
	_ = f.SetColWidth(summarySheet, "K", "K", 60) // issues
	_ = f.SetColWidth(summarySheet, "M", "M", 60) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	logger.Info("export.xlsx.ok",
		"run_id", runID,
		"rows", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteSummary writes SummaryWorkbook to path.
func WriteSummary(path, runID string, results []pipeline.Result, logger *slog.Logger) error {
	b, err := SummaryWorkbook(runID, results, logger)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
