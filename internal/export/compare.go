package export

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
)

// ComparisonFile is the workbook written by a multi-mode comparison.
const ComparisonFile = "comparison.xlsx"

const (
	comparisonSheet = "Comparison"
	decisionsSheet  = "Decisions"
)

// ComparisonRow is one document evaluated in one mode.
type ComparisonRow struct {
	File          string
	Mode          string
	Engine        string
	Decision      entity.Decision
	DecisionScore float64
	QualityMin    *float64
	QualityAvg    *float64
	LatencyTotal  *float64
	LatencyEngine *float64 // primary stage, or the gate when extraction was skipped
}

// ComparisonRows converts the evaluated results of one mode. Failed
// documents have no decision and are left out.
func ComparisonRows(mode string, results []pipeline.Result) []ComparisonRow {
	var rows []ComparisonRow
	for _, r := range results {
		if r.Outcome == nil || r.Validation == nil {
			continue
		}
		row := ComparisonRow{
			File:          r.Filename(),
			Mode:          mode,
			Engine:        r.Outcome.EngineUsed,
			Decision:      r.Validation.Decision,
			DecisionScore: r.Validation.DecisionScore,
			QualityMin:    r.Validation.Quality.ScoreMin,
			QualityAvg:    r.Validation.Quality.ScoreAvg,
			LatencyTotal:  latency(r.Outcome.Latencies, pipeline.LatencyTotal),
			LatencyEngine: latency(r.Outcome.Latencies, pipeline.LatencyPrimary),
		}
		if row.LatencyEngine == nil {
			row.LatencyEngine = latency(r.Outcome.Latencies, pipeline.LatencyGate)
		}
		rows = append(rows, row)
	}
	return rows
}

func latency(m map[string]float64, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}

// ModeDecisions counts decisions for one mode.
type ModeDecisions struct {
	Mode   string
	Counts map[entity.Decision]int
	Total  int
}

// DecisionCounts groups rows by mode, in the order modes first appear.
func DecisionCounts(rows []ComparisonRow) []ModeDecisions {
	var out []ModeDecisions
	for _, r := range rows {
		i := slices.IndexFunc(out, func(m ModeDecisions) bool { return m.Mode == r.Mode })
		if i < 0 {
			out = append(out, ModeDecisions{Mode: r.Mode, Counts: map[entity.Decision]int{}})
			i = len(out) - 1
		}
		out[i].Counts[r.Decision]++
		out[i].Total++
	}
	return out
}

var comparedDecisions = []entity.Decision{entity.DecisionOK, entity.DecisionNeedsReview, entity.DecisionRejected}

// ComparisonWorkbook returns an XLSX workbook with one row per document and
// mode, plus a sheet of decision counts per mode.
func ComparisonWorkbook(rows []ComparisonRow, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", comparisonSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(decisionsSheet); err != nil {
		return nil, err
	}

	set := func(sheet string, col, row int, v any) {
		c, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, c, v)
	}
	setOpt := func(sheet string, col, row int, v *float64) {
		if v != nil {
			set(sheet, col, row, *v)
		}
	}

	headers := []string{"File", "Mode", "Engine", "Decision", "Decision Score",
		"Quality Min", "Quality Avg", "Total (s)", "Engine (s)"}
	for i, h := range headers {
		set(comparisonSheet, i+1, 1, h)
	}
	for i, r := range rows {
		n := i + 2
		set(comparisonSheet, 1, n, r.File)
		set(comparisonSheet, 2, n, r.Mode)
		set(comparisonSheet, 3, n, r.Engine)
		set(comparisonSheet, 4, n, string(r.Decision))
		set(comparisonSheet, 5, n, r.DecisionScore)
		setOpt(comparisonSheet, 6, n, r.QualityMin)
		setOpt(comparisonSheet, 7, n, r.QualityAvg)
		setOpt(comparisonSheet, 8, n, r.LatencyTotal)
		setOpt(comparisonSheet, 9, n, r.LatencyEngine)
	}
	_ = f.SetColWidth(comparisonSheet, "A", "A", 32)
	_ = f.SetColWidth(comparisonSheet, "B", "D", 16)

	set(decisionsSheet, 1, 1, "Mode")
	for i, d := range comparedDecisions {
		set(decisionsSheet, i+2, 1, string(d))
	}
	set(decisionsSheet, len(comparedDecisions)+2, 1, "Total")
	for i, m := range DecisionCounts(rows) {
		n := i + 2
		set(decisionsSheet, 1, n, m.Mode)
		for j, d := range comparedDecisions {
			set(decisionsSheet, j+2, n, m.Counts[d])
		}
		set(decisionsSheet, len(comparedDecisions)+2, n, m.Total)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("export.comparison.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteComparison writes ComparisonWorkbook to path.
func WriteComparison(path string, rows []ComparisonRow, logger *slog.Logger) error {
	b, err := ComparisonWorkbook(rows, logger)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write comparison: %w", err)
	}
	return nil
}
