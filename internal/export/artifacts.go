// Package export writes per-document artifacts and run-level summaries.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
)

// Artifacts are the files written for one document.
type Artifacts struct {
	Dir        string
	OCRJSON    string
	OCRText    string
	Validation string
	Markdown   string
	HTML       string
	Raw        string // empty when the outcome had no raw payload
}

// Paths lists every file written, in a stable order.
func (a Artifacts) Paths() []string {
	out := []string{a.OCRJSON, a.OCRText, a.Validation, a.Markdown, a.HTML}
	if a.Raw != "" {
		out = append(out, a.Raw)
	}
	return out
}

// ArtifactWriter writes artifacts under <outDir>/<stem>/. When two sources
// share a stem, the later one is written under <outDir>/<stem>_<ext>/.
type ArtifactWriter struct {
	outDir string
	logger *slog.Logger

	mu     sync.Mutex
	owners map[string]string // artifact key -> source path
}

func NewArtifactWriter(outDir string, logger *slog.Logger) *ArtifactWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactWriter{outDir: outDir, logger: logger, owners: map[string]string{}}
}

// OutDir returns the root output directory.
func (w *ArtifactWriter) OutDir() string { return w.outDir }

// Write persists the artifacts of a successful result.
func (w *ArtifactWriter) Write(res pipeline.Result) (Artifacts, error) {
	if res.Outcome == nil || res.Validation == nil {
		return Artifacts{}, errors.New("export: result has no outcome")
	}
	start := time.Now()
	out, v := *res.Outcome, *res.Validation

	stem := w.claim(res)
	dir := filepath.Join(w.outDir, stem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("create artifact dir: %w", err)
	}

	a := Artifacts{
		Dir:        dir,
		OCRJSON:    filepath.Join(dir, stem+"_ocr.json"),
		OCRText:    filepath.Join(dir, stem+"_ocr.txt"),
		Validation: filepath.Join(dir, stem+"_validation.json"),
		Markdown:   filepath.Join(dir, stem+"_validation.md"),
		HTML:       filepath.Join(dir, stem+"_validation.html"),
	}

	if err := writeJSON(a.OCRJSON, ocrDocument(out, v)); err != nil {
		return a, err
	}
	if err := os.WriteFile(a.OCRText, []byte(TextSummary(out, v)), 0o644); err != nil {
		return a, fmt.Errorf("write text summary: %w", err)
	}
	if err := writeJSON(a.Validation, v); err != nil {
		return a, err
	}

	md := ReportMarkdown(out, v)
	if err := os.WriteFile(a.Markdown, []byte(md), 0o644); err != nil {
		return a, fmt.Errorf("write markdown report: %w", err)
	}
	html, err := ReportHTML(md, out.Source.Filename)
	if err != nil {
		return a, err
	}
	if err := os.WriteFile(a.HTML, html, 0o644); err != nil {
		return a, fmt.Errorf("write html report: %w", err)
	}

	if raw := out.Normalized.RawPayload; len(raw) > 0 {
		suffix := "_raw.json"
		if strings.Contains(out.EngineUsed, "gdoc") {
			suffix = "_gdocai_raw.json"
		}
		a.Raw = filepath.Join(dir, stem+suffix)
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return a, fmt.Errorf("indent raw payload: %w", err)
		}
		if err := os.WriteFile(a.Raw, buf.Bytes(), 0o644); err != nil {
			return a, fmt.Errorf("write raw payload: %w", err)
		}
	}

	w.logger.Debug("export.artifacts.ok",
		"file", out.Source.Filename,
		"dir", dir,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return a, nil
}

// claim returns the artifact key for res, reserving it for res.Source.
func (w *ArtifactWriter) claim(res pipeline.Result) string {
	name := res.Filename()
	ext := filepath.Ext(name)
	stem := res.Outcome.Source.Stem()
	if stem == "" {
		stem = strings.TrimSuffix(name, ext)
	}
	source := res.Source
	if source == "" {
		source = res.Outcome.Source.Path
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	key := stem
	if owner, ok := w.owners[key]; ok && owner != source && ext != "" {
		key = stem + "_" + strings.ToLower(strings.TrimPrefix(ext, "."))
		w.logger.Warn("export.artifacts.stem_collision", "file", name, "owner", owner, "dir", key)
	}
	w.owners[key] = source
	return key
}

func ocrDocument(out entity.PipelineOutcome, v entity.ValidationOutcome) map[string]any {
	var raw any
	if len(out.Normalized.RawPayload) > 0 {
		raw = out.Normalized.RawPayload
	}
	return map[string]any{
		"mode":         out.Mode,
		"engine_used":  out.EngineUsed,
		"engine_chain": out.EngineChain,
		"latencies":    out.Latencies,
		"quality":      v.Quality,
		"fields":       v.Fields,
		"full_text":    out.Normalized.FullText,
		"lines":        out.Normalized.Lines,
		"raw_payload":  raw,
		"artifacts":    out.Artifacts,
	}
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// TextSummary renders the human-readable _ocr.txt content.
func TextSummary(out entity.PipelineOutcome, v entity.ValidationOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", out.Source.Filename)
	fmt.Fprintf(&b, "Mode: %s\n", out.Mode)
	fmt.Fprintf(&b, "Final engine: %s\n", out.EngineUsed)
	fmt.Fprintf(&b, "Engine chain: %s\n", joinOr(out.EngineChain, ", ", "-"))
	b.WriteString("\n== Quality ==\n")
	fmt.Fprintf(&b, "score_min: %s\n", formatScore(v.Quality.ScoreMin))
	fmt.Fprintf(&b, "score_avg: %s\n", formatScore(v.Quality.ScoreAvg))
	fmt.Fprintf(&b, "Threshold: %.2f\n", v.Thresholds.QualityMinScore)
	fmt.Fprintf(&b, "Hints: %s\n", joinOr(v.Quality.Hints, ", ", "-"))
	b.WriteString("\n== Decision ==\n")
	fmt.Fprintf(&b, "State: %s\n", v.Decision)
	fmt.Fprintf(&b, "Decision score: %.4f\n", v.DecisionScore)
	fmt.Fprintf(&b, "Issues: %s\n", joinOr(v.Issues, ", ", "none"))
	b.WriteString("\n== Extracted fields ==\n")
	for _, f := range v.OrderedFields() {
		fmt.Fprintf(&b, "- %s: value=%s, confidence=%s, page=%d, bbox=%s\n",
			f.Name, f.Value, formatScore(f.Confidence), f.Page, formatBBox(f.BBox))
	}
	b.WriteString("\n== OCR text ==\n")
	if out.Normalized.FullText == "" {
		b.WriteString("(no text extracted)")
	} else {
		b.WriteString(out.Normalized.FullText)
	}
	b.WriteString("\n")
	return b.String()
}

func joinOr(items []string, sep, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, sep)
}

func formatScore(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *f)
}

func formatBBox(b *entity.BBox) string {
	if b == nil {
		return "-"
	}
	return fmt.Sprintf("[%.4f, %.4f, %.4f, %.4f]", b[0], b[1], b[2], b[3])
}
