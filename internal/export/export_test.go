package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/extract"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
	"github.com/joseph-ayodele/podcheck/internal/quality"
	"github.com/joseph-ayodele/podcheck/internal/validation"
)

var th = entity.Thresholds{QualityMinScore: 0.55, FieldMinConfidence: 0.75}

func sampleResult(engine string, score float64) pipeline.Result {
	lines := []entity.OCRLine{
		{Text: "Data: 05/03/2024", Confidence: entity.Float(0.95), Page: 1, BBox: &entity.BBox{0.1, 0.1, 0.5, 0.15}},
		{Text: "Recebedor: Maria | Souza", Confidence: entity.Float(0.9), Page: 1},
		{Text: "Assinatura: ______", Confidence: entity.Float(0.9), Page: 1},
		{Text: "BR123456789BR", Confidence: entity.Float(0.9), Page: 2},
	}
	norm := entity.NewNormalizedDocument(lines, entity.QualityMetrics{ScoreMin: entity.Float(score)},
		json.RawMessage(`{"pages":[{"page":1}],"html":"<b>x</b>"}`), "req-1")
	assessment := quality.Assess(norm.Quality, th.QualityMinScore)
	out := entity.PipelineOutcome{
		Source:      entity.SourceDocument{Path: "/in/pod_001.jpg", Filename: "pod_001.jpg"},
		Mode:        "datalab_api",
		EngineUsed:  engine,
		EngineChain: []string{engine},
		Normalized:  norm,
		QualityGate: assessment,
		Artifacts:   map[string]any{engine + "_raw": norm.RawPayload},
		Latencies:   map[string]float64{"primary": 1.25, "total": 1.5},
	}
	fields := extract.Extract(norm.Lines, norm.FullText)
	v := validation.Validate(fields, assessment, th, out.EngineUsed, out.EngineChain)
	return pipeline.Result{Source: out.Source.Path, Doc: out.Source, Outcome: &out, Validation: &v}
}

func TestArtifactWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir, nil)
	assert.Equal(t, dir, w.OutDir())

	a, err := w.Write(sampleResult("datalab_api", 0.8))
	require.NoError(t, err)

	base := filepath.Join(dir, "pod_001")
	assert.Equal(t, base, a.Dir)
	assert.Equal(t, filepath.Join(base, "pod_001_raw.json"), a.Raw)
	require.Len(t, a.Paths(), 6)
	for _, p := range a.Paths() {
		assert.FileExists(t, p)
	}

	var doc map[string]any
	data, err := os.ReadFile(a.OCRJSON)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, k := range []string{"mode", "engine_used", "engine_chain", "latencies", "quality", "fields", "full_text", "lines", "raw_payload", "artifacts"} {
		assert.Contains(t, doc, k)
	}
	assert.Contains(t, string(data), `"<b>x</b>"`, "html is not escaped")

	var v entity.ValidationOutcome
	data, err = os.ReadFile(a.Validation)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &v))
	assert.Equal(t, entity.DecisionOK, v.Decision)
	assert.Equal(t, "Maria | Souza", v.Fields["recipient_name"].Value.String())

	raw, err := os.ReadFile(a.Raw)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  ", "raw payload is indented")

	html, err := os.ReadFile(a.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>pod_001.jpg</title>")
	assert.Contains(t, string(html), "<table>")
}

func TestArtifactWriter_GDocAIRawName(t *testing.T) {
	a, err := NewArtifactWriter(t.TempDir(), nil).Write(sampleResult("gdocai_gate", 0.3))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(a.Raw, "pod_001_gdocai_raw.json"))
}

func withSource(res pipeline.Result, path string) pipeline.Result {
	out := *res.Outcome
	out.Source = entity.SourceDocument{Path: path, Filename: filepath.Base(path)}
	res.Outcome = &out
	res.Source = path
	res.Doc = out.Source
	return res
}

func TestArtifactWriter_SameStemDifferentExtension(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir, nil)

	jpg, err := w.Write(withSource(sampleResult("datalab_api", 0.9), "/in/a.jpg"))
	require.NoError(t, err)
	png, err := w.Write(withSource(sampleResult("datalab_api", 0.9), "/in/a.PNG"))
	require.NoError(t, err)
	again, err := w.Write(withSource(sampleResult("datalab_api", 0.9), "/in/a.jpg"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "a"), jpg.Dir)
	assert.Equal(t, filepath.Join(dir, "a_png"), png.Dir)
	assert.Equal(t, jpg.Dir, again.Dir, "rewriting the same source reuses its directory")
	assert.FileExists(t, filepath.Join(dir, "a", "a_ocr.json"))
	assert.FileExists(t, filepath.Join(dir, "a_png", "a_png_ocr.json"))

	md, err := os.ReadFile(png.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(md), "a.PNG")
}

func TestArtifactWriter_RequiresOutcome(t *testing.T) {
	_, err := NewArtifactWriter(t.TempDir(), nil).Write(pipeline.Result{Source: "/in/a.jpg", Err: errors.New("boom")})
	assert.Error(t, err)
}

func TestTextSummary(t *testing.T) {
	res := sampleResult("datalab_api", 0.3)
	s := TextSummary(*res.Outcome, *res.Validation)

	for _, section := range []string{"== Quality ==", "== Decision ==", "== Extracted fields ==", "== OCR text =="} {
		assert.Contains(t, s, section)
	}
	assert.Contains(t, s, "File: pod_001.jpg")
	assert.Contains(t, s, "State: REPROVADO")
	assert.Contains(t, s, "score_min: 0.3000")
	assert.Contains(t, s, "- date: value=2024-03-05, confidence=0.9500, page=1, bbox=[0.1000, 0.1000, 0.5000, 0.1500]")
	assert.Contains(t, s, "BR123456789BR")

	empty := *res.Outcome
	empty.Normalized = entity.NewNormalizedDocument(nil, entity.QualityMetrics{}, nil, "")
	assert.Contains(t, TextSummary(empty, *res.Validation), "(no text extracted)")
}

func TestReportMarkdown(t *testing.T) {
	res := sampleResult("datalab_api", 0.3)
	out := *res.Outcome
	out.SkippedExtraction = true
	md := ReportMarkdown(out, *res.Validation)

	assert.True(t, strings.HasPrefix(md, "# Proof of delivery validation\n"))
	assert.Contains(t, md, "| Decision | **REPROVADO** |")
	assert.Contains(t, md, "| Extraction | skipped by quality gate |")
	assert.Contains(t, md, `Maria \| Souza`)
	assert.Contains(t, md, "## Issues")
	assert.Contains(t, md, "- primary: 1.250")
	assert.Contains(t, md, "## OCR text sample")
}

func TestReportMarkdown_SampleIsCapped(t *testing.T) {
	var lines []entity.OCRLine
	for i := 0; i < 40; i++ {
		lines = append(lines, entity.OCRLine{Text: "line", Page: 1})
	}
	out := entity.PipelineOutcome{Normalized: entity.NewNormalizedDocument(lines, entity.QualityMetrics{}, nil, "")}
	md := ReportMarkdown(out, entity.ValidationOutcome{})
	assert.Equal(t, sampleLines, strings.Count(md, "line\n"))
}

func TestSummaryWorkbook(t *testing.T) {
	ok := sampleResult("datalab_api", 0.8)
	failed := pipeline.Result{
		Source:     "/in/slow.jpg",
		Err:        common.NewPollTimeoutError("datalab_api", "req-9", 60),
		SkipReason: common.CodePollTimeout,
	}

	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, WriteSummary(path, "run-1", []pipeline.Result{ok, failed}, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Run", "File", "Status", "Mode", "Engine", "Engine Chain", "Decision",
		"Decision Score", "Quality Min", "Quality Avg", "Issues", "Total (s)", "Error"}, rows[0])

	assert.Equal(t, "run-1", rows[1][0])
	assert.Equal(t, "pod_001.jpg", rows[1][1])
	assert.Equal(t, "PROCESSED", rows[1][2])
	assert.Equal(t, "datalab_api", rows[1][4])
	assert.Equal(t, "OK", rows[1][6])
	assert.Equal(t, "0.8", rows[1][8])

	assert.Equal(t, "slow.jpg", rows[2][1])
	assert.Equal(t, "FAILED", rows[2][2])
	require.Len(t, rows[2], 13)
	assert.Contains(t, rows[2][12], "req-9")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
