// Package normalize maps provider payloads onto entity.NormalizedDocument.
package normalize

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/provider"
	"github.com/joseph-ayodele/podcheck/internal/quality"
)

var (
	reLineBreaks = regexp.MustCompile(`[\r\n]+`)
	reTabs       = regexp.MustCompile(`\t+`)
)

// Normalize maps a raw payload of the given mode to the canonical model.
func Normalize(mode constants.Mode, raw []byte) (entity.NormalizedDocument, error) {
	return normalize(mode, raw, "", nil)
}

// Result normalizes a provider result, keeping its request id.
func Result(res provider.RawResult) (entity.NormalizedDocument, error) {
	return normalize(res.Mode, res.Payload, res.RequestID, nil)
}

// ResultWithQuality normalizes res and attaches metrics measured by the
// quality gate, replacing whatever the payload reported.
func ResultWithQuality(res provider.RawResult, q entity.QualityMetrics) (entity.NormalizedDocument, error) {
	return normalize(res.Mode, res.Payload, res.RequestID, &q)
}

func normalize(mode constants.Mode, raw []byte, requestID string, injected *entity.QualityMetrics) (entity.NormalizedDocument, error) {
	var (
		lines   []entity.OCRLine
		metrics entity.QualityMetrics
		rawOut  json.RawMessage
		err     error
	)
	switch mode {
	case constants.ModeDatalabAPI, constants.ModeChandra, constants.ModeOpenAIAPI:
		lines, err = datalabLines(raw)
		rawOut = raw
	case constants.ModeGDocAI:
		lines, metrics, rawOut, err = gdocaiLines(raw)
	default:
		return entity.NormalizedDocument{}, common.NewNormalizationError(string(mode), "cannot normalize", common.ErrUnsupportedMode)
	}
	if err != nil {
		return entity.NormalizedDocument{}, common.NewNormalizationError(string(mode), "malformed payload", errors.Join(common.ErrMalformed, err))
	}
	if injected != nil {
		metrics = *injected
	}
	return entity.NewNormalizedDocument(lines, metrics, rawOut, requestID), nil
}

// CleanText trims a line and folds embedded line breaks and tabs into spaces.
func CleanText(s string) string {
	s = reLineBreaks.ReplaceAllString(s, " ")
	s = reTabs.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// pageBuilder collects the lines of one page, dropping empty lines and
// immediate repeats.
type pageBuilder struct {
	page  int
	prev  string
	lines []entity.OCRLine
}

func (b *pageBuilder) add(text string, conf *float64, bbox *entity.BBox) {
	text = CleanText(text)
	if text == "" || text == b.prev {
		return
	}
	b.prev = text
	b.lines = append(b.lines, entity.OCRLine{Text: text, Confidence: conf, BBox: bbox, Page: b.page})
}

// toFloat resolves a JSON value to a finite number; anything else is unknown.
func toFloat(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		var err error
		if f, err = t.Float64(); err != nil {
			return nil
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(t), 64); err != nil {
			return nil
		}
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// directBBox accepts exactly four numbers.
func directBBox(v any) *entity.BBox {
	arr, ok := v.([]any)
	if !ok || len(arr) != 4 {
		return nil
	}
	var b entity.BBox
	for i, x := range arr {
		f := toFloat(x)
		if f == nil {
			return nil
		}
		b[i] = *f
	}
	return &b
}

// polygonBBox returns the axis-aligned rectangle around the polygon points.
func polygonBBox(v any) *entity.BBox {
	points, ok := v.([]any)
	if !ok || len(points) == 0 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	n := 0
	for _, p := range points {
		xy, ok := p.([]any)
		if !ok || len(xy) < 2 {
			continue
		}
		x, y := toFloat(xy[0]), toFloat(xy[1])
		if x == nil || y == nil {
			continue
		}
		minX, maxX = math.Min(minX, *x), math.Max(maxX, *x)
		minY, maxY = math.Min(minY, *y), math.Max(maxY, *y)
		n++
	}
	if n == 0 {
		return nil
	}
	return &entity.BBox{minX, minY, maxX, maxY}
}

func clampUnit(b *entity.BBox) *entity.BBox {
	if b == nil {
		return nil
	}
	out := *b
	for i := range out {
		out[i] = math.Min(math.Max(out[i], 0), 1)
	}
	return &out
}

// metricsFrom reads a {score_min, score_avg, reasons} object.
func metricsFrom(q map[string]any) entity.QualityMetrics {
	m := entity.QualityMetrics{Reasons: []string{}}
	if q == nil {
		return m
	}
	m.ScoreMin = toFloat(q["score_min"])
	m.ScoreAvg = toFloat(q["score_avg"])
	if rs, ok := q["reasons"].([]any); ok {
		m.Reasons = quality.NormalizeReasons(rs)
	}
	return m
}
