package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/podcheck/internal/entity"
)

type gdocaiLine struct {
	Text       *string `json:"text"`
	Confidence any     `json:"confidence"`
	BBox       any     `json:"bbox"`
	Normalized *bool   `json:"normalized"`
	Page       *int    `json:"page"`
}

type gdocaiPayload struct {
	Lines      []gdocaiLine    `json:"lines"`
	Quality    map[string]any  `json:"quality"`
	RawPayload json.RawMessage `json:"raw_payload"`
}

// gdocaiLines reads the flat line list produced by the Document AI provider.
// Boxes in normalized coordinates are clamped to [0,1]; lines without the
// flag are treated as normalized.
func gdocaiLines(raw []byte) ([]entity.OCRLine, entity.QualityMetrics, json.RawMessage, error) {
	var p gdocaiPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, entity.QualityMetrics{}, nil, fmt.Errorf("decode lines: %w", err)
	}

	var out []entity.OCRLine
	var b *pageBuilder
	for _, l := range p.Lines {
		if l.Text == nil {
			continue
		}
		page := 1
		if l.Page != nil && *l.Page >= 1 {
			page = *l.Page
		}
		if b == nil || b.page != page {
			if b != nil {
				out = append(out, b.lines...)
			}
			b = &pageBuilder{page: page}
		}
		bbox := directBBox(l.BBox)
		if l.Normalized == nil || *l.Normalized {
			bbox = clampUnit(bbox)
		}
		b.add(*l.Text, toFloat(l.Confidence), bbox)
	}
	if b != nil {
		out = append(out, b.lines...)
	}

	rawOut := p.RawPayload
	if len(rawOut) == 0 || string(rawOut) == "null" {
		rawOut = raw
	}
	return out, metricsFrom(p.Quality), rawOut, nil
}
