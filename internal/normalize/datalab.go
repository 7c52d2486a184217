package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/podcheck/internal/entity"
)

type datalabLine struct {
	Text       *string `json:"text"`
	Confidence any     `json:"confidence"`
	BBox       any     `json:"bbox"`
	Polygon    any     `json:"polygon"`
}

type datalabPage struct {
	Page      *int          `json:"page"`
	TextLines []datalabLine `json:"text_lines"`
	Lines     []datalabLine `json:"lines"`
}

type datalabPayload struct {
	Pages []datalabPage `json:"pages"`
}

// datalabLines reads pages[].text_lines (or lines when text_lines is empty).
func datalabLines(raw []byte) ([]entity.OCRLine, error) {
	var p datalabPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}

	// Consecutive entries resolving to the same page share one builder so
	// repeats across the entry boundary are still dropped.
	var out []entity.OCRLine
	var b *pageBuilder
	for i, page := range p.Pages {
		num := i + 1
		if page.Page != nil && *page.Page >= 1 {
			num = *page.Page
		}
		if b == nil || b.page != num {
			if b != nil {
				out = append(out, b.lines...)
			}
			b = &pageBuilder{page: num}
		}
		src := page.TextLines
		if len(src) == 0 {
			src = page.Lines
		}
		for _, l := range src {
			if l.Text == nil {
				continue
			}
			bbox := directBBox(l.BBox)
			if bbox == nil {
				bbox = polygonBBox(l.Polygon)
			}
			b.add(*l.Text, toFloat(l.Confidence), bbox)
		}
	}
	if b != nil {
		out = append(out, b.lines...)
	}
	return out, nil
}
