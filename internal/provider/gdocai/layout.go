package gdocai

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

// ExtractLines flattens the lines of every page, resolving text anchors
// against document.text. Pages without a page number are numbered by position.
func ExtractLines(document *documentaipb.Document) []Line {
	text := []rune(document.GetText())
	var out []Line
	for i, page := range document.GetPages() {
		pageNo := int(page.GetPageNumber())
		if pageNo < 1 {
			pageNo = i + 1
		}
		for _, line := range page.GetLines() {
			layout := line.GetLayout()
			t := anchorText(layout.GetTextAnchor(), text)
			if t == "" {
				continue
			}
			box, normalized := boundingBox(layout.GetBoundingPoly())
			out = append(out, Line{
				Text:       t,
				Confidence: float64(layout.GetConfidence()),
				BBox:       box,
				Normalized: normalized,
				Page:       pageNo,
			})
		}
	}
	return out
}

func anchorText(anchor *documentaipb.Document_TextAnchor, text []rune) string {
	var sb strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		start = max(0, min(start, len(text)))
		end = max(start, min(end, len(text)))
		sb.WriteString(string(text[start:end]))
	}
	return strings.TrimSpace(sb.String())
}

// boundingBox returns the axis-aligned box of the polygon and whether it is
// in normalized coordinates. Normalized vertices are preferred and clamped to
// [0,1]; pixel vertices are only floored at 0.
func boundingBox(poly *documentaipb.BoundingPoly) ([4]float64, bool) {
	var xs, ys []float64
	upper := math.Inf(1)
	if nv := poly.GetNormalizedVertices(); len(nv) > 0 {
		upper = 1
		for _, v := range nv {
			xs = append(xs, float64(v.GetX()))
			ys = append(ys, float64(v.GetY()))
		}
	} else {
		for _, v := range poly.GetVertices() {
			xs = append(xs, float64(v.GetX()))
			ys = append(ys, float64(v.GetY()))
		}
	}
	if len(xs) == 0 {
		return [4]float64{}, false
	}
	return [4]float64{
		math.Max(slices.Min(xs), 0),
		math.Max(slices.Min(ys), 0),
		math.Min(slices.Max(xs), upper),
		math.Min(slices.Max(ys), upper),
	}, upper == 1
}

// ExtractQuality aggregates page quality scores into min/avg and collects
// the detected defects as "type (0.82)" strings, sorted and unique.
func ExtractQuality(pages []*documentaipb.Document_Page) Quality {
	var scores []float64
	defects := map[string]struct{}{}
	for _, page := range pages {
		q := page.GetImageQualityScores()
		if q == nil {
			continue
		}
		if s := q.GetQualityScore(); s != 0 {
			scores = append(scores, float64(s))
		}
		for _, d := range q.GetDetectedDefects() {
			reason := d.GetType()
			if reason == "" {
				reason = "unknown"
			}
			if c := d.GetConfidence(); c != 0 {
				reason = fmt.Sprintf("%s (%.2f)", reason, c)
			}
			defects[reason] = struct{}{}
		}
	}

	out := Quality{Reasons: make([]string, 0, len(defects))}
	for r := range defects {
		out.Reasons = append(out.Reasons, r)
	}
	slices.Sort(out.Reasons)

	if len(scores) > 0 {
		lo := slices.Min(scores)
		var sum float64
		for _, s := range scores {
			sum += s
		}
		avg := sum / float64(len(scores))
		out.ScoreMin, out.ScoreAvg = &lo, &avg
	}
	return out
}
