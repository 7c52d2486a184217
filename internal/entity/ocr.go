package entity

import "strings"

// BBox is an axis-aligned rectangle (x0, y0, x1, y1).
type BBox [4]float64

// OCRLine is one recognised line. Text is never empty and Page is 1-based.
type OCRLine struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	BBox       *BBox    `json:"bbox"`
	Page       int      `json:"page"`
}

// ConfidenceOr returns the line confidence or def when unknown.
func (l OCRLine) ConfidenceOr(def float64) float64 {
	if l.Confidence == nil {
		return def
	}
	return *l.Confidence
}

// JoinLines renders lines as text: lines of a page joined by newline, pages
// separated by a blank line.
func JoinLines(lines []OCRLine) string {
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			if l.Page != lines[i-1].Page {
				sb.WriteString("\n\n")
			} else {
				sb.WriteByte('\n')
			}
		}
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// SplitPages is the inverse of JoinLines over line texts.
func SplitPages(fullText string) [][]string {
	if fullText == "" {
		return nil
	}
	blocks := strings.Split(fullText, "\n\n")
	pages := make([][]string, 0, len(blocks))
	for _, b := range blocks {
		pages = append(pages, strings.Split(b, "\n"))
	}
	return pages
}
