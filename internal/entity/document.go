package entity

import (
	"encoding/json"
	"slices"
)

// SourceDocument is a file read from the repository. Immutable after Read.
type SourceDocument struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	MediaType   string `json:"media_type"`
	Format      string `json:"format"`
	Content     []byte `json:"-"`
	Size        int    `json:"size"`
	ContentHash string `json:"content_hash"`    // hex sha256
	Pages       int    `json:"pages,omitempty"` // 0 when unknown
}

// Stem returns the filename without its extension.
func (d SourceDocument) Stem() string {
	name := d.Filename
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

// QualityMetrics are the raw image-quality signals reported by a provider.
type QualityMetrics struct {
	ScoreMin *float64 `json:"score_min"`
	ScoreAvg *float64 `json:"score_avg"`
	Reasons  []string `json:"reasons"`
}

// Known reports whether the provider reported a minimum score.
func (m QualityMetrics) Known() bool {
	return m.ScoreMin != nil
}

// Clone returns a copy that shares no memory with m.
func (m QualityMetrics) Clone() QualityMetrics {
	return QualityMetrics{
		ScoreMin: cloneFloat(m.ScoreMin),
		ScoreAvg: cloneFloat(m.ScoreAvg),
		Reasons:  slices.Clone(m.Reasons),
	}
}

// QualityAssessment is the gate's verdict over QualityMetrics.
type QualityAssessment struct {
	ScoreMin  *float64 `json:"score_min"`
	ScoreAvg  *float64 `json:"score_avg"`
	Reasons   []string `json:"reasons"`
	Hints     []string `json:"hints"`
	Pass      bool     `json:"pass"`
	Threshold float64  `json:"threshold"`
}

// NormalizedDocument is the provider-independent OCR result.
type NormalizedDocument struct {
	Lines      []OCRLine       `json:"lines"`
	FullText   string          `json:"full_text"`
	Quality    QualityMetrics  `json:"quality"`
	RawPayload json.RawMessage `json:"-"`
	RequestID  string          `json:"request_id,omitempty"`
}

// NewNormalizedDocument builds a document whose FullText is derived from lines.
func NewNormalizedDocument(lines []OCRLine, quality QualityMetrics, raw json.RawMessage, requestID string) NormalizedDocument {
	lines = slices.Clone(lines)
	if lines == nil {
		lines = []OCRLine{}
	}
	return NormalizedDocument{
		Lines:      lines,
		FullText:   JoinLines(lines),
		Quality:    quality.Clone(),
		RawPayload: slices.Clone(raw),
		RequestID:  requestID,
	}
}

// WithQuality returns a copy of d carrying the given metrics.
func (d NormalizedDocument) WithQuality(q QualityMetrics) NormalizedDocument {
	return NewNormalizedDocument(d.Lines, q, d.RawPayload, d.RequestID)
}

// PageCount returns the number of distinct pages that produced lines.
func (d NormalizedDocument) PageCount() int {
	n, last := 0, 0
	for i, l := range d.Lines {
		if i == 0 || l.Page != last {
			n++
			last = l.Page
		}
	}
	return n
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
