// Package extract pulls the proof-of-delivery fields out of normalized OCR lines.
package extract

import (
	"math"

	"github.com/joseph-ayodele/podcheck/internal/entity"
)

// Field names produced by the default registry.
const (
	FieldDate             = "date"
	FieldRecipientName    = "recipient_name"
	FieldSignaturePresent = "signature_present"
	FieldTrackingCode     = "tracking_code"
)

// Kind is the value type a detector produces.
type Kind int

const (
	KindString Kind = iota
	KindBool
)

// Detector finds one field. Detect must always return a field, using a null
// value (or a default claim for booleans) when nothing matched.
type Detector struct {
	Name   string
	Kind   Kind
	Detect func(lines []entity.OCRLine, fullText string) entity.ExtractedField
}

// Registry runs detectors in registration order.
type Registry struct {
	detectors []Detector
	kinds     map[string]Kind
}

// NewRegistry builds a registry. Later detectors with a duplicate name replace earlier ones.
func NewRegistry(detectors ...Detector) *Registry {
	r := &Registry{kinds: map[string]Kind{}}
	for _, d := range detectors {
		r.Register(d)
	}
	return r
}

// DefaultRegistry returns the date, recipient_name, signature_present and tracking_code detectors.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Detector{Name: FieldDate, Kind: KindString, Detect: detectDate},
		Detector{Name: FieldRecipientName, Kind: KindString, Detect: detectRecipient},
		Detector{Name: FieldSignaturePresent, Kind: KindBool, Detect: detectSignature},
		Detector{Name: FieldTrackingCode, Kind: KindString, Detect: detectTracking},
	)
}

func (r *Registry) Register(d Detector) {
	if _, exists := r.kinds[d.Name]; exists {
		for i := range r.detectors {
			if r.detectors[i].Name == d.Name {
				r.detectors[i] = d
			}
		}
	} else {
		r.detectors = append(r.detectors, d)
	}
	r.kinds[d.Name] = d.Kind
}

// Names returns field names in evaluation order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		out[i] = d.Name
	}
	return out
}

// KindOf reports the kind of a registered field.
func (r *Registry) KindOf(name string) (Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// Extract runs every detector. The result always has one entry per detector.
func (r *Registry) Extract(lines []entity.OCRLine, fullText string) map[string]entity.ExtractedField {
	out := make(map[string]entity.ExtractedField, len(r.detectors))
	for _, d := range r.detectors {
		f := d.Detect(lines, fullText)
		f.Name = d.Name
		f.Confidence = roundConfidence(f.Confidence)
		out[d.Name] = f
	}
	return out
}

// Extract runs the default registry.
func Extract(lines []entity.OCRLine, fullText string) map[string]entity.ExtractedField {
	return DefaultRegistry().Extract(lines, fullText)
}

// Round4 rounds to 4 decimal places.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func roundConfidence(c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := Round4(*c)
	return &v
}
