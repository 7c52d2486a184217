// Package quality decides whether a capture is good enough to OCR.
package quality

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/joseph-ayodele/podcheck/internal/entity"
)

var hints = map[string]string{
	"motion_blur":           "Keep the device still while capturing.",
	"defocus_blur":          "Move the camera closer and refocus before capturing.",
	"insufficient_lighting": "Increase ambient lighting or avoid dark environments.",
	"low_brightness":        "Increase ambient lighting or avoid dark environments.",
	"over_exposure":         "Reduce reflections or change the angle to avoid blown-out areas.",
	"under_exposure":        "Move the camera closer or use a brighter environment.",
	"specular_glare":        "Avoid reflections by placing the document at another angle.",
	"camera_shake":          "Hold the device firmly or rest it on a support while capturing.",

	"quality/defect_document_cutoff": "Frame the whole document inside the picture.",
	"quality/defect_text_cutoff":     "Make sure no text is cut at the edges.",
	"quality/defect_text_too_small":  "Move the camera closer so the text is legible.",
}

// Document AI defect types mapped onto the keys above.
var aliases = map[string]string{
	"quality/defect_blurry": "defocus_blur",
	"quality/defect_dark":   "insufficient_lighting",
	"quality/defect_faint":  "low_brightness",
	"quality/defect_glare":  "specular_glare",
	"quality/defect_noisy":  "camera_shake",
}

// Assess evaluates metrics against threshold. A document with an unknown
// minimum score passes.
func Assess(metrics entity.QualityMetrics, threshold float64) entity.QualityAssessment {
	scoreMin := finite(metrics.ScoreMin)
	scoreAvg := finite(metrics.ScoreAvg)
	reasons := slices.Clone(metrics.Reasons)
	if reasons == nil {
		reasons = []string{}
	}

	out := entity.QualityAssessment{
		ScoreMin:  scoreMin,
		ScoreAvg:  scoreAvg,
		Reasons:   reasons,
		Hints:     HintsFor(reasons),
		Pass:      scoreMin == nil || *scoreMin >= threshold,
		Threshold: threshold,
	}
	return out
}

// HintsFor maps reasons to capture hints, in reason order without repeats.
func HintsFor(reasons []string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, r := range reasons {
		h, ok := Hint(r)
		if !ok {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// Hint looks up the hint for a reason by its first whitespace-separated token.
func Hint(reason string) (string, bool) {
	fields := strings.Fields(reason)
	if len(fields) == 0 {
		return "", false
	}
	key := strings.ToLower(fields[0])
	if h, ok := hints[key]; ok {
		return h, true
	}
	if base, ok := aliases[key]; ok {
		return hints[base], true
	}
	return "", false
}

// NormalizeReasons flattens provider reasons: strings pass through, objects
// contribute their "type" or "reason" member, anything else is formatted.
func NormalizeReasons(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		switch v := r.(type) {
		case nil:
			continue
		case string:
			out = append(out, v)
		case map[string]any:
			for _, k := range []string{"type", "reason"} {
				if s, ok := v[k].(string); ok && s != "" {
					out = append(out, s)
					break
				}
			}
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func finite(f *float64) *float64 {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return nil
	}
	v := *f
	return &v
}
