// Package validation fuses extracted fields and image quality into a decision.
package validation

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/extract"
)

// RejectBelow is the confidence under which a required field rejects the document.
const RejectBelow = 0.5

// DefaultOrder is the field evaluation order. Fields outside it are evaluated
// afterwards in name order.
var DefaultOrder = []string{
	extract.FieldDate,
	extract.FieldRecipientName,
	extract.FieldSignaturePresent,
	extract.FieldTrackingCode,
}

// Validate applies the decision rules:
//  1. failed quality rejects;
//  2. a missing required field, or one under RejectBelow, rejects; one under
//     the field threshold needs review;
//  3. an absent signature needs review.
//
// The decision is the join of every rule's verdict and the score is the
// minimum of every contributing score.
func Validate(
	fields map[string]entity.ExtractedField,
	quality entity.QualityAssessment,
	th entity.Thresholds,
	engineUsed string,
	engineChain []string,
) entity.ValidationOutcome {
	var (
		decision = entity.DecisionOK
		issues   = []string{}
		scores   []float64
	)

	qScore, qDecision, qIssues := qualityRule(quality, th.QualityMinScore)
	decision = decision.Join(qDecision)
	issues = append(issues, qIssues...)
	scores = append(scores, qScore)

	order := FieldOrder(fields)
	for _, name := range order {
		f := fields[name]
		conf := f.ConfidenceOr(0)
		scores = append(scores, conf)

		if b, isBool := f.Value.Bool(); isBool {
			if name == extract.FieldSignaturePresent && !b {
				decision = decision.Join(entity.DecisionNeedsReview)
				issues = append(issues, "signature not detected on the receipt")
			}
			continue
		}

		d, issue := fieldRule(name, f, conf, th.FieldMinConfidence)
		decision = decision.Join(d)
		if issue != "" {
			issues = append(issues, issue)
		}
	}

	return entity.ValidationOutcome{
		Decision:      decision,
		DecisionScore: extract.Round4(slices.Min(scores)),
		Issues:        issues,
		Fields:        maps.Clone(fields),
		FieldOrder:    order,
		Quality:       quality,
		EngineUsed:    engineUsed,
		EngineChain:   slices.Clone(engineChain),
		Thresholds:    th,
	}
}

// qualityRule returns the quality score candidate, its verdict and issues.
// An unknown score counts as the threshold when the gate passed and 0 when it failed.
func qualityRule(q entity.QualityAssessment, minScore float64) (float64, entity.Decision, []string) {
	var issues []string
	pass := q.Pass

	if q.ScoreMin != nil {
		if *q.ScoreMin < minScore {
			pass = false
			issues = append(issues, fmt.Sprintf("quality below threshold (%.2f < %.2f)", *q.ScoreMin, minScore))
			issues = append(issues, q.Hints...)
		}
	} else if !pass {
		issues = append(issues, "document quality does not meet the minimum threshold")
	}

	verdict := entity.DecisionOK
	if !pass {
		verdict = entity.DecisionRejected
	}

	switch {
	case q.ScoreMin != nil:
		return *q.ScoreMin, verdict, issues
	case pass:
		return minScore, verdict, issues
	default:
		return 0, verdict, issues
	}
}

func fieldRule(name string, f entity.ExtractedField, conf, fieldMin float64) (entity.Decision, string) {
	if s, ok := f.Value.Str(); !ok || strings.TrimSpace(s) == "" {
		return entity.DecisionRejected, fmt.Sprintf("required field '%s' was not found", name)
	}
	if conf < RejectBelow {
		return entity.DecisionRejected, fmt.Sprintf("field '%s' has low confidence (%.2f)", name, conf)
	}
	if conf < fieldMin {
		return entity.DecisionNeedsReview, fmt.Sprintf("field '%s' needs review (confidence %.2f)", name, conf)
	}
	return entity.DecisionOK, ""
}

// FieldOrder returns the evaluation order for fields: DefaultOrder first, then
// any other names sorted.
func FieldOrder(fields map[string]entity.ExtractedField) []string {
	order := make([]string, 0, len(fields))
	for _, name := range DefaultOrder {
		if _, ok := fields[name]; ok {
			order = append(order, name)
		}
	}
	var extra []string
	for name := range fields {
		if !slices.Contains(DefaultOrder, name) {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	return append(order, extra...)
}
