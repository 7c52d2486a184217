package entity

import (
	"maps"
	"slices"
)

// Thresholds drive the validation rules.
type Thresholds struct {
	QualityMinScore    float64 `json:"quality_min_score"`
	FieldMinConfidence float64 `json:"field_min_confidence"`
}

// ValidationOutcome is the decision engine's result for one document.
type ValidationOutcome struct {
	Decision      Decision                  `json:"decision"`
	DecisionScore float64                   `json:"decision_score"`
	Issues        []string                  `json:"issues"`
	Fields        map[string]ExtractedField `json:"fields"`
	FieldOrder    []string                  `json:"-"`
	Quality       QualityAssessment         `json:"quality"`
	EngineUsed    string                    `json:"engine_used"`
	EngineChain   []string                  `json:"engine_chain"`
	Thresholds    Thresholds                `json:"thresholds"`
}

// OrderedFields returns the fields in evaluation order.
func (o ValidationOutcome) OrderedFields() []ExtractedField {
	out := make([]ExtractedField, 0, len(o.Fields))
	for _, name := range o.FieldOrder {
		if f, ok := o.Fields[name]; ok {
			out = append(out, f)
		}
	}
	return out
}

// PipelineOutcome is what the orchestrator produces for one document.
type PipelineOutcome struct {
	Source            SourceDocument     `json:"source"`
	Mode              string             `json:"mode"`
	EngineUsed        string             `json:"engine_used"`
	EngineChain       []string           `json:"engine_chain"`
	Normalized        NormalizedDocument `json:"normalized"`
	QualityGate       QualityAssessment  `json:"quality_gate"`
	Artifacts         map[string]any     `json:"artifacts"`
	Latencies         map[string]float64 `json:"latencies"`
	SkippedExtraction bool               `json:"skipped_extraction"`
}

// Chain returns a copy of the engine chain.
func (o PipelineOutcome) Chain() []string {
	return slices.Clone(o.EngineChain)
}

// LatencySnapshot returns a copy of the latencies.
func (o PipelineOutcome) LatencySnapshot() map[string]float64 {
	return maps.Clone(o.Latencies)
}
