// Package pipeline orchestrates the quality gate, the primary OCR provider,
// normalization and the decision engine for each document.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/extract"
	"github.com/joseph-ayodele/podcheck/internal/normalize"
	"github.com/joseph-ayodele/podcheck/internal/provider"
	"github.com/joseph-ayodele/podcheck/internal/quality"
	"github.com/joseph-ayodele/podcheck/internal/validation"
)

// Latency keys, in seconds.
const (
	LatencyGate    = "gate"
	LatencyPrimary = "primary"
	LatencyTotal   = "total"
)

// Artifact keys set on every outcome that ran the gate.
const (
	ArtifactGateRaw     = "gate_raw"
	ArtifactGateLines   = "gate_lines"
	ArtifactGateQuality = "gate_quality"
)

// Options are the orchestration settings.
type Options struct {
	Mode               constants.Mode
	UseGate            bool
	QualityMinScore    float64
	FieldMinConfidence float64
	Registry           *extract.Registry // nil uses extract.DefaultRegistry
}

// Pipeline runs documents through an optional gate provider and a primary provider.
type Pipeline struct {
	primary provider.Provider
	gate    provider.Provider
	opts    Options
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New builds a pipeline. It fails with *common.ConfigurationError when the
// primary provider is missing or the gate is enabled without a gate provider.
func New(primary, gate provider.Provider, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if primary == nil {
		return nil, common.NewConfigurationError("primary provider is required", nil)
	}
	if opts.UseGate && gate == nil {
		return nil, common.NewConfigurationError("quality gate enabled but no gate provider configured (set GDOC_PROJECT_ID, GDOC_LOCATION, GDOC_PROCESSOR_ID)", nil)
	}
	if !opts.UseGate {
		gate = nil
	}
	if opts.Mode == "" {
		opts.Mode = primary.Mode()
	}
	if opts.Registry == nil {
		opts.Registry = extract.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		primary: primary,
		gate:    gate,
		opts:    opts,
		logger:  logger.With("mode", string(opts.Mode)),
	}, nil
}

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Thresholds returns the decision thresholds.
func (p *Pipeline) Thresholds() entity.Thresholds {
	return entity.Thresholds{
		QualityMinScore:    p.opts.QualityMinScore,
		FieldMinConfidence: p.opts.FieldMinConfidence,
	}
}

// Process runs one document. Provider and normalization failures are
// returned as the typed errors of package common; the outcome returned with
// them carries only the latencies measured up to the failure.
func (p *Pipeline) Process(ctx context.Context, doc entity.SourceDocument) (entity.PipelineOutcome, error) {
	if err := ctx.Err(); err != nil {
		return entity.PipelineOutcome{}, err
	}
	start := time.Now()
	log := p.logger.With("file", doc.Filename)

	out := entity.PipelineOutcome{
		Source:      doc,
		Mode:        string(p.opts.Mode),
		EngineChain: []string{},
		Artifacts:   map[string]any{},
		Latencies:   map[string]float64{},
	}

	var gateMetrics *entity.QualityMetrics
	if p.gate != nil {
		t := time.Now()
		norm, err := p.run(ctx, p.gate, doc, nil)
		out.Latencies[LatencyGate] = time.Since(t).Seconds()
		if err != nil {
			out.Latencies[LatencyTotal] = time.Since(start).Seconds()
			log.Error("pipeline.gate.error", "engine", p.gate.Name(), "latencies", out.LatencySnapshot(), "err", err)
			return failed(out), fmt.Errorf("quality gate %s: %w", p.gate.Name(), err)
		}
		assessment := quality.Assess(norm.Quality, p.opts.QualityMinScore)
		out.EngineChain = append(out.EngineChain, p.gate.Name())
		out.Artifacts[ArtifactGateRaw] = rawArtifact(norm.RawPayload)
		out.Artifacts[ArtifactGateLines] = norm.Lines
		out.Artifacts[ArtifactGateQuality] = assessment

		if !assessment.Pass {
			out.EngineUsed = p.gate.Name()
			out.Normalized = norm
			out.QualityGate = assessment
			out.SkippedExtraction = true
			out.Latencies[LatencyTotal] = time.Since(start).Seconds()
			log.Warn("pipeline.gate.fail",
				"score_min", deref(assessment.ScoreMin),
				"threshold", p.opts.QualityMinScore,
				"reasons", assessment.Reasons,
			)
			return out, nil
		}
		m := norm.Quality
		gateMetrics = &m
		log.Debug("pipeline.gate.pass", "score_min", deref(assessment.ScoreMin))
	}

	t := time.Now()
	norm, err := p.run(ctx, p.primary, doc, gateMetrics)
	out.Latencies[LatencyPrimary] = time.Since(t).Seconds()
	if err != nil {
		out.Latencies[LatencyTotal] = time.Since(start).Seconds()
		log.Error("pipeline.primary.error", "engine", p.primary.Name(), "latencies", out.LatencySnapshot(), "err", err)
		return failed(out), fmt.Errorf("%s: %w", p.primary.Name(), err)
	}

	assessment := quality.Assess(norm.Quality, p.opts.QualityMinScore)
	out.EngineChain = append(out.EngineChain, p.primary.Name())
	out.EngineUsed = p.primary.Name()
	out.Normalized = norm
	out.QualityGate = assessment
	out.Artifacts[p.primary.Name()+"_raw"] = rawArtifact(norm.RawPayload)
	out.Latencies[LatencyTotal] = time.Since(start).Seconds()

	switch {
	case assessment.ScoreMin == nil:
		log.Warn("pipeline.quality.unknown", "engine", p.primary.Name())
	case !assessment.Pass:
		log.Warn("pipeline.quality.fail",
			"score_min", *assessment.ScoreMin,
			"threshold", p.opts.QualityMinScore,
		)
	}
	log.Info("pipeline.process.ok",
		"engine", out.EngineUsed,
		"lines", len(norm.Lines),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// failed keeps the stage latencies of an outcome that did not complete.
func failed(out entity.PipelineOutcome) entity.PipelineOutcome {
	return entity.PipelineOutcome{Source: out.Source, Mode: out.Mode, Latencies: out.Latencies}
}

func (p *Pipeline) run(ctx context.Context, prov provider.Provider, doc entity.SourceDocument, q *entity.QualityMetrics) (entity.NormalizedDocument, error) {
	res, err := prov.Process(ctx, doc)
	if err != nil {
		return entity.NormalizedDocument{}, err
	}
	if q != nil {
		return normalize.ResultWithQuality(res, *q)
	}
	return normalize.Result(res)
}

// Evaluate extracts fields from the outcome's lines and applies the decision rules.
func (p *Pipeline) Evaluate(out entity.PipelineOutcome) entity.ValidationOutcome {
	fields := p.opts.Registry.Extract(out.Normalized.Lines, out.Normalized.FullText)
	return validation.Validate(fields, out.QualityGate, p.Thresholds(), out.EngineUsed, out.EngineChain)
}

// Close releases every provider once. Later calls return the first result.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if p.gate != nil {
			if err := p.gate.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", p.gate.Name(), err))
			}
		}
		if err := p.primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.primary.Name(), err))
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// rawArtifact keeps empty payloads from marshalling as invalid JSON.
func rawArtifact(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
