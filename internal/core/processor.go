package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/export"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
	"github.com/joseph-ayodele/podcheck/internal/repository"
	"github.com/joseph-ayodele/podcheck/internal/storage"
)

// SummaryFile is the run-level workbook written to the output directory.
const SummaryFile = "summary.xlsx"

// Processor runs the pipeline and then writes, uploads and persists each result.
type Processor struct {
	logger     *slog.Logger
	pipeline   *pipeline.Pipeline
	reader     pipeline.Reader
	writer     *export.ArtifactWriter
	uploader   storage.Uploader
	outcomes   repository.OutcomeRepository
	workers    int
	ratePerSec float64
}

type Option func(*Processor)

// WithUploader uploads every artifact after it is written.
func WithUploader(u storage.Uploader) Option {
	return func(p *Processor) { p.uploader = u }
}

// WithOutcomeRepository persists one row per document.
func WithOutcomeRepository(r repository.OutcomeRepository) Option {
	return func(p *Processor) { p.outcomes = r }
}

// WithConcurrency runs RunAll on up to workers goroutines, admitting at most
// ratePerSec documents per second when ratePerSec > 0.
func WithConcurrency(workers int, ratePerSec float64) Option {
	return func(p *Processor) {
		if workers > 0 {
			p.workers = workers
		}
		if ratePerSec > 0 {
			p.ratePerSec = ratePerSec
		}
	}
}

func NewProcessor(pl *pipeline.Pipeline, reader pipeline.Reader, writer *export.ArtifactWriter, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		logger:   logger,
		pipeline: pl,
		reader:   reader,
		writer:   writer,
		workers:  1,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Summary aggregates one run.
type Summary struct {
	RunID       uuid.UUID
	Total       int
	Processed   int
	Skipped     int
	Failed      int
	Decisions   map[entity.Decision]int
	Results     []pipeline.Result
	SummaryPath string
}

func (s *Summary) add(res pipeline.Result) {
	s.Total++
	switch res.Status() {
	case constants.ResultStatusFailed:
		s.Failed++
	case constants.ResultStatusSkipped:
		s.Skipped++
	default:
		s.Processed++
	}
	if res.Validation != nil {
		s.Decisions[res.Validation.Decision]++
	}
	s.Results = append(s.Results, res)
}

// RunAll processes paths, writes the run summary workbook and returns the totals.
// Per-document failures are counted, never returned.
func (p *Processor) RunAll(ctx context.Context, paths []string) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.New(), Decisions: map[entity.Decision]int{}}
	ctx = common.WithRunID(ctx, sum.RunID.String())
	log := p.logger.With("run_id", sum.RunID.String())
	log.Info("processor.run.start", "documents", len(paths), "workers", p.workers)

	if p.workers > 1 {
		for _, res := range p.pipeline.RunConcurrent(ctx, p.reader, paths, p.workers, p.ratePerSec) {
			sum.add(p.finish(ctx, sum.RunID, res))
		}
	} else {
		for res := range p.pipeline.Run(ctx, p.reader, paths) {
			sum.add(p.finish(ctx, sum.RunID, res))
		}
	}

	if len(sum.Results) > 0 {
		if err := os.MkdirAll(p.writer.OutDir(), 0o755); err != nil {
			return sum, fmt.Errorf("create output dir: %w", err)
		}
		sum.SummaryPath = filepath.Join(p.writer.OutDir(), SummaryFile)
		if err := export.WriteSummary(sum.SummaryPath, sum.RunID.String(), sum.Results, p.logger); err != nil {
			return sum, err
		}
		p.upload(ctx, sum.RunID, "", sum.SummaryPath)
	}

	log.Info("processor.run.done",
		"total", sum.Total,
		"processed", sum.Processed,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum, ctx.Err()
}

// ProcessFile runs a single path through the full flow under runID.
func (p *Processor) ProcessFile(ctx context.Context, runID uuid.UUID, path string) pipeline.Result {
	ctx = common.WithRunID(ctx, runID.String())
	return p.finish(ctx, runID, p.pipeline.Handle(ctx, p.reader, path))
}

// finish writes artifacts, uploads and persists res. Failures here are logged
// and do not change the document's status.
func (p *Processor) finish(ctx context.Context, runID uuid.UUID, res pipeline.Result) pipeline.Result {
	log := common.LoggerWith(common.WithDocument(ctx, res.Filename()), p.logger)

	if res.Err != nil {
		log.Error("processor.document.failed",
			"kind", common.ErrorKind(res.Err),
			"reason", res.SkipReason,
			"latencies", res.Latencies,
			"err", res.Err,
		)
	} else {
		logRunSummary(log, res)
		arts, err := p.writer.Write(res)
		if err != nil {
			log.Error("processor.artifacts.failed", "err", err)
		} else {
			stem := filepath.Base(arts.Dir)
			for _, path := range arts.Paths() {
				p.upload(ctx, runID, stem, path)
			}
		}
	}

	if p.outcomes != nil {
		if _, err := p.outcomes.Save(ctx, runID, res); err != nil {
			log.Error("processor.persist.failed", "err", err)
		}
	}
	return res
}

func (p *Processor) upload(ctx context.Context, runID uuid.UUID, stem, path string) {
	if p.uploader == nil {
		return
	}
	object := storage.ObjectName("", runID.String(), stem, filepath.Base(path))
	if _, err := p.uploader.Upload(ctx, path, object); err != nil {
		p.logger.Error("processor.upload.failed", "object", object, "err", err)
	}
}

func logRunSummary(log *slog.Logger, res pipeline.Result) {
	out, v := res.Outcome, res.Validation
	log.Info("run_summary",
		"mode", out.Mode,
		"engine", out.EngineUsed,
		"decision", string(v.Decision),
		"decision_score", fmt.Sprintf("%.4f", v.DecisionScore),
		"quality_min", scoreAttr(v.Quality.ScoreMin),
		"quality_avg", scoreAttr(v.Quality.ScoreAvg),
		"latencies", out.LatencySnapshot(),
	)
	if len(v.Issues) > 0 {
		log.Warn("decision_issues", "decision", string(v.Decision), "issues", v.Issues)
	}
}

func scoreAttr(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
