package pipeline

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
)

// Reader loads a source document. *ingest.Repository implements it.
type Reader interface {
	Read(ctx context.Context, path string) (entity.SourceDocument, error)
}

// Result is the per-document product of a run. Exactly one of Outcome or Err is set.
type Result struct {
	Source     string
	Doc        entity.SourceDocument
	Outcome    *entity.PipelineOutcome
	Validation *entity.ValidationOutcome
	Err        error
	SkipReason string
	// Latencies holds the stage latencies in seconds, including those
	// measured before a failure.
	Latencies map[string]float64
}

// Status classifies the result for reporting and persistence.
func (r Result) Status() constants.ResultStatus {
	switch {
	case r.Err != nil:
		return constants.ResultStatusFailed
	case r.Outcome != nil && r.Outcome.SkippedExtraction:
		return constants.ResultStatusSkipped
	default:
		return constants.ResultStatusProcessed
	}
}

// Filename returns the base name of the source.
func (r Result) Filename() string {
	if r.Doc.Filename != "" {
		return r.Doc.Filename
	}
	return filepath.Base(r.Source)
}

// Handle reads, processes and evaluates one path. Failures are reported in
// the result, never returned.
func (p *Pipeline) Handle(ctx context.Context, reader Reader, path string) Result {
	res := Result{Source: path}
	doc, err := reader.Read(ctx, path)
	if err != nil {
		res.Err = err
		res.SkipReason = "read failed"
		p.logger.Error("pipeline.read.error", "file", filepath.Base(path), "err", err)
		return res
	}
	res.Doc = doc

	p.logger.Info("pipeline.process.start", "file", doc.Filename)
	out, err := p.Process(ctx, doc)
	res.Latencies = out.Latencies
	if err != nil {
		res.Err = err
		res.SkipReason = skipReason(err)
		return res
	}
	v := p.Evaluate(out)
	res.Outcome = &out
	res.Validation = &v
	if out.SkippedExtraction {
		res.SkipReason = "quality gate failed"
	}
	return res
}

// Run processes paths sequentially. Iteration stops early when ctx is
// cancelled or the consumer stops pulling.
func (p *Pipeline) Run(ctx context.Context, reader Reader, paths []string) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		if len(paths) == 0 {
			p.logger.Warn("pipeline.run.empty")
			return
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				p.logger.Warn("pipeline.run.cancelled", "err", err)
				return
			}
			if !yield(p.Handle(ctx, reader, path)) {
				return
			}
		}
	}
}

// RunConcurrent processes paths with up to workers goroutines, admitting at
// most ratePerSec documents per second when ratePerSec > 0. Results keep the
// order of paths. Documents not started before ctx is cancelled are reported
// with the context error.
func (p *Pipeline) RunConcurrent(ctx context.Context, reader Reader, paths []string, workers int, ratePerSec float64) []Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(paths))
	if len(paths) == 0 {
		p.logger.Warn("pipeline.run.empty")
		return results
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}

	start := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				results[i] = Result{Source: path, Err: err, SkipReason: "cancelled"}
				return nil
			}
			results[i] = p.Handle(ctx, reader, path)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("pipeline.run.concurrent.done",
		"documents", len(paths),
		"workers", workers,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case common.IsDocumentError(err):
		return common.ErrorKind(err)
	default:
		return "processing failed"
	}
}
