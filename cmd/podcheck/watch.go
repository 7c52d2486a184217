package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/podcheck/internal/async"
	"github.com/joseph-ayodele/podcheck/internal/ingest"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
)

func newWatchCmd(gf *globalFlags) *cobra.Command {
	var (
		initialScan bool
		debounce    time.Duration
		queueSize   int
		docTimeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process documents as they appear in the images directory",
		Long: `Watches the images directory (not recursively) and sends every new or
rewritten supported file through the full pipeline until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := gf.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
				Root:        a.cfg.Pipeline.ImagesDir,
				InitialScan: initialScan,
				Debounce:    debounce,
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}

			session := uuid.New()
			q := async.NewProcessorQueue(a.processor, a.logger,
				async.WithWorkers(a.cfg.Pipeline.Workers),
				async.WithQueueSize(queueSize),
				async.WithProcessTimeout(docTimeout),
				async.WithOnDone(func(job async.Job, res pipeline.Result) {
					if res.Err != nil {
						cmd.Printf("%s: FAILED (%s)\n", res.Filename(), res.SkipReason)
						return
					}
					cmd.Printf("%s: %s\n", res.Filename(), res.Validation.Decision)
				}),
			)
			a.logger.Info("watch.start", "root", a.cfg.Pipeline.ImagesDir, "session", session.String())

			for events != nil || errs != nil {
				select {
				case path, ok := <-events:
					if !ok {
						events = nil
						continue
					}
					if err := q.Enqueue(ctx, async.Job{Path: path, RunID: session, SubmittedAt: time.Now()}); err != nil && !errors.Is(err, async.ErrClosed) {
						a.logger.Error("watch.enqueue.failed", "path", path, "err", err)
					}
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					a.logger.Warn("watch.error", "err", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), docTimeout)
			defer cancel()
			q.Shutdown(shutdownCtx)
			a.logger.Info("watch.stop", "session", session.String())
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&initialScan, "initial-scan", true, "process files already present before watching")
	f.DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait for writes to settle before processing a file")
	f.IntVar(&queueSize, "queue-size", 256, "maximum documents waiting for a worker")
	f.DurationVar(&docTimeout, "doc-timeout", 10*time.Minute, "per-document processing timeout")
	return cmd
}
