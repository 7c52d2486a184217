package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue is shutting down")

// FileProcessor is the work each job performs. *core.Processor implements it.
type FileProcessor interface {
	ProcessFile(ctx context.Context, runID uuid.UUID, path string) pipeline.Result
}

type ProcessorQueue struct {
	proc    FileProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	onDone  func(Job, pipeline.Result)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

var _ Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithOnDone registers a callback run by the worker after each job.
func WithOnDone(fn func(Job, pipeline.Result)) Option {
	return func(q *ProcessorQueue) { q.onDone = fn }
}

func NewProcessorQueue(proc FileProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 1,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 256),
		pending: map[string]struct{}{},
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.start", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Info("queue.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	q.pendingMu.Lock()
	delete(q.pending, job.Path)
	q.pendingMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	res := q.proc.ProcessFile(ctx, job.RunID, job.Path)
	cancel()

	if res.Err != nil {
		q.logger.Error("queue.job.failed", "worker_id", workerID, "path", job.Path, "kind", common.ErrorKind(res.Err), "err", res.Err)
	} else {
		q.logger.Info("queue.job.done",
			"worker_id", workerID,
			"path", job.Path,
			"status", string(res.Status()),
			"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
	}
	if q.onDone != nil {
		q.onDone(job, res)
	}
}

// Enqueue schedules job. A path already waiting in the queue is skipped
// unless job.Force is set. Blocks when the queue is full.
func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "path", job.Path)
		return ErrClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	q.pendingMu.Lock()
	_, dup := q.pending[job.Path]
	if dup && !job.Force {
		q.pendingMu.Unlock()
		q.logger.Debug("queue.enqueue.duplicate", "path", job.Path)
		return nil
	}
	q.pending[job.Path] = struct{}{}
	q.pendingMu.Unlock()

	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueue.ok", "path", job.Path, "force", job.Force)
	default:
		q.logger.Warn("queue.enqueue.full", "path", job.Path)
		q.ch <- job
	}
	return nil
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted", "err", ctx.Err())
	case <-done:
		q.logger.Info("queue.shutdown.done")
	}
}
