package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/podcheck/internal/common"
)

// PollConfig bounds a polling loop. Worst-case latency is Interval × MaxAttempts.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// CheckFunc performs one status check. It returns done=true when the request
// reached a terminal state; a non-nil error stops polling immediately.
type CheckFunc func(ctx context.Context, attempt int) (done bool, err error)

// PollUntil calls check until it reports done, fails, or MaxAttempts is exhausted.
// The interval is slept between attempts, never after the last one.
func PollUntil(ctx context.Context, cfg PollConfig, engine, requestID string, check CheckFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			logger.Debug("provider.poll.done",
				"engine", engine, "req_id", requestID, "attempts", attempt,
				"elapsed_ms", time.Since(start).Milliseconds())
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return common.WrapError(ctx.Err(), "poll "+engine+" "+requestID)
		case <-timer.C:
		}
	}

	logger.Warn("provider.poll.timeout",
		"engine", engine, "req_id", requestID, "attempts", cfg.MaxAttempts,
		"elapsed_ms", time.Since(start).Milliseconds())
	return common.NewPollTimeoutError(engine, requestID, cfg.MaxAttempts)
}
