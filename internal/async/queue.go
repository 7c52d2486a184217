package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job asks the queue to process one document path.
type Job struct {
	Path        string
	RunID       uuid.UUID
	Force       bool // enqueue even if the path is already pending
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
