// Package provider defines the contract every OCR backend satisfies and the
// shared transport helpers (polling, HTTP, JSON schema validation).
package provider

import (
	"context"
	"encoding/json"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/entity"
)

// Status values of a finished request.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusError    = "error"
)

// RawResult is a provider's final payload before normalization.
type RawResult struct {
	Engine    string
	Mode      constants.Mode
	RequestID string
	Status    string
	Payload   json.RawMessage
}

// Provider turns a source document into a raw OCR payload.
type Provider interface {
	// Name is the engine identifier recorded in engine chains.
	Name() string
	// Mode selects how the payload is normalized.
	Mode() constants.Mode
	Process(ctx context.Context, doc entity.SourceDocument) (RawResult, error)
	Close() error
}

// Submission identifies an accepted asynchronous request.
type Submission struct {
	RequestID string
	CheckURL  string
}

// Poller is implemented by providers with a submit-then-poll protocol.
type Poller interface {
	Submit(ctx context.Context, doc entity.SourceDocument) (Submission, error)
	Await(ctx context.Context, sub Submission) (RawResult, error)
}
