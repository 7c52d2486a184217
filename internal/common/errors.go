package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupportedMode = errors.New("unsupported pipeline mode")
	ErrMalformed       = errors.New("malformed provider payload")
	ErrNotConfigured   = errors.New("provider not configured")
)

// Error codes carried by AppError.Code.
const (
	CodeSubmission  = "SUBMISSION_ERROR"
	CodePollTimeout = "POLL_TIMEOUT"
	CodeProvider    = "PROVIDER_PROCESSING_ERROR"
	CodeNormalize   = "NORMALIZATION_ERROR"
	CodeConfig      = "CONFIG_ERROR"
)

// SubmissionError means the transport or the provider rejected a request.
type SubmissionError struct {
	AppError
	Provider   string
	StatusCode int // HTTP status when known, 0 otherwise
}

// PollTimeoutError means the polling attempt bound was exceeded.
type PollTimeoutError struct {
	AppError
	Provider  string
	RequestID string
	Attempts  int
}

// ProviderProcessingError means the provider accepted the request but reported a failure.
type ProviderProcessingError struct {
	AppError
	Provider      string
	RequestID     string
	ProviderError string
}

// NormalizationError means a provider payload could not be mapped to the canonical model.
type NormalizationError struct {
	AppError
	Mode string
}

// ConfigurationError means a required provider or setting is missing. Fatal at construction time.
type ConfigurationError struct {
	AppError
}

func NewSubmissionError(provider string, statusCode int, message string, cause error) *SubmissionError {
	return &SubmissionError{
		AppError:   AppError{Code: CodeSubmission, Message: provider + ": " + message, Cause: cause},
		Provider:   provider,
		StatusCode: statusCode,
	}
}

func NewPollTimeoutError(provider, requestID string, attempts int) *PollTimeoutError {
	return &PollTimeoutError{
		AppError: AppError{
			Code:    CodePollTimeout,
			Message: fmt.Sprintf("%s: request %s not complete after %d attempts", provider, requestID, attempts),
		},
		Provider:  provider,
		RequestID: requestID,
		Attempts:  attempts,
	}
}

func NewProviderProcessingError(provider, requestID, providerError string) *ProviderProcessingError {
	msg := providerError
	if msg == "" {
		msg = "provider reported failure without message"
	}
	return &ProviderProcessingError{
		AppError:      AppError{Code: CodeProvider, Message: provider + ": " + msg},
		Provider:      provider,
		RequestID:     requestID,
		ProviderError: providerError,
	}
}

func NewNormalizationError(mode, message string, cause error) *NormalizationError {
	return &NormalizationError{
		AppError: AppError{Code: CodeNormalize, Message: fmt.Sprintf("mode %q: %s", mode, message), Cause: cause},
		Mode:     mode,
	}
}

func NewConfigurationError(message string, cause error) *ConfigurationError {
	if cause == nil {
		cause = ErrNotConfigured
	}
	return &ConfigurationError{AppError: AppError{Code: CodeConfig, Message: message, Cause: cause}}
}

// GRPCStatus lets status.FromError / status.Code classify pipeline errors.
func (e *SubmissionError) GRPCStatus() *status.Status {
	return status.New(codes.Unavailable, e.Error())
}

func (e *PollTimeoutError) GRPCStatus() *status.Status {
	return status.New(codes.DeadlineExceeded, e.Error())
}

func (e *ProviderProcessingError) GRPCStatus() *status.Status {
	return status.New(codes.Internal, e.Error())
}

func (e *NormalizationError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

func (e *ConfigurationError) GRPCStatus() *status.Status {
	return status.New(codes.FailedPrecondition, e.Error())
}

// IsDocumentError reports whether err is one of the per-document failure kinds
// that the orchestrator skips instead of aborting the run.
func IsDocumentError(err error) bool {
	var (
		sub  *SubmissionError
		poll *PollTimeoutError
		prov *ProviderProcessingError
		norm *NormalizationError
	)
	return errors.As(err, &sub) || errors.As(err, &poll) || errors.As(err, &prov) || errors.As(err, &norm)
}

// ErrorKind returns the AppError code of err, or "" when err is not an AppError.
func ErrorKind(err error) string {
	var (
		sub  *SubmissionError
		poll *PollTimeoutError
		prov *ProviderProcessingError
		norm *NormalizationError
		conf *ConfigurationError
	)
	switch {
	case errors.As(err, &sub):
		return sub.Code
	case errors.As(err, &poll):
		return poll.Code
	case errors.As(err, &prov):
		return prov.Code
	case errors.As(err, &norm):
		return norm.Code
	case errors.As(err, &conf):
		return conf.Code
	}
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ""
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
