package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/podcheck/internal/common"
)

// maxErrorBody caps how much of an error response ends up in error messages.
const maxErrorBody = 512

// Do sends req and returns the response body. Transport failures and
// non-2xx statuses come back as *common.SubmissionError.
func Do(client *http.Client, req *http.Request, engine string, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	reqID := uuid.New().String()
	start := time.Now()
	logger.Debug("provider.http.request",
		"req_id", reqID, "engine", engine, "method", req.Method, "url", req.URL.Redacted())

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("provider.http.send_error",
			"req_id", reqID, "engine", engine, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, common.NewSubmissionError(engine, 0, req.Method+" "+req.URL.Path, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("provider.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, common.NewSubmissionError(engine, resp.StatusCode, "read response body", err)
	}

	logger.Debug("provider.http.response",
		"req_id", reqID, "engine", engine, "status", resp.StatusCode, "bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, common.NewSubmissionError(engine, resp.StatusCode,
			fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw, maxErrorBody)), nil)
	}
	return raw, resp.StatusCode, nil
}

// SendJSON posts body as JSON to url with optional headers.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, engine string, logger *slog.Logger) ([]byte, int, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return Do(client, req, engine, logger)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
