// Package datalab talks to the Datalab OCR API: multipart submit, then poll
// the request check URL until the job finishes.
package datalab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/provider"
)

// Engine is the engine identifier of this provider.
const Engine = string(constants.ModeDatalabAPI)

// Config for the Datalab client.
type Config struct {
	APIKey          string
	BaseURL         string // default https://www.datalab.to/api/v1
	Endpoint        string // default "ocr"
	PageRange       string
	MaxPages        int
	SkipCache       bool
	Langs           string
	PollInterval    time.Duration
	MaxPollAttempts int
	HTTPTimeout     time.Duration
}

// Client implements provider.Provider and provider.Poller.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var (
	_ provider.Provider = (*Client)(nil)
	_ provider.Poller   = (*Client)(nil)
)

// NewClient validates cfg and builds a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, common.NewConfigurationError("DATALAB_API_KEY is required for "+Engine, nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.datalab.to/api/v1"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "ocr"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 60
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger.With("engine", Engine)}, nil
}

func (c *Client) Name() string         { return Engine }
func (c *Client) Mode() constants.Mode { return constants.ModeDatalabAPI }

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Process submits doc and waits for the final payload.
func (c *Client) Process(ctx context.Context, doc entity.SourceDocument) (provider.RawResult, error) {
	sub, err := c.Submit(ctx, doc)
	if err != nil {
		return provider.RawResult{}, err
	}
	return c.Await(ctx, sub)
}

type submitResponse struct {
	RequestID       string  `json:"request_id"`
	RequestCheckURL string  `json:"request_check_url"`
	Success         *bool   `json:"success"`
	Error           *string `json:"error"`
}

// Submit uploads the document and returns the request handle.
func (c *Client) Submit(ctx context.Context, doc entity.SourceDocument) (provider.Submission, error) {
	body, contentType, err := c.buildForm(doc)
	if err != nil {
		return provider.Submission{}, common.NewSubmissionError(Engine, 0, "build multipart form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(), body)
	if err != nil {
		return provider.Submission{}, common.NewSubmissionError(Engine, 0, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	start := time.Now()
	raw, _, err := provider.Do(c.http, req, Engine, c.logger)
	if err != nil {
		return provider.Submission{}, err
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return provider.Submission{}, common.NewSubmissionError(Engine, http.StatusOK, "decode submit response", err)
	}
	if resp.Success != nil && !*resp.Success {
		return provider.Submission{}, common.NewSubmissionError(Engine, http.StatusOK, "submission rejected: "+deref(resp.Error), nil)
	}
	if resp.RequestID == "" || resp.RequestCheckURL == "" {
		return provider.Submission{}, common.NewSubmissionError(Engine, http.StatusOK,
			"unexpected submit response: missing request_id or request_check_url", nil)
	}

	checkURL, err := c.resolve(resp.RequestCheckURL)
	if err != nil {
		return provider.Submission{}, common.NewSubmissionError(Engine, http.StatusOK, "invalid request_check_url", err)
	}

	c.logger.Info("datalab.submit.ok",
		"file", doc.Filename, "req_id", resp.RequestID,
		"elapsed_ms", time.Since(start).Milliseconds())
	return provider.Submission{RequestID: resp.RequestID, CheckURL: checkURL}, nil
}

type statusResponse struct {
	Status  string  `json:"status"`
	Success *bool   `json:"success"`
	Error   *string `json:"error"`
}

// Await polls the check URL until the request completes, fails, or the attempt bound is reached.
func (c *Client) Await(ctx context.Context, sub provider.Submission) (provider.RawResult, error) {
	var final json.RawMessage
	var status string

	check := func(ctx context.Context, attempt int) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.CheckURL, nil)
		if err != nil {
			return false, common.NewSubmissionError(Engine, 0, "build poll request", err)
		}
		req.Header.Set("X-API-Key", c.cfg.APIKey)

		raw, _, err := provider.Do(c.http, req, Engine, c.logger)
		if err != nil {
			return false, err
		}
		var st statusResponse
		if err := json.Unmarshal(raw, &st); err != nil {
			return false, common.NewSubmissionError(Engine, http.StatusOK, "decode poll response", err)
		}
		status = strings.ToLower(st.Status)
		c.logger.Debug("datalab.poll.attempt", "req_id", sub.RequestID, "attempt", attempt, "status", status)

		switch status {
		case provider.StatusComplete:
			if st.Success != nil && !*st.Success {
				return false, common.NewProviderProcessingError(Engine, sub.RequestID, deref(st.Error))
			}
			final = raw
			return true, nil
		case provider.StatusFailed, provider.StatusError:
			return false, common.NewProviderProcessingError(Engine, sub.RequestID, deref(st.Error))
		}
		return false, nil
	}

	pollCfg := provider.PollConfig{Interval: c.cfg.PollInterval, MaxAttempts: c.cfg.MaxPollAttempts}
	if err := provider.PollUntil(ctx, pollCfg, Engine, sub.RequestID, check, c.logger); err != nil {
		return provider.RawResult{}, err
	}

	if err := provider.ValidateJSON(finalSchema, final); err != nil {
		return provider.RawResult{}, common.NewNormalizationError(Engine, "unexpected final payload", err)
	}

	return provider.RawResult{
		Engine:    Engine,
		Mode:      constants.ModeDatalabAPI,
		RequestID: sub.RequestID,
		Status:    status,
		Payload:   final,
	}, nil
}

func (c *Client) buildForm(doc entity.SourceDocument) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, doc.Filename))
	mediaType := doc.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	h.Set("Content-Type", mediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc.Content); err != nil {
		return nil, "", err
	}

	for k, v := range c.formFields() {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// formFields returns the optional form parameters that are set.
func (c *Client) formFields() map[string]string {
	fields := map[string]string{}
	if c.cfg.PageRange != "" {
		fields["page_range"] = c.cfg.PageRange
	}
	if c.cfg.MaxPages > 0 {
		fields["max_pages"] = strconv.Itoa(c.cfg.MaxPages)
	}
	if c.cfg.SkipCache {
		fields["skip_cache"] = "true"
	}
	if c.cfg.Langs != "" {
		fields["langs"] = c.cfg.Langs
	}
	return fields
}

func (c *Client) endpointURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.Trim(c.cfg.Endpoint, "/")
}

// resolve makes a relative check URL absolute against the base URL.
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return ref, nil
	}
	base, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
