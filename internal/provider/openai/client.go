package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/provider"
)

var _ provider.Provider = (*Client)(nil)

func (c *Client) Name() string         { return string(c.cfg.Mode) }
func (c *Client) Mode() constants.Mode { return c.cfg.Mode }

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Process transcribes the document with a vision model and returns a payload
// in the Datalab page shape: one page whose lines come from the structured
// answer when it parses, otherwise from the plain text.
func (c *Client) Process(ctx context.Context, doc entity.SourceDocument) (provider.RawResult, error) {
	engine := c.Name()
	rid := engine + "-" + uuid.New().String()
	start := time.Now()

	if limit := constants.MaxVisionMBDefault * 1024 * 1024; len(doc.Content) > limit {
		return provider.RawResult{}, common.NewSubmissionError(engine, 0,
			fmt.Sprintf("%s is %d bytes, over the %d MB inline limit", doc.Filename, len(doc.Content), constants.MaxVisionMBDefault), nil)
	}

	c.logger.Info("openai.extract.start",
		"req_id", rid, "model", c.cfg.Model, "file", doc.Filename,
		"media_type", doc.MediaType, "bytes", len(doc.Content))

	body := map[string]any{
		"model":                 c.cfg.Model,
		"max_completion_tokens": c.cfg.MaxTokens,
		"response_format":       map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": userPrompt},
				attachment(doc),
			}},
		},
	}
	if c.cfg.Temperature > 0 {
		body["temperature"] = c.cfg.Temperature
	}

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	raw, _, err := provider.SendJSON(ctx, c.http, endpoint, body, headers, engine, c.logger)
	if err != nil {
		c.logger.Error("openai.extract.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return provider.RawResult{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return provider.RawResult{}, common.NewNormalizationError(engine, "decode chat completion", err)
	}
	if cc.Error != nil {
		return provider.RawResult{}, common.NewProviderProcessingError(engine, rid, cc.Error.Message)
	}
	if len(cc.Choices) == 0 {
		return provider.RawResult{}, common.NewProviderProcessingError(engine, rid, "no choices in response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	lines, structured := c.linesFromContent(rid, content)
	payload, err := json.Marshal(pagePayload(lines, content))
	if err != nil {
		return provider.RawResult{}, fmt.Errorf("encode %s payload: %w", engine, err)
	}

	c.logger.Info("openai.extract.ok",
		"req_id", rid, "lines", len(lines), "structured", structured,
		"finish_reason", cc.Choices[0].FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds())

	return provider.RawResult{
		Engine:    engine,
		Mode:      c.cfg.Mode,
		RequestID: rid,
		Status:    provider.StatusComplete,
		Payload:   payload,
	}, nil
}

// linesFromContent prefers the structured answer and falls back to plain lines.
func (c *Client) linesFromContent(rid, content string) ([]string, bool) {
	data := []byte(stripCodeFence(content))
	if err := provider.ValidateJSON(receiptSchema, data); err == nil {
		var r Receipt
		if err := json.Unmarshal(data, &r); err == nil {
			if lines := r.Lines(); len(lines) > 0 {
				return lines, true
			}
		}
	} else if json.Valid(data) {
		c.logger.Warn("openai.extract.schema_validation_failed", "req_id", rid, "error", err)
	}
	return PlainLines(content), false
}

// attachment builds the content part carrying the document bytes.
func attachment(doc entity.SourceDocument) map[string]any {
	mt := doc.MediaType
	if mt == "" {
		mt = "application/octet-stream"
	}
	dataURL := "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(doc.Content)
	if doc.Format == constants.PDF {
		return map[string]any{
			"type": "file",
			"file": map[string]any{"filename": doc.Filename, "file_data": dataURL},
		}
	}
	return map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": dataURL},
	}
}

type payloadLine struct {
	Text string `json:"text"`
}

type payloadPage struct {
	Page      int           `json:"page"`
	TextLines []payloadLine `json:"text_lines"`
}

// pagePayload wraps lines in the Datalab final-response shape.
func pagePayload(lines []string, content string) map[string]any {
	page := payloadPage{Page: 1, TextLines: make([]payloadLine, 0, len(lines))}
	for _, l := range lines {
		page.TextLines = append(page.TextLines, payloadLine{Text: l})
	}
	return map[string]any{
		"status":     provider.StatusComplete,
		"success":    true,
		"page_count": 1,
		"pages":      []payloadPage{page},
		"content":    content,
	}
}
