// Package gdocai wraps Google Document AI OCR processors. It is used both as a
// primary provider and as the image-quality gate.
package gdocai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/provider"
)

// Engine names under which the provider can be registered.
const (
	EnginePrimary = string(constants.ModeGDocAI)
	EngineGate    = constants.EngineGDocAIGate
)

// DocumentProcessor is the subset of the Document AI client used here.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// Config identifies the processor.
type Config struct {
	ProjectID   string
	Location    string
	ProcessorID string
	Timeout     time.Duration
}

// ProcessorName returns the fully qualified processor resource name.
func (c Config) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

// Endpoint returns the regional API endpoint.
func (c Config) Endpoint() string {
	return c.Location + "-documentai.googleapis.com:443"
}

// Provider implements provider.Provider on top of Document AI.
type Provider struct {
	cfg    Config
	engine string
	client DocumentProcessor
	logger *slog.Logger
}

var _ provider.Provider = (*Provider)(nil)

// New dials Document AI at the regional endpoint of cfg.Location.
func New(ctx context.Context, cfg Config, engine string, logger *slog.Logger, opts ...option.ClientOption) (*Provider, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	opts = append([]option.ClientOption{option.WithEndpoint(cfg.Endpoint())}, opts...)
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, common.NewConfigurationError("create document ai client", err)
	}
	return NewWithClient(cfg, engine, client, logger)
}

// NewWithClient builds a provider around an existing client.
func NewWithClient(cfg Config, engine string, client DocumentProcessor, logger *slog.Logger) (*Provider, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, common.NewConfigurationError("document ai client is nil", nil)
	}
	if engine == "" {
		engine = EnginePrimary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg, engine: engine, client: client, logger: logger.With("engine", engine)}, nil
}

func validate(cfg Config) error {
	var missing []string
	if cfg.ProjectID == "" {
		missing = append(missing, "GDOC_PROJECT_ID")
	}
	if cfg.Location == "" {
		missing = append(missing, "GDOC_LOCATION")
	}
	if cfg.ProcessorID == "" {
		missing = append(missing, "GDOC_PROCESSOR_ID")
	}
	if len(missing) > 0 {
		return common.NewConfigurationError("document ai not configured, set "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func (p *Provider) Name() string         { return p.engine }
func (p *Provider) Mode() constants.Mode { return constants.ModeGDocAI }
func (p *Provider) Close() error         { return p.client.Close() }

// Payload is the JSON document handed to normalization.
type Payload struct {
	Lines      []Line          `json:"lines"`
	Quality    Quality         `json:"quality"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// Line is one Document AI line with its page number.
type Line struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
	Normalized bool       `json:"normalized"` // bbox is in [0,1] page coordinates
	Page       int        `json:"page"`
}

// Quality aggregates per-page image quality scores.
type Quality struct {
	ScoreMin *float64 `json:"score_min"`
	ScoreAvg *float64 `json:"score_avg"`
	Reasons  []string `json:"reasons"`
}

// Process sends the document to the processor with image quality scoring enabled.
func (p *Provider) Process(ctx context.Context, doc entity.SourceDocument) (provider.RawResult, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	mime := doc.MediaType
	if mime == "" {
		mime = "application/pdf"
	}
	req := &documentaipb.ProcessRequest{
		Name: p.cfg.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: doc.Content, MimeType: mime},
		},
		ProcessOptions: &documentaipb.ProcessOptions{
			OcrConfig: &documentaipb.OcrConfig{EnableImageQualityScores: true},
		},
	}

	start := time.Now()
	resp, err := p.client.ProcessDocument(ctx, req)
	if err != nil {
		p.logger.Error("gdocai.process.error", "file", doc.Filename, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return provider.RawResult{}, common.NewSubmissionError(p.engine, 0, "process document", err)
	}

	document := resp.GetDocument()
	rawDoc, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(document)
	if err != nil {
		return provider.RawResult{}, common.NewNormalizationError(string(constants.ModeGDocAI), "encode document", err)
	}

	payload := Payload{
		Lines:      ExtractLines(document),
		Quality:    ExtractQuality(document.GetPages()),
		RawPayload: rawDoc,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return provider.RawResult{}, fmt.Errorf("encode gdocai payload: %w", err)
	}

	p.logger.Info("gdocai.process.ok",
		"file", doc.Filename, "pages", len(document.GetPages()), "lines", len(payload.Lines),
		"elapsed_ms", time.Since(start).Milliseconds())

	return provider.RawResult{
		Engine:  p.engine,
		Mode:    constants.ModeGDocAI,
		Status:  provider.StatusComplete,
		Payload: data,
	}, nil
}
