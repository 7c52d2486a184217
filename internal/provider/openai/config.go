package openai

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
)

// Config for the vision client. The same client serves OpenAI and any
// OpenAI-compatible server (vLLM running chandra).
type Config struct {
	Mode        constants.Mode // ModeOpenAIAPI or ModeChandra
	APIKey      string         // required for OpenAI, optional for vLLM
	BaseURL     string         // default https://api.openai.com/v1
	Model       string         // e.g. "gpt-5-mini" or "chandra"
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration // http client timeout
}

// Client implements provider.Provider with a single chat/completions call.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient validates cfg and builds a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.Mode == "" {
		cfg.Mode = constants.ModeOpenAIAPI
	}
	if cfg.Mode != constants.ModeOpenAIAPI && cfg.Mode != constants.ModeChandra {
		return nil, common.NewConfigurationError("openai client cannot serve mode "+string(cfg.Mode), common.ErrUnsupportedMode)
	}
	if cfg.Mode == constants.ModeOpenAIAPI && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, common.NewConfigurationError("OPENAI_API_KEY must be set to use "+string(cfg.Mode), nil)
	}
	if cfg.BaseURL == "" {
		if cfg.Mode == constants.ModeChandra {
			return nil, common.NewConfigurationError("CHANDRA_API_BASE must be set to use chandra", nil)
		}
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-5-mini"
		if cfg.Mode == constants.ModeChandra {
			cfg.Model = "chandra"
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With("engine", string(cfg.Mode)),
	}, nil
}
