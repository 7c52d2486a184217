package pipeline

import (
	"context"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/provider"
	"github.com/joseph-ayodele/podcheck/internal/provider/datalab"
	"github.com/joseph-ayodele/podcheck/internal/provider/gdocai"
	"github.com/joseph-ayodele/podcheck/internal/provider/openai"
)

// NewFromConfig builds the providers selected by cfg and wraps them in a
// pipeline. The gate is dropped in gdocai mode since the primary already
// reports quality scores.
func NewFromConfig(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...option.ClientOption) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.Pipeline.Mode
	useGate := cfg.Pipeline.UseGate
	if useGate && mode == constants.ModeGDocAI {
		logger.Info("pipeline.gate.redundant", "mode", string(mode))
		useGate = false
	}

	primary, err := BuildPrimary(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, err
	}

	var gate provider.Provider
	if useGate {
		gate, err = buildGDocAI(ctx, cfg, gdocai.EngineGate, logger, opts...)
		if err != nil {
			_ = primary.Close()
			return nil, err
		}
	}

	p, err := New(primary, gate, Options{
		Mode:               mode,
		UseGate:            useGate,
		QualityMinScore:    cfg.Pipeline.QualityMinScore,
		FieldMinConfidence: cfg.Pipeline.FieldMinConfidence,
	}, logger)
	if err != nil {
		_ = primary.Close()
		if gate != nil {
			_ = gate.Close()
		}
		return nil, err
	}
	return p, nil
}

// BuildPrimary constructs the provider for cfg.Pipeline.Mode.
func BuildPrimary(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...option.ClientOption) (provider.Provider, error) {
	switch cfg.Pipeline.Mode {
	case constants.ModeDatalabAPI:
		c, err := datalab.NewClient(datalab.Config{
			APIKey:          cfg.Datalab.APIKey,
			BaseURL:         cfg.Datalab.BaseURL,
			Endpoint:        cfg.Datalab.Endpoint,
			PageRange:       cfg.Datalab.PageRange,
			MaxPages:        cfg.Datalab.MaxPages,
			SkipCache:       cfg.Datalab.SkipCache,
			Langs:           cfg.Datalab.Langs,
			PollInterval:    cfg.API.PollInterval,
			MaxPollAttempts: cfg.API.MaxPollAttempts,
			HTTPTimeout:     cfg.API.HTTPTimeout,
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case constants.ModeGDocAI:
		return buildGDocAI(ctx, cfg, gdocai.EnginePrimary, logger, opts...)
	case constants.ModeOpenAIAPI:
		c, err := openai.NewClient(openai.Config{
			Mode:        constants.ModeOpenAIAPI,
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.API.HTTPTimeout,
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case constants.ModeChandra:
		c, err := openai.NewClient(openai.Config{
			Mode:        constants.ModeChandra,
			APIKey:      cfg.Chandra.APIKey,
			BaseURL:     cfg.Chandra.BaseURL,
			Model:       cfg.Chandra.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.API.HTTPTimeout,
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, common.NewConfigurationError("unsupported pipeline mode "+string(cfg.Pipeline.Mode), common.ErrUnsupportedMode)
	}
}

func buildGDocAI(ctx context.Context, cfg *common.Config, engine string, logger *slog.Logger, opts ...option.ClientOption) (provider.Provider, error) {
	p, err := gdocai.New(ctx, gdocai.Config{
		ProjectID:   cfg.GDocAI.ProjectID,
		Location:    cfg.GDocAI.Location,
		ProcessorID: cfg.GDocAI.ProcessorID,
		Timeout:     cfg.API.HTTPTimeout,
	}, engine, logger, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}
