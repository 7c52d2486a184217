package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/podcheck/constants"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, constants.ModeDatalabAPI, cfg.Pipeline.Mode)
	assert.InDelta(t, 0.55, cfg.Pipeline.QualityMinScore, 1e-9)
	assert.InDelta(t, 0.75, cfg.Pipeline.FieldMinConfidence, 1e-9)
	assert.False(t, cfg.Pipeline.UseGate)
	assert.Equal(t, 2*time.Second, cfg.API.PollInterval)
	assert.Equal(t, 60, cfg.API.MaxPollAttempts)
	assert.Equal(t, 60*time.Second, cfg.API.HTTPTimeout)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("PIPELINE_MODE", "docai")
	t.Setenv("USE_GDOC_AI_GATE", "yes")
	t.Setenv("QUALITY_MIN_SCORE", "0.6")
	t.Setenv("API_POLL_INTERVAL_SECONDS", "0.5")
	t.Setenv("API_MAX_POLL_ATTEMPTS", "not-a-number")
	t.Setenv("API_HTTP_TIMEOUT_SECONDS", "1m30s")
	t.Setenv("PIPELINE_WORKERS", "4")

	cfg := LoadConfig()
	assert.Equal(t, constants.ModeGDocAI, cfg.Pipeline.Mode)
	assert.True(t, cfg.Pipeline.UseGate)
	assert.InDelta(t, 0.6, cfg.Pipeline.QualityMinScore, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.API.PollInterval)
	assert.Equal(t, 60, cfg.API.MaxPollAttempts, "unparsable values keep the default")
	assert.Equal(t, 90*time.Second, cfg.API.HTTPTimeout)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
}

func TestLoadConfigFile_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podcheck.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[pipeline]
mode = "openai"
quality_min_score = 0.7
use_gdoc_ai_gate = true
output_dir = "out"

[api]
poll_interval_seconds = 1.5

[openai]
api_key = "sk-file"
model = "gpt-file"
`), 0o600))
	t.Setenv("OPENAI_MODEL", "gpt-env")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, constants.ModeOpenAIAPI, cfg.Pipeline.Mode)
	assert.InDelta(t, 0.7, cfg.Pipeline.QualityMinScore, 1e-9)
	assert.True(t, cfg.Pipeline.UseGate)
	assert.Equal(t, "out", cfg.Pipeline.OutputDir)
	assert.Equal(t, 1500*time.Millisecond, cfg.API.PollInterval)
	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-env", cfg.OpenAI.Model)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.toml"))
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pipeline]\nmode = \"tesseract\"\n"), 0o600))
	_, err = LoadConfigFile(path)
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "datalab with key",
			mutate: func(c *Config) { c.Datalab.APIKey = "k" },
		},
		{
			name:    "datalab without key",
			mutate:  func(c *Config) {},
			wantErr: "DATALAB_API_KEY",
		},
		{
			name: "threshold out of range",
			mutate: func(c *Config) {
				c.Datalab.APIKey = "k"
				c.Pipeline.QualityMinScore = 1.2
			},
			wantErr: "QUALITY_MIN_SCORE",
		},
		{
			name: "unknown mode",
			mutate: func(c *Config) {
				c.Pipeline.Mode = "tesseract"
			},
			wantErr: "PIPELINE_MODE",
		},
		{
			name: "gate requires document ai",
			mutate: func(c *Config) {
				c.Datalab.APIKey = "k"
				c.Pipeline.UseGate = true
			},
			wantErr: "GDOC_PROCESSOR_ID",
		},
		{
			name: "gdocai configured",
			mutate: func(c *Config) {
				c.Pipeline.Mode = constants.ModeGDocAI
				c.GDocAI = GDocAIConfig{ProjectID: "p", Location: "us", ProcessorID: "x"}
			},
		},
		{
			name: "negative rate",
			mutate: func(c *Config) {
				c.Datalab.APIKey = "k"
				c.Pipeline.RatePerSec = -1
			},
			wantErr: "PIPELINE_RATE_PER_SEC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestValidator_Rules(t *testing.T) {
	v := NewValidator().
		Field("A", "", Required).
		Field("B", nil, Required).
		Field("C", "x", Required).
		Field("D", 0, Positive).
		Field("E", 2*time.Second, Positive).
		Field("F", "yaml", OneOf("text", "json")).
		Field("G", -0.5, NonNegative).
		Field("H", 0.5, UnitInterval, NonNegative)

	got := make([]string, 0, len(v.Failures()))
	for _, f := range v.Failures() {
		got = append(got, f.Field)
	}
	assert.Equal(t, []string{"A", "B", "D", "F", "G"}, got)

	err := v.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), `F="yaml" must be one of: text, json`)

	assert.NoError(t, NewValidator().Field("X", "ok", Required).Err())
}
