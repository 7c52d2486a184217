package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/joseph-ayodele/podcheck/constants"
)

// Config holds all application configuration
type Config struct {
	Pipeline PipelineConfig
	API      APIConfig
	Datalab  DatalabConfig
	GDocAI   GDocAIConfig
	OpenAI   OpenAIConfig
	Chandra  ChandraConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Log      LogConfig
}

// PipelineConfig holds orchestration and decision thresholds.
type PipelineConfig struct {
	Mode               constants.Mode
	UseGate            bool
	QualityMinScore    float64
	FieldMinConfidence float64
	ImagesDir          string
	OutputDir          string
	Workers            int
	RatePerSec         float64
}

// APIConfig holds transport settings shared by the HTTP providers.
type APIConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	HTTPTimeout     time.Duration
}

// DatalabConfig holds the Datalab OCR API settings.
type DatalabConfig struct {
	APIKey    string
	BaseURL   string
	Endpoint  string
	PageRange string
	MaxPages  int
	SkipCache bool
	Langs     string
}

// GDocAIConfig identifies the Document AI processor.
type GDocAIConfig struct {
	ProjectID   string
	Location    string
	ProcessorID string
}

// Configured reports whether every processor coordinate is set.
func (g GDocAIConfig) Configured() bool {
	return g.ProjectID != "" && g.Location != "" && g.ProcessorID != ""
}

// OpenAIConfig holds the OpenAI vision settings.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// ChandraConfig points at a vLLM server exposing the chandra model.
type ChandraConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// StorageConfig holds the optional artifact upload target.
type StorageConfig struct {
	Bucket string
	Prefix string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Mode:               constants.ModeDatalabAPI,
			QualityMinScore:    0.55,
			FieldMinConfidence: 0.75,
			ImagesDir:          "images_example",
			OutputDir:          "outputs",
			Workers:            1,
		},
		API: APIConfig{
			PollInterval:    2 * time.Second,
			MaxPollAttempts: 60,
			HTTPTimeout:     60 * time.Second,
		},
		Datalab: DatalabConfig{
			BaseURL:  "https://www.datalab.to/api/v1",
			Endpoint: "ocr",
		},
		OpenAI: OpenAIConfig{
			Model:     "gpt-5-mini",
			BaseURL:   "https://api.openai.com/v1",
			MaxTokens: 2048,
		},
		Chandra: ChandraConfig{
			BaseURL: "http://localhost:8000/v1",
			Model:   "chandra",
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	cfg := DefaultConfig()
	applyEnv(cfg)
	return cfg
}

// LoadConfigFile overlays a TOML file on the defaults, then applies the environment.
// An empty path behaves like LoadConfig.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewConfigurationError("read config file "+path, err)
		}
		var fc fileConfig
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, NewConfigurationError("parse config file "+path, err)
		}
		if err := fc.apply(cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if mode := getEnv("PIPELINE_MODE", ""); mode != "" {
		cfg.Pipeline.Mode = constants.Mode(mode)
		if m, ok := constants.CanonicalizeMode(mode); ok {
			cfg.Pipeline.Mode = m
		}
	}
	cfg.Pipeline.UseGate = getEnvAsBool("USE_GDOC_AI_GATE", cfg.Pipeline.UseGate)
	cfg.Pipeline.QualityMinScore = getEnvAsFloat64("QUALITY_MIN_SCORE", cfg.Pipeline.QualityMinScore)
	cfg.Pipeline.FieldMinConfidence = getEnvAsFloat64("FIELD_MIN_CONFIDENCE", cfg.Pipeline.FieldMinConfidence)
	cfg.Pipeline.ImagesDir = getEnv("IMAGES_DIR", cfg.Pipeline.ImagesDir)
	cfg.Pipeline.OutputDir = getEnv("OUTPUT_DIR", cfg.Pipeline.OutputDir)
	cfg.Pipeline.Workers = getEnvAsInt("PIPELINE_WORKERS", cfg.Pipeline.Workers)
	cfg.Pipeline.RatePerSec = getEnvAsFloat64("PIPELINE_RATE_PER_SEC", cfg.Pipeline.RatePerSec)

	cfg.API.PollInterval = getEnvAsDuration("API_POLL_INTERVAL_SECONDS", cfg.API.PollInterval)
	cfg.API.MaxPollAttempts = getEnvAsInt("API_MAX_POLL_ATTEMPTS", cfg.API.MaxPollAttempts)
	cfg.API.HTTPTimeout = getEnvAsDuration("API_HTTP_TIMEOUT_SECONDS", cfg.API.HTTPTimeout)

	cfg.Datalab.APIKey = getEnv("DATALAB_API_KEY", cfg.Datalab.APIKey)
	cfg.Datalab.BaseURL = getEnv("DATALAB_API_BASE", cfg.Datalab.BaseURL)
	cfg.Datalab.Endpoint = getEnv("API_ENDPOINT", cfg.Datalab.Endpoint)
	cfg.Datalab.PageRange = getEnv("API_PAGE_RANGE", cfg.Datalab.PageRange)
	cfg.Datalab.MaxPages = getEnvAsInt("API_MAX_PAGES", cfg.Datalab.MaxPages)
	cfg.Datalab.SkipCache = getEnvAsBool("API_SKIP_CACHE", cfg.Datalab.SkipCache)
	cfg.Datalab.Langs = getEnv("API_LANGS", cfg.Datalab.Langs)

	cfg.GDocAI.ProjectID = getEnv("GDOC_PROJECT_ID", cfg.GDocAI.ProjectID)
	cfg.GDocAI.Location = getEnv("GDOC_LOCATION", cfg.GDocAI.Location)
	cfg.GDocAI.ProcessorID = getEnv("GDOC_PROCESSOR_ID", cfg.GDocAI.ProcessorID)

	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.Model = getEnv("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.MaxTokens = getEnvAsInt("OPENAI_MAX_TOKENS", cfg.OpenAI.MaxTokens)
	cfg.OpenAI.Temperature = getEnvAsFloat64("OPENAI_TEMPERATURE", cfg.OpenAI.Temperature)

	cfg.Chandra.BaseURL = getEnv("CHANDRA_API_BASE", cfg.Chandra.BaseURL)
	cfg.Chandra.APIKey = getEnv("CHANDRA_API_KEY", cfg.Chandra.APIKey)
	cfg.Chandra.Model = getEnv("CHANDRA_MODEL_NAME", cfg.Chandra.Model)

	cfg.Storage.Bucket = getEnv("GCS_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Prefix = getEnv("GCS_PREFIX", cfg.Storage.Prefix)

	cfg.Database.DSN = getEnv("RESULTS_DB_URL", cfg.Database.DSN)
	cfg.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", cfg.Database.MinConns)
	cfg.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", cfg.Database.MaxConnLifetime)
	cfg.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", cfg.Database.DialTimeout)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1m30s") or plain seconds ("2.5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, ok := parseSeconds(value); ok {
			return d
		}
	}
	return defaultValue
}

func parseSeconds(value string) (time.Duration, bool) {
	if duration, err := time.ParseDuration(value); err == nil {
		return duration, true
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}

// Validate checks the settings the selected mode and gate depend on.
func (c *Config) Validate() error {
	v := NewValidator().
		Field("PIPELINE_MODE", string(c.Pipeline.Mode), OneOf(constants.Modes()...)).
		Field("QUALITY_MIN_SCORE", c.Pipeline.QualityMinScore, UnitInterval).
		Field("FIELD_MIN_CONFIDENCE", c.Pipeline.FieldMinConfidence, UnitInterval).
		Field("OUTPUT_DIR", c.Pipeline.OutputDir, Required).
		Field("PIPELINE_WORKERS", c.Pipeline.Workers, Positive).
		Field("API_POLL_INTERVAL_SECONDS", c.API.PollInterval, Positive).
		Field("API_MAX_POLL_ATTEMPTS", c.API.MaxPollAttempts, Positive).
		Field("API_HTTP_TIMEOUT_SECONDS", c.API.HTTPTimeout, Positive).
		Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json"))

	switch c.Pipeline.Mode {
	case constants.ModeDatalabAPI:
		v.Field("DATALAB_API_KEY", c.Datalab.APIKey, Required).
			Field("DATALAB_API_BASE", c.Datalab.BaseURL, Required)
	case constants.ModeOpenAIAPI:
		v.Field("OPENAI_API_KEY", c.OpenAI.APIKey, Required).
			Field("OPENAI_MODEL", c.OpenAI.Model, Required)
	case constants.ModeChandra:
		v.Field("CHANDRA_API_BASE", c.Chandra.BaseURL, Required)
	case constants.ModeGDocAI:
		c.requireGDocAI(v)
	}
	if c.Pipeline.UseGate {
		c.requireGDocAI(v)
	}
	v.Field("PIPELINE_RATE_PER_SEC", c.Pipeline.RatePerSec, NonNegative)
	return v.Err()
}

func (c *Config) requireGDocAI(v *Validator) {
	v.Field("GDOC_PROJECT_ID", c.GDocAI.ProjectID, Required).
		Field("GDOC_LOCATION", c.GDocAI.Location, Required).
		Field("GDOC_PROCESSOR_ID", c.GDocAI.ProcessorID, Required)
}

// fileConfig mirrors Config for TOML files. Durations are seconds.
type fileConfig struct {
	Pipeline struct {
		Mode               string   `toml:"mode"`
		UseGate            *bool    `toml:"use_gdoc_ai_gate"`
		QualityMinScore    *float64 `toml:"quality_min_score"`
		FieldMinConfidence *float64 `toml:"field_min_confidence"`
		ImagesDir          string   `toml:"images_dir"`
		OutputDir          string   `toml:"output_dir"`
		Workers            int      `toml:"workers"`
		RatePerSec         float64  `toml:"rate_per_sec"`
	} `toml:"pipeline"`
	API struct {
		PollIntervalSeconds float64 `toml:"poll_interval_seconds"`
		MaxPollAttempts     int     `toml:"max_poll_attempts"`
		HTTPTimeoutSeconds  float64 `toml:"http_timeout_seconds"`
	} `toml:"api"`
	Datalab struct {
		APIKey    string `toml:"api_key"`
		BaseURL   string `toml:"base_url"`
		Endpoint  string `toml:"endpoint"`
		PageRange string `toml:"page_range"`
		MaxPages  int    `toml:"max_pages"`
		SkipCache *bool  `toml:"skip_cache"`
		Langs     string `toml:"langs"`
	} `toml:"datalab"`
	GDocAI struct {
		ProjectID   string `toml:"project_id"`
		Location    string `toml:"location"`
		ProcessorID string `toml:"processor_id"`
	} `toml:"gdocai"`
	OpenAI struct {
		APIKey    string `toml:"api_key"`
		Model     string `toml:"model"`
		BaseURL   string `toml:"base_url"`
		MaxTokens int    `toml:"max_tokens"`
	} `toml:"openai"`
	Chandra struct {
		BaseURL string `toml:"base_url"`
		Model   string `toml:"model"`
	} `toml:"chandra"`
	Storage struct {
		Bucket string `toml:"bucket"`
		Prefix string `toml:"prefix"`
	} `toml:"storage"`
	Database struct {
		DSN string `toml:"dsn"`
	} `toml:"database"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.Pipeline.Mode != "" {
		m, ok := constants.CanonicalizeMode(fc.Pipeline.Mode)
		if !ok {
			return NewConfigurationError(fmt.Sprintf("pipeline.mode %q", fc.Pipeline.Mode), ErrUnsupportedMode)
		}
		cfg.Pipeline.Mode = m
	}
	if fc.Pipeline.UseGate != nil {
		cfg.Pipeline.UseGate = *fc.Pipeline.UseGate
	}
	if fc.Pipeline.QualityMinScore != nil {
		cfg.Pipeline.QualityMinScore = *fc.Pipeline.QualityMinScore
	}
	if fc.Pipeline.FieldMinConfidence != nil {
		cfg.Pipeline.FieldMinConfidence = *fc.Pipeline.FieldMinConfidence
	}
	setString(&cfg.Pipeline.ImagesDir, fc.Pipeline.ImagesDir)
	setString(&cfg.Pipeline.OutputDir, fc.Pipeline.OutputDir)
	if fc.Pipeline.Workers > 0 {
		cfg.Pipeline.Workers = fc.Pipeline.Workers
	}
	if fc.Pipeline.RatePerSec > 0 {
		cfg.Pipeline.RatePerSec = fc.Pipeline.RatePerSec
	}

	if fc.API.PollIntervalSeconds > 0 {
		cfg.API.PollInterval = time.Duration(fc.API.PollIntervalSeconds * float64(time.Second))
	}
	if fc.API.MaxPollAttempts > 0 {
		cfg.API.MaxPollAttempts = fc.API.MaxPollAttempts
	}
	if fc.API.HTTPTimeoutSeconds > 0 {
		cfg.API.HTTPTimeout = time.Duration(fc.API.HTTPTimeoutSeconds * float64(time.Second))
	}

	setString(&cfg.Datalab.APIKey, fc.Datalab.APIKey)
	setString(&cfg.Datalab.BaseURL, fc.Datalab.BaseURL)
	setString(&cfg.Datalab.Endpoint, fc.Datalab.Endpoint)
	setString(&cfg.Datalab.PageRange, fc.Datalab.PageRange)
	setString(&cfg.Datalab.Langs, fc.Datalab.Langs)
	if fc.Datalab.MaxPages > 0 {
		cfg.Datalab.MaxPages = fc.Datalab.MaxPages
	}
	if fc.Datalab.SkipCache != nil {
		cfg.Datalab.SkipCache = *fc.Datalab.SkipCache
	}

	setString(&cfg.GDocAI.ProjectID, fc.GDocAI.ProjectID)
	setString(&cfg.GDocAI.Location, fc.GDocAI.Location)
	setString(&cfg.GDocAI.ProcessorID, fc.GDocAI.ProcessorID)

	setString(&cfg.OpenAI.APIKey, fc.OpenAI.APIKey)
	setString(&cfg.OpenAI.Model, fc.OpenAI.Model)
	setString(&cfg.OpenAI.BaseURL, fc.OpenAI.BaseURL)
	if fc.OpenAI.MaxTokens > 0 {
		cfg.OpenAI.MaxTokens = fc.OpenAI.MaxTokens
	}

	setString(&cfg.Chandra.BaseURL, fc.Chandra.BaseURL)
	setString(&cfg.Chandra.Model, fc.Chandra.Model)
	setString(&cfg.Storage.Bucket, fc.Storage.Bucket)
	setString(&cfg.Storage.Prefix, fc.Storage.Prefix)
	setString(&cfg.Database.DSN, fc.Database.DSN)
	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
