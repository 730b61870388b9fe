package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Search        SearchConfig
	Quotes        QuotesConfig
	Cache         CacheConfig
	Redis         RedisConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"marketpulse"`
	Version  string `envconfig:"APP_VERSION" default:"1.0.0"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port        int           `envconfig:"PORT" default:"8000"`
	CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"https://howyoufind.me,http://localhost:3000"`
	ReadTimeout time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	IdleTimeout time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`

	// MaxStreamDuration bounds a single pipeline stream. Streams carry no
	// write timeout of their own.
	MaxStreamDuration time.Duration `envconfig:"MAX_STREAM_DURATION" default:"10m"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type AIConfig struct {
	Provider  string `envconfig:"AI_PROVIDER" default:"openai"`
	OpenAIKey string `envconfig:"OPENAI_API_KEY"`
	// DeepSeek speaks the OpenAI wire protocol and is reached through BaseURL.
	DeepSeekKey string `envconfig:"DEEPSEEK_API_KEY"`
	BaseURL     string `envconfig:"AI_BASE_URL"`
	Model       string `envconfig:"MODEL_NAME" default:"gpt-4o-mini"`

	StageTemperatures Temperatures `envconfig:"STAGE_TEMPERATURES"`

	RequestTimeout    time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"90s"`
	MaxToolIterations int           `envconfig:"AI_MAX_TOOL_ITERATIONS" default:"6"`
	MaxTokens         int64         `envconfig:"AI_MAX_TOKENS" default:"4096"`

	// Requests per minute across all stages, 0 disables limiting.
	RateLimitPerMinute int `envconfig:"AI_RATE_LIMIT_PER_MINUTE" default:"60"`
	RateLimitBurst     int `envconfig:"AI_RATE_LIMIT_BURST" default:"5"`
}

// APIKey returns the key of the selected provider.
func (c AIConfig) APIKey() string {
	if c.Provider == ProviderDeepSeek {
		return c.DeepSeekKey
	}
	return c.OpenAIKey
}

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

// Temperatures maps stage ids to sampling temperatures. It decodes from
// "keywords:0.7,queries:0.7,ranking:0".
type Temperatures map[string]float64

// Decode implements envconfig.Decoder.
func (t *Temperatures) Decode(value string) error {
	out := Temperatures{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		stage, raw, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(stage) == "" {
			return errors.NewValidationError("STAGE_TEMPERATURES", "expected stage:temperature", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || v < 0 || v > 2 {
			return errors.NewValidationError("STAGE_TEMPERATURES", "temperature must be a number between 0 and 2", pair)
		}
		out[strings.TrimSpace(stage)] = v
	}
	*t = out
	return nil
}

type SearchConfig struct {
	SerperKey string        `envconfig:"SERPER_API_KEY"`
	SerperURL string        `envconfig:"SERPER_URL" default:"https://google.serper.dev/search"`
	BingKey   string        `envconfig:"BING_API_KEY"`
	BingURL   string        `envconfig:"BING_URL" default:"https://api.bing.microsoft.com/v7.0/search"`
	Timeout   time.Duration `envconfig:"SEARCH_TIMEOUT" default:"15s"`
}

type QuotesConfig struct {
	AlphaVantageKey string        `envconfig:"ALPHA_VANTAGE_API_KEY"`
	AlphaVantageURL string        `envconfig:"ALPHA_VANTAGE_URL" default:"https://www.alphavantage.co/query"`
	Timeout         time.Duration `envconfig:"QUOTES_TIMEOUT" default:"15s"`
}

type CacheConfig struct {
	// Backend is "file" or "redis".
	Backend       string        `envconfig:"CACHE_BACKEND" default:"file"`
	Dir           string        `envconfig:"CACHE_DIR" default:".cache"`
	UsageLogDir   string        `envconfig:"USAGE_LOG_DIR" default:".logs"`
	QuoteTTL      time.Duration `envconfig:"CACHE_QUOTE_TTL" default:"1h"`
	InfluencerTTL time.Duration `envconfig:"CACHE_INFLUENCER_TTL" default:"4h"`

	// File cache housekeeping, run by the server only. Zero interval disables it.
	PruneInterval time.Duration `envconfig:"CACHE_PRUNE_INTERVAL" default:"1h"`
	MaxAge        time.Duration `envconfig:"CACHE_MAX_AGE" default:"48h"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Enabled reports whether a Redis server is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}

// Validate reports every setting that prevents pipelines from running.
// Search and quote keys are optional: the tools report the missing key to
// the model instead.
func (c *Config) Validate() error {
	var errs errors.MultiError

	switch c.AI.Provider {
	case ProviderOpenAI, ProviderDeepSeek:
	default:
		errs.Add(errors.NewValidationError("AI_PROVIDER", "unsupported provider", c.AI.Provider))
	}
	if c.AI.APIKey() == "" {
		errs.Add(errors.NewValidationError("AI_API_KEY", "API key of the selected provider is required", c.AI.Provider))
	}
	if c.AI.Model == "" {
		errs.Add(errors.NewValidationError("MODEL_NAME", "model name is required", c.AI.Model))
	}
	if c.AI.MaxToolIterations < 1 {
		errs.Add(errors.NewValidationError("AI_MAX_TOOL_ITERATIONS", "must be at least 1", c.AI.MaxToolIterations))
	}

	switch c.Cache.Backend {
	case "file":
	case "redis":
		if !c.Redis.Enabled() {
			errs.Add(errors.NewValidationError("CACHE_BACKEND", "redis backend requires REDIS_HOST", c.Cache.Backend))
		}
	default:
		errs.Add(errors.NewValidationError("CACHE_BACKEND", "must be file or redis", c.Cache.Backend))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs.Add(errors.NewValidationError("PORT", "must be a valid TCP port", c.HTTP.Port))
	}
	if c.HTTP.MaxStreamDuration <= 0 {
		errs.Add(errors.NewValidationError("MAX_STREAM_DURATION", "must be positive", c.HTTP.MaxStreamDuration))
	}

	return errs.ToError()
}
