package luco

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of the environment variables read by LoadConfigFromEnv.
const EnvPrefix = "LUCO"

// EnvConfig is client configuration read from the environment:
//
//	LUCO_API_KEY      (required)
//	LUCO_BASE_URL     default https://api.luco.email
//	LUCO_TIMEOUT      default 30s
//	LUCO_MAX_RETRIES  default 3
//	LUCO_RETRY_DELAY  default 1s
//	LUCO_DEBUG        default false
type EnvConfig struct {
	APIKey     string        `envconfig:"API_KEY" required:"true"`
	BaseURL    string        `envconfig:"BASE_URL" default:"https://api.luco.email"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
	Debug      bool          `envconfig:"DEBUG" default:"false"`
}

// LoadConfigFromEnv reads EnvConfig using prefix (EnvPrefix when empty).
// Any dotenv files given are loaded first; variables already set in the
// environment win over values from the files.
func LoadConfigFromEnv(prefix string, dotenvFiles ...string) (*EnvConfig, error) {
	if prefix == "" {
		prefix = EnvPrefix
	}
	if len(dotenvFiles) > 0 {
		if err := godotenv.Load(dotenvFiles...); err != nil {
			return nil, fmt.Errorf("luco: loading dotenv files: %w", err)
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("luco: parsing environment config: %w", err)
	}
	return &cfg, nil
}

// Options converts the environment configuration into client options.
func (e *EnvConfig) Options() []Option {
	return []Option{
		WithBaseURL(e.BaseURL),
		WithTimeout(e.Timeout),
		WithMaxRetries(e.MaxRetries),
		WithRetryDelay(e.RetryDelay),
		WithDebug(e.Debug),
	}
}

// NewClientFromEnv creates a client from LUCO_* environment variables.
// Options given here are applied after the environment and override it.
func NewClientFromEnv(opts ...Option) (*Client, error) {
	cfg, err := LoadConfigFromEnv(EnvPrefix)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.APIKey, append(cfg.Options(), opts...)...)
}
