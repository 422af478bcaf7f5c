package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tanq16/mtdown/internal/utils"
)

// EnvPrefix is the prefix for environment overrides, e.g. MTDOWN_THREADS.
const EnvPrefix = "MTDOWN"

// Config holds every tunable of a download run.
type Config struct {
	Threads       int           `yaml:"threads" envconfig:"THREADS" validate:"min=1,max=32"`
	Probe         bool          `yaml:"probe" envconfig:"PROBE"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" envconfig:"PROBE_TIMEOUT" validate:"gt=0"`
	ProbeCooldown time.Duration `yaml:"probe_cooldown" envconfig:"PROBE_COOLDOWN" validate:"gte=0"`
	PollInterval  time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL" validate:"gt=0"`
	CancelGrace   time.Duration `yaml:"cancel_grace" envconfig:"CANCEL_GRACE" validate:"gt=0"`
	Overwrite     bool          `yaml:"overwrite" envconfig:"OVERWRITE"`
	Retry         RetryConfig   `yaml:"retry" envconfig:"RETRY"`
	HTTP          HTTPConfig    `yaml:"http" envconfig:"HTTP"`
	S3            S3Config      `yaml:"s3" envconfig:"S3"`
	Debug         bool          `yaml:"debug" envconfig:"DEBUG"`
	LogFile       string        `yaml:"log_file" envconfig:"LOG_FILE"`
}

// RetryConfig defines the per-segment retry behavior.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" envconfig:"ATTEMPTS" validate:"min=1"`
	Backoff  time.Duration `yaml:"backoff" envconfig:"BACKOFF" validate:"gte=0"`
}

type HTTPConfig struct {
	Timeout       time.Duration     `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	KeepAlive     time.Duration     `yaml:"keep_alive" envconfig:"KEEP_ALIVE" validate:"gt=0"`
	UserAgent     string            `yaml:"user_agent" envconfig:"USER_AGENT"`
	Proxy         string            `yaml:"proxy" envconfig:"PROXY"`
	ProxyUsername string            `yaml:"proxy_username" envconfig:"PROXY_USERNAME"`
	ProxyPassword string            `yaml:"proxy_password" envconfig:"PROXY_PASSWORD"`
	Headers       map[string]string `yaml:"headers" envconfig:"HEADERS"`
	Token         string            `yaml:"token" envconfig:"TOKEN"`
}

type S3Config struct {
	Profile       string        `yaml:"profile" envconfig:"PROFILE"`
	PresignExpiry time.Duration `yaml:"presign_expiry" envconfig:"PRESIGN_EXPIRY" validate:"gt=0"`
}

// Default returns a Config with the stock settings.
func Default() Config {
	return Config{
		Threads:       utils.DefaultMaxThreads,
		Probe:         true,
		ProbeTimeout:  utils.DefaultProbeTimeout,
		ProbeCooldown: utils.DefaultProbeCooldown,
		PollInterval:  utils.DefaultPollInterval,
		CancelGrace:   utils.DefaultCancelGrace,
		Retry: RetryConfig{
			Attempts: utils.DefaultMaxAttempts,
			Backoff:  utils.DefaultBackoff,
		},
		HTTP: HTTPConfig{
			Timeout:   3 * time.Minute,
			KeepAlive: 90 * time.Second,
			UserAgent: utils.ToolUserAgent,
			Headers:   map[string]string{},
		},
		S3: S3Config{
			Profile:       "default",
			PresignExpiry: time.Hour,
		},
	}
}

// Load layers the defaults, an optional YAML file, a .env file in the working
// directory and MTDOWN_* environment variables, in that order, and validates
// the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports the first invalid field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q (value %v)", verrs[0].Namespace(), verrs[0].Tag(), verrs[0].Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RetryPolicy converts the retry section for the segment workers.
func (c Config) RetryPolicy() utils.RetryPolicy {
	return utils.RetryPolicy{MaxAttempts: c.Retry.Attempts, Backoff: c.Retry.Backoff}
}

// HTTPClientConfig converts the http section into the client settings of a job.
func (c Config) HTTPClientConfig() utils.HTTPClientConfig {
	userAgent := c.HTTP.UserAgent
	if userAgent == "randomize" {
		userAgent = utils.GetRandomUserAgent()
	}
	headers := make(map[string]string, len(c.HTTP.Headers))
	for k, v := range c.HTTP.Headers {
		headers[k] = v
	}
	return utils.HTTPClientConfig{
		Timeout:        c.HTTP.Timeout,
		KATimeout:      c.HTTP.KeepAlive,
		ProxyURL:       c.HTTP.Proxy,
		ProxyUsername:  c.HTTP.ProxyUsername,
		ProxyPassword:  c.HTTP.ProxyPassword,
		UserAgent:      userAgent,
		Headers:        headers,
		BearerToken:    c.HTTP.Token,
		HighThreadMode: c.Threads > 5,
	}
}
