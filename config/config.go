// Package config loads engine configuration from defaults, an optional YAML
// file and FETCH_-prefixed environment variables, in ascending priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables read by Load, e.g.
// FETCH_RETRY_MAX maps to retry.max.
const envPrefix = "FETCH_"

// Config is the engine configuration tree.
type Config struct {
	Client  ClientConfig  `koanf:"client"`
	Retry   RetryConfig   `koanf:"retry"`
	Log     LogConfig     `koanf:"log"`
	CSRF    CSRFConfig    `koanf:"csrf"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ClientConfig holds transport-facing defaults.
type ClientConfig struct {
	BaseURL     string        `koanf:"baseurl" validate:"omitempty,url"`
	Timeout     time.Duration `koanf:"timeout" validate:"min=0"`
	RateLimit   float64       `koanf:"ratelimit" validate:"min=0"`
	RateBurst   int           `koanf:"rateburst" validate:"min=0"`
	Dedupe      bool          `koanf:"dedupe"`
	TraceHeader string        `koanf:"traceheader"`
	W3CTrace    bool          `koanf:"w3ctrace"`
}

// RetryConfig holds the default retry policy and backoff bounds.
type RetryConfig struct {
	Max        int           `koanf:"max" validate:"min=0"`
	Delay      time.Duration `koanf:"delay" validate:"min=0"`
	MaxDelay   time.Duration `koanf:"maxdelay" validate:"min=0"`
	Strategy   string        `koanf:"strategy" validate:"oneof=fixed exponential decorrelated"`
	Multiplier float64       `koanf:"multiplier" validate:"min=1"`
	Jitter     float64       `koanf:"jitter" validate:"min=0,max=1"`
}

// LogConfig holds logging toggles.
type LogConfig struct {
	Level           string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty          bool   `koanf:"pretty"`
	Payloads        bool   `koanf:"payloads"`
	MaxPayloadBytes int    `koanf:"maxpayloadbytes" validate:"min=0"`
}

// CSRFConfig holds anti-CSRF stamping settings.
type CSRFConfig struct {
	Enabled bool   `koanf:"enabled"`
	Header  string `koanf:"header"`
	Token   string `koanf:"token"`
}

// MetricsConfig holds the metrics toggle.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

func defaults() map[string]any {
	return map[string]any{
		"client.timeout":      "30s",
		"client.ratelimit":    0.0,
		"client.rateburst":    0,
		"client.traceheader":  "",
		"retry.max":           0,
		"retry.delay":         "1s",
		"retry.maxdelay":      "30s",
		"retry.strategy":      "exponential",
		"retry.multiplier":    2.0,
		"retry.jitter":        0.2,
		"log.level":           "info",
		"log.maxpayloadbytes": 1024,
		"csrf.header":         "X-CSRF-Token",
	}
}

// Load loads configuration with ascending priority: defaults, the YAML file
// at path (optional; a missing file is skipped), then FETCH_-prefixed
// environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// FETCH_RETRY_MAXDELAY maps to retry.maxdelay; configuration
			// keys carry no underscores so the separator is unambiguous.
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return unmarshal(k)
}

// LoadBytes loads configuration from defaults overlaid with raw YAML.
// Intended for tests.
func LoadBytes(payload []byte) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(payload), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return unmarshal(k)
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration tree against its struct constraints.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			messages := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				messages = append(messages, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%s", strings.Join(messages, "; "))
		}
		return err
	}
	return nil
}
