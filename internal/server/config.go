// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the GoChat service.
package server

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

// Config holds the server configuration settings. Values are read from the
// environment; the struct tags carry the defaults.
type Config struct {
	Port            string        `env:"SERVER_PORT,default=:8080" validate:"required"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=8192" validate:"gt=0"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`
	UpgradesPerSec  int           `env:"WS_UPGRADES_PER_SECOND,default=20" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	RateLimitMessages int           `env:"RATE_LIMIT_MESSAGES,default=30" validate:"gt=0"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW,default=60s" validate:"gt=0"`
	SweepInterval     time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL,default=5m" validate:"gt=0"`

	HistoryCapacity   int `env:"HISTORY_CAPACITY,default=100" validate:"gt=0"`
	HistoryReplay     int `env:"HISTORY_REPLAY,default=50" validate:"gte=0,ltefield=HistoryCapacity"`
	MaxUsernameLength int `env:"MAX_USERNAME_LENGTH,default=20" validate:"gt=0"`
	MaxContentLength  int `env:"MAX_CONTENT_LENGTH,default=500" validate:"gt=0"`

	FilterTerms     string `env:"FILTER_TERMS"`
	FilterTermsFile string `env:"FILTER_TERMS_FILE"`
	FilterMask      string `env:"FILTER_MASK,default=*" validate:"required"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=console" validate:"oneof=console json"`
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() Config {
	return Config{
		Port:              ":8080",
		AllowedOrigins:    "http://localhost:3000",
		MaxMessageSize:    8192,
		SendBufferSize:    256,
		UpgradesPerSec:    20,
		ShutdownTimeout:   10 * time.Second,
		RateLimitMessages: 30,
		RateLimitWindow:   time.Minute,
		SweepInterval:     5 * time.Minute,
		HistoryCapacity:   100,
		HistoryReplay:     50,
		MaxUsernameLength: 20,
		MaxContentLength:  500,
		FilterMask:        "*",
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := DefaultConfig()
	return &cfg
}

// NewConfigFromEnv reads the configuration from environment variables, falling
// back to the defaults for unset ones, and validates the result.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for out of range values. The frame limit
// must fit a send event whose content is fully \u escaped.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if minimum := minFrameSize(c.MaxContentLength); c.MaxMessageSize < minimum {
		return fmt.Errorf("invalid config: MAX_MESSAGE_SIZE %d is below %d, the largest send frame for MAX_CONTENT_LENGTH %d",
			c.MaxMessageSize, minimum, c.MaxContentLength)
	}
	return nil
}

// A rune outside the BMP escapes to a surrogate pair, "\ud83d\ude00".
const (
	maxEscapedRuneBytes = 12
	sendFrameOverhead   = 256
)

// minFrameSize is the read limit needed for a send event carrying
// maxContentLength runes.
func minFrameSize(maxContentLength int) int64 {
	return int64(maxContentLength)*maxEscapedRuneBytes + sendFrameOverhead
}

// Origins returns the configured origin allow-list.
func (c *Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

// MaskRune returns the first rune of FilterMask.
func (c *Config) MaskRune() rune {
	r, _ := utf8.DecodeRuneInString(c.FilterMask)
	if r == utf8.RuneError {
		return '*'
	}
	return r
}

// ResolveFilterTerms returns the disallowed terms. A terms file takes
// precedence over FILTER_TERMS; when neither is set the built-in list is used.
func (c *Config) ResolveFilterTerms() ([]string, error) {
	if c.FilterTermsFile != "" {
		return LoadFilterTerms(c.FilterTermsFile)
	}
	if strings.TrimSpace(c.FilterTerms) != "" {
		return splitTerms(c.FilterTerms), nil
	}
	return append([]string(nil), defaultFilterTerms...), nil
}

// PolicyConfig derives the TextPolicy settings.
func (c *Config) PolicyConfig() (PolicyConfig, error) {
	terms, err := c.ResolveFilterTerms()
	if err != nil {
		return PolicyConfig{}, err
	}
	return PolicyConfig{
		MaxContentLength: c.MaxContentLength,
		Terms:            terms,
		MaskChar:         c.MaskRune(),
	}, nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
