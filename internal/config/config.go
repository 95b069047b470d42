// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Supported delivery transports.
const (
	TransportEmail    = "email"
	TransportTelegram = "telegram"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string `envconfig:"DATABASE_PATH" default:"./data/alerts.db"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":8080"`

	// Transport selects the outbound delivery channel: email | telegram.
	Transport string `envconfig:"TRANSPORT" default:"email"`

	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort string `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASS"`
	SMTPFrom string `envconfig:"SMTP_FROM"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`

	// DigestTimezone is the single canonical zone all window arithmetic
	// uses. Never the request-local zone.
	DigestTimezone string `envconfig:"DIGEST_TZ" default:"UTC"`
	// DigestCron fires the digest scheduler; the per-run fetch filter
	// makes extra fires harmless.
	DigestCron      string        `envconfig:"DIGEST_CRON" default:"0 0,12 * * *"`
	DispatchWorkers int           `envconfig:"DISPATCH_WORKERS" default:"4"`
	SendTimeout     time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`
	// SendRate caps outbound messages per second on the immediate path.
	SendRate float64 `envconfig:"SEND_RATE" default:"20"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportEmail:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the email transport")
		}
		if c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_FROM is required for the email transport")
		}
	case TransportTelegram:
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for the telegram transport")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.DispatchWorkers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1")
	}
	if _, err := time.LoadLocation(c.DigestTimezone); err != nil {
		return fmt.Errorf("invalid DIGEST_TZ %q: %w", c.DigestTimezone, err)
	}
	return nil
}

// Location returns the canonical digest time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DigestTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
