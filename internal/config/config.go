package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Addr        string `env:"ADDR"         envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite3://data/rsvp.db"`
	Console     bool   `env:"CONSOLE"      envDefault:"false"`

	Notifier       string        `env:"NOTIFIER"         envDefault:"log"`
	MinTokenLength int           `env:"MIN_TOKEN_LENGTH" envDefault:"10"`
	NotifyTimeout  time.Duration `env:"NOTIFY_TIMEOUT"   envDefault:"10s"`

	FCMCredentialsFile string `env:"FCM_CREDENTIALS_FILE"`
	FCMProjectID       string `env:"FCM_PROJECT_ID"`

	WhatsAppDataDir     string `env:"WHATSAPP_DATA_DIR"     envDefault:"data"`
	WhatsAppCountryCode string `env:"WHATSAPP_COUNTRY_CODE" envDefault:"52"`

	EventTimezone     string `env:"EVENT_TIMEZONE"      envDefault:"Local"`
	CheckInTimeLayout string `env:"CHECKIN_TIME_LAYOUT" envDefault:"3:04 PM"`

	CORSOrigins        []string `env:"CORS_ORIGINS"          envDefault:"*"   envSeparator:","`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	LogLevel     string `env:"LOG_LEVEL"                   envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT"                  envDefault:"json"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME"           envDefault:"wedding-rsvp"`
}

// LoadConfig loads configuration from environment variables, reading an
// optional .env file first. Variables already set take precedence over the file.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Notifier {
	case "log", "fcm", "whatsapp":
	default:
		return fmt.Errorf("NOTIFIER must be one of log, fcm, whatsapp: got %q", c.Notifier)
	}
	if c.MinTokenLength < 1 {
		return fmt.Errorf("MIN_TOKEN_LENGTH must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves EVENT_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.EventTimezone)
	if err != nil {
		return nil, fmt.Errorf("EVENT_TIMEZONE: %w", err)
	}
	return loc, nil
}
