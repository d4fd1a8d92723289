package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration values
type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	GinMode       string `env:"GIN_MODE" envDefault:"debug"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	// Visitor cookie signing; the visitor id namespaces all persisted keys.
	VisitorSecret string        `env:"VISITOR_TOKEN_SECRET" envDefault:"change-me-in-production"`
	VisitorTTL    time.Duration `env:"VISITOR_TOKEN_TTL" envDefault:"720h"`
	PageTTL       time.Duration `env:"PAGE_TTL" envDefault:"30m"`

	StoreDriver   string        `env:"STORE_DRIVER" envDefault:"memory"`
	StoreDSN      string        `env:"STORE_DSN"`
	StoreTTL      time.Duration `env:"STORE_TTL" envDefault:"720h"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`

	SegmentWriteKey      string        `env:"SEGMENT_WRITE_KEY"`
	SegmentEndpoint      string        `env:"SEGMENT_ENDPOINT" envDefault:"https://api.segment.io"`
	SegmentBatchSize     int           `env:"SEGMENT_BATCH_SIZE" envDefault:"100"`
	SegmentFlushInterval time.Duration `env:"SEGMENT_FLUSH_INTERVAL" envDefault:"5s"`
	AnalyticsBuffer      int           `env:"ANALYTICS_BUFFER" envDefault:"256"`

	TextMagicAPIKey    string `env:"TEXTMAGIC_API_KEY"`
	TextMagicUsername  string `env:"TEXTMAGIC_USERNAME"`
	TextMagicListID    string `env:"TEXTMAGIC_LIST_ID"`
	AirtableAPIKey     string `env:"AIRTABLE_API_KEY"`
	AirtableBaseID     string `env:"AIRTABLE_BASE_ID"`
	AirtableLeadsTable string `env:"AIRTABLE_LEADS_TABLE" envDefault:"Onboarded"`
	ShortIOAPIKey      string `env:"SHORTIO_API_KEY"`
	ShortIODomain      string `env:"SHORTIO_DOMAIN"`

	ResumeURL     string        `env:"RESUME_URL" envDefault:"https://tazapay.com/onboarding-step3.html"`
	FollowupDelay time.Duration `env:"FOLLOWUP_DELAY" envDefault:"15m"`
}

// DefaultVisitorSecret is the development signing secret. Release mode
// refuses to start with it.
const DefaultVisitorSecret = "change-me-in-production"

// ErrInsecureSecret is returned when release mode would sign visitor
// cookies with a missing or default secret.
var ErrInsecureSecret = errors.New("VISITOR_TOKEN_SECRET must be set to a non-default value in release mode")

// LoadConfig reads configuration from environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.GinMode == "release" && (cfg.VisitorSecret == "" || cfg.VisitorSecret == DefaultVisitorSecret) {
		return nil, ErrInsecureSecret
	}
	return &cfg, nil
}

// CRMEnabled reports whether completed onboardings are synced to Airtable.
func (c *Config) CRMEnabled() bool {
	return c.AirtableAPIKey != "" && c.AirtableBaseID != ""
}

// FollowupEnabled reports whether abandoned funnels get an SMS reminder.
func (c *Config) FollowupEnabled() bool {
	return c.TextMagicAPIKey != "" && c.TextMagicUsername != "" && c.ShortIOAPIKey != ""
}
