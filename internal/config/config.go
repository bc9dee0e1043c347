package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// Gift card provider
	// ----------------------------
	ProviderURL         string        `envconfig:"GIFTOGRAM_API_URL" default:"https://sandbox-api.giftogram.com"`
	ProviderAPIKey      string        `envconfig:"GIFTOGRAM_API_KEY" default:""`
	ProviderEnvironment string        `envconfig:"GIFTOGRAM_ENVIRONMENT" default:"sandbox"`
	ProviderCampaignID  string        `envconfig:"GIFTOGRAM_CAMPAIGN_ID" default:""`
	ProviderTimeout     time.Duration `envconfig:"GIFTOGRAM_TIMEOUT" default:"30s"`

	// ----------------------------
	// Bulk submission
	// ----------------------------
	WorkerCount int `envconfig:"WORKER_COUNT" default:"1"`
	RateLimit   int `envconfig:"RATE_LIMIT" default:"10"`

	// ----------------------------
	// Reconciliation
	// ----------------------------
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"5m"`
	ReconcileBatch    int           `envconfig:"RECONCILE_BATCH" default:"50"`

	// ----------------------------
	// SMTP (bulk summary notifications, optional)
	// ----------------------------
	SMTPHost      string `envconfig:"SMTP_HOST" default:""`
	SMTPPort      int    `envconfig:"SMTP_PORT" default:"465"`
	SMTPUser      string `envconfig:"SMTP_USER" default:""`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom      string `envconfig:"SMTP_FROM" default:"noreply@giftsend.local"`
	NotifyTo      string `envconfig:"NOTIFY_TO" default:""`
	RetryAttempts int    `envconfig:"RETRY_ATTEMPTS" default:"3"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort        string        `envconfig:"API_PORT" default:"1996"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10m"`

	// How long shutdown waits for running bulk sends to save their orders.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"90s"`

	// ----------------------------
	// Uploads
	// ----------------------------
	UploadDir     string `envconfig:"UPLOAD_DIR" default:"uploads"`
	MaxUploadSize int64  `envconfig:"MAX_UPLOAD_SIZE" default:"5242880"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	// postgres://... for Postgres, bolt://path/to/file.db for the embedded store.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}

// NotificationsEnabled reports whether bulk summaries should be emailed.
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != "" && c.NotifyTo != ""
}
