package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every externally supplied setting. It is built once in main
// and passed explicitly into the components that need it; business logic
// never reads the environment directly.
type Config struct {
	Port      string
	AWSRegion string

	// Payment processor
	GatewayBaseURL   string
	GatewaySecretKey string
	GatewayTimeout   time.Duration

	// Webhook verification
	WebhookSecret    string
	WebhookTolerance time.Duration

	// Storage
	OrdersTable string
	EventsTable string
	AssetBucket string

	// Limits & policy
	AssetMaxBytes int64
	PendingTTL    time.Duration // AWAITING_PAYMENT orders older than this are expired
	EventTTL      time.Duration // webhook dedup record retention

	// Fulfillment
	NotifyQueueURL string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	FromAddress    string
}

// Load reads configuration from the environment. Settings without a safe
// default (secrets, table names) are required, and malformed values are
// errors rather than silent fallbacks to the default.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		GatewayBaseURL:   os.Getenv("PAYMENT_GATEWAY_URL"),
		GatewaySecretKey: os.Getenv("PAYMENT_SECRET_KEY"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		OrdersTable:      os.Getenv("ORDERS_TABLE"),
		EventsTable:      os.Getenv("EVENTS_TABLE"),
		AssetBucket:      os.Getenv("ASSET_BUCKET"),
		NotifyQueueURL:   os.Getenv("NOTIFY_QUEUE_URL"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		FromAddress:      getEnv("FROM_ADDRESS", "PrimePix AI <hello@primepixai.com>"),
	}

	var err error
	if cfg.GatewayTimeout, err = getDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WebhookTolerance, err = getDuration("WEBHOOK_TOLERANCE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AssetMaxBytes, err = getInt64("ASSET_MAX_BYTES", 10*1024*1024); err != nil {
		return nil, err
	}
	if cfg.PendingTTL, err = getDuration("PENDING_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EventTTL, err = getDuration("EVENT_TTL", 48*time.Hour); err != nil {
		return nil, err
	}

	for name, v := range map[string]string{
		"PAYMENT_GATEWAY_URL": cfg.GatewayBaseURL,
		"PAYMENT_SECRET_KEY":  cfg.GatewaySecretKey,
		"WEBHOOK_SECRET":      cfg.WebhookSecret,
		"ORDERS_TABLE":        cfg.OrdersTable,
		"EVENTS_TABLE":        cfg.EventsTable,
	} {
		if v == "" {
			return nil, fmt.Errorf("missing required environment variable %s", name)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %q", key, v)
	}
	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer in %s: %q", key, v)
	}
	return n, nil
}
