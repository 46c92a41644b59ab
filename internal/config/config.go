// Package config loads the runtime configuration for the site sync
// processes. Configuration is read once at process start and passed to
// constructors explicitly; nothing reads ambient environment state after
// Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/plantops/site-sync-service/internal/pkg/signing"
)

// Config captures all runtime configuration for both the edge agent and the
// HQ receiver. Either side only reads its own section plus App and Sync.
type Config struct {
	App   AppConfig
	Edge  EdgeConfig
	HQ    HQConfig
	Sync  SyncConfig
	Alert AlertConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// EdgeConfig configures the plant-side agent.
type EdgeConfig struct {
	SiteCode         string
	OutboxDBPath     string
	BatchSize        int
	DispatchInterval time.Duration
	HTTPTimeout      time.Duration
	ReceiverURL      string
}

// HQConfig configures the central receiver.
type HQConfig struct {
	ListenAddr      string
	SpannerDatabase string
}

// SyncConfig carries the shared-secret material for batch signing.
type SyncConfig struct {
	HMACSecret     string
	HMACSecretPrev string
	HMACKid        string
	HMACKidPrev    string
}

// AlertConfig configures operator notification email.
type AlertConfig struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	From     string
	ITEmail  string
}

// Load reads configuration from the environment, after loading an optional
// .env file. Validation is limited to what every process needs; side
// specific requirements are checked by the respective main.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "production"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Edge: EdgeConfig{
			SiteCode:         getEnv("PLANT_SITE_CODE", ""),
			OutboxDBPath:     getEnv("PLANT_DB_PATH", "plant.db"),
			BatchSize:        getEnvInt("SYNC_BATCH_SIZE", 200),
			DispatchInterval: getEnvDuration("SYNC_INTERVAL", 10*time.Second),
			HTTPTimeout:      getEnvDuration("SYNC_HTTP_TIMEOUT", 15*time.Second),
			ReceiverURL:      getEnv("HQ_RECEIVER_URL", "http://hq-backend:8001/sync/receive"),
		},
		HQ: HQConfig{
			ListenAddr:      getEnv("HQ_LISTEN_ADDR", ":8001"),
			SpannerDatabase: getEnv("SPANNER_DATABASE", ""),
		},
		Sync: SyncConfig{
			HMACSecret:     getEnv("SYNC_HMAC_SECRET", ""),
			HMACSecretPrev: getEnv("SYNC_HMAC_SECRET_PREV", ""),
			HMACKid:        getEnv("SYNC_HMAC_KID", "k1"),
			HMACKidPrev:    getEnv("SYNC_HMAC_KID_PREV", ""),
		},
		Alert: AlertConfig{
			SMTPHost: getEnv("SMTP_HOST", ""),
			SMTPPort: getEnvInt("SMTP_PORT", 587),
			SMTPUser: getEnv("SMTP_USER", ""),
			SMTPPass: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", "sync@plantops.local"),
			ITEmail:  getEnv("EMAIL_IT", ""),
		},
	}

	if cfg.Sync.HMACSecret == "" {
		return nil, fmt.Errorf("config: SYNC_HMAC_SECRET is required")
	}
	if cfg.Edge.BatchSize <= 0 {
		return nil, fmt.Errorf("config: SYNC_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// Keyring assembles the signing keyring from the sync section.
func (c *Config) Keyring() signing.Keyring {
	return signing.Keyring{
		ActiveKid:      c.Sync.HMACKid,
		ActiveSecret:   c.Sync.HMACSecret,
		PreviousKid:    c.Sync.HMACKidPrev,
		PreviousSecret: c.Sync.HMACSecretPrev,
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
