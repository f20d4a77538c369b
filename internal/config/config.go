package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	RunModePolling = "polling"
	RunModeWebhook = "webhook"
)

// Config holds everything the bot needs from the environment. Malformed
// long-term credentials are rejected here, before any traffic is accepted.
type Config struct {
	BotToken  string `envconfig:"BOT_TOKEN"`
	BotAPIKey string `envconfig:"BOT_API_KEY"`
	WebAppURL string `envconfig:"WEB_APP_URL"`

	DynamicAPIBase       string `envconfig:"DYNAMIC_API_BASE" default:"https://app.dynamicauth.com/api/v0"`
	DynamicBearerToken   string `envconfig:"DYNAMIC_BEARER_TOKEN"`
	DynamicEnvironmentID string `envconfig:"DYNAMIC_ENVIRONMENT_ID"`

	RunMode       string `envconfig:"RUN_MODE" default:"polling"`
	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookListen string `envconfig:"WEBHOOK_LISTEN" default:":8443"`

	// DBPath selects the durable session store; empty keeps sessions in memory.
	DBPath string `envconfig:"DB_PATH"`

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if cfg.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.BotAPIKey == "" {
		return fmt.Errorf("BOT_API_KEY is required")
	}
	if cfg.WebAppURL == "" {
		return fmt.Errorf("WEB_APP_URL is required")
	}
	cfg.WebAppURL = strings.TrimRight(cfg.WebAppURL, "/")

	rm := strings.ToLower(strings.TrimSpace(cfg.RunMode))
	if rm == "" || rm == "longpoll" {
		rm = RunModePolling
	}
	switch rm {
	case RunModePolling:
	case RunModeWebhook:
		if strings.TrimSpace(cfg.WebhookURL) == "" {
			return fmt.Errorf("WEBHOOK_URL is required when RUN_MODE is 'webhook'")
		}
		if strings.TrimSpace(cfg.WebhookListen) == "" {
			return fmt.Errorf("WEBHOOK_LISTEN is required when RUN_MODE is 'webhook'")
		}
	default:
		return fmt.Errorf("invalid RUN_MODE %q; allowed: polling, webhook", cfg.RunMode)
	}
	cfg.RunMode = rm

	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0")
	}
	return nil
}

// IsProduction reports whether the bot points at the production backend.
func (c *Config) IsProduction() bool {
	return c.WebAppURL == "https://app.chomp.games"
}
