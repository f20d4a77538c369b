package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		BotToken:    "123:token",
		BotAPIKey:   "api-key",
		WebAppURL:   "https://app.chomp.test",
		RunMode:     "polling",
		HTTPTimeout: 15 * time.Second,
	}
}

func TestNormalizeAcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize() = %v", err)
	}
	if cfg.RunMode != RunModePolling {
		t.Errorf("RunMode = %q", cfg.RunMode)
	}
}

func TestNormalizeRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing bot token", func(c *Config) { c.BotToken = "" }, "BOT_TOKEN"},
		{"missing api key", func(c *Config) { c.BotAPIKey = "" }, "BOT_API_KEY"},
		{"missing web app url", func(c *Config) { c.WebAppURL = "" }, "WEB_APP_URL"},
		{"webhook without url", func(c *Config) { c.RunMode = "webhook" }, "WEBHOOK_URL"},
		{"invalid run mode", func(c *Config) { c.RunMode = "carrier-pigeon" }, "RUN_MODE"},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, "HTTP_TIMEOUT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Normalize(cfg)
			if err == nil {
				t.Fatal("Normalize() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestNormalizeNilConfig(t *testing.T) {
	if err := Normalize(nil); err == nil {
		t.Fatal("Normalize(nil) = nil, want error")
	}
}

func TestNormalizeRunModeAliases(t *testing.T) {
	for _, mode := range []string{"", "longpoll", "Polling", " polling "} {
		cfg := validConfig()
		cfg.RunMode = mode
		if err := Normalize(cfg); err != nil {
			t.Errorf("RunMode %q rejected: %v", mode, err)
			continue
		}
		if cfg.RunMode != RunModePolling {
			t.Errorf("RunMode %q normalized to %q", mode, cfg.RunMode)
		}
	}
}

func TestNormalizeWebhookMode(t *testing.T) {
	cfg := validConfig()
	cfg.RunMode = "webhook"
	cfg.WebhookURL = "https://bot.chomp.test/webhook"
	cfg.WebhookListen = ":8443"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize() = %v", err)
	}
	if cfg.RunMode != RunModeWebhook {
		t.Errorf("RunMode = %q", cfg.RunMode)
	}
}

func TestNormalizeTrimsWebAppURL(t *testing.T) {
	cfg := validConfig()
	cfg.WebAppURL = "https://app.chomp.test/"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize() = %v", err)
	}
	if cfg.WebAppURL != "https://app.chomp.test" {
		t.Errorf("WebAppURL = %q", cfg.WebAppURL)
	}
}

func TestIsProduction(t *testing.T) {
	cfg := validConfig()
	if cfg.IsProduction() {
		t.Error("test url flagged as production")
	}
	cfg.WebAppURL = "https://app.chomp.games"
	if !cfg.IsProduction() {
		t.Error("production url not detected")
	}
}
