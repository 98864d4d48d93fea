package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.ListenAddress != ":8080" {
		t.Errorf("Expected :8080, got %s", cfg.Server.ListenAddress)
	}
	if cfg.History.Limit != 1000 {
		t.Errorf("Expected history limit 1000, got %d", cfg.History.Limit)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Expected 24h token TTL, got %s", cfg.Auth.TokenTTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  listen_address: ":9090"
  database_path: "/tmp/test.db"
auth:
  jwt_secret: "file-secret"
  token_ttl: 1h
history:
  limit: 250
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != ":9090" {
		t.Errorf("Expected :9090, got %s", cfg.Server.ListenAddress)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("Expected file-secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("Expected 1h, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.History.Limit != 250 {
		t.Errorf("Expected 250, got %d", cfg.History.Limit)
	}
	// Untouched fields keep defaults
	if cfg.Server.MessageBurst != 200 {
		t.Errorf("Expected default burst 200, got %d", cfg.Server.MessageBurst)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Loading a missing file should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SKETCHDECK_LISTEN_ADDRESS", ":7000")
	t.Setenv("SKETCHDECK_JWT_SECRET", "env-secret")
	t.Setenv("SKETCHDECK_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != ":7000" {
		t.Errorf("Expected :7000, got %s", cfg.Server.ListenAddress)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("Expected env-secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected warn, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Auth.JWTSecret = "secret"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("Base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing listen address", func(c *Config) { c.Server.ListenAddress = "" }},
		{"bad listen address", func(c *Config) { c.Server.ListenAddress = "no-port" }},
		{"missing db path", func(c *Config) { c.Server.DatabasePath = "" }},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"zero message size", func(c *Config) { c.Server.MaxMessageSize = 0 }},
		{"zero rate", func(c *Config) { c.Server.MessagesPerSecond = 0 }},
		{"zero burst", func(c *Config) { c.Server.MessageBurst = 0 }},
		{"zero history limit", func(c *Config) { c.History.Limit = 0 }},
		{"zero retention interval", func(c *Config) { c.History.RetentionInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
