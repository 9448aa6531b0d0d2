package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App: AppConfig{Env: "dev", Port: 8080},
		SignalWire: SignalWireConfig{
			ProjectID: "proj-123",
			Token:     "PTtoken",
			SpaceURL:  "example.signalwire.com",
		},
		Auth: AuthConfig{SessionSecret: "secret"},
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if len(c.SignalWire.Topics) != 2 || c.SignalWire.Topics[0] != "office" {
		t.Fatalf("unexpected default topics: %v", c.SignalWire.Topics)
	}
	if c.Sweep.Interval != 2*time.Second {
		t.Fatalf("unexpected default sweep interval: %v", c.Sweep.Interval)
	}
	if c.Sweep.WebhookStaleAfter != 5*time.Minute {
		t.Fatalf("unexpected default staleness threshold: %v", c.Sweep.WebhookStaleAfter)
	}
	if c.Auth.SessionTTL != 12*time.Hour {
		t.Fatalf("unexpected default session ttl: %v", c.Auth.SessionTTL)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing env", func(c *Config) { c.App.Env = "" }, "APP_ENV is required"},
		{"invalid env", func(c *Config) { c.App.Env = "qa" }, "APP_ENV must be one of"},
		{"bad port", func(c *Config) { c.App.Port = 0 }, "APP_PORT must be a valid port"},
		{"missing project", func(c *Config) { c.SignalWire.ProjectID = "" }, "SIGNALWIRE_PROJECT_ID is required"},
		{"missing token", func(c *Config) { c.SignalWire.Token = "" }, "SIGNALWIRE_TOKEN is required"},
		{"missing space", func(c *Config) { c.SignalWire.SpaceURL = "" }, "SIGNALWIRE_SPACE_URL is required"},
		{"missing session secret", func(c *Config) { c.Auth.SessionSecret = "" }, "SESSION_SECRET is required"},
		{
			"staleness below sweep interval",
			func(c *Config) {
				c.Sweep.Interval = 10 * time.Second
				c.Sweep.WebhookStaleAfter = 5 * time.Second
			},
			"WEBHOOK_STALE_AFTER must be greater than SWEEP_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected errors for empty config")
	}
	for _, want := range []string{"APP_ENV is required", "SIGNALWIRE_TOKEN is required", "SESSION_SECRET is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_DBRules(t *testing.T) {
	t.Run("sslmode defaults off outside production", func(t *testing.T) {
		c := validConfig()
		c.DB = DBConfig{Host: "localhost", Port: 5432, User: "relay", Name: "relay"}
		if err := c.Validate(); err != nil {
			t.Fatalf("validate: %v", err)
		}
		if c.DB.SSLMode != "disable" {
			t.Fatalf("expected sslmode disable, got %q", c.DB.SSLMode)
		}
	})

	t.Run("sslmode required in production", func(t *testing.T) {
		c := validConfig()
		c.App.Env = "production"
		c.DB = DBConfig{Host: "localhost", Port: 5432, User: "relay", Name: "relay"}
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE is required in production") {
			t.Fatalf("expected sslmode error, got %v", err)
		}
	})

	t.Run("db fields required once host is set", func(t *testing.T) {
		c := validConfig()
		c.DB = DBConfig{Host: "localhost"}
		err := c.Validate()
		if err == nil {
			t.Fatal("expected error")
		}
		for _, want := range []string{"DB_PORT", "DB_USER is required", "DB_NAME is required"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error missing %q: %v", want, err)
			}
		}
	})
}

func TestLoad_RejectsMalformedDurations(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("SWEEP_INTERVAL", "2 seconds")
	t.Setenv("WEBHOOK_STALE_AFTER", "soon")
	t.Setenv("SESSION_TTL", "12")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed durations")
	}
	for _, want := range []string{
		`SWEEP_INTERVAL must be a duration (e.g. 30s, 5m), got "2 seconds"`,
		`WEBHOOK_STALE_AFTER must be a duration (e.g. 30s, 5m), got "soon"`,
		`SESSION_TTL must be a duration (e.g. 30s, 5m), got "12"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestLoad_ParsesDurations(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("SIGNALWIRE_PROJECT_ID", "proj")
	t.Setenv("SIGNALWIRE_TOKEN", "tok")
	t.Setenv("SIGNALWIRE_SPACE_URL", "example.signalwire.com")
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("DB_HOST", "")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("SWEEP_INTERVAL", "3s")
	t.Setenv("WEBHOOK_STALE_AFTER", "10m")
	t.Setenv("SESSION_TTL", "1h")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Sweep.Interval != 3*time.Second || c.Sweep.WebhookStaleAfter != 10*time.Minute {
		t.Fatalf("unexpected sweep config: %+v", c.Sweep)
	}
	if c.Auth.SessionTTL != time.Hour {
		t.Fatalf("session ttl = %v", c.Auth.SessionTTL)
	}
}

func TestToggles(t *testing.T) {
	c := validConfig()
	if c.HistoryEnabled() || c.BridgeEnabled() {
		t.Fatal("history and bridge should be off by default")
	}
	c.DB.Host = "db"
	c.Redis.Host = "redis"
	if !c.HistoryEnabled() || !c.BridgeEnabled() {
		t.Fatal("expected history and bridge enabled")
	}
}

func TestWebhookURL(t *testing.T) {
	c := validConfig()
	if got := c.WebhookURL(); got != "http://localhost:8080/webhook/status" {
		t.Fatalf("unexpected fallback webhook url: %q", got)
	}
	c.SignalWire.PublicURL = "https://relay.example.com/"
	if got := c.WebhookURL(); got != "https://relay.example.com/webhook/status" {
		t.Fatalf("unexpected webhook url: %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	c := validConfig()
	c.DB = DBConfig{Host: "db", Port: 5432, User: "relay", Password: "pw", Name: "relaydb", SSLMode: "require"}
	want := "host=db port=5432 user=relay password=pw dbname=relaydb sslmode=require"
	if got := c.PostgresDSN(); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}
