package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the relay process.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	SignalWire SignalWireConfig
	Sweep      SweepConfig
	Auth       AuthConfig
	DB         DBConfig
	Redis      RedisConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// SignalWireConfig identifies the voice-platform project this relay serves.
type SignalWireConfig struct {
	ProjectID   string
	Token       string
	SpaceURL    string
	PhoneNumber string

	// PublicURL is where the platform reaches our status webhook.
	PublicURL string

	// Topics the realtime client subscribes to.
	Topics []string
}

// SweepConfig tunes the staleness detector.
type SweepConfig struct {
	// Interval between sweep passes.
	Interval time.Duration
	// WebhookStaleAfter is how long a webhook-only call may go unseen.
	WebhookStaleAfter time.Duration
}

type AuthConfig struct {
	SessionSecret string
	Issuer        string
	SessionTTL    time.Duration
}

// DBConfig enables call-history persistence when DB_HOST is set.
// The live call registry is never persisted; history is reporting-only.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig enables the cross-instance notification bridge when
// REDIS_HOST is set.
type RedisConfig struct {
	Host string
	Port int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.SignalWire.ProjectID = strings.TrimSpace(os.Getenv("SIGNALWIRE_PROJECT_ID"))
	c.SignalWire.Token = os.Getenv("SIGNALWIRE_TOKEN")
	c.SignalWire.SpaceURL = strings.TrimSpace(os.Getenv("SIGNALWIRE_SPACE_URL"))
	c.SignalWire.PhoneNumber = strings.TrimSpace(os.Getenv("SIGNALWIRE_PHONE_NUMBER"))
	c.SignalWire.PublicURL = strings.TrimSpace(os.Getenv("PUBLIC_URL"))
	c.SignalWire.Topics = splitList(os.Getenv("SIGNALWIRE_TOPICS"))

	// Sweep durations are optional; defaults applied in Validate().
	{
		d, err := mustDuration("SWEEP_INTERVAL")
		d, parseErrs = appendDurationErr(parseErrs, d, err)
		c.Sweep.Interval = d
	}
	{
		d, err := mustDuration("WEBHOOK_STALE_AFTER")
		d, parseErrs = appendDurationErr(parseErrs, d, err)
		c.Sweep.WebhookStaleAfter = d
	}

	c.Auth.SessionSecret = os.Getenv("SESSION_SECRET")
	c.Auth.Issuer = strings.TrimSpace(os.Getenv("SESSION_ISSUER"))
	{
		d, err := mustDuration("SESSION_TTL")
		d, parseErrs = appendDurationErr(parseErrs, d, err)
		c.Auth.SessionTTL = d
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Host != "" {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.SignalWire.ProjectID == "" {
		errs = append(errs, errors.New("SIGNALWIRE_PROJECT_ID is required"))
	}
	if c.SignalWire.Token == "" {
		errs = append(errs, errors.New("SIGNALWIRE_TOKEN is required"))
	}
	if c.SignalWire.SpaceURL == "" {
		errs = append(errs, errors.New("SIGNALWIRE_SPACE_URL is required"))
	}
	if len(c.SignalWire.Topics) == 0 {
		c.SignalWire.Topics = []string{"office", "default"}
	}

	if c.Sweep.Interval <= 0 {
		c.Sweep.Interval = 2 * time.Second
	}
	if c.Sweep.WebhookStaleAfter <= 0 {
		c.Sweep.WebhookStaleAfter = 5 * time.Minute
	}
	if c.Sweep.WebhookStaleAfter <= c.Sweep.Interval {
		errs = append(errs, errors.New("WEBHOOK_STALE_AFTER must be greater than SWEEP_INTERVAL"))
	}

	if c.Auth.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = 12 * time.Hour
	}

	if c.HistoryEnabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.BridgeEnabled() {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// HistoryEnabled reports whether call-history persistence is configured.
func (c Config) HistoryEnabled() bool { return c.DB.Host != "" }

// BridgeEnabled reports whether the cross-instance Redis bridge is configured.
func (c Config) BridgeEnabled() bool { return c.Redis.Host != "" }

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// WebhookURL is the full status-webhook address reported at startup.
func (c Config) WebhookURL() string {
	base := c.SignalWire.PublicURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", c.App.Port)
	}
	return strings.TrimRight(base, "/") + "/webhook/status"
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// mustDuration parses an optional duration key; empty means unset (0), a
// value that does not parse is an error rather than a silent default.
func mustDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 30s, 5m), got %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func appendDurationErr(errs []error, d time.Duration, err error) (time.Duration, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return d, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
