// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stockwatch/internal/availability"
	"stockwatch/internal/model"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath  string
	StorageDriver string
	LogLevel      string
	LogFormat     string
	HTTPAddr      string

	PollInterval        time.Duration
	FetchTimeout        time.Duration
	FetchConcurrency    int
	PushRatePerSec      float64
	PushTimeout         time.Duration
	UnknownStatusPolicy availability.Policy

	TelegramBotToken string
	AllowedUsers     []int64

	ExpoPushURL     string
	ExpoAccessToken string

	Target Target
}

// Target describes the upstream inventory API and the store to watch.
type Target struct {
	BaseURL   string             `yaml:"base_url"`
	APIKey    string             `yaml:"api_key"`
	UserAgent string             `yaml:"user_agent"`
	Store     model.StoreContext `yaml:"store"`
}

// Default store: Richland, WA.
var defaultStore = model.StoreContext{
	StoreID:   "2314",
	Latitude:  "46.230",
	Longitude: "-119.240",
	Zip:       "99336",
	State:     "WA",
}

// Load reads configuration from environment variables. When STORE_PROFILE
// names a YAML file its values are read first and the environment
// overrides them.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     envOr("DATABASE_PATH", "./data/stockwatch.db"),
		StorageDriver:    strings.ToLower(envOr("STORAGE_DRIVER", "sqlite")),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        strings.ToLower(envOr("LOG_FORMAT", "text")),
		HTTPAddr:         envOr("HTTP_ADDR", ":8080"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		ExpoPushURL:      os.Getenv("EXPO_PUSH_URL"),
		ExpoAccessToken:  os.Getenv("EXPO_ACCESS_TOKEN"),
		Target:           Target{Store: defaultStore},
	}

	if path := os.Getenv("STORE_PROFILE"); path != "" {
		if err := loadProfile(path, &cfg.Target); err != nil {
			return nil, err
		}
	}
	overrideTarget(&cfg.Target)

	var err error
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = intEnv("FETCH_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", cfg.FetchConcurrency)
	}
	if cfg.PushRatePerSec, err = floatEnv("PUSH_RATE_PER_SEC", 20); err != nil {
		return nil, err
	}
	if cfg.PushTimeout, err = durationEnv("PUSH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.UnknownStatusPolicy, err = availability.ParsePolicy(os.Getenv("UNKNOWN_STATUS_POLICY")); err != nil {
		return nil, fmt.Errorf("UNKNOWN_STATUS_POLICY: %w", err)
	}

	switch cfg.StorageDriver {
	case "sqlite", "sqlite3", "file", "json":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q, use: sqlite, file", cfg.StorageDriver)
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	return cfg, nil
}

// Validate checks the settings needed to query the upstream.
func (c *Config) Validate() error {
	var errs []error
	if c.Target.APIKey == "" {
		errs = append(errs, errors.New("TARGET_API_KEY is required"))
	}
	if c.Target.Store.StoreID == "" {
		errs = append(errs, errors.New("TARGET_STORE_ID is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must be positive"))
	}
	if c.PushTimeout <= 0 {
		errs = append(errs, errors.New("PUSH_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// TelegramEnabled reports whether a bot token was configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}

func loadProfile(path string, t *Target) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("read store profile: %w", err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("parse store profile %s: %w", path, err)
	}
	return nil
}

func overrideTarget(t *Target) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&t.BaseURL, "TARGET_BASE_URL")
	set(&t.APIKey, "TARGET_API_KEY")
	set(&t.UserAgent, "TARGET_USER_AGENT")
	set(&t.Store.StoreID, "TARGET_STORE_ID")
	set(&t.Store.Latitude, "TARGET_LAT")
	set(&t.Store.Longitude, "TARGET_LNG")
	set(&t.Store.Zip, "TARGET_ZIP")
	set(&t.Store.State, "TARGET_STATE")
	set(&t.Store.VisitorID, "TARGET_VISITOR_ID")
	set(&t.Store.Cookie, "TARGET_COOKIE")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// Bare numbers are seconds.
		secs, serr := strconv.Atoi(raw)
		if serr != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return f, nil
}
