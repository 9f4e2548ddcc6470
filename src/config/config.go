package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values are layered: defaults,
// then the optional YAML file, then environment, then active settings rows.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseDSN string `yaml:"database_dsn"`
	RedisURL    string `yaml:"redis_url"`
	JWTSecret   string `yaml:"jwt_secret"`
	Contract    string `yaml:"contract"`

	Nearblocks Nearblocks `yaml:"nearblocks"`
	RPC        RPC        `yaml:"rpc"`
	Sync       Sync       `yaml:"sync"`
	API        API        `yaml:"api"`
	Log        Log        `yaml:"log"`
}

type Nearblocks struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	PerPage           int           `yaml:"per_page"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

type RPC struct {
	URL               string        `yaml:"url"`
	BlockHeightOffset int64         `yaml:"block_height_offset"`
	Timeout           time.Duration `yaml:"timeout"`
}

type Sync struct {
	// TTL is the freshness window of the read-through cache.
	TTL time.Duration `yaml:"ttl"`
	// Interval enables the background refresher when positive.
	Interval time.Duration `yaml:"interval"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type API struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RateLimit is requests per minute per client; 0 disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:     "8080",
		Contract: "devhub.near",
		Nearblocks: Nearblocks{
			URL:     "https://api.nearblocks.io/",
			PerPage: 25,
			Timeout: 30 * time.Second,
		},
		RPC: RPC{
			URL:     "https://archival-rpc.mainnet.near.org",
			Timeout: 30 * time.Second,
		},
		Sync: Sync{
			TTL:     60 * time.Second,
			LockTTL: 5 * time.Minute,
		},
		API: API{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:8080",
				"https://dev.near.org",
				"https://near.social",
				"https://neardevhub.org",
				"https://devhub.near.page",
			},
			RateLimit: 120,
		},
		Log: Log{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN is required")
	}
	if c.Contract == "" {
		return errors.New("config: CONTRACT is required")
	}
	for name, raw := range map[string]string{"NEARBLOCKS_API_URL": c.Nearblocks.URL, "RPC_URL": c.RPC.URL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: %s %q is not an absolute URL", name, raw)
		}
	}
	if c.Nearblocks.PerPage < 25 || c.Nearblocks.PerPage > 50 {
		return fmt.Errorf("config: NEARBLOCKS_PER_PAGE must be within 25..50, got %d", c.Nearblocks.PerPage)
	}
	if c.Nearblocks.RequestsPerMinute < 0 {
		return errors.New("config: NEARBLOCKS_RPM must not be negative")
	}
	if c.RPC.BlockHeightOffset < 0 {
		return errors.New("config: BLOCK_HEIGHT_OFFSET must not be negative")
	}
	if c.Sync.TTL <= 0 {
		return errors.New("config: REFRESH_TTL must be positive")
	}
	if c.Sync.Interval < 0 {
		return errors.New("config: REFRESH_INTERVAL must not be negative")
	}
	if c.API.RateLimit < 0 {
		return errors.New("config: API_RATE_LIMIT must not be negative")
	}
	return nil
}

// AdminEnabled reports whether the privileged routes can be mounted.
func (c Config) AdminEnabled() bool { return c.JWTSecret != "" }
