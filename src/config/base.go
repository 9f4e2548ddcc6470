package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	getenv := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	getenv("PORT", &cfg.Port)
	getenv("MYSQL_DSN", &cfg.DatabaseDSN)
	getenv("DATABASE_DSN", &cfg.DatabaseDSN)
	getenv("REDIS_URL", &cfg.RedisURL)
	getenv("JWT_SECRET", &cfg.JWTSecret)
	getenv("CONTRACT", &cfg.Contract)
	getenv("NEARBLOCKS_API_URL", &cfg.Nearblocks.URL)
	getenv("NEARBLOCKS_API_KEY", &cfg.Nearblocks.APIKey)
	getenv("RPC_URL", &cfg.RPC.URL)
	getenv("LOG_LEVEL", &cfg.Log.Level)

	var errs []string
	intVar := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q", key, v))
				return
			}
			*dst = n
		}
	}
	durationVar := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q", key, v))
				return
			}
			*dst = d
		}
	}
	intVar("NEARBLOCKS_PER_PAGE", &cfg.Nearblocks.PerPage)
	intVar("NEARBLOCKS_RPM", &cfg.Nearblocks.RequestsPerMinute)
	intVar("API_RATE_LIMIT", &cfg.API.RateLimit)
	durationVar("REFRESH_TTL", &cfg.Sync.TTL)
	durationVar("REFRESH_INTERVAL", &cfg.Sync.Interval)

	if v, ok := lookup("BLOCK_HEIGHT_OFFSET"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("BLOCK_HEIGHT_OFFSET=%q", v))
		} else {
			cfg.RPC.BlockHeightOffset = n
		}
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		cfg.API.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("LOG_DEVELOPMENT"); ok {
		cfg.Log.Development = parseBoolDefault(v, cfg.Log.Development)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid environment values: %s", strings.Join(errs, ", "))
	}
	return nil
}

// ApplySettings overlays database settings rows, which take precedence over
// the environment. Unknown names are ignored.
func (c *Config) ApplySettings(settings map[string]string) error {
	lookup := func(key string) (string, bool) {
		v, ok := settings[settingNames[key]]
		return v, ok
	}
	return applyEnv(c, lookup)
}

// settingNames maps environment keys to settings table names.
var settingNames = map[string]string{
	"CONTRACT":            "contract",
	"NEARBLOCKS_API_URL":  "nearblocks_api_url",
	"NEARBLOCKS_API_KEY":  "nearblocks_api_key",
	"NEARBLOCKS_PER_PAGE": "nearblocks_per_page",
	"NEARBLOCKS_RPM":      "nearblocks_rpm",
	"RPC_URL":             "rpc_url",
	"BLOCK_HEIGHT_OFFSET": "block_height_offset",
	"REFRESH_TTL":         "refresh_ttl",
	"REFRESH_INTERVAL":    "refresh_interval",
	"ALLOWED_ORIGINS":     "allowed_origins",
	"API_RATE_LIMIT":      "api_rate_limit",
	"LOG_LEVEL":           "log_level",
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
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

func parseBoolDefault(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
