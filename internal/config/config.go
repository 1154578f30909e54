// Package config holds the relay list and timing constants of the client.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/AreaLayer/daisy/internal/nostr"
)

// Defaults
const (
	DefaultConnectTimeout = 1000 * time.Millisecond
	DefaultFetchTimeout   = 3000 * time.Millisecond
	DefaultFetchLimit     = 50
	DefaultPublishTimeout = 5000 * time.Millisecond
)

// DefaultRelays is the relay list used when nothing is configured.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://relay.snort.social",
	"wss://nostr-pub.wellorder.net",
	"wss://nostr.oxtr.dev",
	"wss://nostr-pub.semisol.dev",
}

// Config is passed to the query client at construction.
type Config struct {
	Relays         []string
	ConnectTimeout time.Duration
	FetchTimeout   time.Duration
	FetchLimit     int
	PublishTimeout time.Duration
}

// fileConfig is the JSON shape of config/relays.json
type fileConfig struct {
	Relays           []string `json:"relays"`
	ConnectTimeoutMs int      `json:"connectTimeoutMs"`
	FetchTimeoutMs   int      `json:"fetchTimeoutMs"`
	FetchLimit       int      `json:"fetchLimit"`
	PublishTimeoutMs int      `json:"publishTimeoutMs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Relays:         append([]string(nil), DefaultRelays...),
		ConnectTimeout: DefaultConnectTimeout,
		FetchTimeout:   DefaultFetchTimeout,
		FetchLimit:     DefaultFetchLimit,
		PublishTimeout: DefaultPublishTimeout,
	}
}

// WithDefaults fills zero fields from Default.
func (c Config) WithDefaults() Config {
	d := Default()
	if len(c.Relays) == 0 {
		c.Relays = d.Relays
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = d.FetchLimit
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	return c
}

// Load reads the config file named by DAISY_CONFIG (default
// config/relays.json), then applies environment overrides. .env files in the
// working directory are loaded first. A missing or invalid file falls back to
// defaults.
func Load() Config {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}

	configPath := os.Getenv("DAISY_CONFIG")
	if configPath == "" {
		configPath = "config/relays.json"
	}

	cfg := LoadFile(configPath)
	return applyEnv(cfg)
}

// LoadFile reads a JSON config file, falling back to defaults.
func LoadFile(configPath string) Config {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", configPath)
		} else {
			slog.Warn("could not read config, using defaults", "path", configPath, "error", err)
		}
		return Default()
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		slog.Error("invalid JSON in config, using defaults", "path", configPath, "error", err)
		return Default()
	}

	cfg := Config{
		Relays:         NormalizeRelays(fc.Relays),
		ConnectTimeout: time.Duration(fc.ConnectTimeoutMs) * time.Millisecond,
		FetchTimeout:   time.Duration(fc.FetchTimeoutMs) * time.Millisecond,
		FetchLimit:     fc.FetchLimit,
		PublishTimeout: time.Duration(fc.PublishTimeoutMs) * time.Millisecond,
	}.WithDefaults()

	slog.Info("loaded relays configuration", "path", configPath, "relays", len(cfg.Relays))
	return cfg
}

func applyEnv(cfg Config) Config {
	if v := os.Getenv("DAISY_RELAYS"); v != "" {
		if relays := NormalizeRelays(strings.Split(v, ",")); len(relays) > 0 {
			cfg.Relays = relays
		}
	}
	cfg.ConnectTimeout = envDuration("DAISY_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.FetchTimeout = envDuration("DAISY_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.PublishTimeout = envDuration("DAISY_PUBLISH_TIMEOUT", cfg.PublishTimeout)
	if v := os.Getenv("DAISY_FETCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchLimit = n
		} else {
			slog.Warn("ignoring invalid DAISY_FETCH_LIMIT", "value", v)
		}
	}
	return cfg
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration", "env", name, "value", v)
		return fallback
	}
	return d
}

// NormalizeRelays normalizes endpoints, dropping invalid ones and duplicates.
func NormalizeRelays(relays []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range relays {
		n := nostr.NormalizeRelayURL(r)
		if n == "" {
			if strings.TrimSpace(r) != "" {
				slog.Warn("ignoring invalid relay URL", "url", r)
			}
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
