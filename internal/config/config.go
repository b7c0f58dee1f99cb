package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Relationship failure policies.
const (
	PolicyRelaxed = "relaxed"
	PolicyStrict  = "strict"
)

// Config captures the runtime configuration for the Poketroid client.
type Config struct {
	APIURL             string        `mapstructure:"api_url"`
	LogLevel           string        `mapstructure:"log_level"`
	SessionFile        string        `mapstructure:"session_file"`
	SessionKey         string        `mapstructure:"session_key"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	DebounceWindow     time.Duration `mapstructure:"debounce_window"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	RelationshipPolicy string        `mapstructure:"relationship_policy"`
	DispatchWorkers    int           `mapstructure:"dispatch_workers"`
	DispatchQueueSize  int           `mapstructure:"dispatch_queue_size"`
	MediaCacheTTL      time.Duration `mapstructure:"media_cache_ttl"`
	RedisURL           string        `mapstructure:"redis_url"`
}

// Load reads configuration from an optional YAML file, a .env file in the
// working directory and POKETROID_* environment variables, applying defaults
// suitable for a local backend.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("POKETROID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", "http://localhost:5000")
	v.SetDefault("log_level", "warn")
	v.SetDefault("session_file", defaultSessionFile())
	v.SetDefault("session_key", "")
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("debounce_window", 500*time.Millisecond)
	v.SetDefault("rate_limit_requests", 10)
	v.SetDefault("rate_limit_window", time.Second)
	v.SetDefault("rate_limit_burst", 5)
	v.SetDefault("relationship_policy", PolicyRelaxed)
	v.SetDefault("dispatch_workers", 2)
	v.SetDefault("dispatch_queue_size", 16)
	v.SetDefault("media_cache_ttl", 15*time.Minute)
	v.SetDefault("redis_url", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("api_url is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.DebounceWindow < 0 {
		return errors.New("debounce_window must not be negative")
	}
	switch c.RelationshipPolicy {
	case PolicyRelaxed, PolicyStrict:
	default:
		return fmt.Errorf("relationship_policy must be %q or %q", PolicyRelaxed, PolicyStrict)
	}
	if c.SessionKey != "" {
		if _, err := c.SessionKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}

// SessionKeyBytes decodes the optional session encryption key. Hex and base64
// encodings of exactly 32 bytes are accepted.
func (c Config) SessionKeyBytes() (*[32]byte, error) {
	if c.SessionKey == "" {
		return nil, nil
	}

	raw, err := hex.DecodeString(c.SessionKey)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(c.SessionKey)
	}
	if err != nil || len(raw) != 32 {
		return nil, errors.New("session_key must encode exactly 32 bytes as hex or base64")
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "poketroid", "session.json")
}
