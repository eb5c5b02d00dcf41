// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Matching   MatchingConfig   `toml:"matching"`
	Cache      CacheConfig      `toml:"cache"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`
	Archive    ArchiveConfig    `toml:"archive"`
	Categories []CategoryConfig `toml:"categories"`

	Mode          string   `toml:"mode"`
	ScanInterval  duration `toml:"scan_interval"`
	LogLevel      string   `toml:"log_level"`
	DumpSnapshots bool     `toml:"dump_snapshots"`
	SnapshotDir   string   `toml:"snapshot_dir"`
	MinEdge       float64  `toml:"min_edge"`
}

// PolymarketConfig holds Gamma API parameters.
type PolymarketConfig struct {
	GammaHost         string  `toml:"gamma_host"`
	PageSize          int     `toml:"page_size"`
	Concurrency       int     `toml:"concurrency"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// KalshiConfig holds Kalshi exchange API parameters. Market data is public,
// so the key and RSA key are optional.
type KalshiConfig struct {
	ApiKey            string  `toml:"api_key"`
	RsaPrivateKeyPath string  `toml:"rsa_private_key_path"`
	BaseURL           string  `toml:"base_url"`
	PageSize          int     `toml:"page_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	// BySeries fetches markets series by series for the configured
	// categories instead of listing every open market.
	BySeries bool `toml:"by_series"`
}

// OpenAIConfig holds the similarity oracle parameters.
type OpenAIConfig struct {
	ApiKey     string   `toml:"api_key"`
	BaseURL    string   `toml:"base_url"`
	EmbedModel string   `toml:"embed_model"`
	ChatModel  string   `toml:"chat_model"`
	BatchSize  int      `toml:"batch_size"`
	Timeout    duration `toml:"timeout"`
}

// MatchingConfig holds the matching funnel thresholds.
type MatchingConfig struct {
	CloseWindow         duration `toml:"close_window"`
	StrikeTolerancePct  float64  `toml:"strike_tolerance_pct"`
	SimilarityThreshold float64  `toml:"similarity_threshold"`
	AutoAcceptScore     float64  `toml:"auto_accept_score"`
	AllowCrossBounds    bool     `toml:"allow_cross_bounds"`
	EmbedFailure        string   `toml:"embed_failure"`
	AdjudicateFailure   string   `toml:"adjudicate_failure"`
}

// CacheConfig selects where the embedding cache is persisted.
type CacheConfig struct {
	// Backend is one of "file", "redis", "s3" or "none".
	Backend string `toml:"backend"`
	// Path is the file path for the file backend.
	Path string `toml:"path"`
	// Key is the object key for the s3 backend.
	Key string `toml:"key"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters for scan
// history.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPIURL    string   `toml:"telegram_api_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	AlertCooldown     duration `toml:"alert_cooldown"`
	// Relay delivers arbitrage alerts from the Redis channel instead of
	// directly from the scan, so only one replica sends them.
	Relay bool `toml:"relay"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	JWTSecret   string   `toml:"jwt_secret"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// ArchiveConfig controls moving old scan history to object storage.
type ArchiveConfig struct {
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// CategoryConfig maps one Polymarket tag to a Kalshi category and its tags.
type CategoryConfig struct {
	Name           string   `toml:"name"`
	PolymarketTag  string   `toml:"polymarket_tag"`
	KalshiCategory string   `toml:"kalshi_category"`
	KalshiTags     []string `toml:"kalshi_tags"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:         "https://gamma-api.polymarket.com",
			PageSize:          100,
			Concurrency:       6,
			RequestsPerSecond: 20,
		},
		Kalshi: KalshiConfig{
			BaseURL:           "https://api.elections.kalshi.com/trade-api/v2",
			PageSize:          1000,
			RequestsPerSecond: 2,
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			EmbedModel: "text-embedding-3-small",
			ChatModel:  "gpt-4o-mini",
			BatchSize:  256,
			Timeout:    duration{60 * time.Second},
		},
		Matching: MatchingConfig{
			CloseWindow:         duration{3 * time.Hour},
			StrikeTolerancePct:  0.005,
			SimilarityThreshold: 0.30,
			AutoAcceptScore:     0.65,
			AllowCrossBounds:    true,
			EmbedFailure:        "drop",
			AdjudicateFailure:   "accept",
		},
		Cache: CacheConfig{
			Backend: "file",
			Path:    "embedding_cache.json",
			Key:     "cache/embeddings.json",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "arbscan:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscan-data",
			ForcePathStyle: true,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events:        []string{"arbitrage", "scan_failed"},
			AlertCooldown: duration{time.Hour},
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Categories: []CategoryConfig{
			{
				Name:           "Crypto",
				PolymarketTag:  "crypto",
				KalshiCategory: "Crypto",
				KalshiTags:     []string{"BTC", "ETH", "SOL"},
			},
		},
		Mode:         "scan",
		ScanInterval: duration{10 * time.Minute},
		LogLevel:     "info",
		SnapshotDir:  "snapshots",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"watch":   true,
	"server":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCacheBackends = map[string]bool{
	"file":  true,
	"redis": true,
	"s3":    true,
	"none":  true,
}

var validPolicies = map[string]bool{"drop": true, "accept": true}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, watch, server, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Mode != "scan" && c.Mode != "archive" && c.ScanInterval.Duration <= 0 {
		errs = append(errs, "scan_interval must be > 0 for mode "+c.Mode)
	}
	if c.MinEdge < 0 || c.MinEdge >= 1 {
		errs = append(errs, fmt.Sprintf("min_edge must be in [0, 1), got %v", c.MinEdge))
	}

	// Exchanges
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.RequestsPerSecond <= 0 {
		errs = append(errs, "polymarket: requests_per_second must be > 0")
	}
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.RequestsPerSecond <= 0 {
		errs = append(errs, "kalshi: requests_per_second must be > 0")
	}
	if c.Kalshi.RsaPrivateKeyPath != "" && c.Kalshi.ApiKey == "" {
		errs = append(errs, "kalshi: api_key is required when rsa_private_key_path is set")
	}

	// Oracle
	if c.OpenAI.ApiKey == "" {
		errs = append(errs, "openai: api_key is required")
	}
	if c.OpenAI.BatchSize < 1 {
		errs = append(errs, "openai: batch_size must be >= 1")
	}

	// Matching
	if c.Matching.CloseWindow.Duration < 0 {
		errs = append(errs, "matching: close_window must be >= 0")
	}
	if c.Matching.StrikeTolerancePct < 0 {
		errs = append(errs, "matching: strike_tolerance_pct must be >= 0")
	}
	if c.Matching.SimilarityThreshold < -1 || c.Matching.SimilarityThreshold > 1 {
		errs = append(errs, "matching: similarity_threshold must be in [-1, 1]")
	}
	if c.Matching.AutoAcceptScore < c.Matching.SimilarityThreshold {
		errs = append(errs, "matching: auto_accept_score must be >= similarity_threshold")
	}
	if !validPolicies[c.Matching.EmbedFailure] {
		errs = append(errs, fmt.Sprintf("matching: embed_failure must be drop or accept, got %q", c.Matching.EmbedFailure))
	}
	if !validPolicies[c.Matching.AdjudicateFailure] {
		errs = append(errs, fmt.Sprintf("matching: adjudicate_failure must be drop or accept, got %q", c.Matching.AdjudicateFailure))
	}

	// Cache
	if !validCacheBackends[c.Cache.Backend] {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: file, redis, s3, none)", c.Cache.Backend))
	}
	if c.Cache.Backend == "file" && c.Cache.Path == "" {
		errs = append(errs, "cache: path must be set for the file backend")
	}
	if c.Cache.Backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "cache: redis backend requires redis.enabled")
	}
	if c.Cache.Backend == "s3" && !c.S3.Enabled {
		errs = append(errs, "cache: s3 backend requires s3.enabled")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Notify.Relay && !c.Redis.Enabled {
		errs = append(errs, "notify: relay requires redis.enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}
	if c.Mode == "archive" && (!c.S3.Enabled || !c.Supabase.Enabled) {
		errs = append(errs, "archive mode requires s3.enabled and supabase.enabled")
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Server
	if c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Categories
	if len(c.Categories) == 0 {
		errs = append(errs, "categories: at least one category is required")
	}
	for i, cat := range c.Categories {
		if cat.PolymarketTag == "" && cat.KalshiCategory == "" {
			errs = append(errs, fmt.Sprintf("categories[%d] (%s): polymarket_tag or kalshi_category must be set", i, cat.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
