package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARBSCAN_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.PageSize, "POLYMARKET_PAGE_SIZE")
	setInt(&cfg.Polymarket.Concurrency, "POLYMARKET_CONCURRENCY")
	setFloat64(&cfg.Polymarket.RequestsPerSecond, "POLYMARKET_REQUESTS_PER_SECOND")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "KALSHI_BASE_URL")
	setInt(&cfg.Kalshi.PageSize, "KALSHI_PAGE_SIZE")
	setFloat64(&cfg.Kalshi.RequestsPerSecond, "KALSHI_REQUESTS_PER_SECOND")
	setBool(&cfg.Kalshi.BySeries, "KALSHI_BY_SERIES")

	// ── OpenAI ──
	setStr(&cfg.OpenAI.ApiKey, "OPENAI_API_KEY")
	setStr(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setStr(&cfg.OpenAI.EmbedModel, "OPENAI_EMBED_MODEL")
	setStr(&cfg.OpenAI.ChatModel, "OPENAI_CHAT_MODEL")
	setInt(&cfg.OpenAI.BatchSize, "OPENAI_BATCH_SIZE")
	setDuration(&cfg.OpenAI.Timeout, "OPENAI_TIMEOUT")
	// The conventional unprefixed variable is honoured too.
	if cfg.OpenAI.ApiKey == "" {
		cfg.OpenAI.ApiKey = os.Getenv("OPENAI_API_KEY")
	}

	// ── Matching ──
	setDuration(&cfg.Matching.CloseWindow, "MATCHING_CLOSE_WINDOW")
	setFloat64(&cfg.Matching.StrikeTolerancePct, "MATCHING_STRIKE_TOLERANCE_PCT")
	setFloat64(&cfg.Matching.SimilarityThreshold, "MATCHING_SIMILARITY_THRESHOLD")
	setFloat64(&cfg.Matching.AutoAcceptScore, "MATCHING_AUTO_ACCEPT_SCORE")
	setBool(&cfg.Matching.AllowCrossBounds, "MATCHING_ALLOW_CROSS_BOUNDS")
	setStr(&cfg.Matching.EmbedFailure, "MATCHING_EMBED_FAILURE")
	setStr(&cfg.Matching.AdjudicateFailure, "MATCHING_ADJUDICATE_FAILURE")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "CACHE_BACKEND")
	setStr(&cfg.Cache.Path, "CACHE_PATH")
	setStr(&cfg.Cache.Key, "CACHE_KEY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "SUPABASE_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramAPIURL, "NOTIFY_TELEGRAM_API_URL")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")
	setDuration(&cfg.Notify.AlertCooldown, "NOTIFY_ALERT_COOLDOWN")
	setBool(&cfg.Notify.Relay, "NOTIFY_RELAY")

	// ── Server ──
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStr(&cfg.Server.JWTSecret, "SERVER_JWT_SECRET")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SERVER_RATE_WINDOW")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setDuration(&cfg.ScanInterval, "SCAN_INTERVAL")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setBool(&cfg.DumpSnapshots, "DUMP_SNAPSHOTS")
	setStr(&cfg.SnapshotDir, "SNAPSHOT_DIR")
	setFloat64(&cfg.MinEdge, "MIN_EDGE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the prefixed
// environment variable is present and non-empty.
// ---------------------------------------------------------------------------

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func setStr(dst *string, key string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
