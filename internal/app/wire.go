package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	localblob "github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/blob/local"
	s3blob "github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/blob/s3"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/cache/redis"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/config"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/instrumentation"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/matching"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/notify"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/oracle"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/pipeline"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/kalshi"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/openai"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/polymarket"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/server/handler"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/service"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function. Optional backends are nil
// when not configured.
type Dependencies struct {
	Scan     *service.ScanService
	Archiver *pipeline.Archiver

	// Optional backends
	Store       domain.ScanStore
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Notifications
	Notifier *notify.Notifier
	Alerter  *notify.Alerter

	Metrics *instrumentation.Metrics
	Checks  map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: instrumentation.NewMetrics(),
		Checks:  map[string]handler.Check{},
	}

	// --- PostgreSQL scan history ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Store = postgres.NewScanStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	var blobWriter domain.BlobWriter
	var blobReader domain.BlobReader
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		blobWriter = s3blob.NewWriter(s3Client)
		blobReader = s3blob.NewReader(s3Client)

		if deps.Store != nil {
			deps.Archiver = pipeline.NewArchiver(
				s3blob.NewArchiver(blobWriter, deps.Store),
				cfg.Archive.RetentionDays,
				logger,
			)
		}
	}

	// --- Embedding cache persistence ---
	persister, err := newPersister(cfg, redisClient, blobWriter, blobReader)
	if err != nil {
		return fail(err)
	}

	// --- Snapshots: object storage when configured, else a local directory ---
	var snapshots domain.SnapshotWriter
	if cfg.DumpSnapshots {
		if blobWriter != nil {
			snapshots = s3blob.NewSnapshots(blobWriter, blobReader)
		} else {
			local := localblob.New(cfg.SnapshotDir)
			snapshots = s3blob.NewSnapshots(local, local)
		}
	}

	// --- Exchanges and oracle ---
	acquirer, err := newAcquirer(cfg, logger)
	if err != nil {
		return fail(err)
	}

	oa := openai.NewClient(openai.Config{
		BaseURL:    cfg.OpenAI.BaseURL,
		APIKey:     cfg.OpenAI.ApiKey,
		EmbedModel: cfg.OpenAI.EmbedModel,
		ChatModel:  cfg.OpenAI.ChatModel,
		Timeout:    cfg.OpenAI.Timeout.Duration,
	})
	cache := oracle.NewEmbeddingCache()
	embedder := oracle.NewCachingEmbedder(oa, cache, cfg.OpenAI.BatchSize, logger)
	judge := oracle.NewJudge(oa, logger)

	matchCfg := MatchingConfig(cfg.Matching)
	if err := matchCfg.Validate(); err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	funnel := matching.NewFunnel(embedder, judge, matchCfg, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIURL,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerter = notify.NewAlerter(deps.Notifier, cfg.MinEdge, cfg.Notify.AlertCooldown.Duration, logger)

	// --- Scan service ---
	scanDeps := service.ScanDeps{
		Acquirer:  acquirer,
		Matcher:   funnel,
		Cache:     cache,
		Persister: persister,
		Store:     deps.Store,
		Bus:       deps.SignalBus,
		Snapshots: snapshots,
		Notifier:  deps.Notifier,
		Metrics:   deps.Metrics,
		Report:    reportWriter(cfg.Mode),
	}
	if redisClient != nil {
		scanDeps.Locks = redis.NewLockManager(redisClient)
	}
	// With the relay on, alerts travel through the signal bus instead.
	if !cfg.Notify.Relay {
		scanDeps.Alerter = deps.Alerter
	}
	deps.Scan = service.NewScanService(scanDeps, service.ScanConfig{
		MinEdge:       cfg.MinEdge,
		LockTTL:       cfg.ScanInterval.Duration,
		DumpSnapshots: cfg.DumpSnapshots,
	}, logger)

	return deps, cleanup, nil
}

// MatchingConfig converts the TOML matching section into funnel settings.
func MatchingConfig(m config.MatchingConfig) matching.Config {
	return matching.Config{
		CloseWindow:         m.CloseWindow.Duration,
		StrikeTolerancePct:  m.StrikeTolerancePct,
		SimilarityThreshold: m.SimilarityThreshold,
		AutoAcceptScore:     m.AutoAcceptScore,
		AllowCrossBounds:    m.AllowCrossBounds,
		Failure: matching.FailurePolicy{
			EmbedFailure:      matching.Policy(m.EmbedFailure),
			AdjudicateFailure: matching.Policy(m.AdjudicateFailure),
		},
	}
}

// Categories converts the TOML category table for the acquirer.
func Categories(cats []config.CategoryConfig) []pipeline.Category {
	out := make([]pipeline.Category, 0, len(cats))
	for _, c := range cats {
		out = append(out, pipeline.Category{
			Name:           c.Name,
			PolymarketTag:  c.PolymarketTag,
			KalshiCategory: c.KalshiCategory,
			KalshiTags:     c.KalshiTags,
		})
	}
	return out
}

func newAcquirer(cfg *config.Config, logger *slog.Logger) (*pipeline.Acquirer, error) {
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, logger)
	gamma.SetRateLimit(cfg.Polymarket.RequestsPerSecond, max(1, int(cfg.Polymarket.RequestsPerSecond/4)))

	kc := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey, logger)
	kc.SetRateLimit(cfg.Kalshi.RequestsPerSecond, 1)
	pem, err := cfg.KalshiPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("wire: read kalshi key: %w", err)
	}
	if pem != nil {
		if err := kc.SetRSAPrivateKey(pem); err != nil {
			return nil, fmt.Errorf("wire: kalshi key: %w", err)
		}
	}

	return pipeline.NewAcquirer(gamma, kc, pipeline.AcquirerConfig{
		Categories:           Categories(cfg.Categories),
		KalshiBySeries:       cfg.Kalshi.BySeries,
		PolymarketPageSize:   cfg.Polymarket.PageSize,
		KalshiPageSize:       cfg.Kalshi.PageSize,
		PolymarketConcurrent: cfg.Polymarket.Concurrency,
	}, logger), nil
}

func newPersister(cfg *config.Config, rc *redis.Client, w domain.BlobWriter, r domain.BlobReader) (oracle.Persister, error) {
	switch strings.ToLower(cfg.Cache.Backend) {
	case "file":
		return oracle.FilePersister{Path: cfg.Cache.Path}, nil
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("wire: cache backend redis needs redis.enabled")
		}
		return redis.NewEmbeddingStore(rc), nil
	case "s3":
		if w == nil {
			return nil, fmt.Errorf("wire: cache backend s3 needs s3.enabled")
		}
		return s3blob.NewEmbeddingStore(w, r, cfg.Cache.Key), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("wire: unknown cache backend %q", cfg.Cache.Backend)
	}
}

// reportWriter prints the arbitrage report in the interactive modes.
func reportWriter(mode string) io.Writer {
	switch mode {
	case "scan", "watch":
		return os.Stdout
	default:
		return nil
	}
}
