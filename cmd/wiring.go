package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/KasumiMercury/primind-bulk-operations/internal/config"
	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/health"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/applier"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/archive"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/repository"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/metrics"
	"github.com/KasumiMercury/primind-bulk-operations/internal/ratelimit"
)

// connectRedis returns nil when neither the store nor the rate gate uses redis.
func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Store.Driver != config.StoreDriverRedis && cfg.RateLimit.Backend != config.RateLimitBackendRedis {
		return nil, nil
	}

	opts := &redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	}
	if cfg.Redis.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(opts)

	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("instrument redis tracing: %w", err)
	}

	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("instrument redis metrics: %w", err)
	}

	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	slog.Info("redis connected",
		slog.String("addr", cfg.Redis.Addr),
	)

	return redisClient, nil
}

type operationStore struct {
	repo       domain.OperationRepository
	dependency *health.Dependency
	close      func() error
}

func (s *operationStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func openStore(ctx context.Context, cfg *config.StoreConfig, redisClient *redis.Client) (*operationStore, error) {
	switch cfg.Driver {
	case config.StoreDriverRedis:
		slog.Info("operation store initialized", slog.String("driver", "redis"))
		return &operationStore{repo: repository.NewRedisOperationRepository(redisClient, cfg.RecordTTL)}, nil

	case config.StoreDriverPostgres, config.StoreDriverSQLite:
		dialect := repository.DialectPostgres
		if cfg.Driver == config.StoreDriverSQLite {
			dialect = repository.DialectSQLite
		}

		db, err := repository.OpenSQL(ctx, dialect, cfg.DSN)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewSQLOperationRepository(ctx, db, dialect)
		if err != nil {
			_ = db.Close()
			return nil, err
		}

		slog.Info("operation store initialized", slog.String("driver", string(dialect)))
		return &operationStore{
			repo:       repo,
			dependency: &health.Dependency{Name: string(dialect), Ping: repo.Ping},
			close:      repo.Close,
		}, nil

	case config.StoreDriverMemory:
		slog.Warn("operation store is in memory, records are lost on restart")
		return &operationStore{repo: repository.NewMemoryOperationRepository()}, nil

	default:
		return nil, config.ErrUnknownStoreDriver
	}
}

// rateGate exposes the in-memory window count for /metrics.
type rateGate struct {
	ratelimit.Gate
	memory *ratelimit.MemoryGate
}

func (g *rateGate) entries() int {
	if g.memory == nil {
		return 0
	}
	return g.memory.Len()
}

func newRateGate(ctx context.Context, cfg *config.RateLimitConfig, redisClient *redis.Client, m *metrics.RateLimitMetrics) (*rateGate, error) {
	policies := make([]ratelimit.Policy, 0, len(cfg.Policies))
	for _, p := range cfg.Policies {
		policies = append(policies, ratelimit.Policy{Name: p.Name, MaxRequests: p.MaxRequests, Window: p.Window})
	}

	if cfg.PolicyFile != "" {
		overrides, err := ratelimit.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		policies = ratelimit.MergePolicies(policies, overrides)
	}

	onReject := ratelimit.WithRejectHook(ratelimit.ChainRejectFuncs(
		ratelimit.LogRejection,
		func(ctx context.Context, limiter, _ string, _ ratelimit.Decision) {
			m.RecordRejection(ctx, limiter)
		},
	))

	if cfg.Backend == config.RateLimitBackendRedis {
		gate, err := ratelimit.NewRedisGate(redisClient, policies, onReject)
		if err != nil {
			return nil, err
		}
		slog.Info("rate gate initialized", slog.String("backend", "redis"), slog.Int("limiters", len(policies)))
		return &rateGate{Gate: gate}, nil
	}

	gate, err := ratelimit.NewMemoryGate(policies, onReject)
	if err != nil {
		return nil, err
	}
	go gate.RunJanitor(ctx, cfg.JanitorInterval)

	slog.Info("rate gate initialized", slog.String("backend", "memory"), slog.Int("limiters", len(policies)))
	return &rateGate{Gate: gate, memory: gate}, nil
}

func newApplierRegistry(cfg *config.ApplierConfig) (*applier.Registry, error) {
	registry := applier.NewRegistry()

	if cfg.GitRepoPath != "" {
		git, err := applier.OpenGitBranchApplier(cfg.GitRepoPath, applier.GitBranchConfig{
			AuthorName:  cfg.GitAuthorName,
			AuthorEmail: cfg.GitAuthorEmail,
			Remote:      cfg.GitRemote,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(domain.OperationTypeBranchUpdate, git)
	}

	if cfg.SyncWebhookURL != "" {
		registry.Register(domain.OperationTypeAppSync, applier.NewWebhookApplier(cfg.SyncWebhookURL, cfg.SyncTimeout))
	}

	types := make([]string, 0)
	for _, t := range registry.Types() {
		types = append(types, t.String())
	}
	slog.Info("appliers registered", slog.Any("operation_types", types))

	return registry, nil
}

func newArchiver(ctx context.Context, cfg *config.ArchiveConfig) (domain.ReportArchiver, error) {
	if !cfg.Enabled {
		return archive.NewNoopArchiver(), nil
	}

	archiver, err := archive.NewS3Archiver(ctx, archive.S3Config{
		Bucket:       cfg.Bucket,
		Prefix:       cfg.Prefix,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("report archiver initialized",
		slog.String("type", "s3"),
		slog.String("bucket", cfg.Bucket),
	)
	return archiver, nil
}
