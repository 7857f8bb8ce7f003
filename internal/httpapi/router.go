package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"ai_selector/internal/billing"
	"ai_selector/internal/catalog"
	"ai_selector/internal/config"
	"ai_selector/internal/generation"
	"ai_selector/internal/ledger"
	"ai_selector/internal/logging"
	"ai_selector/internal/metrics"
	"ai_selector/internal/middleware"
	"ai_selector/internal/models"
	"ai_selector/internal/queue"
	"ai_selector/internal/selection"
	"ai_selector/internal/storage"
	"ai_selector/internal/utils"
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Catalog    *catalog.CachedSource
	Budgets    *ledger.CachedBudgetConfig
	Selection  *selection.Service
	Billing    *billing.Calculator
	Generation *generation.Service // nil unless an executor is configured
	Metrics    metrics.Metrics

	Archive       logging.Sink
	ArchiveWorker *logging.ArchiveWorker

	DB    *storage.DB
	Redis *redis.Client

	closers []func() error
	logger  *utils.Logger
}

// NewRouter builds every dependency from cfg and returns the HTTP handler.
// executor may be nil; POST /v1/generate is only served when it is set.
func NewRouter(ctx context.Context, cfg *config.Config, executor generation.Executor) (http.Handler, *Dependencies, error) {
	deps, err := NewDependencies(ctx, cfg, executor)
	if err != nil {
		return nil, nil, err
	}
	return NewHandler(deps), deps, nil
}

// NewDependencies connects the configured backends and wires the services.
func NewDependencies(ctx context.Context, cfg *config.Config, executor generation.Executor) (*Dependencies, error) {
	deps := &Dependencies{logger: utils.NewLogger("router")}
	if err := deps.build(ctx, cfg, executor); err != nil {
		deps.Close(ctx)
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) build(ctx context.Context, cfg *config.Config, executor generation.Executor) error {
	if cfg.Metrics.Enabled {
		d.Metrics = metrics.NewPrometheusMetrics("ai_selector")
	} else {
		d.Metrics = metrics.NewNoopMetrics()
	}

	needsDB := cfg.Ledger.Backend == config.LedgerPostgres || cfg.Catalog.Source == config.CatalogPostgres
	if needsDB {
		db, err := storage.NewDB(storage.DBConfig{
			DSN:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		d.DB = db
		d.closers = append(d.closers, db.Close)

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
		}
	}

	needsRedis := cfg.Ledger.Backend == config.LedgerRedis ||
		(cfg.Archive.Enabled && cfg.Archive.Queue == config.ArchiveQueueRedis)
	if needsRedis {
		client, err := storage.NewRedisClient(ctx, storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		d.Redis = client
		d.closers = append(d.closers, client.Close)
	}

	var src catalog.Source
	switch cfg.Catalog.Source {
	case config.CatalogFile:
		src = catalog.NewFileSource(cfg.Catalog.File)
	case config.CatalogPostgres:
		src = storage.NewCatalogRepository(d.DB)
	default:
		src = catalog.EmbeddedSource{}
	}
	d.Catalog = catalog.NewCachedSource(src, cfg.Catalog.CacheTTL)
	if _, err := d.Catalog.Load(ctx); err != nil {
		return fmt.Errorf("failed to load provider catalog: %w", err)
	}

	var (
		usage       ledger.UsageStore
		generations ledger.GenerationLog
		budgetSrc   ledger.BudgetConfigSource
		opts        []billing.Option
	)
	switch cfg.Ledger.Backend {
	case config.LedgerPostgres:
		usage = storage.NewUsageRepository(d.DB)
		generations = storage.NewGenerationRepository(d.DB)
		opts = append(opts, billing.WithTxRunner(d.DB))
	case config.LedgerRedis:
		usage = ledger.NewRedisUsageStore(d.Redis, "selector")
		generations = ledger.NewRedisGenerationLog(d.Redis, "selector")
	default:
		mem := ledger.NewMemoryStore()
		usage, generations = mem, mem
	}

	if d.DB != nil {
		repo, err := storage.NewBudgetRepository(d.DB, cfg.Budget.Limits())
		if err != nil {
			return err
		}
		budgetSrc = repo
	} else {
		static, err := ledger.NewStaticBudgetConfig(cfg.Budget.Limits(), nil)
		if err != nil {
			return err
		}
		budgetSrc = static
	}
	d.Budgets = ledger.NewCachedBudgetConfig(budgetSrc, cfg.Budget.CacheSize, cfg.Budget.CacheTTL)

	d.Archive = logging.NewNoopSink()
	if cfg.Archive.Enabled {
		if err := d.buildArchive(ctx, cfg); err != nil {
			return err
		}
	}

	opts = append(opts, billing.WithMetrics(d.Metrics), billing.WithArchiver(d.Archive))
	d.Billing = billing.NewCalculator(d.Catalog, usage, generations, d.Budgets, opts...)
	d.Selection = selection.NewService(d.Catalog, d.Billing, usage, cfg.Scoring, d.Metrics)

	if executor != nil {
		d.Generation = generation.NewService(d.Selection, d.Billing, executor, generation.Options{
			RejectOverBudget: cfg.Generation.RejectOverBudget,
			CallTimeout:      cfg.Generation.RequestTimeout,
			Metrics:          d.Metrics,
		})
	}

	return nil
}

// buildArchive starts the worker that moves recorded generations to S3 or
// local files.
func (d *Dependencies) buildArchive(ctx context.Context, cfg *config.Config) error {
	qcfg := queue.DefaultConfig("generations")
	qcfg.BatchSize = cfg.Archive.BatchSize
	qcfg.BatchTimeout = cfg.Archive.BatchTimeout
	qcfg.MaxRetries = cfg.Archive.MaxRetries
	qcfg.RetryBackoff = cfg.Archive.RetryBackoff

	var (
		q   queue.Queue[models.GenerationRecord]
		dlq queue.DeadLetterQueue[models.GenerationRecord]
	)
	if cfg.Archive.Queue == config.ArchiveQueueRedis {
		rq, err := queue.NewRedisQueue[models.GenerationRecord](d.Redis, qcfg)
		if err != nil {
			return fmt.Errorf("failed to create archive queue: %w", err)
		}
		rdlq, err := queue.NewRedisDeadLetterQueue[models.GenerationRecord](d.Redis, qcfg)
		if err != nil {
			return fmt.Errorf("failed to create archive DLQ: %w", err)
		}
		q, dlq = rq, rdlq
	} else {
		q = queue.NewMemoryQueue[models.GenerationRecord](qcfg)
		dlq = queue.NewMemoryDeadLetterQueue[models.GenerationRecord]()
	}

	var writer logging.BatchWriter
	if cfg.Archive.Backend == config.ArchiveFile {
		fw, err := logging.NewFileWriter(cfg.Archive.FileTemplate, cfg.Archive.FileMaxSize, cfg.Archive.FileMaxFiles)
		if err != nil {
			return fmt.Errorf("failed to open archive file: %w", err)
		}
		writer = fw
		d.closers = append(d.closers, fw.Close)
	} else {
		sw, err := logging.NewS3Writer(ctx, cfg.Archive.S3Bucket, cfg.Archive.S3Region, cfg.Archive.S3Prefix, cfg.Archive.PodName)
		if err != nil {
			return err
		}
		writer = sw
	}

	// Closers run in reverse, so the worker stops before its queues close.
	d.closers = append(d.closers, q.Close, dlq.Close)
	d.ArchiveWorker = logging.NewArchiveWorker(q, dlq, writer, qcfg)
	d.ArchiveWorker.Start(context.WithoutCancel(ctx))
	d.closers = append(d.closers, d.ArchiveWorker.Stop)
	d.Archive = logging.NewQueueSink(q)
	return nil
}

// Close stops the archive worker and releases connections in reverse order
// of creation.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// NewHandler registers the routes on a fresh ServeMux.
func NewHandler(deps *Dependencies) http.Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopMetrics()
	}
	if deps.logger == nil {
		deps.logger = utils.NewLogger("router")
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps)
	return middleware.TenantMiddleware(mux)
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.Instrument(pattern, deps.Metrics)(h))
	}

	handle("POST /v1/select", deps.handleSelect)
	handle("GET /v1/fallback", deps.handleFallback)
	handle("GET /v1/providers", deps.handleProviders)

	handle("GET /v1/costs/comparison", deps.handleCostComparison)
	handle("GET /v1/costs/estimate", deps.handleCostEstimate)
	handle("GET /v1/budget", deps.handleBudget)
	handle("PUT /v1/budget", deps.handleUpdateBudget)
	handle("GET /v1/usage", deps.handleUsage)
	handle("GET /v1/recommendations", deps.handleRecommendations)
	handle("POST /v1/generations", deps.handleRecordGeneration)

	if deps.Generation != nil {
		handle("POST /v1/generate", deps.handleGenerate)
	}
	if deps.ArchiveWorker != nil {
		handle("GET /v1/archive/dead-letters", deps.handleDeadLetters)
		handle("POST /v1/archive/dead-letters/{id}/retry", deps.handleRetryDeadLetter)
	}

	mux.HandleFunc("GET /health", deps.handleHealth)
	mux.Handle("GET /metrics", deps.Metrics.Handler())
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if d.DB != nil {
		if err := d.DB.Health(r.Context()); err != nil {
			d.logger.Warn("Health check failed", "dependency", "postgres", "error", err)
			utils.RespondWithError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(r.Context()).Err(); err != nil {
			d.logger.Warn("Health check failed", "dependency", "redis", "error", err)
			utils.RespondWithError(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
