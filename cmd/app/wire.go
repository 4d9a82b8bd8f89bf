package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/adapter"
	"ebook-queue/internal/domain/ports/repository"
	aiAdapters "ebook-queue/internal/infra/adapters/ai"
	apiv1 "ebook-queue/internal/infra/api/apiv1"
	pg "ebook-queue/internal/infra/db/postgres"
	"ebook-queue/internal/infra/logging"
	"ebook-queue/internal/infra/memstore"
	red "ebook-queue/internal/infra/redis"
	"ebook-queue/internal/infra/sched"
	"ebook-queue/internal/infra/worker"
	"ebook-queue/internal/usecase"
)

// app holds the backends selected by the config and the use cases built on them.
type app struct {
	store   repository.JobStore
	queue   repository.DispatchQueue
	cache   repository.ChunkCache
	locker  repository.Locker
	limiter apiv1.RateLimiter

	states   usecase.UnitStateMachine
	registry usecase.JobRegistry
	library  usecase.LibraryUseCase

	closers []func()
}

func openApp(ctx context.Context, withLibrary bool) (*app, error) {
	a := &app{}
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn().Msg("memory store selected; jobs are lost when the process exits")
		mem := memstore.New()
		a.store = mem
		a.queue = mem.Queue(cfg.Store.Queue)
		a.cache = memstore.NewChunkCache()
		a.locker = memstore.NewLocker()
		a.limiter = memstore.NewRateLimiter()
	default:
		cli, err := red.NewClient(ctx, &cfg.Redis, cfg.Store.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = cli.Close() })
		a.store = red.NewJobStore(cli)
		a.queue = red.NewQueue(cli, cfg.Store.Queue)
		a.cache = red.NewChunkCache(cli, cfg.Store.ChunkTTL)
		a.locker = red.NewLocker(cli)
		a.limiter = red.NewRateLimiter(cli)
	}

	a.states = usecase.NewUnitStateMachine(a.store, logger)
	a.registry = usecase.NewJobRegistry(a.store, a.queue, cfg.Store.Queue, a.states, logger)

	a.library = usecase.NewLibraryUseCase(nil, nil, logger)
	if withLibrary && cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		go pg.ReportPoolStats(ctx, pool, 30*time.Second)
		a.library = usecase.NewLibraryUseCase(pg.NewArchiveRepo(pool), pg.NewTxManager(pool), logger)
	}
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newGenerator(ctx context.Context) (adapter.Generator, error) {
	logger.Debug().
		Str("openai_key", logging.Redact(cfg.AI.OpenAIKey, cfg.Runtime.Dev)).
		Str("gemini_key", logging.Redact(cfg.AI.GeminiKey, cfg.Runtime.Dev)).
		Msg("ai credentials")
	gen, err := aiAdapters.NewFromConfig(ctx, cfg.AI, logger)
	if errors.Is(err, domain.ErrGeneratorUnavailable) && cfg.Runtime.Dev {
		logger.Warn().Err(err).Msg("falling back to noop generator in developer mode")
		return aiAdapters.NewLimitedGenerator(aiAdapters.NewNoopGenerator(), cfg.AI.ConcurrentLimit), nil
	}
	return gen, err
}

func (a *app) newProcessor(gen adapter.Generator) *worker.UnitProcessor {
	engine := usecase.NewChunkEngine(gen, a.cache, usecase.ChunkEngineConfig{
		Policy:             usecase.RetryPolicyFromConfig(cfg.Generation),
		MinChunkLength:     cfg.Generation.MinChunkLength,
		FallbackTokenRatio: cfg.Generation.FallbackTokenRatio,
	}, logger)
	return worker.NewUnitProcessor(a.store, a.queue, a.states, engine, a.cache,
		worker.ProcessorConfigFrom(cfg.Store, cfg.Worker), logger)
}

func (a *app) newReconciler() *sched.Reconciler {
	return sched.NewReconciler(a.store, a.queue, a.states, a.library, a.cache, a.locker,
		sched.ReconcilerOptionsFrom(cfg.Reconciler), logger)
}
