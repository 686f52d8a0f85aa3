package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/tradedoc-ledger/internal/config"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
	"github.com/kirillkom/tradedoc-ledger/internal/core/usecase"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/lock"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/queue/nats"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/resilience"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/storage"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/storage/s3"
)

// Observer receives the runtime signals exported as metrics by both
// binaries.
type Observer interface {
	ports.IntegrityObserver
	ports.AlertObserver
	ObserveBreakerTransition(operation, from, to string)
}

type App struct {
	Config config.Config

	Bus       *nats.Bus
	Ingest    *usecase.IngestDocumentUseCase
	Documents *usecase.DocumentQueryUseCase
	Verifier  *usecase.VerificationService
	Ledger    *usecase.AuditLedger
	Stats     *usecase.StatisticsAggregator
	Integrity *usecase.IntegrityCheckUseCase
	Alerts    *usecase.Alerting
	Anomalies *usecase.AnomalyScanner

	db      *sql.DB
	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer Observer) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(
		resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithStateListener(observer.ObserveBreakerTransition),
	)

	objects, err := newObjectStorage(ctx, cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init check locker: %w", err)
	}

	bus, err := nats.New(cfg.NATSURL, nats.Options{
		AlertSubject:       cfg.NATSAlertSubject,
		IntegritySubject:   cfg.NATSIntegritySubject,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		closeLocker()
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	ledgerRepo := postgres.NewLedgerRepository(db)
	resultsRepo := postgres.NewIntegrityRepository(db)

	registry := usecase.NewDocumentRegistry(postgres.NewDocumentRepository(db))
	ledger := usecase.NewAuditLedger(ledgerRepo, registry)
	alerts := usecase.NewAlerting(postgres.NewAlertRepository(db), bus, logger).WithObserver(observer)

	integrityCfg := usecase.DefaultIntegrityCheckConfig()
	integrityCfg.Workers = cfg.IntegrityWorkers
	integrityCfg.LockTTL = cfg.IntegrityLockTTL
	integrityCfg.LockWait = cfg.IntegrityLockWait

	return &App{
		Config: cfg,
		Bus:    bus,

		Ingest:    usecase.NewIngestDocumentUseCase(registry, ledger, objects, logger),
		Documents: usecase.NewDocumentQueryUseCase(registry, ledger),
		Verifier:  usecase.NewVerificationService(registry, ledger),
		Ledger:    ledger,
		Stats: usecase.NewStatisticsAggregator(ledgerRepo, resultsRepo, usecase.StatsConfig{
			Window:       cfg.StatsWindow,
			TopDocuments: cfg.StatsTopDocuments,
		}),
		Integrity: usecase.NewIntegrityCheckUseCase(
			registry,
			resultsRepo,
			objects,
			ledger,
			alerts,
			locker,
			bus,
			observer,
			integrityCfg,
			logger,
		),
		Alerts: alerts,
		Anomalies: usecase.NewAnomalyScanner(ledgerRepo, alerts, usecase.AnomalyConfig{
			Window:              cfg.AnomalyWindow,
			AccessThreshold:     cfg.AnomalyAccessThreshold,
			VerifyFailThreshold: cfg.AnomalyVerifyFailThreshold,
		}, logger),

		db: db,
		closeFn: func() {
			bus.Close()
			closeLocker()
			_ = db.Close()
		},
	}, nil
}

// Ping reports whether the database is reachable.
func (a *App) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         cfg.RetryMultiplier,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

// newObjectStorage always mounts the local backend so documents registered
// before a switch to S3 stay readable.
func newObjectStorage(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ObjectStorage, error) {
	local, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	backends := map[string]ports.ObjectStorage{"local://": local}
	primary := "local://"

	if cfg.S3Bucket != "" {
		remote, err := s3.New(ctx, s3.Options{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			Executor:     executor,
		})
		if err != nil {
			return nil, err
		}
		backends["s3://"] = remote
		if cfg.StorageBackend == "s3" {
			primary = "s3://"
		}
	}
	return storage.NewRouter(primary, backends)
}

// newLocker uses Redis when configured. The in-process locker only excludes
// overlapping checks inside one binary, so the API's synchronous sweeps and
// the worker's scheduled ones may overlap without Redis.
func newLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.CheckLocker, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("check_lock_process_local",
			"reason", "REDIS_ADDR is not set",
			"effect", "integrity checks are not excluded across processes",
		)
		return lock.NewMemoryLocker(), func() {}, nil
	}
	locker, err := lock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	if err := locker.Ping(ctx); err != nil {
		_ = locker.Close()
		return nil, nil, err
	}
	return locker, func() { _ = locker.Close() }, nil
}
