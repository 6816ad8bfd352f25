package initializer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/amirasaad/corebank/infra"
	infracache "github.com/amirasaad/corebank/infra/cache"
	infraeventbus "github.com/amirasaad/corebank/infra/eventbus"
	"github.com/amirasaad/corebank/infra/memory"
	infrarepository "github.com/amirasaad/corebank/infra/repository"
	"github.com/amirasaad/corebank/pkg/cache"
	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"github.com/amirasaad/corebank/pkg/idgen"
	"github.com/amirasaad/corebank/pkg/repository"
)

// InitializeDependencies builds every infrastructure dependency from cfg. The
// returned cleanup releases connections and background workers. On error,
// anything already opened has been released.
func InitializeDependencies(cfg *config.App) (deps *config.Deps, cleanup func(), err error) {
	logger := setupLogger(cfg.Log)
	var closers []io.Closer
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				logger.Warn("cleanup failed", "error", cerr)
			}
		}
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	ids, err := idgen.New(idgen.Config{
		DatacenterID:      cfg.IDGen.DatacenterID,
		WorkerID:          cfg.IDGen.WorkerID,
		EpochMillis:       cfg.IDGen.EpochMs,
		AccountDigits:     cfg.IDGen.AccountDigits,
		TransactionDigits: cfg.IDGen.TransactionDigits,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize id generator: %w", err)
	}

	uow, dbCloser, err := initUnitOfWork(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if dbCloser != nil {
		closers = append(closers, dbCloser)
	}

	bus, err := initEventBus(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if c, ok := bus.(io.Closer); ok {
		closers = append(closers, c)
	}

	resultCache, err := initResultCache(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if c, ok := resultCache.(io.Closer); ok {
		closers = append(closers, c)
	}

	deps = &config.Deps{
		Uow:         uow,
		IDs:         ids,
		EventBus:    bus,
		ResultCache: resultCache,
		Logger:      logger,
		Config:      cfg,
	}
	return deps, release, nil
}

// initUnitOfWork opens the database, migrates it and wraps it in a unit of
// work. DATABASE_DRIVER=memory skips the database entirely.
func initUnitOfWork(cfg *config.App, logger *slog.Logger) (repository.UnitOfWork, io.Closer, error) {
	if cfg.DB.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.New(memory.WithLockTimeout(cfg.DB.LockTimeout)), nil, nil
	}

	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DB.Migrate {
		if err := infra.RunMigrations(db); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database schema is up to date", "driver", db.Dialector.Name())
	}
	return infrarepository.NewUoW(db, infrarepository.WithLockTimeout(cfg.DB.LockTimeout)), sqlDB, nil
}

// initEventBus builds the configured bus. A redis or kafka bus that cannot
// connect degrades to memory-async so the core keeps serving transfers.
func initEventBus(cfg *config.App, logger *slog.Logger) (eventbus.Bus, error) {
	ec := cfg.EventBus
	switch ec.Driver {
	case "memory":
		return infraeventbus.NewWithMemory(logger), nil
	case "", "memory-async":
		return infraeventbus.NewWithMemoryAsync(logger), nil
	case "redis":
		if ec.RedisURL == "" {
			return nil, errors.New("event bus: EVENTBUS_REDIS_URL is required for the redis driver")
		}
		bus, err := infraeventbus.NewWithRedis(ec.RedisURL, logger, &infraeventbus.RedisEventBusConfig{
			StreamPrefix:     ec.RedisStream,
			Group:            ec.Group,
			DLQRetryInterval: ec.DLQRetryInterval,
		})
		if err != nil {
			logger.Error("Redis event bus unavailable, falling back to memory-async", "error", err)
			return infraeventbus.NewWithMemoryAsync(logger), nil
		}
		return bus, nil
	case "kafka":
		if ec.KafkaBrokers == "" {
			return nil, errors.New("event bus: EVENTBUS_KAFKA_BROKERS is required for the kafka driver")
		}
		bus, err := infraeventbus.NewWithKafka(ec.KafkaBrokers, logger, &infraeventbus.KafkaEventBusConfig{
			GroupID:          ec.Group,
			TopicPrefix:      ec.KafkaTopic,
			DLQRetryInterval: ec.DLQRetryInterval,
			SASLUsername:     ec.KafkaSASLUsername,
			SASLPassword:     ec.KafkaSASLPassword,
			TLSEnabled:       ec.KafkaTLS,
		})
		if err != nil {
			logger.Error("Kafka event bus unavailable, falling back to memory-async", "error", err)
			return infraeventbus.NewWithMemoryAsync(logger), nil
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("event bus: unsupported driver %q", ec.Driver)
	}
}

func initResultCache(cfg *config.App, logger *slog.Logger) (cache.ResultCache, error) {
	ic := cfg.Idempotency
	switch ic.Driver {
	case "", "memory":
		return infracache.NewMemoryCache(), nil
	case "redis":
		c, err := infracache.NewRedisCache(ic.RedisURL, ic.Prefix, logger)
		if err != nil {
			return nil, fmt.Errorf("idempotency: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("idempotency: unsupported driver %q", ic.Driver)
	}
}
