package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/billing/internal/clients"
	"github.com/odyssey-erp/billing/internal/documents"
	"github.com/odyssey-erp/billing/internal/documents/memstore"
	"github.com/odyssey-erp/billing/internal/documents/pgstore"
	"github.com/odyssey-erp/billing/internal/platform/cache"
	"github.com/odyssey-erp/billing/internal/platform/db"
)

// Services bundles the domain services built from configuration.
type Services struct {
	Documents    *documents.Service
	DocumentRepo documents.Repository
	Clients      *clients.Service
	Redis        *redis.Client

	closers []func()
}

// ServiceDeps carries the collaborators owned by the caller.
type ServiceDeps struct {
	Metrics  documents.Instrumentation
	Notifier documents.Notifier
}

// BuildServices opens the configured stores and wires the services over them.
// Redis is optional: when it cannot be reached, or in test mode, the client
// cache is disabled.
func BuildServices(ctx context.Context, cfg *Config, logger *slog.Logger, deps ServiceDeps) (*Services, error) {
	s := &Services{}

	var (
		docRepo    documents.Repository
		clientRepo clients.Repository
	)
	switch cfg.StoreDriver {
	case "memory":
		store, err := openMemstore(cfg.MemstorePath)
		if err != nil {
			return nil, err
		}
		docRepo = store
		clientRepo = clients.NewMemoryRepository()
		logger.Warn("using in-memory store", slog.String("path", cfg.MemstorePath))
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if err := pgstore.Migrate(ctx, pool); err != nil {
			s.Close()
			return nil, err
		}
		docRepo = pgstore.New(pool)
		clientRepo = clients.NewRepository(pool)
	}

	var redisClient *redis.Client
	if InTestMode() {
		logger.Info("test mode, client cache disabled")
	} else if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("client cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		s.Redis = redisClient
		s.closers = append(s.closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	}

	directory := clients.NewDirectory(clientRepo, redisClient, cfg.ClientCacheTTL, logger)
	s.Clients = clients.NewService(clientRepo, directory, logger)
	s.DocumentRepo = docRepo
	s.Documents = documents.NewService(docRepo, documents.NewSnapshotter(directory), documents.Options{
		Strict:           cfg.ConversionStrict,
		PaymentTermsDays: cfg.PaymentTermsDays,
		Metrics:          deps.Metrics,
		Notifier:         deps.Notifier,
		Logger:           logger,
	})
	return s, nil
}

// Close releases every resource opened by BuildServices, last opened first.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func openMemstore(path string) (*memstore.Store, error) {
	if path == "" {
		return memstore.New(), nil
	}
	store, err := memstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return store, nil
}
