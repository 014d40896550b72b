package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/cache"
	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/embedded"
	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/memory"
	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/postgres"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
)

type Storage struct {
	Templates    ports.TemplateRepository
	Settings     ports.SettingsRepository
	Publications ports.PublicationRepository
	Outbox       ports.OutboxRepository
	Close        func() error
}

// OpenStorage connects the configured driver. Postgres migrations run first
// when auto_migrate is set.
func OpenStorage(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (Storage, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.Postgres.DSN, postgres.ConnectOptions{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			LogQueries:      cfg.Postgres.LogQueries,
		})
		if err != nil {
			return Storage{}, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return Storage{}, err
		}
		if cfg.Postgres.AutoMigrate {
			applied, err := postgres.RunMigrations(ctx, db)
			if err != nil {
				_ = sqlDB.Close()
				return Storage{}, err
			}
			logger.InfoContext(ctx, "postgres migrations applied",
				"module", "bootstrap", "layer", "platform", "operation", "migrate", "outcome", "success",
				"applied", applied,
			)
		}
		repos := postgres.NewRepositories(db)
		return Storage{
			Templates:    repos.Templates,
			Settings:     repos.Settings,
			Publications: repos.Publications,
			Outbox:       repos.Outbox,
			Close:        sqlDB.Close,
		}, nil
	case "pebble":
		store, err := embedded.Open(cfg.Pebble.Path)
		if err != nil {
			return Storage{}, err
		}
		repos := store.Repositories()
		return Storage{
			Templates:    repos.Templates,
			Settings:     repos.Settings,
			Publications: repos.Publications,
			Outbox:       repos.Publications,
			Close:        store.Close,
		}, nil
	case "memory":
		repos := memory.NewRepositories()
		return Storage{
			Templates:    repos.Templates,
			Settings:     repos.Settings,
			Publications: repos.Publications,
			Outbox:       repos.Publications,
			Close:        func() error { return nil },
		}, nil
	default:
		return Storage{}, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

type ephemeralStores struct {
	dedup   ports.DedupStore
	pending ports.PendingStore
	close   func() error
}

// openEphemeral returns Redis backed dedup and confirmation stores when a
// Redis URL is configured, in-process ones otherwise.
func openEphemeral(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (ephemeralStores, error) {
	if cfg.URL == "" {
		logger.WarnContext(ctx, "redis not configured, using in-process dedup and confirmation stores",
			"module", "bootstrap", "layer", "platform", "operation", "open_ephemeral", "outcome", "degraded",
		)
		return ephemeralStores{
			dedup:   memory.NewDedupStore(),
			pending: memory.NewPendingStore(),
			close:   func() error { return nil },
		}, nil
	}
	client, err := cache.Connect(ctx, cfg.URL, cfg.Password, cfg.DB)
	if err != nil {
		return ephemeralStores{}, err
	}
	return ephemeralStores{
		dedup:   cache.NewDedupStore(client, cfg.KeyPrefix),
		pending: cache.NewPendingStore(client, cfg.KeyPrefix),
		close:   client.Close,
	}, nil
}
