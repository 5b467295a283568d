package dependencies

import (
	"context"
	"database/sql"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/looplj/lifeline/internal/collections"
	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/pkg/watcher"
	"github.com/looplj/lifeline/internal/server/db"
	"github.com/looplj/lifeline/internal/store"
	"github.com/looplj/lifeline/internal/subscription"
)

var Module = fx.Module("dependencies",
	fx.Provide(log.New),
	fx.Provide(NewTopics),
	fx.Provide(NewStore),
	fx.Provide(func(s *store.SQLStore) store.Client { return s }),
	fx.Provide(NewManager),
	fx.Provide(NewRegistry),
	fx.Provide(NewExecutors),
	fx.Invoke(func(lc fx.Lifecycle, executor executors.ScheduledExecutor) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return executor.Shutdown(ctx)
			},
		})
	}),
)

// NewTopics opens the change notification channels, in memory or on redis.
func NewTopics(lc fx.Lifecycle, cfg watcher.Config) (*watcher.Topics[store.ChangeEvent], error) {
	topics, err := watcher.NewTopics[store.ChangeEvent](cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return topics.Close()
		},
	})

	return topics, nil
}

// NewStore opens the database, migrates the records table and returns the store on top of it.
func NewStore(lc fx.Lifecycle, cfg db.Config, topics *watcher.Topics[store.ChangeEvent]) (*store.SQLStore, error) {
	ctx := context.Background()

	sqlDB, dialect, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := store.NewSQLStore(sqlDB, dialect, topics)
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closeDB(ctx, sqlDB)
		},
	})

	return s, nil
}

func closeDB(ctx context.Context, sqlDB *sql.DB) error {
	if err := sqlDB.Close(); err != nil {
		log.Error(ctx, "close database failed", log.Cause(err))
		return err
	}

	return nil
}

func NewManager(lc fx.Lifecycle, client store.Client, opts subscription.Options) *subscription.Manager {
	mgr := subscription.NewManager(client, opts)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			mgr.Close(ctx)
			return nil
		},
	})

	return mgr
}

// NewRegistry opens the shared collection caches. Their first fetch runs in the background,
// so a store that is down at boot shows up as an error status instead of a failed start.
func NewRegistry(lc fx.Lifecycle, mgr *subscription.Manager, client store.Client, opts collections.Options) (*collections.Registry, error) {
	registry, err := collections.NewRegistry(context.Background(), mgr, client, opts)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			registry.Close()
			return nil
		},
	})

	return registry, nil
}
