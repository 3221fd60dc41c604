package fx

import (
	"context"

	"pokedex/internal/api"
	"pokedex/internal/auth"
	"pokedex/internal/battle"
	"pokedex/internal/cache"
	"pokedex/internal/config"
	"pokedex/internal/database"
	"pokedex/internal/favorites"
	"pokedex/internal/logger"
	"pokedex/internal/metrics"
	"pokedex/internal/repository"
	"pokedex/internal/server"
	"pokedex/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideBackendClient(cfg *config.Config, tokens *auth.TokenSource, m *metrics.Metrics) *api.BackendClient {
	return api.NewBackendClient(cfg, tokens, m)
}

func ProvideCatalogService(client *api.CatalogClient, items *cache.ItemCache, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *service.CatalogService {
	return service.NewCatalogService(client, items, cfg, m, logger)
}

func ProvideSearchHistory(kv *repository.KVRepository, m *metrics.Metrics, logger zerolog.Logger) *service.SearchHistory {
	return service.NewSearchHistory(kv, m, logger)
}

func ProvideFilterOptions(client *api.CatalogClient, logger zerolog.Logger) *service.FilterOptions {
	return service.NewFilterOptions(client, logger)
}

// registerLifecycle loads persisted state before serving and tears down
// timers and subscriptions on shutdown.
func registerLifecycle(
	lc fx.Lifecycle,
	ledger *favorites.Ledger,
	history *service.SearchHistory,
	items *cache.ItemCache,
	battleSync *battle.Synchronizer,
	logger zerolog.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ledger.Initialize(ctx)
			history.Initialize(ctx)
			logger.Info().Int("favorites", ledger.Count()).Int("recent_searches", len(history.List())).Msg("local state loaded")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			battleSync.Dispose()
			items.Dispose()
			ledger.Wait()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(metrics.New),
	fx.Provide(database.New),
	// storage
	fx.Provide(repository.NewKVRepository),
	fx.Provide(auth.NewTokenSource),
	// api clients
	fx.Provide(api.NewCatalogClient),
	fx.Provide(ProvideBackendClient),
	// local state
	fx.Provide(favorites.NewLedger),
	fx.Provide(cache.NewItemCache),
	// svc
	fx.Provide(ProvideCatalogService),
	fx.Provide(ProvideSearchHistory),
	fx.Provide(service.NewSearchService),
	fx.Provide(service.NewFavoritesService),
	fx.Provide(ProvideFilterOptions),
	// battle
	fx.Provide(battle.NewWSDialer),
	fx.Provide(battle.NewSynchronizer),
	// server
	fx.Provide(server.NewPokedexServer),
	fx.Invoke(registerLifecycle),
)
