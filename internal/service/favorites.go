package service

import (
	"context"

	"pokedex/internal/cache"
	"pokedex/internal/domain"
	"pokedex/internal/favorites"

	"github.com/rs/zerolog"
)

// FavoritesService exposes the ledger together with the item views built on it.
type FavoritesService struct {
	ledger  *favorites.Ledger
	items   *cache.ItemCache
	catalog *CatalogService
	logger  zerolog.Logger
}

func NewFavoritesService(ledger *favorites.Ledger, items *cache.ItemCache, catalog *CatalogService, logger zerolog.Logger) *FavoritesService {
	return &FavoritesService{ledger: ledger, items: items, catalog: catalog, logger: logger}
}

// Toggle flips the favorite state of id and returns the new state.
func (s *FavoritesService) Toggle(ctx context.Context, id int) bool {
	return s.ledger.Toggle(ctx, id)
}

func (s *FavoritesService) IsFavorite(id int) bool {
	return s.ledger.IsFavorite(id)
}

// CachedFavorites is the deferred view: only favorites already in the cache.
func (s *FavoritesService) CachedFavorites() []domain.CatalogItem {
	out := s.items.Favorites()
	if out == nil {
		return []domain.CatalogItem{}
	}
	return out
}

// FavoriteItems is the eager view used by the favorites page: every favorite
// missing from the cache is fetched first so none are omitted.
func (s *FavoritesService) FavoriteItems(ctx context.Context) []domain.CatalogItem {
	var missing []int
	for _, id := range s.ledger.IDs() {
		if _, ok := s.items.Get(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		s.logger.Debug().Ints("ids", missing).Msg("backfilling favorites")
		s.catalog.FetchMany(ctx, missing)
	}
	return s.CachedFavorites()
}
