package cache

import (
	"slices"
	"strings"
	"sync"

	"pokedex/internal/domain"
	"pokedex/internal/favorites"

	"github.com/rs/zerolog"
)

// FavoriteChecker answers whether an id is currently a favorite.
type FavoriteChecker interface {
	IsFavorite(id int) bool
}

// ItemCache is the normalized in-memory table of fully loaded catalog items.
// It never performs I/O and never evicts.
type ItemCache struct {
	mu      sync.RWMutex
	byID    map[int]domain.CatalogItem
	byName  map[string]int
	order   []int
	version uint64

	favorites FavoriteChecker
	detach    func()

	listenersMu sync.Mutex
	listeners   map[int]func(version uint64)
	nextID      int

	logger zerolog.Logger
}

// NewItemCache builds a cache whose favorite flags follow the ledger.
func NewItemCache(ledger *favorites.Ledger, logger zerolog.Logger) *ItemCache {
	c := New(ledger, logger)
	c.detach = ledger.Subscribe(func(id int, _ bool) {
		c.RefreshFavorite(id)
	})
	return c
}

func New(fav FavoriteChecker, logger zerolog.Logger) *ItemCache {
	return &ItemCache{
		byID:      make(map[int]domain.CatalogItem),
		byName:    make(map[string]int),
		listeners: make(map[int]func(uint64)),
		favorites: fav,
		logger:    logger.With().Str("component", "item_cache").Logger(),
	}
}

// Dispose detaches the cache from the favorites ledger.
func (c *ItemCache) Dispose() {
	if c.detach != nil {
		c.detach()
		c.detach = nil
	}
}

// Upsert inserts or replaces items by id. The favorite flag carried by the
// payload is ignored and recomputed from the ledger. A payload without a
// description keeps the description already cached for that id.
func (c *ItemCache) Upsert(items ...domain.CatalogItem) {
	if len(items) == 0 {
		return
	}

	c.mu.Lock()
	var inserted, updated int
	for _, incoming := range items {
		if incoming.ID <= 0 {
			c.logger.Debug().Str("name", incoming.Name).Msg("skipping item without id")
			continue
		}
		item := incoming.Clone()
		item.IsFavorite = c.favorites.IsFavorite(item.ID)

		if existing, ok := c.byID[item.ID]; ok {
			if item.Description == "" {
				item.Description = existing.Description
			}
			if old := nameKey(existing.Name); old != nameKey(item.Name) {
				delete(c.byName, old)
			}
			updated++
		} else {
			c.order = append(c.order, item.ID)
			inserted++
		}
		c.byID[item.ID] = item
		if key := nameKey(item.Name); key != "" {
			c.byName[key] = item.ID
		}
	}
	if inserted > 0 {
		slices.Sort(c.order)
	}
	c.version++
	version := c.version
	c.mu.Unlock()

	c.logger.Debug().Int("inserted", inserted).Int("updated", updated).Msg("items upserted")
	c.notify(version)
}

// RefreshFavorite recomputes the favorite flag of a cached item.
func (c *ItemCache) RefreshFavorite(id int) {
	c.mu.Lock()
	item, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	item.IsFavorite = c.favorites.IsFavorite(id)
	c.byID[id] = item
	c.version++
	version := c.version
	c.mu.Unlock()

	c.notify(version)
}

func (c *ItemCache) Get(id int) (domain.CatalogItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.byID[id]
	if !ok {
		return domain.CatalogItem{}, false
	}
	return item.Clone(), true
}

// GetByName looks an item up by case-insensitive name.
func (c *ItemCache) GetByName(name string) (domain.CatalogItem, bool) {
	key := nameKey(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[key]
	if !ok {
		return domain.CatalogItem{}, false
	}
	return c.byID[id].Clone(), true
}

// All returns every cached item ordered by id.
func (c *ItemCache) All() []domain.CatalogItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CatalogItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

// Favorites returns the cached items currently flagged as favorites. Items
// favorited but never fetched are absent.
func (c *ItemCache) Favorites() []domain.CatalogItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.CatalogItem
	for _, id := range c.order {
		if item := c.byID[id]; item.IsFavorite {
			out = append(out, item.Clone())
		}
	}
	return out
}

func (c *ItemCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Version increases on every mutation; pollers compare it to detect change.
func (c *ItemCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Subscribe registers fn to be called after every mutation.
func (c *ItemCache) Subscribe(fn func(version uint64)) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *ItemCache) notify(version uint64) {
	c.listenersMu.Lock()
	fns := make([]func(uint64), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(version)
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
