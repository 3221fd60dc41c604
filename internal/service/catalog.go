package service

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"

	"pokedex/internal/api"
	"pokedex/internal/cache"
	"pokedex/internal/config"
	"pokedex/internal/constants"
	"pokedex/internal/domain"
	"pokedex/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Catalog is the remote catalog API as seen by the coordinator.
type Catalog interface {
	GetItemPage(ctx context.Context, offset, limit int) (*api.ItemPageResponse, error)
	GetItem(ctx context.Context, idOrName string) (*api.ItemDetailResponse, error)
	GetSpecies(ctx context.Context, id int) (*api.SpeciesResponse, error)
	GetTypeMembers(ctx context.Context, typeName string) ([]int, error)
	GetEggGroupMembers(ctx context.Context, group string) ([]int, error)
	GetColorMembers(ctx context.Context, color string) ([]int, error)
	GetTypeList(ctx context.Context) ([]api.NamedResource, error)
	GetEggGroupList(ctx context.Context) ([]api.NamedResource, error)
}

type pageEntry struct {
	ids   []int
	total int
}

// CatalogService resolves lookups, pages and compound filters against the
// item cache and the remote catalog. Every operation resolves to a value:
// transport failures are logged and surface as empty results.
type CatalogService struct {
	catalog Catalog
	items   *cache.ItemCache
	flight  singleflight.Group

	mu      sync.Mutex
	pages   map[int]pageEntry
	members map[string][]int
	filters map[string][]int

	pageSize    int
	concurrency int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewCatalogService(catalog Catalog, items *cache.ItemCache, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *CatalogService {
	pageSize, concurrency := cfg.PageSize, cfg.FetchConcurrency
	if pageSize <= 0 {
		pageSize = constants.PageSize
	}
	if concurrency <= 0 {
		concurrency = constants.FetchConcurrency
	}
	return &CatalogService{
		catalog:     catalog,
		items:       items,
		pages:       make(map[int]pageEntry),
		members:     make(map[string][]int),
		filters:     make(map[string][]int),
		pageSize:    pageSize,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.With().Str("component", "catalog").Logger(),
	}
}

func (s *CatalogService) PageSize() int {
	return s.pageSize
}

// FetchByID returns the item for an id or name, from the cache when present.
// Concurrent misses for the same key share one network fetch.
func (s *CatalogService) FetchByID(ctx context.Context, idOrName string) (domain.CatalogItem, bool) {
	key := strings.ToLower(strings.TrimSpace(idOrName))
	if key == "" {
		return domain.CatalogItem{}, false
	}

	if item, ok := s.lookup(key); ok {
		s.metrics.CacheLookup("item", true)
		s.logger.Debug().Str("key", key).Msg("item served from cache")
		return item, true
	}
	s.metrics.CacheLookup("item", false)

	ch := s.flight.DoChan("item:"+key, func() (any, error) {
		return s.fetchItem(ctx, key)
	})

	select {
	case <-ctx.Done():
		s.logger.Debug().Str("key", key).Msg("caller gave up waiting for item")
		return domain.CatalogItem{}, false
	case res := <-ch:
		if res.Shared {
			s.metrics.Coalesced()
		}
		if res.Err != nil {
			if errors.Is(res.Err, api.ErrNotFound) {
				s.logger.Debug().Str("key", key).Msg("item not found")
			} else {
				s.logger.Warn().Err(res.Err).Str("key", key).Msg("failed to fetch item")
			}
			return domain.CatalogItem{}, false
		}
		return res.Val.(domain.CatalogItem), true
	}
}

func (s *CatalogService) lookup(key string) (domain.CatalogItem, bool) {
	if id, err := strconv.Atoi(key); err == nil {
		return s.items.Get(id)
	}
	return s.items.GetByName(key)
}

// fetchItem runs detached from the caller so an abandoned request still lands
// in the cache for the next reader.
func (s *CatalogService) fetchItem(ctx context.Context, key string) (domain.CatalogItem, error) {
	apiCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ExternalAPITimeout)
	defer cancel()

	detail, err := s.catalog.GetItem(apiCtx, key)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	if detail.ID <= 0 {
		return domain.CatalogItem{}, errors.New("item detail missing id")
	}

	item := toCatalogItem(detail)
	species, err := s.catalog.GetSpecies(apiCtx, detail.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int("id", detail.ID).Msg("failed to fetch description, continuing without it")
	} else {
		item.Description = species.Description("en")
	}

	s.items.Upsert(item)
	cached, ok := s.items.Get(item.ID)
	if !ok {
		return domain.CatalogItem{}, errors.New("item vanished from cache")
	}
	s.logger.Debug().Int("id", item.ID).Str("name", item.Name).Msg("item fetched")
	return cached, nil
}

// LoadPage returns page number page (1-based). A page that resolved fully is
// remembered and never requested again.
func (s *CatalogService) LoadPage(ctx context.Context, page int) domain.Page {
	empty := domain.Page{Number: page, Size: s.pageSize, Items: []domain.CatalogItem{}}
	if page < 1 {
		return empty
	}

	s.mu.Lock()
	entry, ok := s.pages[page]
	s.mu.Unlock()
	s.metrics.CacheLookup("page", ok)
	if ok {
		s.logger.Debug().Int("page", page).Msg("page served from cache")
		return domain.Page{Number: page, Size: s.pageSize, Total: entry.total, Items: s.cachedItems(entry.ids)}
	}

	ch := s.flight.DoChan("page:"+strconv.Itoa(page), func() (any, error) {
		return s.fetchPage(ctx, page)
	})

	select {
	case <-ctx.Done():
		return empty
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn().Err(res.Err).Int("page", page).Msg("failed to load page")
			return empty
		}
		return res.Val.(domain.Page)
	}
}

func (s *CatalogService) fetchPage(ctx context.Context, page int) (domain.Page, error) {
	apiCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ExternalAPITimeout)
	defer cancel()

	offset := (page - 1) * s.pageSize
	resp, err := s.catalog.GetItemPage(apiCtx, offset, s.pageSize)
	if err != nil {
		return domain.Page{}, err
	}

	ids := make([]int, 0, len(resp.Results))
	for _, r := range resp.Results {
		if id, ok := api.ExtractID(r.URL); ok {
			ids = append(ids, id)
		}
	}

	// shared by every caller waiting on this page, so it must outlive the first one
	items := s.fetchMany(apiCtx, ids)
	if len(items) == len(ids) {
		s.mu.Lock()
		s.pages[page] = pageEntry{ids: ids, total: resp.Count}
		s.mu.Unlock()
	} else {
		s.logger.Warn().Int("page", page).Int("resolved", len(items)).Int("expected", len(ids)).Msg("page partially resolved, not caching")
	}

	s.logger.Info().Int("page", page).Int("count", len(items)).Msg("page loaded")
	return domain.Page{Number: page, Size: s.pageSize, Total: resp.Count, Items: items}, nil
}

// SearchByFilters resolves a compound filter. An empty filter returns the
// current cache contents unchanged. Otherwise each membership field resolves
// to an id set, the sets are intersected, and a height constraint is applied
// locally to the fetched details.
func (s *CatalogService) SearchByFilters(ctx context.Context, filter domain.FilterQuery, page int) domain.Page {
	empty := domain.Page{Number: page, Size: s.pageSize, Items: []domain.CatalogItem{}}

	if filter.IsEmpty() {
		all := s.items.All()
		return domain.Page{Number: 1, Size: len(all), Total: len(all), Items: all}
	}
	if page < 1 {
		return empty
	}

	ids, ok := s.resolveFilter(ctx, filter.Normalize())
	if !ok {
		return empty
	}

	start := (page - 1) * s.pageSize
	if start >= len(ids) {
		return domain.Page{Number: page, Size: s.pageSize, Total: len(ids), Items: []domain.CatalogItem{}}
	}
	end := min(start+s.pageSize, len(ids))

	return domain.Page{
		Number: page,
		Size:   s.pageSize,
		Total:  len(ids),
		Items:  s.fetchMany(ctx, ids[start:end]),
	}
}

func (s *CatalogService) resolveFilter(ctx context.Context, filter domain.FilterQuery) ([]int, bool) {
	sig := filter.Signature()

	s.mu.Lock()
	cached, ok := s.filters[sig]
	s.mu.Unlock()
	s.metrics.CacheLookup("filter", ok)
	if ok {
		s.logger.Debug().Str("signature", sig).Msg("filter served from cache")
		return cached, true
	}

	type field struct {
		kind, value string
	}
	var fields []field
	if filter.Type != "" {
		fields = append(fields, field{"type", filter.Type})
	}
	if filter.EggGroup != "" {
		fields = append(fields, field{"egg-group", filter.EggGroup})
	}
	if filter.Color != "" {
		fields = append(fields, field{"color", filter.Color})
	}

	// height alone has no remote membership list: filter what is cached
	if len(fields) == 0 {
		var ids []int
		for _, item := range s.items.All() {
			if item.HeightUnits != nil && *item.HeightUnits == *filter.HeightUnits {
				ids = append(ids, item.ID)
			}
		}
		return ids, true
	}

	sets := make([][]int, len(fields))
	g, gCtx := errgroup.WithContext(ctx)
	for i, f := range fields {
		g.Go(func() error {
			ids, err := s.membership(gCtx, f.kind, f.value)
			if err != nil {
				return err
			}
			sets[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn().Err(err).Str("signature", sig).Msg("failed to resolve filter")
		return nil, false
	}

	ids := Intersect(sets...)

	if filter.HeightUnits != nil {
		items := s.fetchMany(ctx, ids)
		if len(items) != len(ids) {
			s.logger.Warn().Str("signature", sig).Msg("could not load every candidate for height filter")
			return nil, false
		}
		matched := make([]int, 0, len(items))
		for _, item := range items {
			if item.HeightUnits != nil && *item.HeightUnits == *filter.HeightUnits {
				matched = append(matched, item.ID)
			}
		}
		ids = matched
	}

	s.mu.Lock()
	s.filters[sig] = ids
	s.mu.Unlock()

	s.logger.Info().Str("signature", sig).Int("matches", len(ids)).Msg("filter resolved")
	return ids, true
}

// membership resolves one filter field to its member ids. Each distinct
// kind/value pair is fetched at most once per session.
func (s *CatalogService) membership(ctx context.Context, kind, value string) ([]int, error) {
	key := kind + ":" + value

	s.mu.Lock()
	ids, ok := s.members[key]
	s.mu.Unlock()
	s.metrics.CacheLookup("membership", ok)
	if ok {
		return ids, nil
	}

	ch := s.flight.DoChan("members:"+key, func() (any, error) {
		apiCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ExternalAPITimeout)
		defer cancel()

		var ids []int
		var err error
		switch kind {
		case "type":
			ids, err = s.catalog.GetTypeMembers(apiCtx, value)
		case "egg-group":
			ids, err = s.catalog.GetEggGroupMembers(apiCtx, value)
		case "color":
			ids, err = s.catalog.GetColorMembers(apiCtx, value)
		}
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.members[key] = ids
		s.mu.Unlock()
		return ids, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, api.ErrNotFound) {
				return []int{}, nil
			}
			return nil, res.Err
		}
		return res.Val.([]int), nil
	}
}

// FilterByNameOrID is the free-text search path. An empty term yields no
// results rather than the unfiltered catalog.
func (s *CatalogService) FilterByNameOrID(ctx context.Context, term string) []domain.CatalogItem {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []domain.CatalogItem{}
	}
	item, ok := s.FetchByID(ctx, term)
	if !ok {
		return []domain.CatalogItem{}
	}
	return []domain.CatalogItem{item}
}

// FetchMany resolves ids in order, skipping any that fail.
func (s *CatalogService) FetchMany(ctx context.Context, ids []int) []domain.CatalogItem {
	return s.fetchMany(ctx, ids)
}

func (s *CatalogService) fetchMany(ctx context.Context, ids []int) []domain.CatalogItem {
	results := make([]*domain.CatalogItem, len(ids))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if item, ok := s.FetchByID(ctx, strconv.Itoa(id)); ok {
				results[i] = &item
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.CatalogItem, 0, len(ids))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (s *CatalogService) cachedItems(ids []int) []domain.CatalogItem {
	out := make([]domain.CatalogItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items.Get(id); ok {
			out = append(out, item)
		}
	}
	return out
}

// Intersect returns the ascending ids present in every set. No sets yields
// an empty result.
func Intersect(sets ...[]int) []int {
	if len(sets) == 0 {
		return []int{}
	}
	counts := make(map[int]int)
	for _, set := range sets {
		seen := make(map[int]struct{}, len(set))
		for _, id := range set {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			counts[id]++
		}
	}
	out := []int{}
	for id, n := range counts {
		if n == len(sets) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func toCatalogItem(d *api.ItemDetailResponse) domain.CatalogItem {
	types := slices.Clone(d.Types)
	slices.SortStableFunc(types, func(a, b api.TypeSlot) int {
		return a.Slot - b.Slot
	})

	item := domain.CatalogItem{
		ID:          d.ID,
		Name:        d.Name,
		HeightUnits: d.Height,
		Types:       make([]string, 0, len(types)),
		Abilities:   make([]string, 0, len(d.Abilities)),
		Stats:       make([]domain.Stat, 0, len(d.Stats)),
		Artwork:     d.Sprites.Other.OfficialArtwork.FrontDefault,
	}
	if item.Artwork == "" {
		item.Artwork = d.Sprites.FrontDefault
	}
	for _, t := range types {
		item.Types = append(item.Types, t.Type.Name)
	}
	for _, a := range d.Abilities {
		item.Abilities = append(item.Abilities, a.Ability.Name)
	}
	for _, st := range d.Stats {
		item.Stats = append(item.Stats, domain.Stat{Name: st.Stat.Name, BaseValue: st.BaseStat})
	}
	for _, m := range d.Moves {
		item.Moves = append(item.Moves, domain.Move{Name: m.Move.Name, URL: m.Move.URL})
	}
	return item
}
