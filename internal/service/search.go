package service

import (
	"context"
	"strings"

	"pokedex/internal/domain"
)

// SearchService is the search bar: it records the term and resolves it.
type SearchService struct {
	catalog *CatalogService
	history *SearchHistory
}

func NewSearchService(catalog *CatalogService, history *SearchHistory) *SearchService {
	return &SearchService{catalog: catalog, history: history}
}

func (s *SearchService) Search(ctx context.Context, term string) []domain.CatalogItem {
	term = strings.TrimSpace(term)
	if term == "" {
		return []domain.CatalogItem{}
	}
	s.history.Add(ctx, term)
	return s.catalog.FilterByNameOrID(ctx, term)
}

func (s *SearchService) Recent() []string {
	return s.history.List()
}

func (s *SearchService) RemoveRecent(ctx context.Context, term string) {
	s.history.Remove(ctx, term)
}

func (s *SearchService) ClearRecent(ctx context.Context) {
	s.history.Clear(ctx)
}
