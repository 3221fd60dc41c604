package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pokedex/internal/constants"
	"pokedex/internal/metrics"
	"pokedex/internal/repository"

	"github.com/rs/zerolog"
)

// JSONStore is the key-value persistence used by small pieces of UI state.
type JSONStore interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, src any) error
}

// SearchHistory keeps the most recent distinct search terms, newest first.
type SearchHistory struct {
	mu    sync.Mutex
	terms []string
	limit int

	// snapshot is taken under persistMu so the last write carries the latest list
	persistMu sync.Mutex

	store   JSONStore
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewSearchHistory(store JSONStore, m *metrics.Metrics, logger zerolog.Logger) *SearchHistory {
	return &SearchHistory{
		limit:   constants.RecentSearchLimit,
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "search_history").Logger(),
	}
}

// Initialize loads persisted terms; unreadable data yields an empty history.
func (h *SearchHistory) Initialize(ctx context.Context) {
	var stored []string
	if err := h.store.GetJSON(ctx, constants.RecentSearchesKey, &stored); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn().Err(err).Msg("persisted recent searches unreadable, starting empty")
		}
		stored = nil
	}

	h.mu.Lock()
	h.terms = nil
	// stored order is newest first, so replay oldest first
	for i := len(stored) - 1; i >= 0; i-- {
		h.insertLocked(stored[i])
	}
	h.mu.Unlock()
}

// Add moves term to the front, dropping any earlier occurrence, and trims
// the list to its limit.
func (h *SearchHistory) Add(ctx context.Context, term string) {
	h.mu.Lock()
	changed := h.insertLocked(term)
	h.mu.Unlock()
	if changed {
		h.persist(ctx)
	}
}

func (h *SearchHistory) insertLocked(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	next := make([]string, 0, h.limit)
	next = append(next, term)
	for _, t := range h.terms {
		if t != term {
			next = append(next, t)
		}
	}
	if len(next) > h.limit {
		next = next[:h.limit]
	}
	h.terms = next
	return true
}

func (h *SearchHistory) Remove(ctx context.Context, term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	h.mu.Lock()
	next := h.terms[:0:0]
	for _, t := range h.terms {
		if t != term {
			next = append(next, t)
		}
	}
	changed := len(next) != len(h.terms)
	h.terms = next
	h.mu.Unlock()
	if changed {
		h.persist(ctx)
	}
}

func (h *SearchHistory) Clear(ctx context.Context) {
	h.mu.Lock()
	h.terms = nil
	h.mu.Unlock()
	h.persist(ctx)
}

func (h *SearchHistory) List() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.terms...)
}

func (h *SearchHistory) persist(ctx context.Context) {
	h.persistMu.Lock()
	defer h.persistMu.Unlock()

	terms := h.List()
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DatabaseTimeout)
	defer cancel()
	if err := h.store.SetJSON(writeCtx, constants.RecentSearchesKey, terms); err != nil {
		h.metrics.StorageFailure(constants.RecentSearchesKey)
		h.logger.Warn().Err(err).Msg("failed to persist recent searches, keeping in-memory state")
	}
}
