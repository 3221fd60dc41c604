package service

import (
	"context"
	"slices"
	"strings"
	"sync"

	"pokedex/internal/constants"
	"pokedex/internal/domain"

	"github.com/rs/zerolog"
)

var hiddenTypes = []string{"shadow", "unknown"}

var colors = []string{"black", "blue", "brown", "gray", "green", "pink", "purple", "red", "white", "yellow"}

// FilterOptions serves the choices offered by the filter panel. Remote lists
// are kept once they load successfully.
type FilterOptions struct {
	catalog Catalog

	mu        sync.Mutex
	types     []domain.Option
	eggGroups []domain.Option

	logger zerolog.Logger
}

func NewFilterOptions(catalog Catalog, logger zerolog.Logger) *FilterOptions {
	return &FilterOptions{catalog: catalog, logger: logger}
}

func (o *FilterOptions) Types(ctx context.Context) []domain.Option {
	o.mu.Lock()
	cached := o.types
	o.mu.Unlock()
	if cached != nil {
		return slices.Clone(cached)
	}

	apiCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	list, err := o.catalog.GetTypeList(apiCtx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("failed to load type options")
		return []domain.Option{}
	}
	opts := make([]domain.Option, 0, len(list))
	for _, t := range list {
		if slices.Contains(hiddenTypes, t.Name) {
			continue
		}
		opts = append(opts, domain.Option{Name: t.Name, Value: t.Name})
	}

	o.mu.Lock()
	o.types = opts
	o.mu.Unlock()
	return slices.Clone(opts)
}

func (o *FilterOptions) EggGroups(ctx context.Context) []domain.Option {
	o.mu.Lock()
	cached := o.eggGroups
	o.mu.Unlock()
	if cached != nil {
		return slices.Clone(cached)
	}

	apiCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	list, err := o.catalog.GetEggGroupList(apiCtx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("failed to load egg group options")
		return []domain.Option{}
	}
	opts := make([]domain.Option, 0, len(list))
	for _, g := range list {
		opts = append(opts, domain.Option{Name: g.Name, Value: g.Name})
	}

	o.mu.Lock()
	o.eggGroups = opts
	o.mu.Unlock()
	return slices.Clone(opts)
}

func (o *FilterOptions) Colors() []domain.Option {
	opts := make([]domain.Option, 0, len(colors))
	for _, c := range colors {
		opts = append(opts, domain.Option{Name: strings.ToUpper(c[:1]) + c[1:], Value: c})
	}
	return opts
}
