package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"pokedex/internal/auth"
	"pokedex/internal/battle"
	"pokedex/internal/constants"
	"pokedex/internal/domain"
	"pokedex/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

const PokedexPath = "/pokedex.v1.Pokedex/"

const (
	GetItemProcedure         = PokedexPath + "GetItem"
	ListPageProcedure        = PokedexPath + "ListPage"
	SearchByFiltersProcedure = PokedexPath + "SearchByFilters"
	SearchProcedure          = PokedexPath + "Search"
	RecentSearchesProcedure  = PokedexPath + "RecentSearches"
	ToggleFavoriteProcedure  = PokedexPath + "ToggleFavorite"
	ListFavoritesProcedure   = PokedexPath + "ListFavorites"
	FilterOptionsProcedure   = PokedexPath + "FilterOptions"
	StartBattleProcedure     = PokedexPath + "StartBattle"
	CancelMatchProcedure     = PokedexPath + "CancelMatch"
	SubmitMoveProcedure      = PokedexPath + "SubmitMove"
	GetBattleProcedure       = PokedexPath + "GetBattle"
	LeaveBattleProcedure     = PokedexPath + "LeaveBattle"
	SignInProcedure          = PokedexPath + "SignIn"
	SignOutProcedure         = PokedexPath + "SignOut"
	CurrentUserProcedure     = PokedexPath + "CurrentUser"
)

// PokedexServer exposes the catalog views and the battle over Connect unary
// procedures.
type PokedexServer struct {
	catalog   *service.CatalogService
	search    *service.SearchService
	favorites *service.FavoritesService
	options   *service.FilterOptions
	battle    *battle.Synchronizer
	tokens    *auth.TokenSource
	logger    zerolog.Logger
}

func NewPokedexServer(
	catalog *service.CatalogService,
	search *service.SearchService,
	favorites *service.FavoritesService,
	options *service.FilterOptions,
	battleSync *battle.Synchronizer,
	tokens *auth.TokenSource,
	logger zerolog.Logger,
) *PokedexServer {
	return &PokedexServer{
		catalog:   catalog,
		search:    search,
		favorites: favorites,
		options:   options,
		battle:    battleSync,
		tokens:    tokens,
		logger:    logger,
	}
}

// Handler returns the path prefix and handler serving every procedure.
func (s *PokedexServer) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetItemProcedure, unary(GetItemProcedure, s.GetItem, opts))
	mux.Handle(ListPageProcedure, unary(ListPageProcedure, s.ListPage, opts))
	mux.Handle(SearchByFiltersProcedure, unary(SearchByFiltersProcedure, s.SearchByFilters, opts))
	mux.Handle(SearchProcedure, unary(SearchProcedure, s.Search, opts))
	mux.Handle(RecentSearchesProcedure, unary(RecentSearchesProcedure, s.RecentSearches, opts))
	mux.Handle(ToggleFavoriteProcedure, unary(ToggleFavoriteProcedure, s.ToggleFavorite, opts))
	mux.Handle(ListFavoritesProcedure, unary(ListFavoritesProcedure, s.ListFavorites, opts))
	mux.Handle(FilterOptionsProcedure, unary(FilterOptionsProcedure, s.FilterOptions, opts))
	mux.Handle(StartBattleProcedure, unary(StartBattleProcedure, s.StartBattle, opts))
	mux.Handle(CancelMatchProcedure, unary(CancelMatchProcedure, s.CancelMatch, opts))
	mux.Handle(SubmitMoveProcedure, unary(SubmitMoveProcedure, s.SubmitMove, opts))
	mux.Handle(GetBattleProcedure, unary(GetBattleProcedure, s.GetBattle, opts))
	mux.Handle(LeaveBattleProcedure, unary(LeaveBattleProcedure, s.LeaveBattle, opts))
	mux.Handle(SignInProcedure, unary(SignInProcedure, s.SignIn, opts))
	mux.Handle(SignOutProcedure, unary(SignOutProcedure, s.SignOut, opts))
	mux.Handle(CurrentUserProcedure, unary(CurrentUserProcedure, s.CurrentUser, opts))
	return PokedexPath, mux
}

func unary[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts []connect.HandlerOption) http.Handler {
	return connect.NewUnaryHandler(procedure, func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
		defer cancel()

		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, err
		}
		return connect.NewResponse(res), nil
	}, opts...)
}

func (s *PokedexServer) GetItem(ctx context.Context, req *GetItemRequest) (*GetItemResponse, error) {
	key := strings.TrimSpace(req.IDOrName)
	if key == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("idOrName is required"))
	}
	item, ok := s.catalog.FetchByID(ctx, key)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("item not found"))
	}
	return &GetItemResponse{Item: ItemView{CatalogItem: item, DisplayID: domain.DisplayID(item.ID)}}, nil
}

func (s *PokedexServer) ListPage(ctx context.Context, req *ListPageRequest) (*PageResponse, error) {
	if req.Page < 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("page must be at least 1"))
	}
	return toPageResponse(s.catalog.LoadPage(ctx, req.Page)), nil
}

func (s *PokedexServer) SearchByFilters(ctx context.Context, req *SearchByFiltersRequest) (*PageResponse, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("page must be at least 1"))
	}
	if h := req.Filter.HeightUnits; h != nil && *h < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("height must not be negative"))
	}
	return toPageResponse(s.catalog.SearchByFilters(ctx, req.Filter, page)), nil
}

func (s *PokedexServer) Search(ctx context.Context, req *SearchRequest) (*ItemsResponse, error) {
	return &ItemsResponse{Items: toItemViews(s.search.Search(ctx, req.Term))}, nil
}

func (s *PokedexServer) RecentSearches(ctx context.Context, req *RecentSearchesRequest) (*RecentSearchesResponse, error) {
	switch {
	case req.Clear:
		s.search.ClearRecent(ctx)
	case strings.TrimSpace(req.Remove) != "":
		s.search.RemoveRecent(ctx, req.Remove)
	}
	return &RecentSearchesResponse{Terms: s.search.Recent()}, nil
}

func (s *PokedexServer) ToggleFavorite(ctx context.Context, req *ToggleFavoriteRequest) (*ToggleFavoriteResponse, error) {
	if req.ID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("id must be positive"))
	}
	return &ToggleFavoriteResponse{ID: req.ID, IsFavorite: s.favorites.Toggle(ctx, req.ID)}, nil
}

func (s *PokedexServer) ListFavorites(ctx context.Context, req *ListFavoritesRequest) (*ItemsResponse, error) {
	if req.Eager {
		return &ItemsResponse{Items: toItemViews(s.favorites.FavoriteItems(ctx))}, nil
	}
	return &ItemsResponse{Items: toItemViews(s.favorites.CachedFavorites())}, nil
}

func (s *PokedexServer) FilterOptions(ctx context.Context, _ *FilterOptionsRequest) (*FilterOptionsResponse, error) {
	return &FilterOptionsResponse{
		Types:     s.options.Types(ctx),
		EggGroups: s.options.EggGroups(ctx),
		Colors:    s.options.Colors(),
	}, nil
}

func (s *PokedexServer) StartBattle(ctx context.Context, req *StartBattleRequest) (*BattleResponse, error) {
	if req.ItemID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("itemId must be positive"))
	}
	item, ok := s.catalog.FetchByID(ctx, strconv.Itoa(req.ItemID))
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("item not found"))
	}
	moves, err := battle.SelectMoves(item.Moves, req.Moves)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if err := s.battle.StartMatchmaking(ctx, battle.NewFindMatchRequest(item, moves)); err != nil {
		switch {
		case errors.Is(err, battle.ErrInvalidSelection):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		case errors.Is(err, battle.ErrNotIdle):
			return nil, connect.NewError(connect.CodeFailedPrecondition, err)
		}
		zerolog.Ctx(ctx).Warn().Err(err).Int("item_id", item.ID).Msg("failed to start matchmaking")
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return &BattleResponse{Battle: s.battle.View()}, nil
}

func (s *PokedexServer) CancelMatch(_ context.Context, _ *BattleRequest) (*BattleResponse, error) {
	s.battle.CancelMatch()
	return &BattleResponse{Battle: s.battle.View()}, nil
}

func (s *PokedexServer) SubmitMove(_ context.Context, req *SubmitMoveRequest) (*SubmitMoveResponse, error) {
	accepted := s.battle.SubmitMove(req.MoveIndex)
	return &SubmitMoveResponse{Accepted: accepted, Battle: s.battle.View()}, nil
}

func (s *PokedexServer) GetBattle(_ context.Context, _ *BattleRequest) (*BattleResponse, error) {
	return &BattleResponse{Battle: s.battle.View()}, nil
}

func (s *PokedexServer) LeaveBattle(_ context.Context, _ *BattleRequest) (*BattleResponse, error) {
	s.battle.Reset()
	return &BattleResponse{Battle: s.battle.View()}, nil
}

// SignIn stores the bearer token used for the favorites backend and the
// battle channel. A token that cannot be decoded or has expired is rejected
// and nothing is kept.
func (s *PokedexServer) SignIn(ctx context.Context, req *SignInRequest) (*SessionResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("token is required"))
	}
	if err := s.tokens.Set(ctx, token); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to store token: %w", err))
	}

	user, ok := s.tokens.CurrentUser(ctx)
	if !ok {
		if err := s.tokens.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear rejected token")
		}
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("token is malformed or expired"))
	}
	s.logger.Info().Str("user_id", user.ID).Msg("signed in")
	return toSessionResponse(user, true), nil
}

func (s *PokedexServer) SignOut(ctx context.Context, _ *SessionRequest) (*SessionResponse, error) {
	if err := s.tokens.Clear(ctx); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to clear token: %w", err))
	}
	return &SessionResponse{}, nil
}

func (s *PokedexServer) CurrentUser(ctx context.Context, _ *SessionRequest) (*SessionResponse, error) {
	user, ok := s.tokens.CurrentUser(ctx)
	return toSessionResponse(user, ok), nil
}
