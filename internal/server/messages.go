package server

import (
	"pokedex/internal/auth"
	"pokedex/internal/battle"
	"pokedex/internal/domain"
)

type ItemView struct {
	domain.CatalogItem
	DisplayID string `json:"displayId"`
}

func toItemViews(items []domain.CatalogItem) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, ItemView{CatalogItem: it, DisplayID: domain.DisplayID(it.ID)})
	}
	return out
}

type GetItemRequest struct {
	IDOrName string `json:"idOrName"`
}

type GetItemResponse struct {
	Item ItemView `json:"item"`
}

type ListPageRequest struct {
	Page int `json:"page"`
}

type PageResponse struct {
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	Total      int        `json:"total"`
	TotalPages int        `json:"totalPages"`
	Items      []ItemView `json:"items"`
}

func toPageResponse(p domain.Page) *PageResponse {
	return &PageResponse{
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      p.Total,
		TotalPages: p.TotalPages(),
		Items:      toItemViews(p.Items),
	}
}

type SearchByFiltersRequest struct {
	Filter domain.FilterQuery `json:"filter"`
	Page   int                `json:"page"`
}

type SearchRequest struct {
	Term string `json:"term"`
}

type ItemsResponse struct {
	Items []ItemView `json:"items"`
}

// RecentSearchesRequest lists the history; Remove drops one term and Clear
// empties it first.
type RecentSearchesRequest struct {
	Remove string `json:"remove,omitempty"`
	Clear  bool   `json:"clear,omitempty"`
}

type RecentSearchesResponse struct {
	Terms []string `json:"terms"`
}

type ToggleFavoriteRequest struct {
	ID int `json:"id"`
}

type ToggleFavoriteResponse struct {
	ID         int  `json:"id"`
	IsFavorite bool `json:"isFavorite"`
}

// ListFavoritesRequest selects the eager view, which fetches favorites not
// yet loaded, or the cached one.
type ListFavoritesRequest struct {
	Eager bool `json:"eager"`
}

type FilterOptionsRequest struct{}

type FilterOptionsResponse struct {
	Types     []domain.Option `json:"types"`
	EggGroups []domain.Option `json:"eggGroups"`
	Colors    []domain.Option `json:"colors"`
}

type StartBattleRequest struct {
	ItemID int      `json:"itemId"`
	Moves  []string `json:"moves"`
}

type SubmitMoveRequest struct {
	MoveIndex int `json:"moveIndex"`
}

type SubmitMoveResponse struct {
	Accepted bool        `json:"accepted"`
	Battle   battle.View `json:"battle"`
}

type BattleRequest struct{}

type BattleResponse struct {
	Battle battle.View `json:"battle"`
}

type SignInRequest struct {
	Token string `json:"token"`
}

type SessionRequest struct{}

type SessionResponse struct {
	SignedIn bool   `json:"signedIn"`
	UserID   string `json:"userId,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

func toSessionResponse(u auth.User, signedIn bool) *SessionResponse {
	if !signedIn {
		return &SessionResponse{}
	}
	return &SessionResponse{SignedIn: true, UserID: u.ID, Email: u.Email, Username: u.Username}
}
