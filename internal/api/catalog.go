package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pokedex/internal/config"
	"pokedex/internal/metrics"

	"github.com/valyala/fasthttp"
)

var ErrNotFound = errors.New("resource not found")

// StatusError is returned for any non-2xx response other than 404.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d", e.Code)
}

type CatalogClient struct {
	baseURL string
	client  *fasthttp.Client
	metrics *metrics.Metrics
}

func NewCatalogClient(cfg *config.Config, m *metrics.Metrics) *CatalogClient {
	return &CatalogClient{
		baseURL: strings.TrimRight(cfg.CatalogAPIURL, "/"),
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		metrics: m,
	}
}

func (c *CatalogClient) GetItemPage(ctx context.Context, offset, limit int) (*ItemPageResponse, error) {
	u := fmt.Sprintf("%s/pokemon?offset=%d&limit=%d", c.baseURL, offset, limit)
	resp, err := doRequest[ItemPageResponse](ctx, c.client, u, "")
	c.metrics.APIRequest("item-page", err)
	return resp, err
}

func (c *CatalogClient) GetItem(ctx context.Context, idOrName string) (*ItemDetailResponse, error) {
	u := fmt.Sprintf("%s/pokemon/%s", c.baseURL, url.PathEscape(idOrName))
	resp, err := doRequest[ItemDetailResponse](ctx, c.client, u, "")
	c.metrics.APIRequest("item-detail", err)
	return resp, err
}

func (c *CatalogClient) GetSpecies(ctx context.Context, id int) (*SpeciesResponse, error) {
	u := fmt.Sprintf("%s/pokemon-species/%d", c.baseURL, id)
	resp, err := doRequest[SpeciesResponse](ctx, c.client, u, "")
	c.metrics.APIRequest("item-species-detail", err)
	return resp, err
}

func (c *CatalogClient) GetTypeMembers(ctx context.Context, typeName string) ([]int, error) {
	u := fmt.Sprintf("%s/type/%s", c.baseURL, url.PathEscape(typeName))
	resp, err := doRequest[TypeResponse](ctx, c.client, u, "")
	c.metrics.APIRequest("type-members", err)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(resp.Pokemon))
	for _, p := range resp.Pokemon {
		if id, ok := ExtractID(p.Pokemon.URL); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *CatalogClient) GetEggGroupMembers(ctx context.Context, group string) ([]int, error) {
	u := fmt.Sprintf("%s/egg-group/%s", c.baseURL, url.PathEscape(group))
	resp, err := doRequest[SpeciesListResponse](ctx, c.client, u, "")
	c.metrics.APIRequest("egg-group-members", err)
	if err != nil {
		return nil, err
	}
	return resp.IDs(), nil
}

func (c *CatalogClient) GetColorMembers(ctx context.Context, color string) ([]int, error) {
	u := fmt.Sprintf("%s/pokemon-color/%s", c.baseURL, url.PathEscape(color))
	resp, err := doRequest[SpeciesListResponse](ctx, c.client, u, "")
	c.metrics.APIRequest("color-members", err)
	if err != nil {
		return nil, err
	}
	return resp.IDs(), nil
}

func (c *CatalogClient) GetTypeList(ctx context.Context) ([]NamedResource, error) {
	resp, err := doRequest[NamedListResponse](ctx, c.client, c.baseURL+"/type?limit=100", "")
	c.metrics.APIRequest("type-list", err)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *CatalogClient) GetEggGroupList(ctx context.Context) ([]NamedResource, error) {
	resp, err := doRequest[NamedListResponse](ctx, c.client, c.baseURL+"/egg-group?limit=100", "")
	c.metrics.APIRequest("egg-group-list", err)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ExtractID returns the trailing numeric path segment of a resource url.
func ExtractID(resourceURL string) (int, bool) {
	trimmed := strings.TrimRight(resourceURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func doRequest[T any](ctx context.Context, client *fasthttp.Client, url, bearer string) (*T, error) {
	body, err := do(ctx, client, fasthttp.MethodGet, url, bearer, nil)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return &result, nil
}

func do(ctx context.Context, client *fasthttp.Client, method, url, bearer string, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusNotFound:
		return nil, ErrNotFound
	case code < 200 || code > 299:
		return nil, &StatusError{Code: code}
	}

	// resp is released on return
	return append([]byte(nil), resp.Body()...), nil
}

type NamedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type NamedListResponse struct {
	Count   int             `json:"count"`
	Results []NamedResource `json:"results"`
}

type ItemPageResponse struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  []NamedResource `json:"results"`
}

type ItemDetailResponse struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Height    *int       `json:"height"`
	Types     []TypeSlot `json:"types"`
	Abilities []struct {
		Ability  NamedResource `json:"ability"`
		IsHidden bool          `json:"is_hidden"`
	} `json:"abilities"`
	Stats []struct {
		BaseStat int           `json:"base_stat"`
		Stat     NamedResource `json:"stat"`
	} `json:"stats"`
	Moves []struct {
		Move NamedResource `json:"move"`
	} `json:"moves"`
	Sprites struct {
		FrontDefault string `json:"front_default"`
		Other        struct {
			OfficialArtwork struct {
				FrontDefault string `json:"front_default"`
			} `json:"official-artwork"`
		} `json:"other"`
	} `json:"sprites"`
}

type TypeSlot struct {
	Slot int           `json:"slot"`
	Type NamedResource `json:"type"`
}

type SpeciesResponse struct {
	ID                int `json:"id"`
	FlavorTextEntries []struct {
		FlavorText string        `json:"flavor_text"`
		Language   NamedResource `json:"language"`
	} `json:"flavor_text_entries"`
}

// Description returns the first entry in the given language with the control
// characters used as line breaks collapsed to spaces.
func (s *SpeciesResponse) Description(lang string) string {
	for _, e := range s.FlavorTextEntries {
		if e.Language.Name == lang {
			return strings.Join(strings.Fields(e.FlavorText), " ")
		}
	}
	return ""
}

type TypeResponse struct {
	Name    string `json:"name"`
	Pokemon []struct {
		Slot    int           `json:"slot"`
		Pokemon NamedResource `json:"pokemon"`
	} `json:"pokemon"`
}

type SpeciesListResponse struct {
	Name           string          `json:"name"`
	PokemonSpecies []NamedResource `json:"pokemon_species"`
}

func (r *SpeciesListResponse) IDs() []int {
	ids := make([]int, 0, len(r.PokemonSpecies))
	for _, s := range r.PokemonSpecies {
		if id, ok := ExtractID(s.URL); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
