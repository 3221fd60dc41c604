package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pokedex/internal/config"
	"pokedex/internal/metrics"

	"github.com/valyala/fasthttp"
)

var ErrNoCredential = errors.New("no bearer credential available")

// TokenSource supplies the bearer credential for the favorites backend.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// BackendClient talks to the favorites/auth backend of the hosted deployment.
type BackendClient struct {
	baseURL string
	tokens  TokenSource
	client  *fasthttp.Client
	metrics *metrics.Metrics
}

func NewBackendClient(cfg *config.Config, tokens TokenSource, m *metrics.Metrics) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(cfg.BackendURL, "/"),
		tokens:  tokens,
		client: &fasthttp.Client{
			MaxConnsPerHost:     20,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		metrics: m,
	}
}

// Enabled reports whether a backend is configured at all.
func (c *BackendClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type favoritesResponse struct {
	Favorites []struct {
		ItemID int `json:"itemId"`
	} `json:"favorites"`
}

func (c *BackendClient) GetFavorites(ctx context.Context) ([]int, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := doRequest[favoritesResponse](ctx, c.client, c.baseURL+"/favorites/me", token)
	c.metrics.APIRequest("favorites-me", err)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(resp.Favorites))
	for _, f := range resp.Favorites {
		if f.ItemID > 0 {
			ids = append(ids, f.ItemID)
		}
	}
	return ids, nil
}

func (c *BackendClient) AddFavorite(ctx context.Context, itemID int) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(struct {
		ItemID int `json:"itemId"`
	}{ItemID: itemID})
	if err != nil {
		return fmt.Errorf("failed to encode favorite: %w", err)
	}
	_, err = do(ctx, c.client, fasthttp.MethodPost, c.baseURL+"/favorites", token, payload)
	c.metrics.APIRequest("favorites-add", err)
	return err
}

func (c *BackendClient) RemoveFavorite(ctx context.Context, itemID int) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	_, err = do(ctx, c.client, fasthttp.MethodDelete, fmt.Sprintf("%s/favorites/%d", c.baseURL, itemID), token, nil)
	c.metrics.APIRequest("favorites-remove", err)
	return err
}

func (c *BackendClient) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", ErrNoCredential
	}
	token, ok := c.tokens.Token(ctx)
	if !ok {
		return "", ErrNoCredential
	}
	return token, nil
}
