package auth

import (
	"context"
	"errors"
	"time"

	"pokedex/internal/constants"
	"pokedex/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// KV is the slice of the key-value store the token source needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Claims mirrors the payload the auth backend signs.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

type User struct {
	ID       string
	Email    string
	Username string
}

// TokenSource keeps the bearer credential in the key-value store. The token
// is opaque to this client: its signature is never verified here, only the
// expiry is checked so stale credentials are not sent.
type TokenSource struct {
	kv     KV
	now    func() time.Time
	logger zerolog.Logger
}

func NewTokenSource(kv *repository.KVRepository, logger zerolog.Logger) *TokenSource {
	return newTokenSource(kv, logger)
}

func newTokenSource(kv KV, logger zerolog.Logger) *TokenSource {
	return &TokenSource{kv: kv, now: time.Now, logger: logger}
}

func (s *TokenSource) Set(ctx context.Context, token string) error {
	return s.kv.Set(ctx, constants.AccessTokenKey, token)
}

func (s *TokenSource) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, constants.AccessTokenKey)
}

// Token returns the stored credential when one exists and has not expired.
func (s *TokenSource) Token(ctx context.Context) (string, bool) {
	raw, err := s.kv.Get(ctx, constants.AccessTokenKey)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("failed to read access token")
		}
		return "", false
	}
	if _, ok := s.claims(raw); !ok {
		return "", false
	}
	return raw, true
}

// CurrentUser decodes the user identity carried in the stored token.
func (s *TokenSource) CurrentUser(ctx context.Context) (User, bool) {
	raw, ok := s.Token(ctx)
	if !ok {
		return User{}, false
	}
	claims, ok := s.claims(raw)
	if !ok {
		return User{}, false
	}
	return User{ID: claims.Subject, Email: claims.Email, Username: claims.Name}, true
}

func (s *TokenSource) claims(raw string) (*Claims, bool) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		s.logger.Debug().Err(err).Msg("stored access token is malformed")
		return nil, false
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(s.now()) {
		s.logger.Debug().Time("expires_at", claims.ExpiresAt.Time).Msg("stored access token expired")
		return nil, false
	}
	return &claims, true
}
