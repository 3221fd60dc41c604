package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("key not found")

// KVRepository is the durable key-value store backing favorites, recent
// searches and the bearer token. Values are JSON documents.
type KVRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewKVRepository(sqlDB *sql.DB, logger zerolog.Logger) *KVRepository {
	return &KVRepository{db: sqlDB, logger: logger}
}

func (r *KVRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	r.logger.Debug().Str("key", key).Int("bytes", len(value)).Msg("kv value written")
	return nil
}

func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (r *KVRepository) GetJSON(ctx context.Context, key string, dst any) error {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode key %s: %w", key, err)
	}
	return nil
}

func (r *KVRepository) SetJSON(ctx context.Context, key string, src any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode key %s: %w", key, err)
	}
	return r.Set(ctx, key, string(raw))
}
