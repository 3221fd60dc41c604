package config

import (
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	CatalogAPIURL    string `env:"CATALOG_API_URL" envDefault:"https://pokeapi.co/api/v2"`
	BackendURL       string `env:"BACKEND_URL"`
	BattleURL        string `env:"BATTLE_URL"`
	DBPath           string `env:"DB_PATH" envDefault:"pokedex.db"`
	ServerPort       string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"12"`
	FetchConcurrency int    `env:"FETCH_CONCURRENCY" envDefault:"6"`
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("catalog_api_url", cfg.CatalogAPIURL).
		Str("backend_url", cfg.BackendURL).
		Str("battle_url", cfg.BattleURL).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("page_size", cfg.PageSize).
		Msg("configuration loaded")

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.CatalogAPIURL == "" {
		return fmt.Errorf("CATALOG_API_URL is required")
	}
	if _, err := url.ParseRequestURI(c.CatalogAPIURL); err != nil {
		return fmt.Errorf("invalid CATALOG_API_URL: %w", err)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.FetchConcurrency)
	}
	return nil
}

var Module = fx.Provide(Load)
