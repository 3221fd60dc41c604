package constants

import "time"

const (
	PageSize           = 12
	RecentSearchLimit  = 5
	FetchConcurrency   = 6
	SelectedMoveCount  = 3
	SelectableMovePool = 5
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	TurnTickInterval   = 250 * time.Millisecond
	DefaultTurnSeconds = 30
	HitEffectDuration  = 3 * time.Second
	ChannelWriteWait   = 10 * time.Second
	ChannelDialTimeout = 10 * time.Second
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	FavoritesKey      = "favorites"
	RecentSearchesKey = "recent_searches"
	AccessTokenKey    = "access_token"
)
