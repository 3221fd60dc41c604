package favorites

import (
	"context"
	"errors"
	"slices"
	"sync"

	"pokedex/internal/api"
	"pokedex/internal/constants"
	"pokedex/internal/metrics"
	"pokedex/internal/repository"

	"github.com/rs/zerolog"
)

// Store is the durable half of the ledger.
type Store interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, src any) error
}

// Remote mirrors favorites to the hosted backend when one is configured.
type Remote interface {
	Enabled() bool
	GetFavorites(ctx context.Context) ([]int, error)
	AddFavorite(ctx context.Context, itemID int) error
	RemoveFavorite(ctx context.Context, itemID int) error
}

// Listener is told about every membership change after it is applied.
type Listener func(id int, favorite bool)

// Ledger is the single source of truth for which items are favorites.
type Ledger struct {
	mu  sync.RWMutex
	ids map[int]struct{}

	// snapshot is taken under persistMu so the last write carries the latest set
	persistMu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int

	// mirrors run one at a time; wg tracks the ones not yet finished
	mirrorMu sync.Mutex
	mirrors  sync.WaitGroup

	store   Store
	remote  Remote
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewLedger(store *repository.KVRepository, remote *api.BackendClient, m *metrics.Metrics, logger zerolog.Logger) *Ledger {
	var r Remote
	if remote != nil {
		r = remote
	}
	return New(store, r, m, logger)
}

func New(store Store, remote Remote, m *metrics.Metrics, logger zerolog.Logger) *Ledger {
	return &Ledger{
		ids:       make(map[int]struct{}),
		listeners: make(map[int]Listener),
		store:     store,
		remote:    remote,
		metrics:   m,
		logger:    logger.With().Str("component", "favorites").Logger(),
	}
}

// Initialize loads the persisted set once. Missing or corrupt data yields an
// empty set. When a backend is configured its favorites are merged in.
func (l *Ledger) Initialize(ctx context.Context) {
	var stored []int
	if err := l.store.GetJSON(ctx, constants.FavoritesKey, &stored); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			l.logger.Debug().Msg("no persisted favorites")
		} else {
			l.logger.Warn().Err(err).Msg("persisted favorites unreadable, starting empty")
		}
		stored = nil
	}

	l.mu.Lock()
	l.ids = make(map[int]struct{}, len(stored))
	for _, id := range stored {
		if id > 0 {
			l.ids[id] = struct{}{}
		}
	}
	l.mu.Unlock()

	if l.remoteEnabled() {
		l.mergeRemote(ctx)
	}

	l.logger.Info().Int("count", l.Count()).Msg("favorites loaded")
}

func (l *Ledger) mergeRemote(ctx context.Context) {
	remoteCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	ids, err := l.remote.GetFavorites(remoteCtx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("failed to fetch remote favorites, using local set")
		return
	}

	var added []int
	l.mu.Lock()
	for _, id := range ids {
		if _, ok := l.ids[id]; !ok && id > 0 {
			l.ids[id] = struct{}{}
			added = append(added, id)
		}
	}
	l.mu.Unlock()

	if len(added) == 0 {
		return
	}
	l.persist(ctx)
	for _, id := range added {
		l.notify(id, true)
	}
	l.logger.Debug().Ints("ids", added).Msg("merged remote favorites")
}

func (l *Ledger) IsFavorite(id int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// IDs returns the favorite ids in ascending order.
func (l *Ledger) IDs() []int {
	l.mu.RLock()
	ids := make([]int, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Toggle flips membership of id and returns the new state. The in-memory
// change always succeeds; persistence is best-effort and remote mirroring
// happens in the background.
func (l *Ledger) Toggle(ctx context.Context, id int) bool {
	if id <= 0 {
		return false
	}

	l.persistMu.Lock()
	l.mu.Lock()
	_, was := l.ids[id]
	if was {
		delete(l.ids, id)
	} else {
		l.ids[id] = struct{}{}
	}
	l.mu.Unlock()
	l.persistLocked(ctx)
	l.persistMu.Unlock()

	favorite := !was
	l.notify(id, favorite)
	l.logger.Info().Int("id", id).Bool("favorite", favorite).Msg("favorite toggled")

	if l.remoteEnabled() {
		l.mirrors.Add(1)
		go l.mirror(context.WithoutCancel(ctx), id)
	}
	return favorite
}

// mirror pushes the membership id has when it runs, so toggles that land
// out of order still leave the backend at the latest state.
func (l *Ledger) mirror(ctx context.Context, id int) {
	defer l.mirrors.Done()
	l.mirrorMu.Lock()
	defer l.mirrorMu.Unlock()

	remoteCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	favorite := l.IsFavorite(id)
	var err error
	if favorite {
		err = l.remote.AddFavorite(remoteCtx, id)
	} else {
		err = l.remote.RemoveFavorite(remoteCtx, id)
	}
	if err != nil {
		l.logger.Warn().Err(err).Int("id", id).Bool("favorite", favorite).Msg("failed to mirror favorite to backend")
	}
}

// Wait blocks until every pending remote mirror has finished.
func (l *Ledger) Wait() {
	l.mirrors.Wait()
}

func (l *Ledger) persist(ctx context.Context) {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()
	l.persistLocked(ctx)
}

func (l *Ledger) persistLocked(ctx context.Context) {
	ids := l.IDs()
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DatabaseTimeout)
	defer cancel()
	if err := l.store.SetJSON(writeCtx, constants.FavoritesKey, ids); err != nil {
		l.metrics.StorageFailure(constants.FavoritesKey)
		l.logger.Warn().Err(err).Msg("failed to persist favorites, keeping in-memory state")
	}
}

// Subscribe registers fn for membership changes and returns a function that
// removes it.
func (l *Ledger) Subscribe(fn Listener) func() {
	l.listenersMu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.listenersMu.Unlock()

	return func() {
		l.listenersMu.Lock()
		delete(l.listeners, id)
		l.listenersMu.Unlock()
	}
}

func (l *Ledger) notify(id int, favorite bool) {
	l.listenersMu.Lock()
	fns := make([]Listener, 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.listenersMu.Unlock()

	for _, fn := range fns {
		fn(id, favorite)
	}
}

func (l *Ledger) remoteEnabled() bool {
	return l.remote != nil && l.remote.Enabled()
}
