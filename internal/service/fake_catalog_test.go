package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"pokedex/internal/api"
	"pokedex/internal/repository"
)

// fakeCatalog serves a small synthetic catalog and counts every call.
type fakeCatalog struct {
	mu     sync.Mutex
	calls  map[string]int
	total  int
	height map[int]int

	types     map[string][]int
	eggGroups map[string][]int
	colors    map[string][]int

	failItems map[int]bool
	failPages bool
	failTypes bool

	// when set, GetItem blocks until the channel is closed
	gate    chan struct{}
	entered chan struct{}
}

func newFakeCatalog(total int) *fakeCatalog {
	return &fakeCatalog{
		calls:     make(map[string]int),
		total:     total,
		height:    make(map[int]int),
		types:     make(map[string][]int),
		eggGroups: make(map[string][]int),
		colors:    make(map[string][]int),
		failItems: make(map[int]bool),
	}
}

func (f *fakeCatalog) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func (f *fakeCatalog) record(endpoint string) {
	f.mu.Lock()
	f.calls[endpoint]++
	f.mu.Unlock()
}

func (f *fakeCatalog) GetItemPage(_ context.Context, offset, limit int) (*api.ItemPageResponse, error) {
	f.record("item-page")
	if f.failPages {
		return nil, &api.StatusError{Code: 503}
	}
	resp := &api.ItemPageResponse{Count: f.total}
	for id := offset + 1; id <= offset+limit && id <= f.total; id++ {
		resp.Results = append(resp.Results, api.NamedResource{
			Name: fmt.Sprintf("item-%d", id),
			URL:  fmt.Sprintf("https://pokeapi.co/api/v2/pokemon/%d/", id),
		})
	}
	return resp, nil
}

func (f *fakeCatalog) GetItem(_ context.Context, idOrName string) (*api.ItemDetailResponse, error) {
	f.record("item-detail")
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}

	id, err := strconv.Atoi(idOrName)
	if err != nil {
		if _, scanErr := fmt.Sscanf(idOrName, "item-%d", &id); scanErr != nil {
			return nil, api.ErrNotFound
		}
	}
	if id <= 0 || id > f.total {
		return nil, api.ErrNotFound
	}
	if f.failItems[id] {
		return nil, &api.StatusError{Code: 500}
	}

	height := id % 10
	if h, ok := f.height[id]; ok {
		height = h
	}
	raw := fmt.Sprintf(`{"id":%d,"name":"item-%d","height":%d,
		"types":[{"slot":2,"type":{"name":"flying"}},{"slot":1,"type":{"name":"normal"}}],
		"abilities":[{"ability":{"name":"keen-eye"}}],
		"stats":[{"base_stat":%d,"stat":{"name":"hp"}}]}`, id, id, height, 40+id)
	var detail api.ItemDetailResponse
	if err := json.Unmarshal([]byte(raw), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (f *fakeCatalog) GetSpecies(_ context.Context, id int) (*api.SpeciesResponse, error) {
	f.record("item-species-detail")
	raw := fmt.Sprintf(`{"id":%d,"flavor_text_entries":[{"flavor_text":"Entry\nfor %d.","language":{"name":"en"}}]}`, id, id)
	var species api.SpeciesResponse
	if err := json.Unmarshal([]byte(raw), &species); err != nil {
		return nil, err
	}
	return &species, nil
}

func (f *fakeCatalog) GetTypeMembers(_ context.Context, name string) ([]int, error) {
	f.record("type-members")
	if f.failTypes {
		return nil, &api.StatusError{Code: 500}
	}
	ids, ok := f.types[name]
	if !ok {
		return nil, api.ErrNotFound
	}
	return ids, nil
}

func (f *fakeCatalog) GetEggGroupMembers(_ context.Context, name string) ([]int, error) {
	f.record("egg-group-members")
	ids, ok := f.eggGroups[name]
	if !ok {
		return nil, api.ErrNotFound
	}
	return ids, nil
}

func (f *fakeCatalog) GetColorMembers(_ context.Context, name string) ([]int, error) {
	f.record("color-members")
	ids, ok := f.colors[name]
	if !ok {
		return nil, api.ErrNotFound
	}
	return ids, nil
}

func (f *fakeCatalog) GetTypeList(context.Context) ([]api.NamedResource, error) {
	f.record("type-list")
	return []api.NamedResource{{Name: "normal"}, {Name: "fire"}, {Name: "shadow"}, {Name: "unknown"}}, nil
}

func (f *fakeCatalog) GetEggGroupList(context.Context) ([]api.NamedResource, error) {
	f.record("egg-group-list")
	return []api.NamedResource{{Name: "monster"}, {Name: "dragon"}}, nil
}

type memStore struct {
	mu       sync.Mutex
	values   map[string]string
	failSets bool
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (m *memStore) GetJSON(_ context.Context, key string, dst any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[key]
	if !ok {
		return repository.ErrNotFound
	}
	return json.Unmarshal([]byte(raw), dst)
}

func (m *memStore) SetJSON(_ context.Context, key string, src any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSets {
		return fmt.Errorf("quota exceeded")
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	m.values[key] = string(raw)
	return nil
}

func (m *memStore) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}
