package service

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"pokedex/internal/cache"
	"pokedex/internal/config"
	"pokedex/internal/domain"
	"pokedex/internal/favorites"

	"github.com/rs/zerolog"
)

type harness struct {
	catalog *CatalogService
	items   *cache.ItemCache
	ledger  *favorites.Ledger
	store   *memStore
}

func newHarness(t *testing.T, fc *fakeCatalog) *harness {
	t.Helper()
	store := newMemStore()
	ledger := favorites.New(store, nil, nil, zerolog.Nop())
	ledger.Initialize(context.Background())
	items := cache.NewItemCache(ledger, zerolog.Nop())
	t.Cleanup(items.Dispose)

	cfg := &config.Config{PageSize: 12, FetchConcurrency: 6}
	return &harness{
		catalog: NewCatalogService(fc, items, cfg, nil, zerolog.Nop()),
		items:   items,
		ledger:  ledger,
		store:   store,
	}
}

func ids(items []domain.CatalogItem) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestLoadPageCachesResolvedPage(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)
	ctx := context.Background()

	page := h.catalog.LoadPage(ctx, 1)
	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if got := ids(page.Items); !reflect.DeepEqual(got, want) {
		t.Fatalf("page 1 ids = %v, want %v", got, want)
	}
	if page.Total != 30 {
		t.Errorf("Total = %d, want 30", page.Total)
	}
	if got := fc.count("item-detail"); got != 12 {
		t.Errorf("detail calls = %d, want 12", got)
	}

	again := h.catalog.LoadPage(ctx, 1)
	if got := ids(again.Items); !reflect.DeepEqual(got, want) {
		t.Fatalf("cached page ids = %v, want %v", got, want)
	}
	if got := fc.count("item-page"); got != 1 {
		t.Errorf("page calls = %d, want 1", got)
	}
	if got := fc.count("item-detail"); got != 12 {
		t.Errorf("detail calls after reload = %d, want 12", got)
	}
}

func TestLoadPageSecondPageOffset(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)

	page := h.catalog.LoadPage(context.Background(), 3)
	want := []int{25, 26, 27, 28, 29, 30}
	if got := ids(page.Items); !reflect.DeepEqual(got, want) {
		t.Fatalf("page 3 ids = %v, want %v", got, want)
	}
	if page.TotalPages() != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages())
	}
}

func TestLoadPagePartialIsNotCached(t *testing.T) {
	fc := newFakeCatalog(30)
	fc.failItems[3] = true
	h := newHarness(t, fc)
	ctx := context.Background()

	page := h.catalog.LoadPage(ctx, 1)
	if len(page.Items) != 11 {
		t.Fatalf("got %d items, want 11", len(page.Items))
	}
	for _, it := range page.Items {
		if it.ID == 3 {
			t.Fatal("failed item should be skipped")
		}
	}

	h.catalog.LoadPage(ctx, 1)
	if got := fc.count("item-page"); got != 2 {
		t.Errorf("page calls = %d, want 2", got)
	}
}

func TestLoadPageInvalidAndFailing(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)

	page := h.catalog.LoadPage(context.Background(), 0)
	if page.Items == nil || len(page.Items) != 0 {
		t.Errorf("page 0 = %v, want empty non-nil", page.Items)
	}
	if got := fc.count("item-page"); got != 0 {
		t.Errorf("page calls = %d, want 0", got)
	}

	fc.failPages = true
	page = h.catalog.LoadPage(context.Background(), 1)
	if len(page.Items) != 0 {
		t.Errorf("failing page returned %d items", len(page.Items))
	}
}

func TestFetchByIDConcurrentCallsShareOneRequest(t *testing.T) {
	fc := newFakeCatalog(30)
	fc.gate = make(chan struct{})
	fc.entered = make(chan struct{}, 1)
	h := newHarness(t, fc)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]domain.CatalogItem, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = h.catalog.FetchByID(context.Background(), "25")
		}()
	}

	<-fc.entered
	time.Sleep(50 * time.Millisecond)
	close(fc.gate)
	wg.Wait()

	if got := fc.count("item-detail"); got != 1 {
		t.Fatalf("detail calls = %d, want 1", got)
	}
	for i, r := range results {
		if r.ID != 25 {
			t.Errorf("caller %d got id %d, want 25", i, r.ID)
		}
	}
}

func TestFetchByIDAbandonedRequestStillCaches(t *testing.T) {
	fc := newFakeCatalog(30)
	fc.gate = make(chan struct{})
	fc.entered = make(chan struct{}, 1)
	h := newHarness(t, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		_, ok := h.catalog.FetchByID(ctx, "7")
		done <- ok
	}()

	<-fc.entered
	cancel()
	if ok := <-done; ok {
		t.Fatal("cancelled caller should get no result")
	}

	close(fc.gate)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := h.items.Get(7); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned fetch never reached the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoadPageSurvivesFirstCallerCancelling(t *testing.T) {
	fc := newFakeCatalog(30)
	fc.gate = make(chan struct{})
	fc.entered = make(chan struct{}, 1)
	h := newHarness(t, fc)

	ctxA, cancelA := context.WithCancel(context.Background())
	doneA := make(chan domain.Page)
	go func() {
		doneA <- h.catalog.LoadPage(ctxA, 1)
	}()
	<-fc.entered

	doneB := make(chan domain.Page)
	go func() {
		doneB <- h.catalog.LoadPage(context.Background(), 1)
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if got := <-doneA; len(got.Items) != 0 {
		t.Errorf("cancelled caller got %d items, want 0", len(got.Items))
	}
	close(fc.gate)

	got := <-doneB
	if len(got.Items) != 12 {
		t.Fatalf("second caller got %d items, want 12", len(got.Items))
	}
	if n := fc.count("item-page"); n != 1 {
		t.Errorf("item-page calls = %d, want 1", n)
	}

	again := h.catalog.LoadPage(context.Background(), 1)
	if len(again.Items) != 12 || fc.count("item-page") != 1 {
		t.Errorf("page was not cached after the shared fetch: %d items, %d calls", len(again.Items), fc.count("item-page"))
	}
}

func TestFetchByIDProjectsDetail(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)

	got, ok := h.catalog.FetchByID(context.Background(), "ITEM-7")
	if !ok {
		t.Fatal("expected item-7 to resolve")
	}
	if got.ID != 7 || got.Name != "item-7" {
		t.Errorf("got %d %q", got.ID, got.Name)
	}
	if !reflect.DeepEqual(got.Types, []string{"normal", "flying"}) {
		t.Errorf("Types = %v, want slot order", got.Types)
	}
	if got.Description != "Entry for 7." {
		t.Errorf("Description = %q", got.Description)
	}
	if got.HeightUnits == nil || *got.HeightUnits != 7 {
		t.Errorf("HeightUnits = %v, want 7", got.HeightUnits)
	}

	if _, ok := h.catalog.FetchByID(context.Background(), "7"); !ok {
		t.Fatal("expected cached hit")
	}
	if got := fc.count("item-detail"); got != 1 {
		t.Errorf("detail calls = %d, want 1", got)
	}
}

func TestFetchByIDFavoriteProjection(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)
	ctx := context.Background()

	h.ledger.Toggle(ctx, 4)
	got, _ := h.catalog.FetchByID(ctx, "4")
	if !got.IsFavorite {
		t.Error("item 4 should be projected as favorite")
	}

	h.ledger.Toggle(ctx, 4)
	got, _ = h.items.Get(4)
	if got.IsFavorite {
		t.Error("toggle off should refresh the cached flag")
	}
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name string
		sets [][]int
		want []int
	}{
		{"no sets", nil, []int{}},
		{"single set sorted", [][]int{{3, 1, 2}}, []int{1, 2, 3}},
		{"overlap", [][]int{{1, 2, 3}, {2, 3, 4}}, []int{2, 3}},
		{"disjoint third", [][]int{{1, 2, 3}, {2, 3, 4}, {9}}, []int{}},
		{"duplicates", [][]int{{2, 2, 5}, {5, 2}}, []int{2, 5}},
		{"empty member", [][]int{{1, 2}, {}}, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intersect(tt.sets...); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Intersect(%v) = %v, want %v", tt.sets, got, tt.want)
			}
		})
	}
}

func TestSearchByFiltersIntersectsMemberships(t *testing.T) {
	fc := newFakeCatalog(30)
	fc.types["fire"] = []int{1, 2, 3}
	fc.eggGroups["monster"] = []int{2, 3, 4}
	fc.colors["red"] = []int{9}
	h := newHarness(t, fc)
	ctx := context.Background()

	page := h.catalog.SearchByFilters(ctx, domain.FilterQuery{Type: "Fire", EggGroup: "monster"}, 1)
	if got := ids(page.Items); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Fatalf("ids = %v, want [2 3]", got)
	}
	if page.Total != 2 {
		t.Errorf("Total = %d, want 2", page.Total)
	}

	page = h.catalog.SearchByFilters(ctx, domain.FilterQuery{Type: "fire", EggGroup: "monster", Color: "red"}, 1)
	if len(page.Items) != 0 || page.Total != 0 {
		t.Errorf("disjoint filter returned %v total %d", ids(page.Items), page.Total)
	}

	if got := fc.count("type-members"); got != 1 {
		t.Errorf("type membership calls = %d, want 1", got)
	}
	if got := fc.count("egg-group-members"); got != 1 {
		t.Errorf("egg group membership calls = %d, want 1", got)
	}
}

func TestSearchByFiltersCachesSignature(t *testing.T) {
	fc := newFakeCatalog(30)
	fc.types["water"] = []int{7, 8, 9}
	h := newHarness(t, fc)
	ctx := context.Background()

	first := h.catalog.SearchByFilters(ctx, domain.FilterQuery{Type: "water"}, 1)
	second := h.catalog.SearchByFilters(ctx, domain.FilterQuery{Type: " WATER "}, 1)
	if !reflect.DeepEqual(ids(first.Items), ids(second.Items)) {
		t.Errorf("repeated filter differs: %v vs %v", ids(first.Items), ids(second.Items))
	}
	if got := fc.count("type-members"); got != 1 {
		t.Errorf("type membership calls = %d, want 1", got)
	}
	if got := fc.count("item-detail"); got != 3 {
		t.Errorf("detail calls = %d, want 3", got)
	}
}

func TestSearchByFiltersPaginates(t *testing.T) {
	fc := newFakeCatalog(30)
	var all []int
	for id := 1; id <= 20; id++ {
		all = append(all, id)
	}
	fc.types["normal"] = all
	h := newHarness(t, fc)

	page := h.catalog.SearchByFilters(context.Background(), domain.FilterQuery{Type: "normal"}, 2)
	if got := ids(page.Items); !reflect.DeepEqual(got, []int{13, 14, 15, 16, 17, 18, 19, 20}) {
		t.Errorf("page 2 ids = %v", got)
	}
	if page.Total != 20 {
		t.Errorf("Total = %d, want 20", page.Total)
	}

	page = h.catalog.SearchByFilters(context.Background(), domain.FilterQuery{Type: "normal"}, 5)
	if len(page.Items) != 0 || page.Total != 20 {
		t.Errorf("page past the end = %v total %d", ids(page.Items), page.Total)
	}
}

func TestSearchByFiltersEmptyFilterReturnsCache(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)
	ctx := context.Background()

	h.catalog.FetchByID(ctx, "5")
	h.catalog.FetchByID(ctx, "2")
	before := fc.count("item-detail")

	page := h.catalog.SearchByFilters(ctx, domain.FilterQuery{}, 1)
	if got := ids(page.Items); !reflect.DeepEqual(got, []int{2, 5}) {
		t.Errorf("ids = %v, want [2 5]", got)
	}
	if fc.count("item-detail") != before {
		t.Error("empty filter should not hit the network")
	}
}

func TestSearchByFiltersHeightOnlyUsesCache(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)
	ctx := context.Background()

	h.catalog.LoadPage(ctx, 1)
	height := 3
	page := h.catalog.SearchByFilters(ctx, domain.FilterQuery{HeightUnits: &height}, 1)
	if got := ids(page.Items); !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("ids = %v, want [3]", got)
	}
}

func TestSearchByFiltersHeightWithMembership(t *testing.T) {
	fc := newFakeCatalog(30)
	fc.types["fire"] = []int{13, 5, 3}
	h := newHarness(t, fc)

	height := 3
	page := h.catalog.SearchByFilters(context.Background(), domain.FilterQuery{Type: "fire", HeightUnits: &height}, 1)
	if got := ids(page.Items); !reflect.DeepEqual(got, []int{3, 13}) {
		t.Errorf("ids = %v, want [3 13]", got)
	}
}

func TestSearchByFiltersUnknownValueIsEmpty(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)

	page := h.catalog.SearchByFilters(context.Background(), domain.FilterQuery{Type: "ghost"}, 1)
	if page.Items == nil || len(page.Items) != 0 {
		t.Errorf("unknown type = %v, want empty non-nil", page.Items)
	}
}

func TestSearchByFiltersTransportErrorIsEmpty(t *testing.T) {
	fc := newFakeCatalog(30)
	fc.failTypes = true
	fc.colors["red"] = []int{1}
	h := newHarness(t, fc)

	page := h.catalog.SearchByFilters(context.Background(), domain.FilterQuery{Type: "fire", Color: "red"}, 1)
	if len(page.Items) != 0 || page.Total != 0 {
		t.Errorf("failing filter = %v total %d", ids(page.Items), page.Total)
	}
}

func TestFilterByNameOrID(t *testing.T) {
	fc := newFakeCatalog(30)
	h := newHarness(t, fc)
	ctx := context.Background()

	if got := h.catalog.FilterByNameOrID(ctx, "   "); got == nil || len(got) != 0 {
		t.Errorf("blank term = %v, want empty non-nil", got)
	}
	if fc.count("item-detail") != 0 {
		t.Error("blank term should not hit the network")
	}

	if got := ids(h.catalog.FilterByNameOrID(ctx, "12")); !reflect.DeepEqual(got, []int{12}) {
		t.Errorf("id search = %v, want [12]", got)
	}
	if got := ids(h.catalog.FilterByNameOrID(ctx, "Item-12")); !reflect.DeepEqual(got, []int{12}) {
		t.Errorf("name search = %v, want [12]", got)
	}
	if got := h.catalog.FilterByNameOrID(ctx, "missingno"); len(got) != 0 {
		t.Errorf("unknown name = %v, want empty", got)
	}
}
