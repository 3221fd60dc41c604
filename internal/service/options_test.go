package service

import (
	"context"
	"reflect"
	"testing"

	"pokedex/internal/domain"

	"github.com/rs/zerolog"
)

func TestFilterOptionsTypesExcludesHidden(t *testing.T) {
	fc := newFakeCatalog(1)
	o := NewFilterOptions(fc, zerolog.Nop())

	want := []domain.Option{{Name: "normal", Value: "normal"}, {Name: "fire", Value: "fire"}}
	if got := o.Types(context.Background()); !reflect.DeepEqual(got, want) {
		t.Errorf("Types = %v, want %v", got, want)
	}
	o.Types(context.Background())
	if got := fc.count("type-list"); got != 1 {
		t.Errorf("type list calls = %d, want 1", got)
	}
}

func TestFilterOptionsEggGroups(t *testing.T) {
	fc := newFakeCatalog(1)
	o := NewFilterOptions(fc, zerolog.Nop())

	got := o.EggGroups(context.Background())
	if len(got) != 2 || got[0].Value != "monster" {
		t.Errorf("EggGroups = %v", got)
	}
	o.EggGroups(context.Background())
	if n := fc.count("egg-group-list"); n != 1 {
		t.Errorf("egg group list calls = %d, want 1", n)
	}
}

func TestFilterOptionsColors(t *testing.T) {
	o := NewFilterOptions(newFakeCatalog(1), zerolog.Nop())

	got := o.Colors()
	if len(got) != 10 {
		t.Fatalf("got %d colors, want 10", len(got))
	}
	if got[0] != (domain.Option{Name: "Black", Value: "black"}) {
		t.Errorf("first color = %+v", got[0])
	}
}
