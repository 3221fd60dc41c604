package domain

import "testing"

func intPtr(v int) *int { return &v }

func TestFilterSignature(t *testing.T) {
	tests := []struct {
		name string
		q    FilterQuery
		want string
	}{
		{"empty", FilterQuery{}, ""},
		{"lowercased and trimmed", FilterQuery{Type: " Fire "}, "type=fire"},
		{"stable order", FilterQuery{Color: "Red", Type: "fire", EggGroup: "Monster"}, "type=fire&eggGroup=monster&color=red"},
		{"height", FilterQuery{EggGroup: "dragon", HeightUnits: intPtr(7)}, "eggGroup=dragon&height=7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Signature(); got != tt.want {
				t.Fatalf("Signature() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilterIsEmpty(t *testing.T) {
	if !(FilterQuery{Type: "   "}).IsEmpty() {
		t.Fatalf("whitespace-only filter should be empty")
	}
	if (FilterQuery{HeightUnits: intPtr(0)}).IsEmpty() {
		t.Fatalf("height-only filter should not be empty")
	}
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	orig := CatalogItem{ID: 1, Types: []string{"grass"}, HeightUnits: intPtr(7)}
	cp := orig.Clone()
	cp.Types[0] = "fire"
	*cp.HeightUnits = 9
	if orig.Types[0] != "grass" || *orig.HeightUnits != 7 {
		t.Fatalf("clone shares memory with original: %+v", orig)
	}
}

func TestBattleStateValidate(t *testing.T) {
	two := []PlayerState{{UserID: "a"}, {UserID: "b"}}
	tests := []struct {
		name  string
		state BattleState
		ok    bool
	}{
		{"active", BattleState{BattleID: "b1", Players: two, Status: BattleActive}, true},
		{"finished with winner", BattleState{BattleID: "b1", Players: two, Status: BattleFinished, WinnerID: "a"}, true},
		{"finished without winner", BattleState{BattleID: "b1", Players: two, Status: BattleFinished}, false},
		{"winner while active", BattleState{BattleID: "b1", Players: two, Status: BattleActive, WinnerID: "a"}, false},
		{"unknown status", BattleState{BattleID: "b1", Players: two, Status: "PAUSED"}, false},
		{"one player", BattleState{BattleID: "b1", Players: two[:1], Status: BattleActive}, false},
		{"missing id", BattleState{Players: two, Status: BattleActive}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.ok != (err == nil) {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestHPPercentAndDisplayID(t *testing.T) {
	if got := (PlayerState{MaxHP: 200, CurrentHP: 50}).HPPercent(); got != 25 {
		t.Fatalf("expected 25, got %v", got)
	}
	if got := (PlayerState{}).HPPercent(); got != 100 {
		t.Fatalf("expected 100 for unknown max hp, got %v", got)
	}
	if DisplayID(7) != "#007" || DisplayID(151) != "#151" || DisplayID(1010) != "#1010" {
		t.Fatalf("unexpected display ids")
	}
}

func TestPageTotalPages(t *testing.T) {
	if got := (Page{Size: 12, Total: 25}).TotalPages(); got != 3 {
		t.Fatalf("expected 3 pages, got %d", got)
	}
}
