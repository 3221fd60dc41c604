package domain

import (
	"fmt"
	"strings"
	"time"
)

type Stat struct {
	Name      string `json:"name"`
	BaseValue int    `json:"baseValue"`
}

type Move struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CatalogItem is a fully loaded creature. IsFavorite is a projection of the
// favorites ledger and is recomputed whenever the item enters the cache.
type CatalogItem struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	HeightUnits *int     `json:"heightUnits,omitempty"`
	Types       []string `json:"types"`
	Abilities   []string `json:"abilities"`
	Stats       []Stat   `json:"stats"`
	Moves       []Move   `json:"moves,omitempty"`
	Artwork     string   `json:"artwork,omitempty"`
	Description string   `json:"description"`
	IsFavorite  bool     `json:"isFavorite"`
}

// Clone returns a deep copy so cache readers never share slices with the table.
func (c CatalogItem) Clone() CatalogItem {
	out := c
	if c.HeightUnits != nil {
		h := *c.HeightUnits
		out.HeightUnits = &h
	}
	out.Types = append([]string(nil), c.Types...)
	out.Abilities = append([]string(nil), c.Abilities...)
	out.Stats = append([]Stat(nil), c.Stats...)
	out.Moves = append([]Move(nil), c.Moves...)
	return out
}

// DisplayID formats an id the way the catalog renders it, e.g. #007.
func DisplayID(id int) string {
	return fmt.Sprintf("#%03d", id)
}

// FilterQuery is a compound attribute filter. Empty string / nil fields mean
// "no constraint from this field".
type FilterQuery struct {
	Type        string `json:"type,omitempty"`
	EggGroup    string `json:"eggGroup,omitempty"`
	Color       string `json:"color,omitempty"`
	HeightUnits *int   `json:"heightUnits,omitempty"`
}

func (f FilterQuery) Normalize() FilterQuery {
	return FilterQuery{
		Type:        strings.ToLower(strings.TrimSpace(f.Type)),
		EggGroup:    strings.ToLower(strings.TrimSpace(f.EggGroup)),
		Color:       strings.ToLower(strings.TrimSpace(f.Color)),
		HeightUnits: f.HeightUnits,
	}
}

func (f FilterQuery) IsEmpty() bool {
	n := f.Normalize()
	return n.Type == "" && n.EggGroup == "" && n.Color == "" && n.HeightUnits == nil
}

// Signature is the deterministic cache key for a query: lower-cased, missing
// fields omitted, fixed field order.
func (f FilterQuery) Signature() string {
	n := f.Normalize()
	var parts []string
	if n.Type != "" {
		parts = append(parts, "type="+n.Type)
	}
	if n.EggGroup != "" {
		parts = append(parts, "eggGroup="+n.EggGroup)
	}
	if n.Color != "" {
		parts = append(parts, "color="+n.Color)
	}
	if n.HeightUnits != nil {
		parts = append(parts, fmt.Sprintf("height=%d", *n.HeightUnits))
	}
	return strings.Join(parts, "&")
}

// Page is one page of resolved catalog items.
type Page struct {
	Number int           `json:"page"`
	Size   int           `json:"pageSize"`
	Total  int           `json:"total"`
	Items  []CatalogItem `json:"items"`
}

func (p Page) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return (p.Total + p.Size - 1) / p.Size
}

type Option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type BattleStatus string

const (
	BattlePending  BattleStatus = "PENDING"
	BattleActive   BattleStatus = "ACTIVE"
	BattleFinished BattleStatus = "FINISHED"
)

func (s BattleStatus) Valid() bool {
	switch s {
	case BattlePending, BattleActive, BattleFinished:
		return true
	}
	return false
}

type PlayerState struct {
	UserID           string `json:"userId"`
	ActiveCreatureID int    `json:"pokemonId"`
	MaxHP            int    `json:"maxHp"`
	CurrentHP        int    `json:"currentHp"`
	ChosenMoves      []Move `json:"moves"`
}

// HPPercent is CurrentHP as a percentage of MaxHP; 100 when MaxHP is unknown.
func (p PlayerState) HPPercent() float64 {
	if p.MaxHP <= 0 {
		return 100
	}
	return float64(p.CurrentHP) / float64(p.MaxHP) * 100
}

// BattleState is the server-authoritative snapshot. It is replaced wholesale
// on every push and never mutated locally.
type BattleState struct {
	BattleID       string        `json:"battleId"`
	Players        []PlayerState `json:"players"`
	ActivePlayerID string        `json:"activePlayerId"`
	TurnNumber     int           `json:"turnNumber"`
	TurnExpiresAt  int64         `json:"turnExpiresAt"`
	Status         BattleStatus  `json:"status"`
	WinnerID       string        `json:"winnerId,omitempty"`
}

func (s BattleState) Validate() error {
	if s.BattleID == "" {
		return fmt.Errorf("battle state missing battleId")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("battle state has unknown status %q", s.Status)
	}
	if len(s.Players) != 2 {
		return fmt.Errorf("battle state must carry 2 players, got %d", len(s.Players))
	}
	if s.Status == BattleFinished && s.WinnerID == "" {
		return fmt.Errorf("finished battle state missing winnerId")
	}
	if s.Status != BattleFinished && s.WinnerID != "" {
		return fmt.Errorf("unfinished battle state carries winnerId")
	}
	return nil
}

// Deadline converts TurnExpiresAt (unix milliseconds) to a time; zero when unset.
func (s BattleState) Deadline() time.Time {
	if s.TurnExpiresAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.TurnExpiresAt)
}

func (s BattleState) Clone() BattleState {
	out := s
	out.Players = make([]PlayerState, len(s.Players))
	for i, p := range s.Players {
		p.ChosenMoves = append([]Move(nil), p.ChosenMoves...)
		out.Players[i] = p
	}
	return out
}

const EventDamage = "DAMAGE"

type BattleEvent struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	Amount int    `json:"amount,omitempty"`
}

type Opponent struct {
	Name       string `json:"name"`
	Artwork    string `json:"artwork"`
	CreatureID int    `json:"pokemonId"`
	Moves      []Move `json:"moves"`
}

type MatchFound struct {
	RoomID     string   `json:"roomId"`
	BattleID   string   `json:"battleId"`
	SelfUserID string   `json:"selfUserId"`
	Opponent   Opponent `json:"opponent"`
}

type OpponentLeft struct {
	RoomID string `json:"roomId"`
}

type FindMatchRequest struct {
	DisplayName string `json:"name"`
	ArtworkURL  string `json:"artwork"`
	CreatureID  int    `json:"pokemonId"`
	Moves       []Move `json:"moves"`
}

type JoinBattleRequest struct {
	BattleID string `json:"battleId"`
}

const ActionAttack = "ATTACK"

// BattleAction references a move by its index in the player's chosen moves.
type BattleAction struct {
	Type      string `json:"type"`
	MoveID    int    `json:"moveId"`
	RequestID string `json:"requestId,omitempty"`
}

type BattleActionRequest struct {
	BattleID string       `json:"battleId"`
	Action   BattleAction `json:"action"`
}
