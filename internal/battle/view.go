package battle

import (
	"slices"

	"pokedex/internal/domain"
)

// View is the read-only battle state handed to the UI.
type View struct {
	Version           uint64              `json:"version"`
	Phase             Phase               `json:"phase"`
	RoomID            string              `json:"roomId,omitempty"`
	BattleID          string              `json:"battleId,omitempty"`
	SelfUserID        string              `json:"selfUserId,omitempty"`
	PlayerName        string              `json:"playerName,omitempty"`
	PlayerArtwork     string              `json:"playerArtwork,omitempty"`
	PlayerMoves       []domain.Move       `json:"playerMoves"`
	Opponent          domain.Opponent     `json:"opponent"`
	State             *domain.BattleState `json:"state,omitempty"`
	RemainingSeconds  int                 `json:"remainingSeconds"`
	TurnLabel         string              `json:"turnLabel"`
	IsMyTurn          bool                `json:"isMyTurn"`
	PlayerHPPercent   float64             `json:"playerHpPercent"`
	OpponentHPPercent float64             `json:"opponentHpPercent"`
	Effect            *Effect             `json:"effect,omitempty"`
	Notice            string              `json:"notice,omitempty"`
}

func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Synchronizer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Synchronizer) viewLocked() View {
	v := View{
		Version:           s.version,
		Phase:             s.phase,
		RoomID:            s.roomID,
		BattleID:          s.battleID,
		SelfUserID:        s.selfUserID,
		PlayerName:        s.player.DisplayName,
		PlayerArtwork:     s.player.ArtworkURL,
		PlayerMoves:       slices.Clone(s.player.Moves),
		Opponent:          s.opponent,
		RemainingSeconds:  s.remaining,
		TurnLabel:         s.turnLabelLocked(),
		IsMyTurn:          s.isMyTurnLocked(),
		PlayerHPPercent:   100,
		OpponentHPPercent: 100,
		Notice:            s.notice,
	}
	if v.PlayerMoves == nil {
		v.PlayerMoves = []domain.Move{}
	}
	v.Opponent.Moves = slices.Clone(s.opponent.Moves)
	if s.effect != nil {
		e := *s.effect
		v.Effect = &e
	}
	if s.state != nil {
		state := s.state.Clone()
		v.State = &state
		if len(state.Players) >= 2 {
			me := s.playerIndexLocked()
			v.PlayerHPPercent = state.Players[me].HPPercent()
			v.OpponentHPPercent = state.Players[1-me].HPPercent()
		}
	}
	return v
}

func (s *Synchronizer) isMyTurnLocked() bool {
	return s.state != nil && s.selfUserID != "" && s.state.ActivePlayerID == s.selfUserID
}

func (s *Synchronizer) turnLabelLocked() string {
	if s.state == nil {
		return ""
	}
	if s.state.Status == domain.BattleFinished {
		if s.selfUserID != "" && s.state.WinnerID == s.selfUserID {
			return "You won!"
		}
		return "You lost"
	}
	if s.isMyTurnLocked() {
		return "Your turn"
	}
	name := s.opponent.Name
	if name == "" {
		name = defaultOpponentName
	}
	return name + "'s turn"
}

// playerIndexLocked finds the local player's slot, by user id first and then
// by creature id; it falls back to the first slot.
func (s *Synchronizer) playerIndexLocked() int {
	players := s.state.Players[:2]
	for i, p := range players {
		if s.selfUserID != "" && p.UserID == s.selfUserID {
			return i
		}
	}
	for i, p := range players {
		if s.player.CreatureID > 0 && p.ActiveCreatureID == s.player.CreatureID {
			return i
		}
	}
	return 0
}
