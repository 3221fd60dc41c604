package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"pokedex/internal/constants"
	"pokedex/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhaseMatchmaking  Phase = "MATCHMAKING"
	PhaseActive       Phase = "ACTIVE"
	PhaseFinished     Phase = "FINISHED"
	PhaseDisconnected Phase = "DISCONNECTED"
)

type Side string

const (
	SidePlayer   Side = "player"
	SideOpponent Side = "opponent"
)

var hitEffects = []string{"fx-hit-1", "fx-hit-2", "fx-hit-3"}

const defaultOpponentName = "Opponent"

var (
	ErrNotIdle          = errors.New("battle already in progress")
	ErrInvalidSelection = errors.New("invalid battle selection")
)

// Effect is the transient marker shown on one side after a damage event.
type Effect struct {
	Side   Side   `json:"side"`
	Class  string `json:"class"`
	Amount int    `json:"amount"`
}

// Synchronizer reconciles the battle channel into local view state. Server
// snapshots replace the local state wholesale; event batches only drive the
// transient hit effect.
type Synchronizer struct {
	dialer Dialer

	mu      sync.Mutex
	phase   Phase
	session uint64
	version uint64
	channel Channel

	player     domain.FindMatchRequest
	roomID     string
	battleID   string
	selfUserID string
	opponent   domain.Opponent
	state      *domain.BattleState
	remaining  int
	notice     string

	effect      *Effect
	effectGen   uint64
	effectTimer *time.Timer
	tickerStop  chan struct{}

	now            func() time.Time
	pickEffect     func(n int) int
	tickInterval   time.Duration
	effectDuration time.Duration

	listenersMu sync.Mutex
	listeners   map[int]func(View)
	nextID      int

	logger zerolog.Logger
}

func NewSynchronizer(dialer *WSDialer, logger zerolog.Logger) *Synchronizer {
	return New(dialer, logger)
}

func New(dialer Dialer, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		dialer:         dialer,
		phase:          PhaseIdle,
		remaining:      constants.DefaultTurnSeconds,
		now:            time.Now,
		pickEffect:     rand.IntN,
		tickInterval:   constants.TurnTickInterval,
		effectDuration: constants.HitEffectDuration,
		listeners:      make(map[int]func(View)),
		logger:         logger.With().Str("component", "battle").Logger(),
	}
}

// StartMatchmaking opens a channel and asks the server for an opponent.
func (s *Synchronizer) StartMatchmaking(ctx context.Context, req domain.FindMatchRequest) error {
	if req.CreatureID <= 0 || len(req.Moves) == 0 || len(req.Moves) > constants.SelectedMoveCount {
		return fmt.Errorf("%w: need a creature and 1 to %d moves", ErrInvalidSelection, constants.SelectedMoveCount)
	}
	if req.DisplayName == "" {
		req.DisplayName = "Player"
	}
	req.Moves = slices.Clone(req.Moves)

	s.mu.Lock()
	if s.phase != PhaseIdle && s.phase != PhaseDisconnected {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.resetLocked()
	session := s.session
	s.phase = PhaseMatchmaking
	s.player = req
	s.version++
	s.mu.Unlock()
	s.notify()

	ch, err := s.dialer.Dial(ctx, s.inbound(session), s.closed(session))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to open battle channel")
		s.disconnect(session)
		return fmt.Errorf("failed to start matchmaking: %w", err)
	}

	s.mu.Lock()
	if s.session != session || s.phase != PhaseMatchmaking {
		s.mu.Unlock()
		_ = ch.Close()
		return errors.New("matchmaking abandoned while connecting")
	}
	s.channel = ch
	err = ch.Emit(EventFindMatch, req)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to request match")
		s.disconnect(session)
		return fmt.Errorf("failed to start matchmaking: %w", err)
	}
	s.logger.Info().Int("creature_id", req.CreatureID).Int("moves", len(req.Moves)).Msg("matchmaking started")
	return nil
}

// CancelMatch withdraws a pending matchmaking request and returns to idle.
func (s *Synchronizer) CancelMatch() bool {
	s.mu.Lock()
	if s.phase != PhaseMatchmaking {
		s.mu.Unlock()
		return false
	}
	if s.channel != nil {
		if err := s.channel.Emit(EventCancelMatch, nil); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cancel match")
		}
	}
	s.resetLocked()
	s.mu.Unlock()

	s.logger.Info().Msg("matchmaking cancelled")
	s.notify()
	return true
}

// SubmitMove sends the move at index moveIndex of the chosen moves. It is
// dropped without error unless the battle is active and it is the local
// player's turn.
func (s *Synchronizer) SubmitMove(moveIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.canActLocked() {
		s.logger.Debug().Int("move", moveIndex).Msg("move dropped, not our turn")
		return false
	}
	if moveIndex < 0 || moveIndex >= len(s.player.Moves) {
		s.logger.Debug().Int("move", moveIndex).Msg("move dropped, unknown move")
		return false
	}

	action := domain.BattleAction{Type: domain.ActionAttack, MoveID: moveIndex}
	if id, err := gonanoid.New(); err == nil {
		action.RequestID = id
	}
	req := domain.BattleActionRequest{BattleID: s.battleID, Action: action}
	if err := s.channel.Emit(EventAction, req); err != nil {
		s.logger.Warn().Err(err).Msg("failed to submit move")
		return false
	}

	s.logger.Debug().
		Str("battle_id", s.battleID).
		Int("turn", s.state.TurnNumber).
		Str("move", s.player.Moves[moveIndex].Name).
		Str("request_id", action.RequestID).
		Msg("move submitted")
	return true
}

func (s *Synchronizer) canActLocked() bool {
	return s.phase == PhaseActive &&
		s.channel != nil &&
		s.state != nil &&
		s.state.Status != domain.BattleFinished &&
		s.selfUserID != "" &&
		s.state.ActivePlayerID == s.selfUserID
}

// HandleMatchFound records the opponent and joins the battle.
func (s *Synchronizer) HandleMatchFound(m domain.MatchFound) {
	s.apply(func() bool { return s.matchFoundLocked(m) })
}

// HandleState replaces the local snapshot with state.
func (s *Synchronizer) HandleState(state domain.BattleState) {
	s.apply(func() bool { return s.stateLocked(state) })
}

// HandleEvents derives the hit effect from the latest damage event.
func (s *Synchronizer) HandleEvents(events []domain.BattleEvent) {
	s.apply(func() bool { return s.eventsLocked(events) })
}

func (s *Synchronizer) HandleOpponentLeft(m domain.OpponentLeft) {
	s.apply(func() bool { return s.opponentLeftLocked(m) })
}

// Reset leaves any battle, closes the channel and returns to idle.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.notify()
}

// Dispose cancels timers and closes the channel.
func (s *Synchronizer) Dispose() {
	s.Reset()
	s.logger.Debug().Msg("battle synchronizer disposed")
}

func (s *Synchronizer) apply(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if changed {
		s.version++
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Synchronizer) inbound(session uint64) InboundFunc {
	return func(event string, data json.RawMessage) {
		s.apply(func() bool {
			if s.session != session {
				return false
			}
			return s.dispatchLocked(event, data)
		})
	}
}

func (s *Synchronizer) closed(session uint64) ClosedFunc {
	return func(err error) {
		if err == nil {
			return
		}
		s.disconnect(session)
	}
}

func (s *Synchronizer) disconnect(session uint64) {
	s.apply(func() bool {
		if s.session != session {
			return false
		}
		s.channel = nil
		s.stopTickerLocked()
		s.cancelEffectLocked()
		if s.phase == PhaseFinished {
			return true
		}
		s.logger.Warn().Str("phase", string(s.phase)).Msg("battle channel lost")
		s.phase = PhaseDisconnected
		return true
	})
}

func (s *Synchronizer) dispatchLocked(event string, data json.RawMessage) bool {
	switch event {
	case EventMatchFound:
		var m domain.MatchFound
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Warn().Err(err).Msg("discarding malformed match_found")
			return false
		}
		return s.matchFoundLocked(m)
	case EventState:
		var state domain.BattleState
		if err := json.Unmarshal(data, &state); err != nil {
			s.logger.Warn().Err(err).Msg("discarding malformed battle state")
			return false
		}
		return s.stateLocked(state)
	case EventEvents:
		var events []domain.BattleEvent
		if err := json.Unmarshal(data, &events); err != nil {
			s.logger.Warn().Err(err).Msg("discarding malformed battle events")
			return false
		}
		return s.eventsLocked(events)
	case EventOpponentLeft:
		var m domain.OpponentLeft
		if len(data) > 0 {
			if err := json.Unmarshal(data, &m); err != nil {
				s.logger.Warn().Err(err).Msg("discarding malformed opponent_left")
				return false
			}
		}
		return s.opponentLeftLocked(m)
	default:
		s.logger.Debug().Str("event", event).Msg("ignoring unknown battle event")
		return false
	}
}

func (s *Synchronizer) matchFoundLocked(m domain.MatchFound) bool {
	if s.phase != PhaseMatchmaking {
		s.logger.Debug().Str("phase", string(s.phase)).Msg("ignoring match_found outside matchmaking")
		return false
	}
	if m.BattleID == "" || m.SelfUserID == "" {
		s.logger.Warn().Msg("discarding match_found without battle or user id")
		return false
	}

	s.roomID = m.RoomID
	s.battleID = m.BattleID
	s.selfUserID = m.SelfUserID
	s.opponent = m.Opponent
	s.opponent.Moves = slices.Clone(m.Opponent.Moves)
	if s.opponent.Name == "" {
		s.opponent.Name = defaultOpponentName
	}
	s.phase = PhaseActive
	s.remaining = s.countdownLocked()
	s.startTickerLocked()

	if s.channel != nil {
		if err := s.channel.Emit(EventJoin, domain.JoinBattleRequest{BattleID: m.BattleID}); err != nil {
			s.logger.Warn().Err(err).Str("battle_id", m.BattleID).Msg("failed to join battle")
		}
	}
	s.logger.Info().Str("battle_id", m.BattleID).Str("opponent", s.opponent.Name).Msg("match found")
	return true
}

func (s *Synchronizer) stateLocked(state domain.BattleState) bool {
	if err := state.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("discarding invalid battle state")
		return false
	}
	if s.phase != PhaseActive {
		s.logger.Debug().Str("phase", string(s.phase)).Msg("ignoring battle state")
		return false
	}
	if state.BattleID != s.battleID {
		s.logger.Warn().Str("battle_id", state.BattleID).Msg("discarding state for another battle")
		return false
	}

	snapshot := state.Clone()
	s.state = &snapshot
	if snapshot.Status == domain.BattleFinished {
		s.phase = PhaseFinished
		s.stopTickerLocked()
		s.logger.Info().Str("battle_id", s.battleID).Str("winner_id", snapshot.WinnerID).Msg("battle finished")
	}
	s.remaining = s.countdownLocked()
	return true
}

func (s *Synchronizer) eventsLocked(events []domain.BattleEvent) bool {
	if s.phase != PhaseActive && s.phase != PhaseFinished {
		return false
	}

	var last *domain.BattleEvent
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == domain.EventDamage {
			last = &events[i]
			break
		}
	}
	if last == nil {
		return false
	}

	side := SideOpponent
	if s.selfUserID != "" && last.Target == s.selfUserID {
		side = SidePlayer
	}
	s.effect = &Effect{Side: side, Class: hitEffects[s.pickEffect(len(hitEffects))], Amount: last.Amount}
	s.armEffectLocked()
	return true
}

func (s *Synchronizer) opponentLeftLocked(m domain.OpponentLeft) bool {
	if s.phase != PhaseMatchmaking && s.phase != PhaseActive {
		return false
	}
	if s.roomID != "" && m.RoomID != "" && m.RoomID != s.roomID {
		return false
	}

	s.logger.Info().Str("room_id", m.RoomID).Msg("opponent left")
	s.resetLocked()
	s.notice = "Opponent left the battle"
	return true
}

// armEffectLocked restarts the effect window. The generation check makes a
// superseded timer a no-op even if Stop loses the race with its callback.
func (s *Synchronizer) armEffectLocked() {
	if s.effectTimer != nil {
		s.effectTimer.Stop()
	}
	s.effectGen++
	gen := s.effectGen
	s.effectTimer = time.AfterFunc(s.effectDuration, func() {
		s.apply(func() bool {
			if s.effectGen != gen {
				return false
			}
			s.effect = nil
			s.effectTimer = nil
			return true
		})
	})
}

func (s *Synchronizer) cancelEffectLocked() {
	if s.effectTimer != nil {
		s.effectTimer.Stop()
		s.effectTimer = nil
	}
	s.effectGen++
	s.effect = nil
}

func (s *Synchronizer) startTickerLocked() {
	if s.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	s.tickerStop = stop
	go s.runTicker(stop)
}

func (s *Synchronizer) stopTickerLocked() {
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
}

func (s *Synchronizer) runTicker(stop chan struct{}) {
	t := time.NewTicker(s.tickInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.apply(func() bool {
				if s.tickerStop != stop {
					return false
				}
				next := s.countdownLocked()
				if next == s.remaining {
					return false
				}
				s.remaining = next
				return true
			})
		}
	}
}

// countdownLocked is display only; the server ends turns.
func (s *Synchronizer) countdownLocked() int {
	if s.state == nil {
		return constants.DefaultTurnSeconds
	}
	if s.state.Status == domain.BattleFinished {
		return 0
	}
	deadline := s.state.Deadline()
	if deadline.IsZero() {
		return constants.DefaultTurnSeconds
	}
	left := deadline.Sub(s.now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

func (s *Synchronizer) resetLocked() {
	s.stopTickerLocked()
	s.cancelEffectLocked()
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("failed to close battle channel")
		}
		s.channel = nil
	}

	s.session++
	s.version++
	s.phase = PhaseIdle
	s.player = domain.FindMatchRequest{}
	s.roomID = ""
	s.battleID = ""
	s.selfUserID = ""
	s.opponent = domain.Opponent{}
	s.state = nil
	s.remaining = constants.DefaultTurnSeconds
	s.notice = ""
}

// Subscribe registers fn to receive the view after every change.
func (s *Synchronizer) Subscribe(fn func(View)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// notify reads the view at delivery time so the last delivery is never stale.
func (s *Synchronizer) notify() {
	s.listenersMu.Lock()
	fns := make([]func(View), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()
	if len(fns) == 0 {
		return
	}

	v := s.View()
	for _, fn := range fns {
		fn(v)
	}
}
