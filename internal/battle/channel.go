package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"pokedex/internal/auth"
	"pokedex/internal/config"
	"pokedex/internal/constants"
	"pokedex/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Outbound and inbound channel events.
const (
	EventFindMatch    = "find_match"
	EventCancelMatch  = "cancel_match"
	EventJoin         = "battle:join"
	EventAction       = "battle:action"
	EventMatchFound   = "match_found"
	EventOpponentLeft = "opponent_left"
	EventState        = "battle:state"
	EventEvents       = "battle:events"
)

var ErrNoChannelURL = errors.New("battle channel url not configured")

// Envelope is the wire frame for every channel message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Channel is an open connection to the battle server.
type Channel interface {
	Emit(event string, payload any) error
	Close() error
}

// InboundFunc receives every decoded frame pushed by the server.
type InboundFunc func(event string, data json.RawMessage)

// ClosedFunc is called once when the read side stops. err is nil when the
// channel was closed locally.
type ClosedFunc func(err error)

type Dialer interface {
	Dial(ctx context.Context, inbound InboundFunc, closed ClosedFunc) (Channel, error)
}

type tokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// WSDialer opens battle channels over websocket.
type WSDialer struct {
	url     string
	tokens  tokenSource
	dialer  *websocket.Dialer
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewWSDialer(cfg *config.Config, tokens *auth.TokenSource, m *metrics.Metrics, logger zerolog.Logger) *WSDialer {
	return newWSDialer(cfg.BattleURL, tokens, m, logger)
}

func newWSDialer(url string, tokens tokenSource, m *metrics.Metrics, logger zerolog.Logger) *WSDialer {
	return &WSDialer{
		url:    url,
		tokens: tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.ChannelDialTimeout,
		},
		metrics: m,
		logger:  logger.With().Str("component", "battle_channel").Logger(),
	}
}

func (d *WSDialer) Dial(ctx context.Context, inbound InboundFunc, closed ClosedFunc) (Channel, error) {
	if d.url == "" {
		return nil, ErrNoChannelURL
	}

	sessionID := uuid.New().String()
	header := http.Header{}
	header.Set("X-Session-Id", sessionID)
	if d.tokens != nil {
		if token, ok := d.tokens.Token(ctx); ok {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, constants.ChannelDialTimeout)
	defer cancel()

	conn, resp, err := d.dialer.DialContext(dialCtx, d.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial battle channel: %w", err)
	}

	ch := &wsChannel{
		conn:    conn,
		metrics: d.metrics,
		logger:  d.logger.With().Str("session_id", sessionID).Logger(),
	}
	ch.logger.Info().Str("url", d.url).Msg("battle channel connected")
	go ch.readLoop(inbound, closed)
	return ch, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func (c *wsChannel) Emit(event string, payload any) error {
	frame := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		frame.Data = data
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return net.ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", event, err)
	}
	c.metrics.ChannelMessage(event, "out")
	c.logger.Debug().Str("event", event).Msg("emitted")
	return nil
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if err = c.conn.Close(); errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

func (c *wsChannel) readLoop(inbound InboundFunc, closed ClosedFunc) {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			_ = c.conn.Close()
			if c.closed.Load() {
				closed(nil)
				return
			}
			c.logger.Warn().Err(err).Msg("battle channel read failed")
			closed(err)
			return
		}

		var frame Envelope
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Event == "" {
			c.logger.Warn().Err(err).Msg("discarding malformed battle frame")
			continue
		}
		c.metrics.ChannelMessage(frame.Event, "in")
		inbound(frame.Event, frame.Data)
	}
}
