// Package transport maintains the persistent STOMP-over-WebSocket
// connection to the backend's alert topic. It reconnects on its own
// after a fixed delay until Disconnect is called.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/redalert/redalert/internal/clock"
	"github.com/redalert/redalert/internal/config"
	"github.com/redalert/redalert/internal/types"
)

// Health is a point-in-time view of the connection
type Health struct {
	State          types.ConnectionState `json:"state"`
	URL            string                `json:"url"`
	Topic          string                `json:"topic"`
	ConnectedSince time.Time             `json:"connected_since,omitempty"`
	LastMessage    time.Time             `json:"last_message,omitempty"`
	LastError      string                `json:"last_error,omitempty"`
	ReconnectCount int                   `json:"reconnect_count"`
	MessageCount   int64                 `json:"message_count"`
	DiscardedCount int64                 `json:"discarded_count"`
	RetryPending   bool                  `json:"retry_pending"`
}

// Option customizes a Client
type Option func(*Client)

// WithClock replaces the real clock, for tests
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithDialer replaces the default WebSocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(cl *Client) { cl.dialer = d }
}

// Client owns one connection to the alert stream
type Client struct {
	cfg       config.Stream
	logger    zerolog.Logger
	clock     clock.Clock
	dialer    *websocket.Dialer
	tlsConfig *tls.Config
	hs        handshake

	mu         sync.Mutex
	state      types.ConnectionState
	gen        uint64 // bumped on every attempt and on Disconnect
	active     bool   // between Connect and Disconnect
	conn       *stompConn
	cancelDial context.CancelFunc
	retry      *clock.Timer
	health     Health

	events        dispatcher
	stateHandlers handlers[types.ConnectionState]
	alertHandlers handlers[types.Alert]
}

// New creates a disconnected client. Nothing is dialed until Connect.
func New(cfg config.Stream, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger.With().Str("component", "transport").Logger(),
		clock:  clock.Real(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
			Subprotocols:     []string{"v12.stomp"},
		},
		hs: handshake{
			host:  cfg.Host,
			login: cfg.Login,
			send:  cfg.HeartbeatOutgoing,
			recv:  cfg.HeartbeatIncoming,
		},
		health: Health{URL: cfg.URL, Topic: cfg.Topic},
	}
	if cfg.PasscodeEnv != "" {
		c.hs.passcode = os.Getenv(cfg.PasscodeEnv)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tlsConfig != nil {
		c.dialer.TLSClientConfig = c.tlsConfig
	}
	return c
}

// State returns the current connection state
func (c *Client) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Health returns the current health snapshot
func (c *Client) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.health
	h.State = c.state
	h.RetryPending = c.retry != nil
	return h
}

// OnStateChange registers fn for every state transition. The returned
// func removes it and may be called any number of times.
func (c *Client) OnStateChange(fn func(types.ConnectionState)) func() {
	return c.stateHandlers.add(fn)
}

// OnAlert registers fn for every well-formed alert on the topic
func (c *Client) OnAlert(fn func(types.Alert)) func() {
	return c.alertHandlers.add(fn)
}

// Connect starts connecting unless a connection is already up or in
// progress. A pending reconnect is pulled forward. Never blocks.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.Connecting || c.state == types.Connected {
		return
	}
	c.active = true
	c.stopRetryLocked()
	c.startAttemptLocked()
}

// Disconnect tears the connection down and cancels any pending
// reconnect before returning. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.active = false
	c.stopRetryLocked()
	c.gen++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(types.Disconnected)
	c.mu.Unlock()

	if conn != nil {
		// goodbye frames go out in the background; the client is already
		// disconnected and a stalled peer must not hold up the caller
		go conn.disconnect()
		c.logger.Info().Msg("Disconnected from alert stream")
	}
}

func (c *Client) startAttemptLocked() {
	c.gen++
	gen := c.gen
	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = config.DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	c.cancelDial = cancel
	c.setStateLocked(types.Connecting)

	go c.attempt(ctx, cancel, gen)
}

func (c *Client) attempt(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	c.logger.Debug().Str("url", c.cfg.URL).Msg("Connecting to alert stream")
	conn, err := dialStomp(ctx, c.dialer, c.cfg.URL, c.hs)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.close()
		}
		return
	}
	c.cancelDial = nil
	if err != nil {
		c.failLocked(gen, types.Error, err)
		c.mu.Unlock()
		return
	}
	c.conn = conn
	c.health.LastError = ""
	c.setStateLocked(types.Connected)
	c.mu.Unlock()

	c.logger.Info().
		Str("url", c.cfg.URL).
		Str("version", conn.version).
		Dur("heartbeat_send", conn.sendEvery).
		Dur("heartbeat_timeout", conn.readTimeout).
		Msg("Connected to alert stream")

	subID := "sub-" + uuid.NewString()
	if err := conn.subscribe(subID, c.cfg.Topic); err != nil {
		c.connectionLost(gen, conn, err)
		return
	}
	c.logger.Info().Str("topic", c.cfg.Topic).Str("subscription", subID).Msg("Subscribed to alert topic")

	go c.heartbeatLoop(gen, conn)
	c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn *stompConn) {
	for {
		f, err := conn.next()
		if err != nil {
			c.connectionLost(gen, conn, err)
			return
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case cmdMessage:
			c.onMessage(f.Header.Get(hdrDestination), f.Body)
		case cmdError:
			c.connectionLost(gen, conn, errorFrame(f))
			return
		case cmdReceipt:
		default:
			c.logger.Debug().Str("command", f.Command).Msg("Ignoring unexpected frame")
		}
	}
}

func (c *Client) heartbeatLoop(gen uint64, conn *stompConn) {
	if conn.sendEvery <= 0 {
		return
	}
	ticker := c.clock.NewTicker(conn.sendEvery)
	defer ticker.Stop()
	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if err := conn.heartbeat(); err != nil {
				c.connectionLost(gen, conn, err)
				return
			}
		}
	}
}

// onMessage handles one frame from the alert topic. Malformed payloads
// are dropped without touching the connection.
func (c *Client) onMessage(destination string, body []byte) {
	alert, err := types.ParseAlert(body)

	c.mu.Lock()
	if err != nil {
		c.health.DiscardedCount++
	} else {
		c.health.MessageCount++
		c.health.LastMessage = c.clock.Now()
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("destination", destination).
			Int("bytes", len(body)).
			Msg("Discarding malformed alert")
		return
	}

	c.logger.Info().
		Str("title", alert.Title).
		Bool("urgent", alert.IsUrgent).
		Msg("Alert received")

	c.events.post(func() { c.alertHandlers.emit(alert) })
}

// connectionLost is reported by the read and heartbeat loops. Only the
// first report for the live connection counts.
func (c *Client) connectionLost(gen uint64, conn *stompConn, err error) {
	c.mu.Lock()
	if gen != c.gen || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	state := classify(err)
	c.failLocked(gen, state, err)
	c.mu.Unlock()

	conn.close()
}

// failLocked records the failure and arms the fixed-delay reconnect
func (c *Client) failLocked(gen uint64, state types.ConnectionState, err error) {
	c.health.LastError = err.Error()
	c.health.ConnectedSince = time.Time{}
	c.setStateLocked(state)

	delay := c.cfg.ReconnectDelay
	if delay <= 0 {
		delay = config.DefaultReconnectDelay
	}

	evt := c.logger.Warn()
	if state == types.Disconnected {
		evt = c.logger.Info()
	}
	evt.Err(err).Dur("retry_in", delay).Msg("Alert stream connection lost, will retry")

	if !c.active {
		return
	}
	c.stopRetryLocked()
	c.retry = c.clock.AfterFunc(delay, func() { c.reconnect(gen) })
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.active {
		return
	}
	c.retry = nil
	c.health.ReconnectCount++
	c.startAttemptLocked()
}

func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) setStateLocked(s types.ConnectionState) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	if s == types.Connected {
		c.health.ConnectedSince = c.clock.Now()
	}
	c.logger.Debug().Stringer("from", prev).Stringer("to", s).Msg("Connection state changed")
	c.events.post(func() { c.stateHandlers.emit(s) })
}

// classify maps a failure to the state it leaves the client in: a closed
// socket is a disconnect, everything else is a protocol error
func classify(err error) types.ConnectionState {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		return types.Disconnected
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return types.Disconnected
	default:
		return types.Error
	}
}
