// Package channel maintains the single logical websocket connection to
// the remote executor: reconnect with exponential backoff, typed
// publish/subscribe dispatch of inbound events, and fire-and-forget
// command delivery.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/atelier-run/atelier/internal/logging"
	"github.com/atelier-run/atelier/internal/metrics"
	"github.com/atelier-run/atelier/pkg/domain"
)

// State is the connection lifecycle, modeled as tagged variants rather
// than booleans so half-states are unrepresentable.
type State int

const (
	// StateDisconnected: no connection, not currently trying.
	StateDisconnected State = iota
	// StateConnecting: a dial or backoff wait is in progress.
	StateConnecting
	// StateConnected: the connection is live.
	StateConnected
	// StateDown: the attempt budget is exhausted. Terminal until Connect
	// is called again; callers surface this as a persistent-disconnect
	// condition, distinct from "nothing running".
	StateDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDown:
		return "down"
	}
	return "unknown"
}

// Handler consumes one inbound event.
type Handler func(domain.Event)

// Subscription identifies a registered handler for Unsubscribe.
type Subscription int

const writeTimeout = 5 * time.Second

// Channel is a resilient duplex transport to one executor.
// Implements ports.Transport.
type Channel struct {
	url    string
	dialer *websocket.Dialer

	mu      sync.Mutex
	writeMu sync.Mutex // websocket allows one concurrent writer
	conn    *websocket.Conn
	state   State
	subs    map[domain.EventType]map[Subscription]Handler
	nextSub Subscription

	onOpen  []func()
	onClose []func()
	onState []func(State)

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	logger  *slog.Logger
	metrics *metrics.Channel
}

// Option configures the Channel.
type Option func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// WithBackoff tunes reconnection: delays double from base up to ceiling,
// and after maxAttempts consecutive failures the channel goes Down.
func WithBackoff(base, ceiling time.Duration, maxAttempts int) Option {
	return func(c *Channel) {
		c.baseDelay = base
		c.maxDelay = ceiling
		c.maxAttempts = maxAttempts
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *metrics.Channel) Option {
	return func(c *Channel) { c.metrics = m }
}

// New creates a channel for the given websocket URL. No connection is
// made until Connect.
func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:         url,
		dialer:      websocket.DefaultDialer,
		state:       StateDisconnected,
		subs:        make(map[domain.EventType]map[Subscription]Handler),
		baseDelay:   500 * time.Millisecond,
		maxDelay:    30 * time.Second,
		maxAttempts: 10,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnOpen registers a hook fired after every successful (re)connection.
func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = append(c.onOpen, fn)
	c.mu.Unlock()
}

// OnClose registers a hook fired after every connection loss. Consumers
// mark "connection lost" without destroying execution history.
func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// OnStateChange registers a hook fired on every state transition.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	hooks := make([]func(State), len(c.onState))
	copy(hooks, c.onState)
	c.mu.Unlock()

	if c.metrics != nil {
		if s == StateConnected {
			c.metrics.Connected.Set(1)
		} else {
			c.metrics.Connected.Set(0)
		}
	}
	for _, fn := range hooks {
		fn(s)
	}
}

// Subscribe registers a handler for one event type. domain.EventAny
// receives every event in addition to its type-specific handlers.
func (c *Channel) Subscribe(kind domain.EventType, fn Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	if c.subs[kind] == nil {
		c.subs[kind] = make(map[Subscription]Handler)
	}
	c.subs[kind][id] = fn
	return id
}

// Unsubscribe removes a handler.
func (c *Channel) Unsubscribe(id Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, handlers := range c.subs {
		delete(handlers, id)
	}
}

func (c *Channel) dispatch(ev domain.Event) {
	c.mu.Lock()
	handlers := make([]Handler, 0, 4)
	for sub := range c.subs[ev.Type] {
		handlers = append(handlers, c.subs[ev.Type][sub])
	}
	for sub := range c.subs[domain.EventAny] {
		handlers = append(handlers, c.subs[domain.EventAny][sub])
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Send delivers one command if connected. Fire-and-forget: while
// disconnected the command is dropped with a log line and
// domain.ErrChannelUnavailable; nothing is queued for later, and past
// commands are never replayed after a reconnect.
func (c *Channel) Send(cmd domain.Command) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()

	if !connected {
		c.logger.Warn("command dropped, channel unavailable",
			"action", cmd.Action(), "node", cmd.CommandNodeID())
		if c.metrics != nil {
			c.metrics.SendFailures.Inc()
		}
		return fmt.Errorf("send %s for %s: %w", cmd.Action(), cmd.CommandNodeID(), domain.ErrChannelUnavailable)
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(cmd)
	c.writeMu.Unlock()
	if err != nil {
		// Let the read loop observe the broken connection and reconnect.
		c.logger.Warn("command write failed", "action", cmd.Action(), "err", err)
		_ = conn.Close()
		if c.metrics != nil {
			c.metrics.SendFailures.Inc()
		}
		return fmt.Errorf("send %s for %s: %w", cmd.Action(), cmd.CommandNodeID(), domain.ErrChannelUnavailable)
	}
	if c.metrics != nil {
		c.metrics.CommandsSent.WithLabelValues(cmd.Action()).Inc()
	}
	return nil
}

// Connect runs the connection loop until ctx is cancelled or the attempt
// budget is exhausted. It blocks; callers run it in a goroutine. The
// backoff delay doubles from the base up to the cap and resets after any
// successful connection.
func (c *Channel) Connect(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.baseDelay
	policy.Multiplier = 2
	policy.MaxInterval = c.maxDelay
	policy.MaxElapsedTime = 0
	policy.RandomizationFactor = 0
	policy.Reset()

	attempts := 0
	for {
		c.setState(StateConnecting)
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			attempts++
			if c.metrics != nil {
				c.metrics.Reconnects.Inc()
			}
			if c.maxAttempts > 0 && attempts >= c.maxAttempts {
				c.setState(StateDown)
				c.logger.Error("giving up on executor connection",
					"url", c.url, "attempts", attempts)
				return fmt.Errorf("connect %s: attempt budget exhausted: %w", c.url, err)
			}
			delay := policy.NextBackOff()
			c.logger.Warn("dial failed, backing off",
				"url", c.url, "attempt", attempts, "delay", delay, "err", err)
			select {
			case <-ctx.Done():
				c.setState(StateDisconnected)
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		attempts = 0
		policy.Reset()
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		c.logger.Info("executor connected", "url", c.url)
		c.fireHooks(true)

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)
		c.fireHooks(false)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.logger.Warn("executor connection lost, reconnecting", "url", c.url)
	}
}

func (c *Channel) fireHooks(open bool) {
	c.mu.Lock()
	var hooks []func()
	if open {
		hooks = append(hooks, c.onOpen...)
	} else {
		hooks = append(hooks, c.onClose...)
	}
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// readLoop pumps inbound frames until the connection breaks or ctx is
// cancelled. A frame that fails to parse is dropped and logged; it never
// tears down the connection.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}
		if c.metrics != nil {
			c.metrics.MessagesIn.Inc()
		}
		ev, err := domain.ParseEvent(data)
		if err != nil {
			c.logger.Warn("malformed executor message dropped", "err", err)
			if c.metrics != nil {
				c.metrics.ParseFailures.Inc()
			}
			continue
		}
		c.dispatch(ev)
	}
}

// Close tears down the current connection, if any. The Connect loop (if
// still running) will treat it as a connection loss.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
