// Package stream drives a long-lived connection to the upstream event
// source through a connect / subscribe / receive / reconnect state
// machine with exponential backoff. The machine is a plain value
// threaded through the run loop so transitions stay unit-testable
// without a live transport.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"
)

// State identifies where the connection machine currently is.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateReceiving
	StateReconnecting
	StateClosing
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Backoff computes the reconnect delay for the given 1-based attempt:
// min(base * 2^(attempt-1), cap).
func Backoff(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

// Subscription is one stream subscription request sent after connect.
type Subscription struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// DefaultSubscriptions covers the new-token and migration streams.
func DefaultSubscriptions() []Subscription {
	return []Subscription{
		{Method: "subscribeNewToken"},
		{Method: "subscribeMigration"},
	}
}

// Config holds the connection manager tunables.
type Config struct {
	URL              string
	APIKey           string        // appended as api-key query parameter
	ReceiveTimeout   time.Duration // bounded wait before a liveness probe
	SubscribeDelay   time.Duration // pacing between subscription sends
	ReconnectDelay   time.Duration // backoff base
	MaxReconnectWait time.Duration // backoff cap
	MaxAttempts      int           // consecutive attempts before abort; 0 = retry forever
	Subscriptions    []Subscription
}

// withDefaults fills zero values with the defaults used against the
// production stream.
func (c Config) withDefaults() Config {
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = 60 * time.Second
	}
	if c.SubscribeDelay == 0 {
		c.SubscribeDelay = 100 * time.Millisecond
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.MaxReconnectWait == 0 {
		c.MaxReconnectWait = 60 * time.Second
	}
	if c.Subscriptions == nil {
		c.Subscriptions = DefaultSubscriptions()
	}
	return c
}

// Hooks observe machine transitions; nil funcs are skipped.
type Hooks struct {
	OnMessage         func(msg []byte)
	OnConnect         func()
	OnConnectionError func(err error)
	OnReconnect       func(attempt int, delay time.Duration)
}

// machine is the state value threaded through the run loop.
type machine struct {
	state    State
	attempts int
	lastErr  error
}

// Manager runs the connection state machine, handing every received
// message to the hook pipeline. Exactly one message is in flight at a
// time for a single connection.
type Manager struct {
	transport Transport
	cfg       Config
	hooks     Hooks
	logger    *log.Logger

	mu            sync.Mutex
	current       State
	lastConnected time.Time
}

// NewManager creates a connection manager. A nil logger falls back to
// the default logger.
func NewManager(transport Transport, cfg Config, hooks Hooks, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		transport: transport,
		cfg:       cfg.withDefaults(),
		hooks:     hooks,
		logger:    logger,
		current:   StateDisconnected,
	}
}

// State returns the machine's current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// LastConnected returns the watermark of the most recent successful
// handshake.
func (m *Manager) LastConnected() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConnected
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}

// Run drives the state machine until the context is cancelled or the
// capped-attempts policy aborts. Cancellation is observed at every
// suspension point and returns nil.
func (m *Manager) Run(ctx context.Context) error {
	mc := machine{state: StateConnecting}
	var conn Conn

	defer func() {
		if conn != nil {
			conn.Close()
		}
		m.setState(StateDisconnected)
	}()

	for {
		if ctx.Err() != nil {
			m.setState(StateClosing)
			return nil
		}
		m.setState(mc.state)

		switch mc.state {
		case StateConnecting:
			c, err := m.transport.Connect(ctx, m.connectURL())
			if err != nil {
				mc.lastErr = err
				if m.hooks.OnConnectionError != nil {
					m.hooks.OnConnectionError(err)
				}
				m.logger.Printf("connect failed: %v", err)
				mc.state = StateReconnecting
				continue
			}
			conn = c
			mc.attempts = 0
			m.mu.Lock()
			m.lastConnected = time.Now()
			m.mu.Unlock()
			if m.hooks.OnConnect != nil {
				m.hooks.OnConnect()
			}
			mc.state = StateConnected

		case StateConnected:
			m.subscribe(ctx, conn)
			mc.state = StateSubscribed

		case StateSubscribed, StateReceiving:
			msg, err := conn.Receive(m.cfg.ReceiveTimeout)
			switch {
			case err == nil:
				mc.state = StateReceiving
				if m.hooks.OnMessage != nil {
					m.hooks.OnMessage(msg)
				}
			case err == ErrReceiveTimeout:
				// Idle stream: probe and keep waiting. Not an error.
				if pingErr := conn.Ping(); pingErr != nil {
					m.logger.Printf("ping failed: %v", pingErr)
				}
			default:
				mc.lastErr = err
				if m.hooks.OnConnectionError != nil {
					m.hooks.OnConnectionError(err)
				}
				conn.Close()
				conn = nil
				mc.state = StateReconnecting
			}

		case StateReconnecting:
			mc.attempts++
			if m.cfg.MaxAttempts > 0 && mc.attempts > m.cfg.MaxAttempts {
				return fmt.Errorf("stream: giving up after %d reconnect attempts: %w",
					m.cfg.MaxAttempts, mc.lastErr)
			}
			delay := Backoff(m.cfg.ReconnectDelay, m.cfg.MaxReconnectWait, mc.attempts)
			if m.hooks.OnReconnect != nil {
				m.hooks.OnReconnect(mc.attempts, delay)
			}
			m.logger.Printf("reconnecting in %s (attempt %d)", delay, mc.attempts)
			select {
			case <-ctx.Done():
				m.setState(StateClosing)
				return nil
			case <-time.After(delay):
			}
			mc.state = StateConnecting
		}
	}
}

// subscribe issues the configured subscription sequence with a pacing
// delay between sends. A failed send is logged and the sequence
// continues; subscriptions are best-effort.
func (m *Manager) subscribe(ctx context.Context, conn Conn) {
	for _, sub := range m.cfg.Subscriptions {
		body, err := json.Marshal(sub)
		if err != nil {
			m.logger.Printf("marshal subscription %s: %v", sub.Method, err)
			continue
		}
		if err := conn.Send(body); err != nil {
			m.logger.Printf("subscribe %s failed: %v", sub.Method, err)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.SubscribeDelay):
		}
	}
}

// connectURL appends the API key as a query parameter when set.
func (m *Manager) connectURL() string {
	if m.cfg.APIKey == "" {
		return m.cfg.URL
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return m.cfg.URL
	}
	q := u.Query()
	q.Set("api-key", m.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}
