// Package client consumes the realtime push stream: it owns the subscription
// state machine with reconnect/backoff plus the derived presence and typing
// helpers built on top of it. When the stream is down the rest of the
// application keeps working on non-live data; stream loss is reported, never
// fatal.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"forum-realtime/internal/realtime"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
)

// State is the connection state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config configures a Manager. Callbacks are invoked from the manager's own
// goroutines and must not block.
type Config struct {
	// Endpoint is the streaming endpoint URL, e.g. http://host/events.
	Endpoint string
	// Channels is the channel set serialized into the subscribe request.
	Channels []string
	// Token is an optional bearer token.
	Token string

	// BaseDelay scales the linear reconnect backoff: retry n waits
	// BaseDelay * n.
	BaseDelay time.Duration
	// MaxAttempts bounds consecutive reconnect attempts before OnError.
	MaxAttempts int

	HTTPClient *http.Client
	Logger     *slog.Logger

	OnEvent      func(realtime.Event)
	OnConnect    func()
	OnDisconnect func()
	OnError      func(error)
}

// Manager opens one streaming connection for its channel set, parses inbound
// frames, dispatches events and reconnects with linear backoff on failure.
type Manager struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	attempts   int
	errorSent  bool
	started    bool
	closed     bool
	gen        uint64
	dialCancel context.CancelFunc
	retryTimer *time.Timer
	lastEvent  *realtime.Event
}

// New validates the config and returns a stopped Manager; call Start to
// connect.
func New(cfg Config) (*Manager, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

// Start opens the stream. Calling Start more than once is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

// Reconnect resets the attempt counter and retries immediately.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.attempts = 0
	m.errorSent = false
	m.started = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.mu.Unlock()

	go m.dial(gen)
}

// Close tears the manager down: the transport is closed and any pending
// reconnect timer is cancelled. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.state = StateDisconnected
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.mu.Unlock()

	m.cancel()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastEvent returns the most recently dispatched event, if any.
func (m *Manager) LastEvent() (realtime.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastEvent == nil {
		return realtime.Event{}, false
	}
	return *m.lastEvent, true
}

func (m *Manager) dial(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	dialCtx, cancel := context.WithCancel(m.ctx)
	m.dialCancel = cancel
	var since int64
	if m.lastEvent != nil {
		since = m.lastEvent.Timestamp
	}
	m.mu.Unlock()

	resp, err := m.open(dialCtx, since)
	if err != nil {
		m.handleFailure(gen, err, false)
		return
	}
	defer resp.Body.Close()

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	m.attempts = 0
	m.errorSent = false
	m.mu.Unlock()

	m.cfg.Logger.Info("[CLIENT] Stream connected", "endpoint", m.cfg.Endpoint, "channels", m.cfg.Channels)
	if m.cfg.OnConnect != nil {
		m.cfg.OnConnect()
	}

	err = m.readLoop(resp.Body)
	m.handleFailure(gen, err, true)
}

func (m *Manager) open(ctx context.Context, since int64) (*http.Response, error) {
	u, err := url.Parse(m.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("channels", strings.Join(m.cfg.Channels, ","))
	if since > 0 {
		q.Set("since", strconv.FormatInt(since, 10))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if m.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}
	return resp, nil
}

// readLoop consumes SSE frames until the stream breaks.
func (m *Manager) readLoop(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	var data []byte

	for scanner.Scan() {
		line := scanner.Bytes()

		switch {
		case len(line) == 0:
			if len(data) > 0 {
				m.dispatch(data)
				data = nil
			}
		case bytes.HasPrefix(line, []byte("data: ")):
			data = append(data, bytes.TrimPrefix(line, []byte("data: "))...)
		default:
			// Comments and other SSE fields are ignored.
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (m *Manager) dispatch(raw []byte) {
	var evt realtime.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		m.cfg.Logger.Warn("[CLIENT] Dropping unparseable frame", "error", err)
		return
	}

	// Control frames are consumed silently; a ping only proves liveness.
	if evt.Type.Control() {
		return
	}

	m.mu.Lock()
	e := evt
	m.lastEvent = &e
	m.mu.Unlock()

	if m.cfg.OnEvent != nil {
		m.cfg.OnEvent(evt)
	}
}

func (m *Manager) handleFailure(gen uint64, err error, wasConnected bool) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	var notifyError bool
	if m.attempts < m.cfg.MaxAttempts {
		m.attempts++
		delay := m.cfg.BaseDelay * time.Duration(m.attempts)
		m.retryTimer = time.AfterFunc(delay, func() { m.dial(gen) })
		m.cfg.Logger.Warn("[CLIENT] Stream lost, reconnecting",
			"attempt", m.attempts, "max", m.cfg.MaxAttempts, "delay", delay, "error", err)
	} else if !m.errorSent {
		m.errorSent = true
		notifyError = true
		m.cfg.Logger.Error("[CLIENT] Reconnect budget exhausted", "attempts", m.attempts, "error", err)
	}
	m.mu.Unlock()

	if wasConnected && m.cfg.OnDisconnect != nil {
		m.cfg.OnDisconnect()
	}
	if notifyError && m.cfg.OnError != nil {
		m.cfg.OnError(err)
	}
}
