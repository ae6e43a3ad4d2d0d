package client

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"forum-realtime/internal/realtime"
)

const (
	// DefaultTypingDebounce is the minimum gap between typing:start requests.
	DefaultTypingDebounce = 3 * time.Second

	// DefaultTypingInactivity is how long after the last keystroke a
	// typing:stop is sent automatically.
	DefaultTypingInactivity = 5 * time.Second

	// DefaultTypingTTL bounds how long a received typing:start stays valid
	// without an explicit stop, so a lost stop cannot stick the indicator.
	DefaultTypingTTL = 10 * time.Second
)

// TypingSenderConfig configures a TypingSender.
type TypingSenderConfig struct {
	// Endpoint is the typing endpoint URL, e.g. http://host/typing.
	Endpoint string
	TopicID  int64
	Token    string

	Debounce   time.Duration
	Inactivity time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TypingSender debounces typing:start requests and stops automatically after
// an inactivity window. Request failures are logged and swallowed.
type TypingSender struct {
	cfg TypingSenderConfig

	mu         sync.Mutex
	lastStart  time.Time
	inactivity *time.Timer
}

func NewTypingSender(cfg TypingSenderConfig) (*TypingSender, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.TopicID <= 0 {
		return nil, errors.New("topicId is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultTypingDebounce
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = DefaultTypingInactivity
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TypingSender{cfg: cfg}, nil
}

// SendTyping signals a keystroke: a typing:start request goes out at most
// once per debounce window, and the inactivity timer is rearmed every call.
func (s *TypingSender) SendTyping() {
	s.mu.Lock()
	now := time.Now()
	shouldSend := now.Sub(s.lastStart) >= s.cfg.Debounce
	if shouldSend {
		s.lastStart = now
	}
	if s.inactivity != nil {
		s.inactivity.Stop()
	}
	s.inactivity = time.AfterFunc(s.cfg.Inactivity, s.expire)
	s.mu.Unlock()

	if shouldSend {
		s.post("start")
	}
}

// StopTyping cancels the inactivity timer and sends typing:stop immediately.
func (s *TypingSender) StopTyping() {
	s.mu.Lock()
	if s.inactivity != nil {
		s.inactivity.Stop()
		s.inactivity = nil
	}
	s.lastStart = time.Time{}
	s.mu.Unlock()

	s.post("stop")
}

func (s *TypingSender) expire() {
	s.mu.Lock()
	s.lastStart = time.Time{}
	s.inactivity = nil
	s.mu.Unlock()

	s.post("stop")
}

func (s *TypingSender) post(action string) {
	body, err := json.Marshal(map[string]any{
		"topicId": s.cfg.TopicID,
		"action":  action,
	})
	if err != nil {
		s.cfg.Logger.Error("[TYPING] Failed to marshal action", "action", action, "error", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		s.cfg.Logger.Error("[TYPING] Failed to build request", "action", action, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		s.cfg.Logger.Warn("[TYPING] Action failed", "action", action, "topic", s.cfg.TopicID, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		s.cfg.Logger.Warn("[TYPING] Action rejected", "action", action, "topic", s.cfg.TopicID, "status", resp.StatusCode)
	}
}

type typingEntry struct {
	username  string
	expiresAt time.Time
}

// TypingObserver tracks who else is typing in a topic from typing events.
// Entries expire after a TTL even without an explicit typing:stop.
type TypingObserver struct {
	selfID int64
	ttl    time.Duration

	mu      sync.Mutex
	entries map[int64]typingEntry
}

func NewTypingObserver(selfID int64, ttl time.Duration) *TypingObserver {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingObserver{
		selfID:  selfID,
		ttl:     ttl,
		entries: make(map[int64]typingEntry),
	}
}

// HandleEvent updates the typing set from a typing event. Wire it into the
// subscription manager's event callback.
func (o *TypingObserver) HandleEvent(evt realtime.Event) {
	if evt.Type != realtime.EventTypingStart && evt.Type != realtime.EventTypingStop {
		return
	}

	payload, err := realtime.DecodePayload(evt)
	if err != nil {
		return
	}
	typing := payload.(realtime.TypingPayload)
	if typing.UserID == o.selfID {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch evt.Type {
	case realtime.EventTypingStart:
		o.entries[typing.UserID] = typingEntry{
			username:  typing.Username,
			expiresAt: time.Now().Add(o.ttl),
		}
	case realtime.EventTypingStop:
		delete(o.entries, typing.UserID)
	}
}

// Typing returns who is currently typing, pruning expired entries.
func (o *TypingObserver) Typing() []Participant {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	users := make([]Participant, 0, len(o.entries))
	for userID, entry := range o.entries {
		if now.After(entry.expiresAt) {
			delete(o.entries, userID)
			continue
		}
		users = append(users, Participant{UserID: userID, Username: entry.username})
	}

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}
