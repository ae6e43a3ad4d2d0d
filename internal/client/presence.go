package client

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"forum-realtime/internal/realtime"
)

// DefaultHeartbeatInterval refreshes presence well inside the server's TTL.
const DefaultHeartbeatInterval = 30 * time.Second

// Participant is one user shown as currently viewing a channel.
type Participant struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// PresenceConfig configures a PresenceTracker.
type PresenceConfig struct {
	// Endpoint is the presence endpoint URL, e.g. http://host/presence.
	Endpoint string
	Channel  string
	Token    string

	// SelfID is the local user; self-originated events never populate the
	// local participant list.
	SelfID int64

	HeartbeatInterval time.Duration
	HTTPClient        *http.Client
	Logger            *slog.Logger

	// OnChange receives the updated participant list after every change.
	OnChange func([]Participant)
}

// PresenceTracker announces the local user's presence in a channel and keeps
// a local participant list in sync from presence events. Network failures on
// join/leave/heartbeat are logged and swallowed: a missed heartbeat is
// recovered by the next one, a missed leave by server-side expiry.
type PresenceTracker struct {
	cfg PresenceConfig

	mu           sync.Mutex
	participants []Participant
	started      bool

	done     chan struct{}
	stopOnce sync.Once
}

func NewPresenceTracker(cfg PresenceConfig) (*PresenceTracker, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if _, _, err := realtime.ParseChannel(cfg.Channel); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PresenceTracker{cfg: cfg, done: make(chan struct{})}, nil
}

// Start joins the channel, fetches the current participant list once and
// begins heartbeating. Calling Start more than once is a no-op.
func (p *PresenceTracker) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.post("join")
	p.fetchParticipants()

	go func() {
		ticker := time.NewTicker(p.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.post("heartbeat")
			case <-p.done:
				return
			}
		}
	}()
}

// Stop announces the departure and stops the heartbeat timer. Idempotent and
// safe to defer from any teardown path.
func (p *PresenceTracker) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.post("leave")
	})
}

// HandleEvent updates the local participant list from a presence event. Wire
// it into the subscription manager's event callback.
func (p *PresenceTracker) HandleEvent(evt realtime.Event) {
	if evt.Type != realtime.EventPresenceJoin && evt.Type != realtime.EventPresenceLeave {
		return
	}
	if evt.Channel != p.cfg.Channel {
		return
	}

	payload, err := realtime.DecodePayload(evt)
	if err != nil {
		p.cfg.Logger.Warn("[PRESENCE] Dropping malformed presence event", "error", err)
		return
	}
	presence := payload.(realtime.PresencePayload)
	if presence.UserID == p.cfg.SelfID {
		return
	}

	p.mu.Lock()
	switch evt.Type {
	case realtime.EventPresenceJoin:
		for _, existing := range p.participants {
			if existing.UserID == presence.UserID {
				p.mu.Unlock()
				return
			}
		}
		p.participants = append(p.participants, Participant{UserID: presence.UserID, Username: presence.Username})
	case realtime.EventPresenceLeave:
		kept := p.participants[:0]
		for _, existing := range p.participants {
			if existing.UserID != presence.UserID {
				kept = append(kept, existing)
			}
		}
		p.participants = kept
	}
	snapshot := append([]Participant(nil), p.participants...)
	p.mu.Unlock()

	if p.cfg.OnChange != nil {
		p.cfg.OnChange(snapshot)
	}
}

// Participants returns a copy of the local participant list.
func (p *PresenceTracker) Participants() []Participant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Participant(nil), p.participants...)
}

func (p *PresenceTracker) post(action string) {
	body, err := json.Marshal(map[string]string{
		"channel": p.cfg.Channel,
		"action":  action,
	})
	if err != nil {
		p.cfg.Logger.Error("[PRESENCE] Failed to marshal action", "action", action, "error", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		p.cfg.Logger.Error("[PRESENCE] Failed to build request", "action", action, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		p.cfg.Logger.Warn("[PRESENCE] Action failed", "action", action, "channel", p.cfg.Channel, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		p.cfg.Logger.Warn("[PRESENCE] Action rejected", "action", action, "channel", p.cfg.Channel, "status", resp.StatusCode)
	}
}

func (p *PresenceTracker) fetchParticipants() {
	u := fmt.Sprintf("%s?channel=%s", p.cfg.Endpoint, url.QueryEscape(p.cfg.Channel))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		p.cfg.Logger.Error("[PRESENCE] Failed to build request", "error", err)
		return
	}
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		p.cfg.Logger.Warn("[PRESENCE] Failed to fetch participants", "channel", p.cfg.Channel, "error", err)
		return
	}
	defer resp.Body.Close()

	var payload struct {
		Users []Participant `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		p.cfg.Logger.Warn("[PRESENCE] Failed to decode participants", "channel", p.cfg.Channel, "error", err)
		return
	}

	others := make([]Participant, 0, len(payload.Users))
	for _, user := range payload.Users {
		if user.UserID != p.cfg.SelfID {
			others = append(others, user)
		}
	}

	p.mu.Lock()
	p.participants = others
	snapshot := append([]Participant(nil), p.participants...)
	p.mu.Unlock()

	if p.cfg.OnChange != nil {
		p.cfg.OnChange(snapshot)
	}
}
