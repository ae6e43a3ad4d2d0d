package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"forum-realtime/internal/realtime"
)

const (
	// DefaultTTL is how long an entry survives without a heartbeat.
	DefaultTTL = 90 * time.Second

	// DefaultSweepInterval is how often expired entries are collected.
	DefaultSweepInterval = 30 * time.Second
)

// Registry tracks who is currently viewing each channel. Entries are created
// on join, refreshed by heartbeats and reaped by a periodic sweep; the sweep
// publishes a synthetic presence:leave so observers converge even when a
// client vanished without saying leave.
type Registry struct {
	store  Store
	broker realtime.Broker
	ttl    time.Duration
	every  time.Duration
	logger *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithSweepInterval(every time.Duration) RegistryOption {
	return func(r *Registry) {
		if every > 0 {
			r.every = every
		}
	}
}

func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRegistry(broker realtime.Broker, store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		broker: broker,
		ttl:    DefaultTTL,
		every:  DefaultSweepInterval,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join records the user as present and announces it on the channel. A second
// join for the same (channel, user) pair refreshes the existing entry.
func (r *Registry) Join(ctx context.Context, channel string, userID int64, username string) error {
	_, err := r.store.Put(ctx, Entry{
		UserID:          userID,
		Username:        username,
		Channel:         channel,
		LastHeartbeatAt: time.Now(),
	})
	if err != nil {
		return err
	}

	r.broker.Publish(channel, realtime.EventPresenceJoin, realtime.PresencePayload{
		UserID:   userID,
		Username: username,
		Channel:  channel,
	}, userID)
	r.logger.Debug("[PRESENCE] User joined", "user", userID, "channel", channel)
	return nil
}

// Heartbeat refreshes the user's liveness without re-announcing. If the entry
// already expired between heartbeats, the user rejoins so observers that saw
// the synthetic leave converge again.
func (r *Registry) Heartbeat(ctx context.Context, channel string, userID int64, username string) error {
	ok, err := r.store.Touch(ctx, channel, userID, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return r.Join(ctx, channel, userID, username)
	}
	return nil
}

// Leave removes the user's entry and announces the departure. Leaving a
// channel the user is not in is a no-op.
func (r *Registry) Leave(ctx context.Context, channel string, userID int64) error {
	removed, err := r.store.Remove(ctx, channel, userID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	r.broker.Publish(channel, realtime.EventPresenceLeave, realtime.PresencePayload{
		UserID:  userID,
		Channel: channel,
	}, userID)
	r.logger.Debug("[PRESENCE] User left", "user", userID, "channel", channel)
	return nil
}

// Participants returns the channel's current entries.
func (r *Registry) Participants(ctx context.Context, channel string) ([]Entry, error) {
	return r.store.List(ctx, channel)
}

// Start runs the expiry sweeper until Stop is called.
func (r *Registry) Start() {
	go func() {
		ticker := time.NewTicker(r.every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep(context.Background())
			case <-r.done:
				return
			}
		}
	}()
}

// Stop terminates the sweeper. Idempotent.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Registry) sweep(ctx context.Context) {
	expired, err := r.store.Expire(ctx, time.Now().Add(-r.ttl))
	if err != nil {
		r.logger.Error("[PRESENCE] Sweep failed", "error", err)
		return
	}

	for _, entry := range expired {
		r.broker.Publish(entry.Channel, realtime.EventPresenceLeave, realtime.PresencePayload{
			UserID:  entry.UserID,
			Channel: entry.Channel,
		}, entry.UserID)
		r.logger.Info("[PRESENCE] Expired stale entry", "user", entry.UserID, "channel", entry.Channel)
	}
}
