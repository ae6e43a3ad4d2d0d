package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultHistorySize is the per-channel event retention cap.
const DefaultHistorySize = 100

// Broker fans out published events to every subscriber of the target channel.
// Implementations must be safe for concurrent use; delivery is at-most-once
// per subscriber and publish order is preserved within a channel.
type Broker interface {
	// Subscribe registers fn for future publishes on channel and returns a
	// deregistration function. Calling it more than once is a no-op.
	Subscribe(channel string, fn func(Event)) (unsubscribe func())

	// Publish constructs an event, appends it to the channel's bounded
	// history and synchronously delivers it to the channel's subscribers and
	// to global subscribers. userID is zero for system-originated events.
	Publish(channel string, typ EventType, data any, userID int64) Event

	// RecentEvents returns a copy of the channel's retained history,
	// oldest-first, filtered to events with Timestamp > since when since > 0.
	RecentEvents(channel string, since int64) []Event

	SubscriberCount(channel string) int
	ClearChannel(channel string)
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// MemoryBroker is the in-process Broker. Events published here are invisible
// to other process instances; horizontal scaling needs an external
// distribution layer behind the same interface.
//
// Callbacks run on the publisher's goroutine: they must not block and must
// not publish. Connections decouple slow writes through their own buffers.
type MemoryBroker struct {
	// pubMu serializes fan-out so delivery order matches publish order
	// within a channel even under concurrent publishers.
	pubMu sync.Mutex

	mu       sync.RWMutex
	channels map[string][]subscriber
	history  map[string][]Event
	nextID   uint64

	capacity int
	logger   *slog.Logger
}

// BrokerOption configures a MemoryBroker.
type BrokerOption func(*MemoryBroker)

// WithHistorySize sets the per-channel retention cap.
func WithHistorySize(n int) BrokerOption {
	return func(b *MemoryBroker) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithBrokerLogger sets the logger used for fan-out diagnostics.
func WithBrokerLogger(l *slog.Logger) BrokerOption {
	return func(b *MemoryBroker) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBroker creates an empty broker. Construct one per process at startup and
// inject it; tests construct isolated instances instead of sharing state.
func NewBroker(opts ...BrokerOption) *MemoryBroker {
	b := &MemoryBroker{
		channels: make(map[string][]subscriber),
		history:  make(map[string][]Event),
		capacity: DefaultHistorySize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBroker) Subscribe(channel string, fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.channels[channel] = append(b.channels[channel], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.removeSubscriber(channel, id)
		})
	}
}

func (b *MemoryBroker) removeSubscriber(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.channels[channel]
	for i, s := range subs {
		if s.id == id {
			b.channels[channel] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.channels[channel]) == 0 {
		delete(b.channels, channel)
	}
}

func (b *MemoryBroker) Publish(channel string, typ EventType, data any, userID int64) Event {
	event := Event{
		Type:      typ,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		UserID:    userID,
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	buf := append(b.history[channel], event)
	if len(buf) > b.capacity {
		buf = buf[len(buf)-b.capacity:]
	}
	b.history[channel] = buf

	targets := make([]subscriber, 0, len(b.channels[channel]))
	targets = append(targets, b.channels[channel]...)
	if channel != GlobalChannel {
		targets = append(targets, b.channels[GlobalChannel]...)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		b.deliver(sub, event)
	}

	return event
}

// deliver invokes one callback, recovering a panic so a broken subscriber
// cannot abort delivery to the rest.
func (b *MemoryBroker) deliver(sub subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("[BROKER] Subscriber callback panicked",
				"channel", event.Channel, "type", event.Type, "panic", r)
		}
	}()
	sub.fn(event)
}

func (b *MemoryBroker) RecentEvents(channel string, since int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	buf := b.history[channel]
	events := make([]Event, 0, len(buf))
	for _, e := range buf {
		if since > 0 && e.Timestamp <= since {
			continue
		}
		events = append(events, e)
	}
	return events
}

func (b *MemoryBroker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

func (b *MemoryBroker) ClearChannel(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, channel)
}
