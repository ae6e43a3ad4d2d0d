package realtime

import (
	"fmt"

	"github.com/goccy/go-json"
)

// EventType identifies the kind of realtime event carried on a channel.
type EventType string

const (
	EventPostCreated     EventType = "post:created"
	EventPostUpdated     EventType = "post:updated"
	EventPostDeleted     EventType = "post:deleted"
	EventTopicCreated    EventType = "topic:created"
	EventTopicUpdated    EventType = "topic:updated"
	EventNotificationNew EventType = "notification:new"
	EventPresenceJoin    EventType = "presence:join"
	EventPresenceLeave   EventType = "presence:leave"
	EventTypingStart     EventType = "typing:start"
	EventTypingStop      EventType = "typing:stop"

	// Control frame types exist only on the wire; they are never published
	// on a channel and carry no payload.
	ControlPing      EventType = "ping"
	ControlConnected EventType = "connected"
)

// Valid reports whether t is a publishable event type.
func (t EventType) Valid() bool {
	switch t {
	case EventPostCreated, EventPostUpdated, EventPostDeleted,
		EventTopicCreated, EventTopicUpdated, EventNotificationNew,
		EventPresenceJoin, EventPresenceLeave,
		EventTypingStart, EventTypingStop:
		return true
	}
	return false
}

// Control reports whether t is a wire-level control frame type.
func (t EventType) Control() bool {
	return t == ControlPing || t == ControlConnected
}

// Event is a single realtime event as published on a channel and serialized
// onto push streams. Immutable once published.
type Event struct {
	Type      EventType `json:"type"`
	Channel   string    `json:"channel"`
	Data      any       `json:"data,omitempty"`
	Timestamp int64     `json:"timestamp"` // milliseconds since epoch
	UserID    int64     `json:"userId,omitempty"`
}

// Payload structs, one per event type family.

type PostPayload struct {
	ID       int64  `json:"id"`
	TopicID  int64  `json:"topicId"`
	AuthorID int64  `json:"authorId,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
}

type TopicPayload struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"categoryId,omitempty"`
	Title      string `json:"title,omitempty"`
}

type NotificationPayload struct {
	ID      int64  `json:"id"`
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

type PresencePayload struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel"`
}

type TypingPayload struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username,omitempty"`
	TopicID  int64  `json:"topicId"`
}

// DecodePayload converts the event's data into its typed payload struct.
// Events arriving off the wire carry data as generic JSON maps; this narrows
// them according to the event type. Control frames decode to nil.
func DecodePayload(e Event) (any, error) {
	switch e.Type {
	case EventPostCreated, EventPostUpdated, EventPostDeleted:
		return decodeAs[PostPayload](e.Data)
	case EventTopicCreated, EventTopicUpdated:
		return decodeAs[TopicPayload](e.Data)
	case EventNotificationNew:
		return decodeAs[NotificationPayload](e.Data)
	case EventPresenceJoin, EventPresenceLeave:
		return decodeAs[PresencePayload](e.Data)
	case EventTypingStart, EventTypingStop:
		return decodeAs[TypingPayload](e.Data)
	case ControlPing, ControlConnected:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

func decodeAs[T any](data any) (T, error) {
	var out T
	if v, ok := data.(T); ok {
		return v, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("failed to re-encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode payload: %w", err)
	}
	return out, nil
}
