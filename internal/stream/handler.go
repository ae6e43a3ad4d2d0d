package stream

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"forum-realtime/internal/realtime"
)

const (
	// DefaultKeepAlive is the interval between ping frames on an idle stream.
	DefaultKeepAlive = 30 * time.Second

	// DefaultQueueSize is the per-connection event buffer between broker
	// fan-out and the stream writer. When it fills, events are dropped for
	// that connection only.
	DefaultQueueSize = 256
)

type controlFrame struct {
	Type realtime.EventType `json:"type"`
}

// Handler serves long-lived text/event-stream subscriptions backed by the
// broker. It performs no channel-level authorization: deciding which channel
// names a client may subscribe to is the caller's responsibility.
type Handler struct {
	broker    realtime.Broker
	keepAlive time.Duration
	queueSize int
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithKeepAlive(interval time.Duration) Option {
	return func(h *Handler) {
		if interval > 0 {
			h.keepAlive = interval
		}
	}
}

func WithQueueSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(broker realtime.Broker, opts ...Option) *Handler {
	h := &Handler{
		broker:    broker,
		keepAlive: DefaultKeepAlive,
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channels, err := realtime.ParseChannelList(r.URL.Query().Get("channels"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || since < 0 {
			http.Error(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	connID := uuid.NewString()
	h.logger.Info("[STREAM] Connection opened", "conn", connID, "channels", channels, "from", r.RemoteAddr)

	queue := make(chan realtime.Event, h.queueSize)
	unsubs := make([]func(), 0, len(channels))
	for _, ch := range channels {
		unsubs = append(unsubs, h.broker.Subscribe(ch, func(evt realtime.Event) {
			select {
			case queue <- evt:
			default:
				h.logger.Warn("[STREAM] Queue full, dropping event", "conn", connID, "channel", evt.Channel, "type", evt.Type)
			}
		}))
	}
	// Cleanup must run on every exit path; a dangling subscription would
	// fail writes to a closed stream on the next publish.
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
		h.logger.Info("[STREAM] Connection closed", "conn", connID)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeFrame(w, controlFrame{Type: realtime.ControlConnected}); err != nil {
		return
	}
	flusher.Flush()

	// Replay retained history so a reconnecting client catches up without
	// replaying from the start of time.
	if since > 0 {
		for _, ch := range channels {
			for _, evt := range h.broker.RecentEvents(ch, since) {
				if err := writeFrame(w, evt); err != nil {
					return
				}
			}
		}
		flusher.Flush()
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-ticker.C:
			if err := writeFrame(w, controlFrame{Type: realtime.ControlPing}); err != nil {
				h.logger.Debug("[STREAM] Keep-alive write failed", "conn", connID, "error", err)
				return
			}
			flusher.Flush()

		case evt := <-queue:
			if err := writeFrame(w, evt); err != nil {
				h.logger.Debug("[STREAM] Event write failed", "conn", connID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
