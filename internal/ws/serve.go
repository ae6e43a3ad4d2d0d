package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"forum-realtime/internal/auth"
	"forum-realtime/internal/realtime"
)

// Serve upgrades a request to a WebSocket push stream over the same broker
// the SSE endpoint uses. The route must sit behind the auth middleware: the
// inbound typing relay needs a trusted identity.
func Serve(broker realtime.Broker, typing TypingRelay, w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	channels, err := realtime.ParseChannelList(r.URL.Query().Get("channels"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[WS] Failed to upgrade connection", "user", identity.UserID, "error", err)
		return
	}

	client := &Client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		channels: channels,
		identity: identity,
		typing:   typing,
	}

	for _, ch := range channels {
		client.unsubs = append(client.unsubs, broker.Subscribe(ch, client.enqueue))
	}

	slog.Info("[WS] Client connected", "conn", client.id, "user", identity.UserID, "channels", channels)

	go client.WritePump()
	go client.ReadPump()
}
