package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"forum-realtime/internal/auth"
	"forum-realtime/internal/realtime"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max inbound message size; clients only send small typing actions
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the forum origin once the host list lands in config
		return true
	},
}

// TypingRelay publishes typing lifecycle events for inbound client messages.
type TypingRelay interface {
	Start(topicID, userID int64, username string)
	Stop(topicID, userID int64)
}

// Client is one WebSocket connection subscribed to a set of channels.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	channels []string
	identity auth.Identity
	typing   TypingRelay
	unsubs   []func()

	closeOnce sync.Once
}

// teardown releases the broker subscriptions and closes the connection.
// Safe to call from any exit path.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		for _, unsub := range c.unsubs {
			unsub()
		}
		close(c.done)
		c.conn.Close()
		slog.Info("[WS] Client disconnected", "conn", c.id, "user", c.identity.UserID, "channels", c.channels)
	})
}

// enqueue hands an event to the write pump without blocking broker fan-out.
func (c *Client) enqueue(evt realtime.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Error("[WS] Failed to marshal event", "conn", c.id, "type", evt.Type, "error", err)
		return
	}

	select {
	case c.send <- payload:
	case <-c.done:
	default:
		slog.Warn("[WS] Send buffer full, dropping event", "conn", c.id, "user", c.identity.UserID, "type", evt.Type)
	}
}

// ReadPump pumps inbound messages from the WebSocket to the typing relay.
func (c *Client) ReadPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("[WS] Unexpected close", "conn", c.id, "user", c.identity.UserID, "error", err)
			}
			break
		}

		c.handleClientMessage(message)
	}
}

// WritePump pumps events from the broker to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("[WS] Failed to write message", "conn", c.id, "user", c.identity.UserID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Error("[WS] Failed to send ping", "conn", c.id, "user", c.identity.UserID, "error", err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

type inboundMessage struct {
	Type realtime.EventType `json:"type"`
	Data struct {
		TopicID int64 `json:"topicId"`
	} `json:"data"`
}

func (c *Client) handleClientMessage(message []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Error("[WS] Error unmarshaling message", "conn", c.id, "user", c.identity.UserID, "error", err)
		return
	}

	if msg.Data.TopicID <= 0 {
		slog.Warn("[WS] Inbound message without topicId", "conn", c.id, "user", c.identity.UserID, "type", msg.Type)
		return
	}

	switch msg.Type {
	case realtime.EventTypingStart:
		c.typing.Start(msg.Data.TopicID, c.identity.UserID, c.identity.Username)

	case realtime.EventTypingStop:
		c.typing.Stop(msg.Data.TopicID, c.identity.UserID)

	default:
		slog.Warn("[WS] Unknown inbound message type", "conn", c.id, "user", c.identity.UserID, "type", msg.Type)
	}
}
