package presence

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"forum-realtime/internal/auth"
	"forum-realtime/internal/realtime"
)

type actionRequest struct {
	Channel string `json:"channel"`
	Action  string `json:"action"`
}

type participant struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

type participantsResponse struct {
	Users []participant `json:"users"`
}

// Handler accepts presence actions (POST) and lists participants (GET).
type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleAction(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, _, err := realtime.ParseChannel(req.Channel); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var err error
	switch req.Action {
	case "join":
		err = h.registry.Join(r.Context(), req.Channel, identity.UserID, identity.Username)
	case "heartbeat":
		err = h.registry.Heartbeat(r.Context(), req.Channel, identity.UserID, identity.Username)
	case "leave":
		err = h.registry.Leave(r.Context(), req.Channel, identity.UserID)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("[PRESENCE] Action failed", "action", req.Action, "channel", req.Channel, "user", identity.UserID, "error", err)
		http.Error(w, "presence action failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if _, _, err := realtime.ParseChannel(channel); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.registry.Participants(r.Context(), channel)
	if err != nil {
		slog.Error("[PRESENCE] Failed to list participants", "channel", channel, "error", err)
		http.Error(w, "failed to list participants", http.StatusInternalServerError)
		return
	}

	resp := participantsResponse{Users: make([]participant, 0, len(entries))}
	for _, entry := range entries {
		resp.Users = append(resp.Users, participant{UserID: entry.UserID, Username: entry.Username})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("[PRESENCE] Failed to encode participants", "channel", channel, "error", err)
	}
}
