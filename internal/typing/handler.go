package typing

import (
	"net/http"

	"github.com/goccy/go-json"

	"forum-realtime/internal/auth"
)

type actionRequest struct {
	TopicID int64  `json:"topicId"`
	Action  string `json:"action"`
}

// Handler accepts typing actions from authenticated clients.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

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
	if req.TopicID <= 0 {
		http.Error(w, "topicId required", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "start":
		h.service.Start(req.TopicID, identity.UserID, identity.Username)
	case "stop":
		h.service.Stop(req.TopicID, identity.UserID)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
