package typing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-realtime/internal/auth"
	"forum-realtime/internal/realtime"
)

func TestService_PublishesOnTopicChannel(t *testing.T) {
	broker := realtime.NewBroker()
	svc := NewService(broker)

	var got []realtime.Event
	defer broker.Subscribe("/topic/42", func(e realtime.Event) { got = append(got, e) })()

	svc.Start(42, 9, "ada")
	svc.Stop(42, 9)

	require.Len(t, got, 2)

	assert.Equal(t, realtime.EventTypingStart, got[0].Type)
	assert.Equal(t, int64(9), got[0].UserID)
	assert.Equal(t, realtime.TypingPayload{UserID: 9, Username: "ada", TopicID: 42}, got[0].Data)

	assert.Equal(t, realtime.EventTypingStop, got[1].Type)
	assert.Equal(t, realtime.TypingPayload{UserID: 9, TopicID: 42}, got[1].Data)
}

func TestHandler_Actions(t *testing.T) {
	broker := realtime.NewBroker()
	handler := NewHandler(NewService(broker))

	var got []realtime.Event
	defer broker.Subscribe("/topic/7", func(e realtime.Event) { got = append(got, e) })()

	do := func(body string, withIdentity bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/typing", strings.NewReader(body))
		if withIdentity {
			req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: 3, Username: "bo"}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do(`{"topicId":7,"action":"start"}`, true).Code)
	assert.Equal(t, http.StatusNoContent, do(`{"topicId":7,"action":"stop"}`, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(`{"topicId":7,"action":"dance"}`, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(`{"action":"start"}`, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(`not json`, true).Code)
	assert.Equal(t, http.StatusUnauthorized, do(`{"topicId":7,"action":"start"}`, false).Code)

	require.Len(t, got, 2)
	assert.Equal(t, realtime.EventTypingStart, got[0].Type)
	assert.Equal(t, realtime.EventTypingStop, got[1].Type)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	handler := NewHandler(NewService(realtime.NewBroker()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/typing", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
