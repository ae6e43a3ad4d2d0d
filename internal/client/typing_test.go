package client

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-realtime/internal/realtime"
)

type typingServer struct {
	mu      sync.Mutex
	actions []string
	srv     *httptest.Server
}

func newTypingServer(t *testing.T) *typingServer {
	t.Helper()
	ts := &typingServer{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TopicID int64  `json:"topicId"`
			Action  string `json:"action"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, int64(42), req.TopicID)
		ts.mu.Lock()
		ts.actions = append(ts.actions, req.Action)
		ts.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *typingServer) recorded() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.actions...)
}

func newTestSender(t *testing.T, ts *typingServer) *TypingSender {
	t.Helper()
	sender, err := NewTypingSender(TypingSenderConfig{
		Endpoint:   ts.srv.URL,
		TopicID:    42,
		Debounce:   50 * time.Millisecond,
		Inactivity: 30 * time.Millisecond,
	})
	require.NoError(t, err)
	return sender
}

func TestTypingSender_DebouncesStart(t *testing.T) {
	ts := newTypingServer(t)
	sender := newTestSender(t, ts)

	for i := 0; i < 5; i++ {
		sender.SendTyping()
	}

	assert.Equal(t, []string{"start"}, ts.recorded(), "rapid calls inside the debounce window send one start")
}

func TestTypingSender_InactivitySendsOneStop(t *testing.T) {
	ts := newTypingServer(t)
	sender := newTestSender(t, ts)

	sender.SendTyping()
	sender.SendTyping()

	require.Eventually(t, func() bool {
		actions := ts.recorded()
		return len(actions) == 2 && actions[1] == "stop"
	}, time.Second, 5*time.Millisecond)

	// The timer fired once; nothing else follows.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"start", "stop"}, ts.recorded())
}

func TestTypingSender_StopTypingIsImmediate(t *testing.T) {
	ts := newTypingServer(t)
	sender := newTestSender(t, ts)

	sender.SendTyping()
	sender.StopTyping()

	assert.Equal(t, []string{"start", "stop"}, ts.recorded())

	// The inactivity timer was cancelled, no second stop.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"start", "stop"}, ts.recorded())

	// An explicit stop resets the debounce, so typing again starts fresh.
	sender.SendTyping()
	assert.Equal(t, []string{"start", "stop", "start"}, ts.recorded())
	sender.StopTyping()
}

func TestTypingObserver_SetSemantics(t *testing.T) {
	obs := NewTypingObserver(7, time.Minute)

	start := func(userID int64, username string) realtime.Event {
		return realtime.Event{
			Type:    realtime.EventTypingStart,
			Channel: "/topic/42",
			Data:    realtime.TypingPayload{UserID: userID, Username: username, TopicID: 42},
			UserID:  userID,
		}
	}

	obs.HandleEvent(start(3, "bo"))
	obs.HandleEvent(start(3, "bo")) // dedup
	obs.HandleEvent(start(9, "ada"))
	obs.HandleEvent(start(7, "me")) // self, never shown
	obs.HandleEvent(realtime.Event{Type: realtime.EventPostCreated})

	assert.Equal(t, []Participant{{UserID: 3, Username: "bo"}, {UserID: 9, Username: "ada"}}, obs.Typing())

	obs.HandleEvent(realtime.Event{
		Type:   realtime.EventTypingStop,
		Data:   realtime.TypingPayload{UserID: 3, TopicID: 42},
		UserID: 3,
	})

	assert.Equal(t, []Participant{{UserID: 9, Username: "ada"}}, obs.Typing())
}

func TestTypingObserver_ExpiresWithoutStop(t *testing.T) {
	obs := NewTypingObserver(7, 20*time.Millisecond)

	obs.HandleEvent(realtime.Event{
		Type:   realtime.EventTypingStart,
		Data:   realtime.TypingPayload{UserID: 3, Username: "bo", TopicID: 42},
		UserID: 3,
	})
	require.Len(t, obs.Typing(), 1)

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, obs.Typing(), "a lost typing:stop must not stick the indicator")
}

func TestNewTypingSender_Validation(t *testing.T) {
	_, err := NewTypingSender(TypingSenderConfig{TopicID: 42})
	assert.Error(t, err)

	_, err = NewTypingSender(TypingSenderConfig{Endpoint: "http://example.com"})
	assert.Error(t, err)
}
