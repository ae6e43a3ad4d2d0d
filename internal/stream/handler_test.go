package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-realtime/internal/realtime"
)

// frameReader consumes SSE data frames off a response body.
type frameReader struct {
	scanner *bufio.Scanner
}

func newFrameReader(body *bufio.Scanner) *frameReader {
	return &frameReader{scanner: body}
}

func (f *frameReader) next(t *testing.T) realtime.Event {
	t.Helper()
	for f.scanner.Scan() {
		line := f.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt realtime.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
		return evt
	}
	t.Fatal("stream ended before a frame arrived")
	return realtime.Event{}
}

func openStream(t *testing.T, url string) (*frameReader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	return newFrameReader(bufio.NewScanner(resp.Body)), cancel
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	srv := httptest.NewServer(NewHandler(realtime.NewBroker()))
	defer srv.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"missing channels", srv.URL},
		{"malformed channel", srv.URL + "?channels=/bogus/1"},
		{"bad since", srv.URL + "?channels=/topic/1&since=abc"},
		{"negative since", srv.URL + "?channels=/topic/1&since=-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(tt.url)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandler_DeliversSubscribedChannelsOnly(t *testing.T) {
	broker := realtime.NewBroker()
	srv := httptest.NewServer(NewHandler(broker))
	defer srv.Close()

	frames, cancel := openStream(t, srv.URL+"?channels=/topic/42,/user/7")
	defer cancel()

	require.Equal(t, realtime.ControlConnected, frames.next(t).Type)

	broker.Publish("/topic/99", realtime.EventPostCreated, realtime.PostPayload{ID: 1, TopicID: 99}, 0)
	broker.Publish("/topic/42", realtime.EventPostCreated, realtime.PostPayload{ID: 7, TopicID: 42}, 0)
	broker.Publish("/user/7", realtime.EventNotificationNew, realtime.NotificationPayload{ID: 2, Kind: "reply"}, 0)

	evt := frames.next(t)
	assert.Equal(t, realtime.EventPostCreated, evt.Type)
	assert.Equal(t, "/topic/42", evt.Channel)

	evt = frames.next(t)
	assert.Equal(t, realtime.EventNotificationNew, evt.Type)
	assert.Equal(t, "/user/7", evt.Channel)
}

func TestHandler_ReplaysHistorySince(t *testing.T) {
	broker := realtime.NewBroker()
	srv := httptest.NewServer(NewHandler(broker))
	defer srv.Close()

	old := broker.Publish("/topic/42", realtime.EventPostCreated, realtime.PostPayload{ID: 1, TopicID: 42}, 0)
	time.Sleep(5 * time.Millisecond)
	recent := broker.Publish("/topic/42", realtime.EventPostUpdated, realtime.PostPayload{ID: 2, TopicID: 42}, 0)

	frames, cancel := openStream(t, srv.URL+"?channels=/topic/42&since="+strconv.FormatInt(old.Timestamp, 10))
	defer cancel()

	require.Equal(t, realtime.ControlConnected, frames.next(t).Type)

	evt := frames.next(t)
	assert.Equal(t, realtime.EventPostUpdated, evt.Type)
	assert.Equal(t, recent.Timestamp, evt.Timestamp)
}

func TestHandler_SendsKeepAlivePings(t *testing.T) {
	broker := realtime.NewBroker()
	srv := httptest.NewServer(NewHandler(broker, WithKeepAlive(20*time.Millisecond)))
	defer srv.Close()

	frames, cancel := openStream(t, srv.URL+"?channels=/topic/1")
	defer cancel()

	require.Equal(t, realtime.ControlConnected, frames.next(t).Type)
	assert.Equal(t, realtime.ControlPing, frames.next(t).Type)
}

func TestHandler_UnsubscribesOnDisconnect(t *testing.T) {
	broker := realtime.NewBroker()
	srv := httptest.NewServer(NewHandler(broker))
	defer srv.Close()

	frames, cancel := openStream(t, srv.URL+"?channels=/topic/42")
	require.Equal(t, realtime.ControlConnected, frames.next(t).Type)
	require.Equal(t, 1, broker.SubscriberCount("/topic/42"))

	cancel()

	assert.Eventually(t, func() bool {
		return broker.SubscriberCount("/topic/42") == 0
	}, time.Second, 10*time.Millisecond, "subscription must be released when the client goes away")
}
