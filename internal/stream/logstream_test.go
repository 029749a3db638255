package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpguard-dev/pumpguard/internal/metrics"
)

var sharedTestRegistry = sync.OnceValue(metrics.NewRegistry)

var upgrader = websocket.Upgrader{}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// newFakeLogServer acks the logsSubscribe request then writes the given
// notification frames, one text message per note, before blocking on
// ReadMessage until the client disconnects or the test tears down.
func newFakeLogServer(t *testing.T, notes [][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if err := conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "result": 42}); err != nil {
			return
		}
		for _, note := range notes {
			if err := conn.WriteMessage(websocket.TextMessage, note); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func logsNotification(signature string, logs []string) []byte {
	note := map[string]any{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]any{
			"result": map[string]any{
				"value": map[string]any{"signature": signature, "logs": logs},
			},
		},
	}
	b, _ := json.Marshal(note)
	return b
}

// TestClient_PublishesNotificationsIgnoringAck covers spec.md §4.2: the
// bare {"result": id} ack carries no "params" and must not be published,
// while a real logsNotification frame must reach subscribers.
func TestClient_PublishesNotificationsIgnoringAck(t *testing.T) {
	srv := newFakeLogServer(t, [][]byte{logsNotification("SIG1", []string{"Program log: Instruction: Create"})})

	c := NewClient(wsURL(srv.URL), "prog", zerolog.Nop(), sharedTestRegistry())
	ch, id := c.Subscribe()
	defer c.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case msg := <-ch:
		ev, ok := msg.(LogEvent)
		require.True(t, ok)
		assert.Equal(t, "SIG1", ev.Signature)
		assert.Equal(t, []string{"Program log: Instruction: Create"}, ev.Logs)
	case <-time.After(5 * time.Second):
		t.Fatal("did not receive a LogEvent in time")
	}
}

func TestClient_IsRunningReflectsLifecycle(t *testing.T) {
	srv := newFakeLogServer(t, nil)
	c := NewClient(wsURL(srv.URL), "prog", zerolog.Nop(), sharedTestRegistry())

	assert.False(t, c.IsRunning())

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	require.Eventually(t, c.IsRunning, time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !c.IsRunning() }, time.Second, 10*time.Millisecond)
}

// newAckThenCloseServer acks the logsSubscribe request then immediately
// closes the connection, so connectAndStream dials successfully but
// returns an error shortly after (a post-connect drop, not a dial failure).
func newAckThenCloseServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "result": 42})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestConnectAndStream_ResetsBackoffAfterSuccessfulDial covers spec.md
// §4.2's "reset to 5s after a successful connect": a backoff left high by
// an earlier, unrelated failure streak must not survive a dial that
// succeeds, even if the resulting session is short-lived.
func TestConnectAndStream_ResetsBackoffAfterSuccessfulDial(t *testing.T) {
	srv := newAckThenCloseServer(t)
	c := NewClient(wsURL(srv.URL), "prog", zerolog.Nop(), sharedTestRegistry())

	backoff := maxBackoff
	err := c.connectAndStream(context.Background(), &backoff)

	assert.Error(t, err, "the post-ack close must surface as a stream error")
	assert.Equal(t, initialBackoff, backoff, "a successful dial must reset backoff regardless of its prior value")
}

func TestClient_SubscribeBeforeRunReceivesEverySubsequentEvent(t *testing.T) {
	srv := newFakeLogServer(t, [][]byte{
		logsNotification("SIG1", []string{"a"}),
		logsNotification("SIG2", []string{"b"}),
	})

	c := NewClient(wsURL(srv.URL), "prog", zerolog.Nop(), sharedTestRegistry())
	ch, id := c.Subscribe()
	defer c.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	var sigs []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			sigs = append(sigs, msg.(LogEvent).Signature)
		case <-time.After(5 * time.Second):
			t.Fatalf("only received %d of 2 events", len(sigs))
		}
	}
	assert.ElementsMatch(t, []string{"SIG1", "SIG2"}, sigs)
}
