package linker

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

	"github.com/pumpguard-dev/pumpguard/internal/alerts"
	"github.com/pumpguard-dev/pumpguard/internal/chain"
	"github.com/pumpguard-dev/pumpguard/internal/detector"
	"github.com/pumpguard-dev/pumpguard/internal/metrics"
	"github.com/pumpguard-dev/pumpguard/internal/rug"
	"github.com/pumpguard-dev/pumpguard/internal/storetest"
	"github.com/pumpguard-dev/pumpguard/internal/stream"
)

var sharedTestRegistry = sync.OnceValue(metrics.NewRegistry)

func rpcResult(v any) []byte {
	b, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "result": v})
	return b
}

var upgrader = websocket.Upgrader{}

// newSingleNotificationLogServer serves one logsSubscribe connection: it
// acks the subscription request, then emits exactly one logsNotification
// carrying the given signature/logs before going quiet.
func newSingleNotificationLogServer(t *testing.T, signature string, logs []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Drain (and discard) the client's logsSubscribe request.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if err := conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "result": 11111}); err != nil {
			return
		}

		note := map[string]any{
			"jsonrpc": "2.0",
			"method":  "logsNotification",
			"params": map[string]any{
				"result": map[string]any{
					"value": map[string]any{"signature": signature, "logs": logs},
				},
			},
		}
		if err := conn.WriteJSON(note); err != nil {
			return
		}

		// Keep the connection open so the client doesn't treat a close as
		// a disconnect mid-assertion; let the test's own teardown sever it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// TestLinker_Run_ForwardsDetectedTokenToRugDetector covers spec.md §4.7 end
// to end: a token surfaced through C2's real log stream and C5's real
// detection pipeline ends up watched by C6, with the linker constructed
// (and hence subscribed to C5's new-token bus) before C5's Start runs.
func TestLinker_Run_ForwardsDetectedTokenToRugDetector(t *testing.T) {
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(rpcResult(map[string]any{
			"transaction": map[string]any{
				"signatures": []string{"S1"},
				"message":    map[string]any{"accountKeys": []string{"C1"}},
			},
			"meta": map[string]any{
				"preBalances":       []int64{2_000_000_000},
				"postBalances":      []int64{1_000_000_000},
				"postTokenBalances": []map[string]any{{"mint": "M1"}},
			},
		}))
	}))
	defer rpcSrv.Close()

	logSrv := newSingleNotificationLogServer(t, "S1", []string{"Program log: Instruction: Create"})

	chainClient := chain.NewClient(rpcSrv.URL, zerolog.Nop(), sharedTestRegistry())
	alertBus := alerts.New(alerts.WebhookConfig{}, alerts.NATSConfig{}, zerolog.Nop(), sharedTestRegistry())
	logBus := stream.NewClient(wsURL(logSrv.URL), "prog", zerolog.Nop(), sharedTestRegistry())

	tokenDetector := detector.New(chainClient, storetest.New(), alertBus, sharedTestRegistry(), zerolog.Nop(), 0, 1000, 0, false)
	rugDetector := rug.New(chainClient, "prog", storetest.New(), alertBus, sharedTestRegistry(), zerolog.Nop(), rug.DefaultThresholds())

	// Construction order matters: the linker must subscribe to C5's
	// new-token bus before C5's Start is ever called.
	l := New(tokenDetector, rugDetector, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go logBus.Run(ctx)
	go tokenDetector.Start(ctx, logBus)

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, ok := rugDetector.Get("M1")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	tok, _ := rugDetector.Get("M1")
	assert.Equal(t, "C1", tok.Creator)
	assert.InDelta(t, 1.0, tok.InitialLiquidity, 0.0001)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}
