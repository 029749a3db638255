package rug

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpguard-dev/pumpguard/internal/alerts"
	"github.com/pumpguard-dev/pumpguard/internal/chain"
	"github.com/pumpguard-dev/pumpguard/internal/metrics"
	"github.com/pumpguard-dev/pumpguard/internal/store"
	"github.com/pumpguard-dev/pumpguard/internal/storetest"
	"github.com/pumpguard-dev/pumpguard/internal/stream"
)

var sharedTestRegistry = sync.OnceValue(metrics.NewRegistry)

func rpcResult(v any) []byte {
	b, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "result": v})
	return b
}

func newTestDetector(t *testing.T, rpc http.HandlerFunc, th Thresholds) (*Detector, *storetest.Store) {
	t.Helper()
	srv := httptest.NewServer(rpc)
	t.Cleanup(srv.Close)

	chainClient := chain.NewClient(srv.URL, zerolog.Nop(), sharedTestRegistry())
	db := storetest.New()
	alertBus := alerts.New(alerts.WebhookConfig{}, alerts.NATSConfig{}, zerolog.Nop(), sharedTestRegistry())
	d := New(chainClient, "prog", db, alertBus, sharedTestRegistry(), zerolog.Nop(), th)
	return d, db
}

// TestDetector_HandleSell_ScenarioS3_DevDumpThenRug replays spec.md scenario
// S3 end to end through the real pipeline: a first dev-wallet sell of 30% of
// supply fires R1 as a critical alert, and a second dev sell pushes the
// score over rugScoreThreshold, triggering the terminal rug state.
func TestDetector_HandleSell_ScenarioS3_DevDumpThenRug(t *testing.T) {
	d, db := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(rpcResult(map[string]any{
			"transaction": map[string]any{
				"signatures": []string{"sell-sig"},
				"message":    map[string]any{"accountKeys": []string{"D"}},
			},
			"meta": map[string]any{
				"preBalances":  []int64{10_000_000_000},
				"postBalances": []int64{6_000_000_000},
				"preTokenBalances": []map[string]any{
					{"mint": "M2", "owner": "D", "uiTokenAmount": map[string]any{"uiAmount": 800_000_000}},
				},
				"postTokenBalances": []map[string]any{
					{"mint": "M2", "owner": "D", "uiTokenAmount": map[string]any{"uiAmount": 500_000_000}},
				},
			},
		}))
	}, DefaultThresholds())

	d.WatchToken("M2", "Coin", "COIN", "D", 10)

	d.handleSell(context.Background(), stream.LogEvent{Signature: "sig-1", Logs: []string{"Program log: Instruction: Sell"}})

	tok, ok := d.Get("M2")
	require.True(t, ok)
	assert.Equal(t, 50, tok.SuspicionScore)
	assert.False(t, tok.IsRugged)
	require.Len(t, tok.SellHistory, 1)
	assert.InDelta(t, 300_000_000, tok.SellHistory[0].AmountTokens, 0.0001)
	assert.InDelta(t, 4.0, tok.SellHistory[0].AmountSOL, 0.0001)

	d.handleSell(context.Background(), stream.LogEvent{Signature: "sig-2", Logs: []string{"Program log: Instruction: Sell"}})

	tok, ok = d.Get("M2")
	require.True(t, ok)
	assert.GreaterOrEqual(t, tok.SuspicionScore, rugScoreThreshold)
	assert.True(t, tok.IsRugged)
	assert.EqualValues(t, 1, d.RugsDetected())
	assert.Equal(t, 2, db.TransactionCount())
}

// TestDetector_HandleSell_UnwatchedMintIsANoOp confirms a sell against a
// mint C6 was never told to watch leaves no trace.
func TestDetector_HandleSell_UnwatchedMintIsANoOp(t *testing.T) {
	d, db := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(rpcResult(map[string]any{
			"transaction":       map[string]any{"signatures": []string{"s"}, "message": map[string]any{"accountKeys": []string{"W"}}},
			"meta":              map[string]any{"postTokenBalances": []map[string]any{{"mint": "unwatched"}}},
		}))
	}, DefaultThresholds())

	d.handleSell(context.Background(), stream.LogEvent{Signature: "s", Logs: nil})

	assert.Equal(t, 0, db.TransactionCount())
	_, ok := d.Get("unwatched")
	assert.False(t, ok)
}

// TestDetector_HandleLPRemoval_ScenarioS5 covers spec.md scenario S5: an LP
// removal draining 100% of a token's tracked liquidity must trigger a rug
// alert whose reason begins "LP removed: 8.00 SOL".
func TestDetector_HandleLPRemoval_ScenarioS5(t *testing.T) {
	d, db := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(rpcResult(map[string]any{
			"transaction": map[string]any{"signatures": []string{"lp-sig"}},
			"meta": map[string]any{
				"preBalances":      []int64{10_000_000_000},
				"postBalances":     []int64{2_000_000_000},
				"preTokenBalances": []map[string]any{{"mint": "M4"}},
			},
		}))
	}, DefaultThresholds())

	d.WatchToken("M4", "Rugged", "RUG", "D", 8)
	require.NoError(t, db.SaveToken(context.Background(), store.TokenRecord{Mint: "M4", Name: "Rugged"}))

	d.handleLPRemoval(context.Background(), stream.LogEvent{Signature: "lp-sig", Logs: []string{"Program log: Instruction: remove_liquidity"}})

	tok, ok := d.Get("M4")
	require.True(t, ok)
	assert.True(t, tok.IsRugged)
	assert.Contains(t, tok.RugReason, "LP removed: 8.00 SOL")
	assert.EqualValues(t, 1, d.RugsDetected())

	rec, err := db.GetToken(context.Background(), "M4")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsRugged)
}

// TestDetector_CheckLiquidity_DropTriggersRug covers the health-poll path:
// a liquidity drop at or above LPRemovalPercent must trigger a rug.
func TestDetector_CheckLiquidity_DropTriggersRug(t *testing.T) {
	mint := base58.Encode(bytesOfLen(32, 1))

	d, _ := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(rpcResult(map[string]any{"value": 2_000_000_000}))
	}, DefaultThresholds())

	d.WatchToken(mint, "Tok", "TOK", "D", 10)
	d.checkLiquidity(context.Background(), mint)

	tok, ok := d.Get(mint)
	require.True(t, ok)
	assert.True(t, tok.IsRugged)
	assert.InDelta(t, 2.0, tok.CurrentLiquidity, 0.0001)
}

func TestDetector_CheckLiquidity_SmallDropDoesNotTriggerRug(t *testing.T) {
	mint := base58.Encode(bytesOfLen(32, 2))

	d, _ := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(rpcResult(map[string]any{"value": 9_500_000_000}))
	}, DefaultThresholds())

	d.WatchToken(mint, "Tok", "TOK", "D", 10)
	d.checkLiquidity(context.Background(), mint)

	tok, ok := d.Get(mint)
	require.True(t, ok)
	assert.False(t, tok.IsRugged)
}

func TestDetector_WatchToken_SecondCallIsANoOp(t *testing.T) {
	d, _ := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {}, DefaultThresholds())

	d.WatchToken("M", "First", "F", "D", 10)
	d.WatchToken("M", "Second", "S", "OTHER", 999)

	tok, ok := d.Get("M")
	require.True(t, ok)
	assert.Equal(t, "First", tok.Name)
	assert.Equal(t, "D", tok.DevWallet)
	assert.Equal(t, 1, d.Count())
}

func bytesOfLen(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}
