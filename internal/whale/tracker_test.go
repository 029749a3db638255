package whale

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpguard-dev/pumpguard/internal/alerts"
	"github.com/pumpguard-dev/pumpguard/internal/metrics"
	"github.com/pumpguard-dev/pumpguard/internal/storetest"
)

var sharedTestRegistry = sync.OnceValue(metrics.NewRegistry)

func TestClassify_BuyTakesPrecedenceOverSell(t *testing.T) {
	kind := classify([]string{"Program log: Instruction: Sell", "Program log: Instruction: Buy"})
	assert.Equal(t, "buy", kind)
}

func TestClassify_SellOnly(t *testing.T) {
	assert.Equal(t, "sell", classify([]string{"Program log: Instruction: Sell"}))
}

func TestClassify_Neither(t *testing.T) {
	assert.Equal(t, "", classify([]string{"Program log: Instruction: Create"}))
}

func newTestTracker(t *testing.T, th Thresholds) (*Tracker, *storetest.Store) {
	t.Helper()
	db := storetest.New()
	alertBus := alerts.New(alerts.WebhookConfig{}, alerts.NATSConfig{}, zerolog.Nop(), sharedTestRegistry())
	tr := New(nil, db, alertBus, sharedTestRegistry(), zerolog.Nop(), th)
	return tr, db
}

// TestProcessTx_ScenarioS6_WhalePromotionAfterFourthBuy covers spec.md
// scenario S6: wallet W buys 30 SOL four times across different tokens
// (whale_threshold=50). None of the individual buys qualifies as a whale
// tx, but cumulative volume crosses 2x the threshold (100) on the 4th,
// promoting the wallet to whale exactly once.
func TestProcessTx_ScenarioS6_WhalePromotionAfterFourthBuy(t *testing.T) {
	th := DefaultThresholds()
	th.WhaleThresholdSOL = 50
	tr, db := newTestTracker(t, th)

	before := testutil.ToFloat64(sharedTestRegistry().WhalesIdentified)

	mints := []string{"M1", "M2", "M3", "M4"}
	for i, mint := range mints {
		tr.processTx(context.Background(), TxInfo{
			Signature: "sig" + mint, Wallet: "W", Mint: mint, Kind: "buy",
			AmountSOL: 30, TimestampMs: int64(1000 * (i + 1)),
		})
		wallet, ok := tr.GetWallet("W")
		require.True(t, ok)
		if i < 3 {
			assert.False(t, wallet.IsWhale, "must not be a whale before cumulative volume reaches 2x threshold")
		} else {
			assert.True(t, wallet.IsWhale)
			assert.InDelta(t, 120, wallet.TotalVolume, 0.0001)
		}
	}

	after := testutil.ToFloat64(sharedTestRegistry().WhalesIdentified)
	assert.Equal(t, float64(1), after-before, "whales_identified must increment exactly once")

	rec, err := db.GetToken(context.Background(), "ignored")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

// TestProcessTx_SingleTxOverThresholdIsImmediatelyAWhale covers the
// individual-transaction whale path (distinct from cumulative promotion).
func TestProcessTx_SingleTxOverThresholdIsImmediatelyAWhale(t *testing.T) {
	th := DefaultThresholds()
	th.WhaleThresholdSOL = 50
	tr, _ := newTestTracker(t, th)

	tr.processTx(context.Background(), TxInfo{
		Signature: "s1", Wallet: "Big", Mint: "M1", Kind: "buy", AmountSOL: 75, TimestampMs: 1000,
	})

	wallet, ok := tr.GetWallet("Big")
	require.True(t, ok)
	assert.True(t, wallet.IsWhale)
}

func TestProcessTx_UpdatesTokenMovementNetFlow(t *testing.T) {
	tr, _ := newTestTracker(t, DefaultThresholds())

	tr.processTx(context.Background(), TxInfo{Wallet: "A", Mint: "M", Kind: "buy", AmountSOL: 10, TimestampMs: 1000})
	tr.processTx(context.Background(), TxInfo{Wallet: "B", Mint: "M", Kind: "sell", AmountSOL: 4, TimestampMs: 2000})

	movement, ok := tr.GetMovement("M")
	require.True(t, ok)
	assert.InDelta(t, 6, movement.NetFlow, 0.0001)
	assert.Len(t, movement.Buys, 1)
	assert.Len(t, movement.Sells, 1)
}

func TestProcessTx_NonWhaleBuyDoesNotPersistTransaction(t *testing.T) {
	th := DefaultThresholds()
	th.WhaleThresholdSOL = 50
	tr, db := newTestTracker(t, th)

	tr.processTx(context.Background(), TxInfo{Wallet: "A", Mint: "M", Kind: "buy", AmountSOL: 1, TimestampMs: 1000})
	assert.Equal(t, 0, db.TransactionCount())
}

func TestWatchWallet_SecondCallIsANoOp(t *testing.T) {
	tr, _ := newTestTracker(t, DefaultThresholds())

	tr.WatchWallet("W", "first-label")
	tr.WatchWallet("W", "second-label")

	wallet, ok := tr.GetWallet("W")
	require.True(t, ok)
	assert.Equal(t, "first-label", wallet.Label)
	assert.Equal(t, 1, tr.WalletCount())
}

func TestPatternPassOnce_DetectsAccumulationPattern(t *testing.T) {
	th := DefaultThresholds()
	th.WhaleThresholdSOL = 10
	th.MinTransactionsForPattern = 2

	tr, _ := newTestTracker(t, th)

	tr.processTx(context.Background(), TxInfo{Wallet: "A", Mint: "M", Kind: "buy", AmountSOL: 20, TimestampMs: 1000})
	tr.processTx(context.Background(), TxInfo{Wallet: "B", Mint: "M", Kind: "buy", AmountSOL: 20, TimestampMs: 2000})

	movement, ok := tr.GetMovement("M")
	require.True(t, ok)
	whaleBuys := countAtLeast(movement.Buys, th.WhaleThresholdSOL)
	assert.GreaterOrEqual(t, whaleBuys.count, th.MinTransactionsForPattern)

	// patternPassOnce must not panic or otherwise disturb a movement that
	// still has entries in it.
	tr.patternPassOnce()
	_, stillThere := tr.GetMovement("M")
	assert.True(t, stillThere)
}

// TestPatternPassOnce_GarbageCollectsEmptyMovements exercises the GC path
// directly: a movement left with no buys or sells must be pruned.
func TestPatternPassOnce_GarbageCollectsEmptyMovements(t *testing.T) {
	tr, _ := newTestTracker(t, DefaultThresholds())
	tr.movements.Set("empty", newTokenMovement("empty"))

	tr.patternPassOnce()

	_, ok := tr.GetMovement("empty")
	assert.False(t, ok, "an empty movement must be garbage-collected")
}
