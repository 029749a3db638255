package whale

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pumpguard-dev/pumpguard/internal/alerts"
	"github.com/pumpguard-dev/pumpguard/internal/chain"
	"github.com/pumpguard-dev/pumpguard/internal/logging"
	"github.com/pumpguard-dev/pumpguard/internal/metrics"
	"github.com/pumpguard-dev/pumpguard/internal/store"
	"github.com/pumpguard-dev/pumpguard/internal/stream"
	"github.com/pumpguard-dev/pumpguard/internal/syncmap"
)

const (
	buyDelay     = 300 * time.Millisecond
	patternPollInterval = 60 * time.Second
	unknownTokenName    = "UNKNOWN"
)

// Tracker is C7: the whale / flow tracker. Grounded on
// pumpguard-rs/src/modules/whale_watcher.rs::WhaleWatcher.
type Tracker struct {
	chain   *chain.Client
	db      store.Store
	alerts  *alerts.Bus
	metrics *metrics.Registry
	logger  zerolog.Logger

	thresholds Thresholds
	wallets    *syncmap.Map[WatchedWallet]
	movements  *syncmap.Map[TokenMovement]

	running atomic.Bool
}

// New constructs the whale tracker.
func New(chainClient *chain.Client, db store.Store, alertBus *alerts.Bus, reg *metrics.Registry, logger zerolog.Logger, thresholds Thresholds) *Tracker {
	return &Tracker{
		chain:      chainClient,
		db:         db,
		alerts:     alertBus,
		metrics:    reg,
		logger:     logger.With().Str("component", "whale_tracker").Logger(),
		thresholds: thresholds,
		wallets:    syncmap.New[WatchedWallet](),
		movements:  syncmap.New[TokenMovement](),
	}
}

// WatchWallet registers address under a human label ahead of any observed
// activity, for the dashboard's "watch_wallet" control verb. A no-op on the
// label if the wallet is already tracked.
func (t *Tracker) WatchWallet(address, label string) {
	t.wallets.Update(address, func(current WatchedWallet, existed bool) WatchedWallet {
		if existed {
			return current
		}
		return WatchedWallet{Address: address, Label: label}
	})
}

// GetWallet returns the watched wallet at address, if present.
func (t *Tracker) GetWallet(address string) (WatchedWallet, bool) { return t.wallets.Get(address) }

// GetMovement returns the token movement at mint, if present.
func (t *Tracker) GetMovement(mint string) (TokenMovement, bool) { return t.movements.Get(mint) }

// WalletCount reports how many wallets are tracked.
func (t *Tracker) WalletCount() int { return t.wallets.Len() }

// IsRunning reports whether Start's loop is active.
func (t *Tracker) IsRunning() bool { return t.running.Load() }

// Stop signals Start's loop to exit at its next iteration.
func (t *Tracker) Stop() { t.running.Store(false) }

// classify implements spec.md §4.6: sell iff "Instruction: Sell", buy iff
// "Instruction: Buy"; buy takes precedence if both somehow appear.
func classify(logs []string) string {
	sawSell := false
	for _, line := range logs {
		if strings.Contains(line, "Program log: Instruction: Buy") {
			return "buy"
		}
		if strings.Contains(line, "Program log: Instruction: Sell") {
			sawSell = true
		}
	}
	if sawSell {
		return "sell"
	}
	return ""
}

// Start runs the log-event classifier and spawns the 60s pattern pass
// until ctx is cancelled.
func (t *Tracker) Start(ctx context.Context, logBus *stream.Client) {
	defer logging.RecoverPanic(&t.logger, "whale_tracker")
	t.running.Store(true)
	defer t.running.Store(false)

	go t.patternPassLoop(ctx)

	ch, subID := logBus.Subscribe()
	defer logBus.Unsubscribe(subID)

	for t.running.Load() {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch v := msg.(type) {
			case stream.LogEvent:
				if kind := classify(v.Logs); kind != "" {
					go t.handleHit(ctx, v, kind)
				}
			case stream.Lag:
				t.metrics.BroadcastLag.WithLabelValues("log_stream:whale_tracker").Inc()
				t.logger.Warn().Uint64("skipped", v.Skipped).Msg("whale tracker lagging behind log stream")
			}
		}
	}
}

func (t *Tracker) handleHit(ctx context.Context, event stream.LogEvent, kind string) {
	defer logging.RecoverPanic(&t.logger, "whale_tracker-hit")

	select {
	case <-time.After(buyDelay):
	case <-ctx.Done():
		return
	}

	tx, err := t.chain.GetTransaction(ctx, event.Signature)
	if err != nil || tx == nil {
		return
	}

	info, ok := parseTxInfo(tx, event.Signature, kind)
	if !ok {
		return
	}

	t.processTx(ctx, info)
}

// processTx implements spec.md §4.6's three-way fan-out, with the wallet
// upsert merged into a single mutation per spec.md §9 Open Question 3
// (the original's double-mutation bug is not reproduced).
func (t *Tracker) processTx(ctx context.Context, info TxInfo) {
	isWhaleTx := info.AmountSOL >= t.thresholds.WhaleThresholdSOL

	var wallet WatchedWallet
	var justBecameWhale bool
	t.wallets.Update(info.Wallet, func(current WatchedWallet, existed bool) WatchedWallet {
		if !existed {
			current = WatchedWallet{Address: info.Wallet}
		}
		wasWhale := current.IsWhale
		current.TotalVolume += info.AmountSOL
		current.appendTx(info)
		current.LastActivity = info.TimestampMs
		if !current.IsWhale && (isWhaleTx || current.TotalVolume >= 2*t.thresholds.WhaleThresholdSOL) {
			current.IsWhale = true
		}
		justBecameWhale = !wasWhale && current.IsWhale
		wallet = current
		return current
	})

	if err := t.db.SaveWallet(ctx, store.WalletRecord{
		Address: wallet.Address, Label: wallet.Label, TotalVolume: wallet.TotalVolume,
		IsWhale: wallet.IsWhale,
	}); err != nil {
		t.logger.Warn().Err(err).Str("wallet", wallet.Address).Msg("failed to persist wallet")
	}

	if justBecameWhale {
		t.metrics.WhalesIdentified.Inc()
	}

	if isWhaleTx {
		if err := t.db.SaveTransaction(ctx, store.TransactionRecord{
			Signature: info.Signature, Mint: info.Mint, Wallet: info.Wallet, Kind: info.Kind,
			AmountSOL: info.AmountSOL, AmountTokens: info.AmountTokens, Timestamp: time.UnixMilli(info.TimestampMs),
		}); err != nil {
			t.logger.Warn().Err(err).Str("signature", info.Signature).Msg("failed to persist whale transaction")
		}

		tokenName := t.lookupTokenName(ctx, info.Mint)
		t.metrics.TotalVolumeTracked.Add(info.AmountSOL)

		switch info.Kind {
		case "buy":
			if t.thresholds.AlertOnAccumulation {
				typ, title, message, data := alerts.WhaleAlert(alerts.TypeWhaleBuy, info.Wallet, info.Mint, info.AmountSOL, wallet.TotalVolume)
				data["token_name"] = tokenName
				t.alerts.Send(ctx, typ, title, message, data)
				t.metrics.AccumulationAlerts.Inc()
			}
		case "sell":
			if t.thresholds.AlertOnDump {
				typ, title, message, data := alerts.WhaleAlert(alerts.TypeWhaleSell, info.Wallet, info.Mint, info.AmountSOL, wallet.TotalVolume)
				data["token_name"] = tokenName
				t.alerts.Send(ctx, typ, title, message, data)
				t.metrics.DumpAlerts.Inc()
			}
		}
	}

	t.movements.Update(info.Mint, func(current TokenMovement, existed bool) TokenMovement {
		if !existed {
			current = newTokenMovement(info.Mint)
		}
		current.applyTx(info, t.thresholds.AccumulationWindow.Milliseconds())
		return current
	})
}

func (t *Tracker) lookupTokenName(ctx context.Context, mint string) string {
	rec, err := t.db.GetToken(ctx, mint)
	if err != nil || rec == nil {
		return unknownTokenName
	}
	return rec.Name
}

// patternPassLoop implements spec.md §4.6's 60s periodic pattern pass.
func (t *Tracker) patternPassLoop(ctx context.Context) {
	defer logging.RecoverPanic(&t.logger, "whale_tracker-pattern")
	ticker := time.NewTicker(patternPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.patternPassOnce()
		}
	}
}

func (t *Tracker) patternPassOnce() {
	var emptyMints []string
	t.movements.Range(func(mint string, m TokenMovement) bool {
		whaleBuys := countAtLeast(m.Buys, t.thresholds.WhaleThresholdSOL)
		if whaleBuys.count >= t.thresholds.MinTransactionsForPattern {
			t.logger.Info().Str("mint", mint).Int("whale_buys", whaleBuys.count).Float64("total_sol", whaleBuys.total).
				Msg("accumulation pattern detected")
		}
		whaleSells := countAtLeast(m.Sells, t.thresholds.WhaleThresholdSOL)
		if whaleSells.count >= t.thresholds.MinTransactionsForPattern {
			t.logger.Warn().Str("mint", mint).Int("whale_sells", whaleSells.count).Float64("total_sol", whaleSells.total).
				Msg("dump pattern detected")
		}
		if m.isEmpty() {
			emptyMints = append(emptyMints, mint)
		}
		return true
	})

	for _, mint := range emptyMints {
		t.movements.DeleteWhere(func(key string, value TokenMovement) bool {
			return key == mint && value.isEmpty()
		})
	}
}

type whaleTally struct {
	count int
	total float64
}

func countAtLeast(txs []TxInfo, threshold float64) whaleTally {
	var tally whaleTally
	for _, tx := range txs {
		if tx.AmountSOL >= threshold {
			tally.count++
			tally.total += tx.AmountSOL
		}
	}
	return tally
}

// parseTxInfo implements spec.md §4.6's tx parse: mint is read from
// post_token_balances on a buy (the token the wallet now holds) or
// pre_token_balances on a sell (the token it held going in).
// amount_tokens is deliberately 0 here — spec.md §4.6 does not extend
// Open Question 1's real-parse fix to the whale tracker, only to C6's R1.
func parseTxInfo(tx *chain.DecodedTx, fallbackSignature, kind string) (TxInfo, bool) {
	var mint string
	if kind == "buy" {
		if len(tx.PostTokenBalances) == 0 {
			return TxInfo{}, false
		}
		mint = tx.PostTokenBalances[0].Mint
	} else {
		if len(tx.PreTokenBalances) == 0 {
			return TxInfo{}, false
		}
		mint = tx.PreTokenBalances[0].Mint
	}
	if mint == "" {
		return TxInfo{}, false
	}

	wallet := tx.FirstSigner()
	if wallet == "" {
		return TxInfo{}, false
	}

	var amountSOL float64
	if len(tx.PreBalances) > 0 && len(tx.PostBalances) > 0 {
		delta := tx.PostBalances[0] - tx.PreBalances[0]
		if delta < 0 {
			delta = -delta
		}
		amountSOL = float64(delta) / 1_000_000_000.0
	}

	signature := tx.FirstSignature()
	if signature == "" {
		signature = fallbackSignature
	}

	return TxInfo{
		Signature: signature, Wallet: wallet, Mint: mint, Kind: kind,
		AmountSOL: amountSOL, AmountTokens: 0, TimestampMs: time.Now().UnixMilli(),
	}, true
}
