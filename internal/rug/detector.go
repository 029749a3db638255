package rug

import (
	"context"
	"fmt"
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
	sellThrottle     = 100 * time.Millisecond
	sellSettleDelay  = 300 * time.Millisecond
)

var lpRemovalMarkers = []string{"withdraw", "remove_liquidity", "migrate"}

// Detector is C6: the rug-pull detector. Grounded on
// pumpguard-rs/src/modules/rug_detector.rs::RugDetector.
type Detector struct {
	chain   *chain.Client
	db      store.Store
	alerts  *alerts.Bus
	metrics *metrics.Registry
	logger  zerolog.Logger

	programID  string
	thresholds Thresholds
	tokens     *syncmap.Map[WatchedToken]

	rugsDetected atomic.Int64
	running      atomic.Bool
}

// New constructs the rug detector. programID is the target program's
// address, needed locally for derive_program_address liquidity checks.
func New(chainClient *chain.Client, programID string, db store.Store, alertBus *alerts.Bus, reg *metrics.Registry, logger zerolog.Logger, thresholds Thresholds) *Detector {
	return &Detector{
		chain:      chainClient,
		programID:  programID,
		db:         db,
		alerts:     alertBus,
		metrics:    reg,
		logger:     logger.With().Str("component", "rug_detector").Logger(),
		thresholds: thresholds,
		tokens:     syncmap.New[WatchedToken](),
	}
}

// WatchToken registers mint under C6's watch; a no-op if already watched
// (spec.md's round-trip property: "watch_token called twice for the same
// mint is a no-op after the first"). This is C8's attachment point.
func (d *Detector) WatchToken(mint, name, symbol, creator string, initialLiquidity float64) {
	d.tokens.Update(mint, func(current WatchedToken, existed bool) WatchedToken {
		if existed {
			return current
		}
		return WatchedToken{
			Mint: mint, Name: name, Symbol: symbol, Creator: creator, DevWallet: creator,
			InitialLiquidity: initialLiquidity, CurrentLiquidity: initialLiquidity,
		}
	})
}

// Get returns the watched token for mint, if present.
func (d *Detector) Get(mint string) (WatchedToken, bool) { return d.tokens.Get(mint) }

// Count reports how many tokens are currently watched.
func (d *Detector) Count() int { return d.tokens.Len() }

// RugsDetected reports the monotone rugs_detected counter.
func (d *Detector) RugsDetected() int64 { return d.rugsDetected.Load() }

// IsRunning reports whether Start's loop is active.
func (d *Detector) IsRunning() bool { return d.running.Load() }

// Stop signals Start's loop to exit at its next iteration.
func (d *Detector) Stop() { d.running.Store(false) }

func isSellEvent(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, "Program log: Instruction: Sell") {
			return true
		}
	}
	return false
}

func isLPRemovalEvent(logs []string) bool {
	for _, line := range logs {
		lower := strings.ToLower(line)
		for _, marker := range lpRemovalMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// Start runs task (A), the log-event reactor, and spawns task (B), the
// 30s health poller, until ctx is cancelled.
func (d *Detector) Start(ctx context.Context, logBus *stream.Client) {
	defer logging.RecoverPanic(&d.logger, "rug_detector")
	d.running.Store(true)
	defer d.running.Store(false)

	go d.healthPollLoop(ctx)

	ch, subID := logBus.Subscribe()
	defer logBus.Unsubscribe(subID)

	for d.running.Load() {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch v := msg.(type) {
			case stream.LogEvent:
				isSell := isSellEvent(v.Logs)
				isLP := isLPRemovalEvent(v.Logs)
				if isSell {
					go d.handleSell(ctx, v)
				}
				if isLP {
					go d.handleLPRemoval(ctx, v)
				}
			case stream.Lag:
				d.metrics.BroadcastLag.WithLabelValues("log_stream:rug_detector").Inc()
				d.logger.Warn().Uint64("skipped", v.Skipped).Msg("rug detector lagging behind log stream")
			}
		}
	}
}

func (d *Detector) handleSell(ctx context.Context, event stream.LogEvent) {
	defer logging.RecoverPanic(&d.logger, "rug_detector-sell")

	select {
	case <-time.After(sellThrottle):
	case <-ctx.Done():
		return
	}
	select {
	case <-time.After(sellSettleDelay):
	case <-ctx.Done():
		return
	}

	tx, err := d.chain.GetTransaction(ctx, event.Signature)
	if err != nil || tx == nil {
		return
	}

	sell, mint, ok := parseSell(tx, event.Signature, d.thresholds.PreserveZeroTokenAmountQuirk)
	if !ok {
		return
	}

	if !d.tokens.Has(mint) {
		return
	}

	if err := d.db.SaveTransaction(ctx, store.TransactionRecord{
		Signature: sell.Signature, Mint: mint, Wallet: sell.Wallet, Kind: "sell",
		AmountSOL: sell.AmountSOL, AmountTokens: sell.AmountTokens, Timestamp: time.UnixMilli(sell.TimestampMs),
	}); err != nil {
		d.logger.Warn().Err(err).Str("signature", sell.Signature).Msg("failed to persist sell transaction")
	}

	var hits []ruleHit
	var justRugged bool
	var tokSnapshot WatchedToken
	d.tokens.Update(mint, func(current WatchedToken, existed bool) WatchedToken {
		if !existed {
			return current
		}
		current.appendSell(sell)
		hits = evaluateSellRules(&current, sell, d.thresholds)
		for _, h := range hits {
			current.addScore(h.score)
			current.recordAlert(h.rule, h.message, h.severity)
		}
		if !current.IsRugged && current.SuspicionScore >= rugScoreThreshold {
			current.IsRugged = true
			current.RugReason = "High suspicion score reached"
			justRugged = true
		}
		tokSnapshot = current
		return current
	})

	for _, h := range hits {
		d.dispatchRuleAlert(ctx, tokSnapshot, h)
	}
	if justRugged {
		d.triggerRug(ctx, mint, "High suspicion score reached")
	}
}

func (d *Detector) handleLPRemoval(ctx context.Context, event stream.LogEvent) {
	defer logging.RecoverPanic(&d.logger, "rug_detector-lp")

	tx, err := d.chain.GetTransaction(ctx, event.Signature)
	if err != nil || tx == nil {
		return
	}

	for _, bal := range tx.PreTokenBalances {
		mint := bal.Mint
		if mint == "" || !d.tokens.Has(mint) {
			continue
		}
		if len(tx.PreBalances) == 0 || len(tx.PostBalances) == 0 {
			continue
		}
		lpChange := float64(tx.PreBalances[0]-tx.PostBalances[0]) / 1_000_000_000.0

		tok, ok := d.tokens.Get(mint)
		if !ok || tok.CurrentLiquidity <= 0 {
			continue
		}
		if lpChange > tok.CurrentLiquidity*d.thresholds.LPRemovalPercent/100 {
			reason := fmt.Sprintf("LP removed: %.2f SOL (%.2f%%)", lpChange, lpChange/tok.CurrentLiquidity*100)
			d.triggerRug(ctx, mint, reason)
		}
	}
}

// healthPollLoop implements task (B): every 30s, re-check liquidity for
// tokens not inspected within the last 25s.
func (d *Detector) healthPollLoop(ctx context.Context) {
	defer logging.RecoverPanic(&d.logger, "rug_detector-poll")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pollOnce(ctx)
		}
	}
}

func (d *Detector) pollOnce(ctx context.Context) {
	now := time.Now()
	var toCheck []WatchedToken
	d.tokens.Range(func(mint string, tok WatchedToken) bool {
		if tok.IsRugged {
			return true
		}
		if tok.LastCheck != 0 && now.Sub(time.UnixMilli(tok.LastCheck)) < minCheckInterval {
			return true
		}
		toCheck = append(toCheck, tok)
		return true
	})

	for _, tok := range toCheck {
		d.checkLiquidity(ctx, tok.Mint)
	}
}

func (d *Detector) checkLiquidity(ctx context.Context, mint string) {
	address, err := chain.DeriveProgramAddress(mint, d.programID)
	if err != nil {
		d.logger.Debug().Err(err).Str("mint", mint).Msg("failed to derive bonding curve address")
		return
	}
	balance, err := d.chain.GetBalance(ctx, address)
	if err != nil {
		d.logger.Debug().Err(err).Str("mint", mint).Msg("failed to fetch bonding curve balance")
		return
	}

	now := time.Now().UnixMilli()
	var dropPercent float64
	var shouldRug bool
	d.tokens.Update(mint, func(current WatchedToken, existed bool) WatchedToken {
		if !existed {
			return current
		}
		current.LastCheck = now
		if current.CurrentLiquidity > 0 && !current.IsRugged {
			drop := (current.CurrentLiquidity - balance) / current.CurrentLiquidity * 100
			if drop >= d.thresholds.LPRemovalPercent {
				dropPercent = drop
				shouldRug = true
			}
		}
		current.CurrentLiquidity = balance
		return current
	})

	if shouldRug {
		d.triggerRug(ctx, mint, fmt.Sprintf("Liquidity dropped %.2f%%", dropPercent))
	}
}

func (d *Detector) dispatchRuleAlert(ctx context.Context, tok WatchedToken, hit ruleHit) {
	if hit.severity == SeverityCritical {
		typ, title, message, data := alerts.RugPullAlert(tok.Mint, tok.Name, hit.message, alertSeverity(hit.severity), tok.SuspicionScore)
		d.alerts.Send(ctx, typ, title, message, data)
	} else {
		typ, title, message, data := alerts.SuspiciousAlert(tok.Mint, tok.Name, hit.rule, hit.message, alertSeverity(hit.severity), hit.score)
		d.alerts.Send(ctx, typ, title, message, data)
	}
}

func alertSeverity(s Severity) alerts.Severity {
	switch s {
	case SeverityCritical:
		return alerts.SeverityCritical
	case SeverityHigh:
		return alerts.SeverityHigh
	case SeverityMedium:
		return alerts.SeverityMedium
	default:
		return alerts.SeverityLow
	}
}

// triggerRug sets the terminal rug state and dispatches the critical
// rug-pull alert. Idempotent in effect per spec.md §4.5: still alerts and
// counts on repeat triggers even though the token's status fields are
// already terminal.
func (d *Detector) triggerRug(ctx context.Context, mint, reason string) {
	var tok WatchedToken
	var ok bool
	d.tokens.Update(mint, func(current WatchedToken, existed bool) WatchedToken {
		ok = existed
		if !existed {
			return current
		}
		current.IsRugged = true
		current.RugReason = reason
		current.recordAlert("rug", reason, SeverityCritical)
		tok = current
		return current
	})
	if !ok {
		return
	}

	if err := d.db.MarkAsRugged(ctx, mint, reason); err != nil {
		d.logger.Warn().Err(err).Str("mint", mint).Msg("failed to persist rug status")
	}

	d.rugsDetected.Add(1)
	d.metrics.RugsDetected.Inc()

	typ, title, message, data := alerts.RugPullAlert(mint, tok.Name, reason, alerts.SeverityCritical, tok.SuspicionScore)
	d.alerts.Send(ctx, typ, title, message, data)
}

// parseSell implements spec.md §4.5's sell-tx parse: mint from the first
// post_token_balances entry, wallet from the first signer,
// amount_sol=|Δbalance[0]|/1e9. amount_tokens is derived from the wallet's
// own token-balance delta unless preserveQuirk recreates the original's
// always-zero behavior (spec.md §9 Open Question 1).
func parseSell(tx *chain.DecodedTx, fallbackSignature string, preserveQuirk bool) (SellInfo, string, bool) {
	if len(tx.PostTokenBalances) == 0 {
		return SellInfo{}, "", false
	}
	mint := tx.PostTokenBalances[0].Mint
	if mint == "" {
		return SellInfo{}, "", false
	}

	wallet := tx.FirstSigner()
	if wallet == "" {
		return SellInfo{}, "", false
	}

	var amountSOL float64
	if len(tx.PreBalances) > 0 && len(tx.PostBalances) > 0 {
		delta := tx.PostBalances[0] - tx.PreBalances[0]
		if delta < 0 {
			delta = -delta
		}
		amountSOL = float64(delta) / 1_000_000_000.0
	}

	var amountTokens float64
	if !preserveQuirk {
		amountTokens = tokenDeltaForOwner(tx, wallet)
	}

	signature := tx.FirstSignature()
	if signature == "" {
		signature = fallbackSignature
	}

	return SellInfo{
		Signature: signature, Wallet: wallet, AmountSOL: amountSOL,
		AmountTokens: amountTokens, TimestampMs: time.Now().UnixMilli(),
	}, mint, true
}

// tokenDeltaForOwner sums |post - pre| token-balance deltas for every entry
// owned by owner, the real parse spec.md §9 prescribes as the default
// instead of the original's always-zero amount_tokens.
func tokenDeltaForOwner(tx *chain.DecodedTx, owner string) float64 {
	pre := make(map[string]float64)
	for _, b := range tx.PreTokenBalances {
		if b.Owner == owner {
			pre[b.Mint] += b.UiTokenAmount
		}
	}
	var total float64
	for _, b := range tx.PostTokenBalances {
		if b.Owner != owner {
			continue
		}
		delta := b.UiTokenAmount - pre[b.Mint]
		if delta < 0 {
			delta = -delta
		}
		total += delta
	}
	return total
}
