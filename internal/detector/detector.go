package detector

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

const settlingDelay = 500 * time.Millisecond

// Detector is C5: consumes classified log events of kind create, enriches,
// filters, rate-limits, and publishes detected tokens. Grounded on
// pumpguard-rs/src/modules/token_monitor.rs::TokenMonitor.
type Detector struct {
	chain   *chain.Client
	db      store.Store
	alerts  *alerts.Bus
	metrics *metrics.Registry
	logger  zerolog.Logger

	filters     *Filters
	rateLimiter *RateLimiter
	alertNewTokens bool

	tokens      *syncmap.Map[DetectedToken]
	newTokenBus *stream.Broadcast[DetectedToken]

	tokensDetected atomic.Int64
	alertsSent     atomic.Int64
	alertsSkipped  atomic.Int64
	running        atomic.Bool
}

// New constructs the token detector.
func New(chainClient *chain.Client, db store.Store, alertBus *alerts.Bus, reg *metrics.Registry, logger zerolog.Logger,
	minLiquidity, maxLiquidity float64, maxAlertsPerMinute int, alertNewTokens bool) *Detector {
	return &Detector{
		chain:          chainClient,
		db:             db,
		alerts:         alertBus,
		metrics:        reg,
		logger:         logger.With().Str("component", "token_detector").Logger(),
		filters:        NewFilters(minLiquidity, maxLiquidity),
		rateLimiter:    NewRateLimiter(maxAlertsPerMinute),
		alertNewTokens: alertNewTokens,
		tokens:         syncmap.New[DetectedToken](),
		newTokenBus:    stream.NewBroadcast[DetectedToken](10_000),
	}
}

// SubscribeNewTokens is C8's attachment point: it must be called, per the
// linker's ordering contract (spec.md §4.7), before Start.
func (d *Detector) SubscribeNewTokens() (<-chan any, int) {
	return d.newTokenBus.Subscribe()
}

// UnsubscribeNewTokens detaches a new-token subscriber.
func (d *Detector) UnsubscribeNewTokens(id int) {
	d.newTokenBus.Unsubscribe(id)
}

// Filters exposes the mutable filter state for the dashboard's control
// verbs (set_filter, blacklist_creator, whitelist_creator).
func (d *Detector) Filters() *Filters { return d.filters }

// Has reports whether mint is already in the detected-tokens map.
func (d *Detector) Has(mint string) bool { return d.tokens.Has(mint) }

// Get returns the detected token for mint, if present.
func (d *Detector) Get(mint string) (DetectedToken, bool) { return d.tokens.Get(mint) }

// Count returns the number of detected tokens currently held (bounded to
// 1000 by Start's eviction logic, spec.md T2).
func (d *Detector) Count() int { return d.tokens.Len() }

// Stats exposes the monotone counters for the dashboard.
func (d *Detector) Stats() (detected, sent, skipped int64) {
	return d.tokensDetected.Load(), d.alertsSent.Load(), d.alertsSkipped.Load()
}

// IsRunning reports whether Start's loop is active.
func (d *Detector) IsRunning() bool { return d.running.Load() }

// Stop signals Start's loop to exit at its next iteration, per spec.md §5's
// is_running cancellation contract.
func (d *Detector) Stop() { d.running.Store(false) }

// isCreateEvent classifies a LogEvent per spec.md §4.4.
func isCreateEvent(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, "Program log: Instruction: Create") || strings.Contains(line, "Instruction: Initialize") {
			return true
		}
	}
	return false
}

// Start subscribes to the log bus and runs the classify/enrich/filter
// pipeline of spec.md §4.4 until ctx is cancelled.
func (d *Detector) Start(ctx context.Context, logBus *stream.Client) {
	defer logging.RecoverPanic(&d.logger, "token_detector")
	d.running.Store(true)
	defer d.running.Store(false)

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
				if isCreateEvent(v.Logs) {
					d.handleCreateEvent(ctx, v)
				}
			case stream.Lag:
				d.metrics.BroadcastLag.WithLabelValues("log_stream:detector").Inc()
				d.logger.Warn().Uint64("skipped", v.Skipped).Msg("token detector lagging behind log stream")
			}
		}
	}
}

func (d *Detector) handleCreateEvent(ctx context.Context, event stream.LogEvent) {
	select {
	case <-time.After(settlingDelay):
	case <-ctx.Done():
		return
	}

	tx, err := d.chain.GetTransaction(ctx, event.Signature)
	if err != nil {
		d.logger.Debug().Err(err).Str("signature", event.Signature).Msg("getTransaction error, dropping")
		return
	}
	if tx == nil {
		return
	}

	token, ok := parseDetectedToken(tx, event.Signature, event.Logs)
	if !ok {
		return
	}

	if d.tokens.Has(token.Mint) {
		return
	}

	passesFilter, meetsLiquidity := d.filters.Evaluate(token.Creator, token.InitialLiquidity)
	if !passesFilter {
		return
	}

	d.tokensDetected.Add(1)
	d.metrics.TokensDetected.Inc()

	if err := d.db.SaveToken(ctx, store.TokenRecord{
		Mint: token.Mint, Name: token.Name, Symbol: token.Symbol, Creator: token.Creator,
		Signature: token.Signature, CreatedAt: token.CreatedAt, InitialLiquidity: token.InitialLiquidity,
	}); err != nil {
		d.logger.Warn().Err(err).Str("mint", token.Mint).Msg("failed to persist token")
	}

	d.tokens.Set(token.Mint, token)
	d.evictIfOverCapacity()

	d.newTokenBus.Publish(token)

	if meetsLiquidity && d.alertNewTokens {
		if d.rateLimiter.Admit(time.Now()) {
			typ, title, message, data := alerts.NewTokenAlert(token.Mint, token.Name, token.Symbol, token.Creator, token.InitialLiquidity)
			d.alerts.Send(ctx, typ, title, message, data)
			d.alertsSent.Add(1)
			d.metrics.AlertsSent.Inc()
		} else {
			d.alertsSkipped.Add(1)
			d.metrics.AlertsSkipped.Inc()
		}
	}
}

// evictIfOverCapacity enforces the 1000-entry cap (spec.md T2) by removing
// the entry with the minimum DetectedAt, an O(n) scan that only runs once
// the map has already grown past the cap.
func (d *Detector) evictIfOverCapacity() {
	if d.tokens.Len() <= maxTokens {
		return
	}
	var oldestMint string
	var oldestAt int64
	first := true
	d.tokens.Range(func(mint string, tok DetectedToken) bool {
		if first || tok.DetectedAt < oldestAt {
			oldestMint, oldestAt, first = mint, tok.DetectedAt, false
		}
		return true
	})
	if oldestMint != "" {
		d.tokens.Delete(oldestMint)
	}
}

// parseDetectedToken implements spec.md §4.4 step 3.
func parseDetectedToken(tx *chain.DecodedTx, fallbackSignature string, logs []string) (DetectedToken, bool) {
	if len(tx.PostTokenBalances) == 0 {
		return DetectedToken{}, false
	}
	mint := tx.PostTokenBalances[0].Mint
	if mint == "" {
		return DetectedToken{}, false
	}

	creator := tx.FirstSigner()
	if creator == "" {
		return DetectedToken{}, false
	}

	name, symbol := defaultName, defaultSymbol
	for _, line := range logs {
		if v, ok := logPrefixValue(line, "Program log: name: "); ok {
			name = v
		}
		if v, ok := logPrefixValue(line, "Program log: symbol: "); ok {
			symbol = v
		}
	}

	var initialLiquidity float64
	if len(tx.PreBalances) > 0 && len(tx.PostBalances) > 0 {
		delta := tx.PostBalances[0] - tx.PreBalances[0]
		if delta < 0 {
			delta = -delta
		}
		initialLiquidity = float64(delta) / 1_000_000_000.0
	}

	signature := tx.FirstSignature()
	if signature == "" {
		signature = fallbackSignature
	}

	now := time.Now()
	return DetectedToken{
		Mint: mint, Name: name, Symbol: symbol, Creator: creator, Signature: signature,
		CreatedAt: now, DetectedAt: now.UnixMilli(), InitialLiquidity: initialLiquidity,
	}, true
}

func logPrefixValue(line, prefix string) (string, bool) {
	if strings.HasPrefix(line, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
	}
	return "", false
}
