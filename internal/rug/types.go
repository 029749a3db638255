// Package rug implements C6, the rug-pull detector: watches tokens handed
// to it by C8, classifies sell/lp-removal events, scores suspicion against
// rules R1-R4, and polls liquidity for drift. Grounded on
// pumpguard-rs/src/modules/rug_detector.rs.
package rug

import "time"

// Severity mirrors spec.md §3's RugAlert.severity enum.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RugAlert is one append-only annotation on a WatchedToken.
type RugAlert struct {
	Type     string
	Message  string
	Severity Severity
}

// SellInfo is one entry of a WatchedToken's sell_history.
type SellInfo struct {
	Signature    string
	Wallet       string
	AmountSOL    float64
	AmountTokens float64
	TimestampMs  int64
}

// WatchedToken is C6's owned record, keyed by mint.
type WatchedToken struct {
	Mint    string
	Name    string
	Symbol  string
	Creator string
	DevWallet string

	InitialLiquidity float64
	CurrentLiquidity float64

	SellHistory []SellInfo

	SuspicionScore int
	Alerts         []RugAlert

	IsRugged  bool
	RugReason string

	LastCheck            int64 // epoch millis of the last health-poll inspection
	LastRapidSellTrigger int64 // epoch millis of the last R3 firing, for cooldown gating
}

const (
	maxSellHistory  = 100
	rugScoreThreshold = 80
	minCheckInterval  = 25 * time.Second
	pollInterval      = 30 * time.Second
)

// appendSell records a sell, evicting the oldest entry past the 100-cap
// (spec.md §3's sell_history invariant / T4).
func (w *WatchedToken) appendSell(s SellInfo) {
	w.SellHistory = append(w.SellHistory, s)
	if len(w.SellHistory) > maxSellHistory {
		w.SellHistory = w.SellHistory[len(w.SellHistory)-maxSellHistory:]
	}
}

// addScore is the only way suspicion_score changes: it is monotonic
// non-decreasing per spec.md T4, so delta must never be negative.
func (w *WatchedToken) addScore(delta int) {
	if delta <= 0 {
		return
	}
	w.SuspicionScore += delta
}

// recordAlert appends a RugAlert to the token's history.
func (w *WatchedToken) recordAlert(alertType, message string, severity Severity) {
	w.Alerts = append(w.Alerts, RugAlert{Type: alertType, Message: message, Severity: severity})
}
