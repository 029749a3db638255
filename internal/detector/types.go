// Package detector implements C5, the token detector: classifies *create*
// log events, enriches, filters, rate-limits, and broadcasts detected
// tokens. Grounded on pumpguard-rs/src/modules/token_monitor.rs.
package detector

import "time"

// DetectedToken is C5's owned record, per spec.md §3. Once inserted its
// fields are immutable.
type DetectedToken struct {
	Mint             string
	Name             string
	Symbol           string
	Creator          string
	Signature        string
	CreatedAt        time.Time // wall clock
	DetectedAt       int64     // monotonic-ish millis, used for LRU eviction
	InitialLiquidity float64
}

const (
	maxTokens      = 1000
	defaultName    = "Unknown"
	defaultSymbol  = "UNK"
)
