package whale

import "time"

// Thresholds holds C7's tuning knobs, sourced from config (spec.md §6):
// WHALE_THRESHOLD_SOL, ALERT_ON_ACCUMULATION, ALERT_ON_DUMP.
type Thresholds struct {
	WhaleThresholdSOL        float64
	AlertOnAccumulation      bool
	AlertOnDump              bool
	AccumulationWindow       time.Duration
	MinTransactionsForPattern int
}

// DefaultThresholds mirrors spec.md §6/§4.6's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WhaleThresholdSOL:         50.0,
		AlertOnAccumulation:       true,
		AlertOnDump:               true,
		AccumulationWindow:        defaultAccumulationWindow,
		MinTransactionsForPattern: defaultMinTxForPattern,
	}
}
