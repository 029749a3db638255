package rug

import (
	"fmt"
	"time"
)

// Thresholds holds C6's mutable tuning knobs, sourced from config (spec.md
// §6): MAX_DEV_SELL_PERCENT, DEV_WALLET_SELL_ALERT, MIN_TIME_BETWEEN_SELLS_MS,
// SUSPICIOUS_SELL_PERCENT, LP_REMOVAL_THRESHOLD_PERCENT.
type Thresholds struct {
	MaxDevSellPercent     float64
	DevWalletSellAlert    bool
	MinTimeBetweenSells   time.Duration
	SuspiciousSellPercent float64
	LPRemovalPercent      float64

	// PreserveZeroTokenAmountQuirk recreates the original's always-zero
	// amount_tokens parsing instead of deriving it from the token-balance
	// delta; see spec.md §9 Open Question 1. Default false.
	PreserveZeroTokenAmountQuirk bool
}

// DefaultThresholds mirrors spec.md §6's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxDevSellPercent:     20,
		DevWalletSellAlert:    true,
		MinTimeBetweenSells:   60 * time.Second,
		SuspiciousSellPercent: 10,
		LPRemovalPercent:      50,
	}
}

// ruleHit is one rule firing against a sell, carrying everything the caller
// needs to score, annotate, and alert.
type ruleHit struct {
	rule     string
	score    int
	message  string
	severity Severity
}

// evaluateSellRules runs R1-R4 against tok (already updated with sell
// appended to SellHistory) and returns every rule that fired, per
// spec.md §4.5's table. R3's cooldown state, tok.LastRapidSellTrigger, is
// read and, when R3 fires, updated here (by evaluateRapidSelling).
func evaluateSellRules(tok *WatchedToken, sell SellInfo, th Thresholds) []ruleHit {
	var hits []ruleHit

	if sell.Wallet == tok.DevWallet {
		sellPercent := sell.AmountTokens / 1e9 * 100
		if sellPercent >= th.MaxDevSellPercent {
			hits = append(hits, ruleHit{
				rule:     "R1_dev_dump",
				score:    50,
				message:  fmt.Sprintf("Developer sold %.2f%% of supply", sellPercent),
				severity: SeverityCritical,
			})
		} else if th.DevWalletSellAlert {
			hits = append(hits, ruleHit{
				rule:     "R2_dev_sell",
				score:    20,
				message:  fmt.Sprintf("Developer wallet sold %.4f SOL", sell.AmountSOL),
				severity: SeverityMedium,
			})
		}
	}

	if hit, ok := evaluateRapidSelling(tok, sell, th); ok {
		hits = append(hits, hit)
	}

	if tok.CurrentLiquidity > 0 && sell.AmountSOL > tok.CurrentLiquidity*th.SuspiciousSellPercent/100 {
		hits = append(hits, ruleHit{
			rule:     "R4_large_sell",
			score:    15,
			message:  fmt.Sprintf("Large single sell: %.4f SOL (%.2f%% of liquidity)", sell.AmountSOL, sell.AmountSOL/tok.CurrentLiquidity*100),
			severity: SeverityMedium,
		})
	}

	return hits
}

// evaluateRapidSelling implements R3: within the last MinTimeBetweenSells,
// at least 3 sells summing more than 30% of initial liquidity. It fires at
// most once per cooldown window (spec.md S4: "fires exactly once on the
// first sell that completes the pattern") by gating on
// tok.LastRapidSellTrigger.
func evaluateRapidSelling(tok *WatchedToken, sell SellInfo, th Thresholds) (ruleHit, bool) {
	windowStart := sell.TimestampMs - th.MinTimeBetweenSells.Milliseconds()

	var count int
	var sum float64
	for _, s := range tok.SellHistory {
		if s.TimestampMs >= windowStart {
			count++
			sum += s.AmountSOL
		}
	}

	threshold := 0.3 * tok.InitialLiquidity
	if count < 3 || sum <= threshold {
		return ruleHit{}, false
	}

	if tok.LastRapidSellTrigger != 0 && sell.TimestampMs-tok.LastRapidSellTrigger < th.MinTimeBetweenSells.Milliseconds() {
		return ruleHit{}, false
	}

	tok.LastRapidSellTrigger = sell.TimestampMs
	return ruleHit{
		rule:     "R3_rapid_selling",
		score:    30,
		message:  fmt.Sprintf("Rapid selling detected: %d sells totaling %.4f SOL in %s", count, sum, th.MinTimeBetweenSells),
		severity: SeverityHigh,
	}, true
}
