package detector

import "sync"

// Filters holds the mutable creator blacklist/whitelist and liquidity band,
// guarded by a reader-preferring lock per spec.md §5 ("writes are rare").
// Grounded on pumpguard-rs/src/modules/token_monitor.rs::TokenFilters.
type Filters struct {
	mu sync.RWMutex

	minLiquidity float64
	maxLiquidity float64
	blacklist    map[string]bool
	whitelist    map[string]bool
}

// NewFilters constructs a Filters with the given initial liquidity band.
func NewFilters(minLiquidity, maxLiquidity float64) *Filters {
	return &Filters{
		minLiquidity: minLiquidity,
		maxLiquidity: maxLiquidity,
		blacklist:    make(map[string]bool),
		whitelist:    make(map[string]bool),
	}
}

// SetLiquidityBand updates the filter's admissible liquidity range
// (control verb "set_filter", spec.md §4.4/§6).
func (f *Filters) SetLiquidityBand(min, max float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minLiquidity = min
	f.maxLiquidity = max
}

// BlacklistCreator adds creator to the blacklist.
func (f *Filters) BlacklistCreator(creator string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blacklist[creator] = true
}

// WhitelistCreator adds creator to the whitelist.
func (f *Filters) WhitelistCreator(creator string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whitelist[creator] = true
}

// Evaluate applies the blacklist/whitelist/liquidity-band rules of
// spec.md §4.4 step 5 to one candidate token, under a single read lock.
func (f *Filters) Evaluate(creator string, liquidity float64) (passesFilter bool, meetsLiquidity bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.blacklist[creator] {
		return false, false
	}
	if len(f.whitelist) > 0 && !f.whitelist[creator] {
		return false, false
	}

	meets := liquidity >= f.minLiquidity && liquidity <= f.maxLiquidity
	return true, meets
}
