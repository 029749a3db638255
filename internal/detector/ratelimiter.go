package detector

import (
	"sync"
	"time"
)

// RateLimiter is the sliding-window admission limiter of spec.md §4.4: a
// monotonically growing deque of past admission timestamps; on each check,
// timestamps older than 60s are evicted, then admission is granted iff
// size < maxPerMinute. maxPerMinute == 0 means unlimited. Grounded on
// pumpguard-rs/src/modules/token_monitor.rs::AlertRateLimiter (a
// VecDeque-backed sliding window).
type RateLimiter struct {
	mu           sync.Mutex
	maxPerMinute int
	admissions   []time.Time
}

// NewRateLimiter constructs a limiter admitting at most maxPerMinute events
// in any trailing 60-second window (0 = unlimited).
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	return &RateLimiter{maxPerMinute: maxPerMinute}
}

// Admit evicts admissions older than 60s relative to now, then admits the
// current attempt iff fewer than maxPerMinute remain.
func (r *RateLimiter) Admit(now time.Time) bool {
	if r.maxPerMinute == 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-60 * time.Second)
	i := 0
	for i < len(r.admissions) && r.admissions[i].Before(cutoff) {
		i++
	}
	r.admissions = r.admissions[i:]

	if len(r.admissions) < r.maxPerMinute {
		r.admissions = append(r.admissions, now)
		return true
	}
	return false
}
