package metrics

import (
	"sync"
	"sync/atomic"
)

// dispatchStats holds counters for event dispatch outcomes, keyed by the
// terminal state a delivery reached (not_found, inactive, filtered,
// duplicate, success, error). Thread-safe for use from the dispatch path
// and exposition.
type dispatchStats struct {
	total     uint64
	mu        sync.Mutex
	byOutcome map[string]uint64
}

var dispatch dispatchStats

// IncDispatch increments the counter for the given outcome.
func IncDispatch(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	atomic.AddUint64(&dispatch.total, 1)
	dispatch.mu.Lock()
	if dispatch.byOutcome == nil {
		dispatch.byOutcome = make(map[string]uint64)
	}
	dispatch.byOutcome[outcome]++
	dispatch.mu.Unlock()
}

// DispatchSnapshot returns a copy of the current counters.
func DispatchSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&dispatch.total)
	dispatch.mu.Lock()
	defer dispatch.mu.Unlock()
	by = make(map[string]uint64, len(dispatch.byOutcome))
	for k, v := range dispatch.byOutcome {
		by[k] = v
	}
	return total, by
}

// rateLimitStats holds counters for rate limit drops (HTTP 429).
type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop increments drop counters for the given prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the current counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}
