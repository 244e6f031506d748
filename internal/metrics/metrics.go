// Package metrics provides simple atomic counters shared across components
// that want hit/miss/error/eviction style statistics without taking a lock
// on every increment.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Counters is a generic set of monotonic atomic counters plus a start time
// for rate calculations. Zero value is ready to use.
type Counters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	errors    atomic.Uint64
	evictions atomic.Uint64
	startTime time.Time
}

// New returns a ready-to-use Counters with startTime set to now.
func New() *Counters {
	return &Counters{startTime: time.Now()}
}

func (c *Counters) IncHits()      { c.hits.Add(1) }
func (c *Counters) IncMisses()    { c.misses.Add(1) }
func (c *Counters) IncErrors()    { c.errors.Add(1) }
func (c *Counters) AddEvictions(n uint64) {
	if n > 0 {
		c.evictions.Add(n)
	}
}

// Snapshot is an immutable view of the counters at a point in time.
type Snapshot struct {
	Hits      uint64
	Misses    uint64
	Errors    uint64
	Evictions uint64
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Errors:    c.errors.Load(),
		Evictions: c.evictions.Load(),
	}
}

// HitRatio returns hits / (hits + misses) formatted to two decimals, or
// "N/A" when no lookups have occurred yet.
func (s Snapshot) HitRatio() string {
	total := s.Hits + s.Misses
	if total == 0 {
		return "N/A"
	}
	ratio := float64(s.Hits) / float64(total)
	return fmt.Sprintf("%.2f", ratio)
}

// RequestsPerSecond returns the total of hits+misses divided by elapsed
// wall-clock seconds since New was called.
func (c *Counters) RequestsPerSecond() float64 {
	elapsed := time.Since(c.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	s := c.Snapshot()
	return float64(s.Hits+s.Misses) / elapsed
}
