// Package cache implements the Cache Core (component D) and, in
// persistent.go, the Persistent Cache (component E) that composes it over
// a Store and a Policy.
//
// Cache Core provides TTL + stale-until expiry, an LRU access log, and
// promise coalescing: at most one concurrent execution of a given compute
// function runs per full cache key, via golang.org/x/sync/singleflight.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/fingerprint"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/metrics"
)

// entry is the in-memory representation of one cached value.
//
// staleUntil is authoritative whenever it is non-zero, regardless of
// whether the call that wrote it had stale-while-revalidate enabled: a
// plain-TTL read of a key some other SWR-enabled caller populated still
// honors that entry's staleUntil.
type entry struct {
	value      any
	expiresAt  time.Time
	staleUntil time.Time // zero value means "no stale grace period"
}

func (e entry) isFresh(now time.Time) bool { return now.Before(e.expiresAt) }
func (e entry) isStale(now time.Time) bool {
	return !e.isFresh(now) && !e.staleUntil.IsZero() && now.Before(e.staleUntil)
}

// Options configures one GetOrCompute call.
type Options struct {
	// TTL overrides the cache's default TTL for this entry. Zero means use
	// the default.
	TTL time.Duration
	// StaleWhileRevalidate enables serving a stale value while a fresh one
	// is computed in the background.
	StaleWhileRevalidate bool
	// StaleTime is the grace period after expiry during which a stale
	// value is still served (only meaningful if StaleWhileRevalidate).
	StaleTime time.Duration
}

// Stats summarizes the cache's current state.
type Stats struct {
	Size              int
	PendingPromises   int
	Metrics           metrics.Snapshot
	HitRatio          string
	RequestsPerSecond float64
}

// Core is the in-memory TTL/LRU/single-flight cache. maxSize documents a
// known edge case: the eviction batch size is floor(0.2 * maxSize), which
// is zero for maxSize < 5, making LRU eviction a no-op below that
// threshold. Configure maxSize >= 5 if LRU eviction must be effective.
type Core struct {
	mu        sync.RWMutex
	index     map[string]entry
	accessLog map[string]time.Time

	revalidatingMu sync.Mutex
	revalidating   map[string]bool

	defaultTTL time.Duration
	maxSize    int
	clock      Clock
	group      singleflight.Group
	pending    atomic.Int64
	metrics    *metrics.Counters
	log        *logger.Logger

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewCore creates a Cache Core. If sweepInterval is non-zero, a background
// goroutine calls CleanExpired on that cadence until Dispose is called.
func NewCore(defaultTTL time.Duration, maxSize int, clock Clock, log *logger.Logger, sweepInterval time.Duration) *Core {
	if clock == nil {
		clock = RealClock
	}
	c := &Core{
		index:        make(map[string]entry),
		accessLog:    make(map[string]time.Time),
		revalidating: make(map[string]bool),
		defaultTTL:   defaultTTL,
		maxSize:      maxSize,
		clock:        clock,
		metrics:      metrics.New(),
		log:          log,
		sweepStop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

func (c *Core) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.sweepStop:
			return
		case <-ticker.C:
			c.CleanExpired()
		}
	}
}

// Dispose stops the background expiry sweeper. Safe to call multiple times.
func (c *Core) Dispose() {
	c.sweepOnce.Do(func() { close(c.sweepStop) })
}

func fullKey(namespace, fp string) string { return namespace + ":" + fp }

// splitFullKey splits a full key on the first colon only, matching the
// namespace:fingerprint composite-key convention.
func splitFullKey(full string) (namespace, fingerprint string) {
	for i := 0; i < len(full); i++ {
		if full[i] == ':' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}

// GetOrCompute is the cache's single entry point. Go does not allow type
// parameters on methods, so this is a package-level generic function over
// *Core.
//
// At most one concurrent execution of compute runs per full key
// (namespace + fingerprint of arg), guaranteed by singleflight.Group.
func GetOrCompute[T any](c *Core, namespace string, arg any, compute func() (T, error), opts Options) (T, error) {
	key := fingerprint.Fingerprint(namespace, arg)
	full := fullKey(namespace, key)
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.index[full]
	if ok {
		c.accessLog[full] = now
	}
	c.mu.Unlock()

	if ok {
		if e.isFresh(now) {
			c.metrics.IncHits()
			return e.value.(T), nil
		}
		if opts.StaleWhileRevalidate && e.isStale(now) {
			c.metrics.IncHits()
			c.maybeRevalidate(full, func() {
				ttl := opts.TTL
				if ttl == 0 {
					ttl = c.defaultTTL
				}
				val, err := compute()
				if err != nil {
					c.log.Debugf("cache: background revalidation of %s failed: %v", full, err)
					return
				}
				newEntry := entry{value: val, expiresAt: c.clock.Now().Add(ttl)}
				if opts.StaleWhileRevalidate {
					newEntry.staleUntil = newEntry.expiresAt.Add(opts.StaleTime)
				}
				c.setEntry(full, newEntry)
			})
			return e.value.(T), nil
		}
	}

	c.metrics.IncMisses()
	v, err, _ := c.group.Do(full, func() (any, error) {
		c.pending.Add(1)
		defer c.pending.Add(-1)
		val, err := compute()
		if err != nil {
			return nil, err
		}
		ttl := opts.TTL
		if ttl == 0 {
			ttl = c.defaultTTL
		}
		newEntry := entry{value: val, expiresAt: c.clock.Now().Add(ttl)}
		if opts.StaleWhileRevalidate {
			newEntry.staleUntil = newEntry.expiresAt.Add(opts.StaleTime)
		}
		c.setEntry(full, newEntry)
		return val, nil
	})
	if err != nil {
		c.metrics.IncErrors()
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// maybeRevalidate runs fn in a new goroutine unless a revalidation for full
// is already in flight. This deliberately bypasses the singleflight.Group:
// the caller that triggered it already has its stale value and moved on.
func (c *Core) maybeRevalidate(full string, fn func()) {
	c.revalidatingMu.Lock()
	if c.revalidating[full] {
		c.revalidatingMu.Unlock()
		return
	}
	c.revalidating[full] = true
	c.revalidatingMu.Unlock()

	go func() {
		defer func() {
			c.revalidatingMu.Lock()
			delete(c.revalidating, full)
			c.revalidatingMu.Unlock()
		}()
		fn()
	}()
}

// setEntry inserts or replaces the entry at full, refreshes its access
// time, and evicts the LRU batch if the index has grown past maxSize.
func (c *Core) setEntry(full string, e entry) {
	c.mu.Lock()
	c.index[full] = e
	c.accessLog[full] = c.clock.Now()
	over := len(c.index) > c.maxSize && c.maxSize > 0
	c.mu.Unlock()

	if over {
		c.evictLRU(c.maxSize / 5) // floor(0.2 * maxSize)
	}
}

// Invalidate removes the entry for (namespace, arg) from the index and
// access log. In-flight computations are unaffected.
func Invalidate(c *Core, namespace string, arg any) {
	key := fingerprint.Fingerprint(namespace, arg)
	full := fullKey(namespace, key)
	c.mu.Lock()
	delete(c.index, full)
	delete(c.accessLog, full)
	c.mu.Unlock()
}

// Clear empties the index and access log. Cumulative counters are
// preserved.
func (c *Core) Clear() {
	c.mu.Lock()
	c.index = make(map[string]entry)
	c.accessLog = make(map[string]time.Time)
	c.mu.Unlock()
}

// CleanExpired deletes every entry whose expiry (accounting for any stale
// grace period) has fully passed.
func (c *Core) CleanExpired() {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.index {
		deadline := e.expiresAt
		if !e.staleUntil.IsZero() {
			deadline = e.staleUntil
		}
		if !now.Before(deadline) {
			delete(c.index, k)
			delete(c.accessLog, k)
		}
	}
}

// evictLRU removes the n entries with the oldest access times. It returns
// the full keys removed so a composing layer (PersistentCache) can also
// delete their on-disk mirror.
func (c *Core) evictLRU(n int) []string {
	if n <= 0 {
		return nil
	}
	c.mu.Lock()
	type kv struct {
		key string
		at  time.Time
	}
	all := make([]kv, 0, len(c.accessLog))
	for k, at := range c.accessLog {
		all = append(all, kv{k, at})
	}
	// Partial selection sort for the n oldest; n is always small (0.2 *
	// maxSize) relative to the index, so this beats a full sort.
	if n > len(all) {
		n = len(all)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].at.Before(all[minIdx].at) {
				minIdx = j
			}
		}
		all[i], all[minIdx] = all[minIdx], all[i]
	}
	victims := make([]string, 0, n)
	for i := 0; i < n; i++ {
		victims = append(victims, all[i].key)
		delete(c.index, all[i].key)
		delete(c.accessLog, all[i].key)
	}
	c.mu.Unlock()

	c.metrics.AddEvictions(uint64(len(victims)))
	return victims
}

// GetStats returns a snapshot of the cache's current state.
func (c *Core) GetStats() Stats {
	c.mu.RLock()
	size := len(c.index)
	c.mu.RUnlock()

	snap := c.metrics.Snapshot()
	return Stats{
		Size:              size,
		PendingPromises:   int(c.pending.Load()),
		Metrics:           snap,
		HitRatio:          snap.HitRatio(),
		RequestsPerSecond: c.metrics.RequestsPerSecond(),
	}
}
