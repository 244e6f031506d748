package cache

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/fingerprint"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/policy"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/store"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/workerpool"
)

// PersistentCache composes Core over a Store and a Policy (component E):
// it hydrates from disk on start, mirrors in-memory mutations through to
// the store according to the policy, and flushes periodically and on
// shutdown.
type PersistentCache struct {
	core   *Core
	store  *store.Store
	policy policy.Policy
	pool   *workerpool.Pool
	log    *logger.Logger
	eager  bool

	mu             sync.RWMutex
	namespaceIndex map[string]map[string]entry // namespace -> fingerprint -> entry

	dirty       atomic.Bool
	initialized atomic.Bool

	flushStop chan struct{}
	flushOnce sync.Once
}

// NewPersistentCache constructs a PersistentCache. If eager is true, every
// entry is loaded from disk synchronously before this function returns;
// otherwise entries are hydrated lazily on miss.
func NewPersistentCache(
	core *Core,
	st *store.Store,
	pol policy.Policy,
	pool *workerpool.Pool,
	log *logger.Logger,
	eager bool,
) *PersistentCache {
	pc := &PersistentCache{
		core:           core,
		store:          st,
		policy:         pol,
		pool:           pool,
		log:            log,
		eager:          eager,
		namespaceIndex: make(map[string]map[string]entry),
		flushStop:      make(chan struct{}),
	}

	if eager {
		pc.hydrateAll()
		pc.initialized.Store(true)
	} else {
		pc.initialized.Store(true)
	}

	if interval := pol.PersistenceInterval(); interval > 0 {
		go pc.flushLoop(interval)
	}

	return pc
}

func (pc *PersistentCache) hydrateAll() {
	snapshot, err := pc.store.LoadAllEntries()
	if err != nil {
		pc.log.Errorf("cache: eager load failed: %v", err)
		return
	}
	now := pc.core.clock.Now()
	for namespace, entries := range snapshot {
		for fp, pe := range entries {
			if pe.Metadata.ExpiresAt > 0 && time.UnixMilli(pe.Metadata.ExpiresAt).Before(now) &&
				(pe.Metadata.StaleUntil == nil || time.UnixMilli(*pe.Metadata.StaleUntil).Before(now)) {
				continue // dead entry, skip hydration
			}
			e := entry{
				value:     json.RawMessage(pe.Value),
				expiresAt: time.UnixMilli(pe.Metadata.ExpiresAt),
			}
			if pe.Metadata.StaleUntil != nil {
				e.staleUntil = time.UnixMilli(*pe.Metadata.StaleUntil)
			}
			full := fullKey(namespace, fp)
			pc.core.mu.Lock()
			pc.core.index[full] = e
			pc.core.accessLog[full] = now
			pc.core.mu.Unlock()
			pc.mirrorToNamespaceIndex(namespace, fp, e)
		}
	}
}

func (pc *PersistentCache) mirrorToNamespaceIndex(namespace, fp string, e entry) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	m, ok := pc.namespaceIndex[namespace]
	if !ok {
		m = make(map[string]entry)
		pc.namespaceIndex[namespace] = m
	}
	m[fp] = e
}

func (pc *PersistentCache) removeFromNamespaceIndex(namespace, fp string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if m, ok := pc.namespaceIndex[namespace]; ok {
		delete(m, fp)
	}
}

func toPolicyEntry(e entry) policy.Entry {
	pe := policy.Entry{ExpiresAt: e.expiresAt}
	if !e.staleUntil.IsZero() {
		su := e.staleUntil
		pe.StaleUntil = &su
	}
	return pe
}

func (pc *PersistentCache) writeThrough(namespace, fp string, e entry) {
	persisted, err := toPersistedEntry(fp, e)
	if err != nil {
		pc.log.Errorf("cache: marshal entry %s/%s for write-through: %v", namespace, fp, err)
		return
	}
	if err := pc.store.SaveEntry(namespace, fp, persisted); err != nil {
		pc.log.Errorf("cache: write-through %s/%s failed: %v", namespace, fp, err)
	}
}

func toPersistedEntry(fp string, e entry) (store.PersistedEntry, error) {
	raw, err := json.Marshal(e.value)
	if err != nil {
		return store.PersistedEntry{}, err
	}
	meta := store.EntryMetadata{
		ExpiresAt: e.expiresAt.UnixMilli(),
		Size:      len(raw),
	}
	if !e.staleUntil.IsZero() {
		su := e.staleUntil.UnixMilli()
		meta.StaleUntil = &su
	}
	return store.PersistedEntry{Key: fp, Value: raw, Metadata: meta}, nil
}

// GetOrComputePersistent is the persistent-cache analogue of GetOrCompute:
// it additionally consults the on-disk store before running compute (in
// lazy mode) and writes through according to policy.
func GetOrComputePersistent[T any](pc *PersistentCache, namespace string, arg any, compute func() (T, error), opts Options) (T, error) {
	c := pc.core
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
			if v, decodeErr := decodeValue[T](e.value); decodeErr == nil {
				if pc.policy.ShouldPersistOnGet(namespace, key, toPolicyEntry(e)) {
					pc.writeThrough(namespace, key, e)
				}
				return v, nil
			}
		}
		if opts.StaleWhileRevalidate && e.isStale(now) {
			c.metrics.IncHits()
			c.maybeRevalidate(full, func() {
				val, err := compute()
				if err != nil {
					pc.log.Debugf("cache: background revalidation of %s failed: %v", full, err)
					return
				}
				ttl := opts.TTL
				if ttl == 0 {
					ttl = c.defaultTTL
				}
				newEntry := entry{value: val, expiresAt: c.clock.Now().Add(ttl)}
				if opts.StaleWhileRevalidate {
					newEntry.staleUntil = newEntry.expiresAt.Add(opts.StaleTime)
				}
				pc.setAndMaybePersist(namespace, key, full, newEntry)
			})
			if v, decodeErr := decodeValue[T](e.value); decodeErr == nil {
				return v, nil
			}
		}
	}

	if !pc.eager {
		if pe, err := pc.store.LoadEntry(namespace, key); err == nil && pe != nil {
			expired := time.UnixMilli(pe.Metadata.ExpiresAt).Before(now)
			dead := expired && (pe.Metadata.StaleUntil == nil || time.UnixMilli(*pe.Metadata.StaleUntil).Before(now))
			if !dead {
				hydrated := entry{value: json.RawMessage(pe.Value), expiresAt: time.UnixMilli(pe.Metadata.ExpiresAt)}
				if pe.Metadata.StaleUntil != nil {
					hydrated.staleUntil = time.UnixMilli(*pe.Metadata.StaleUntil)
				}
				c.mu.Lock()
				c.index[full] = hydrated
				c.accessLog[full] = now
				c.mu.Unlock()
				pc.mirrorToNamespaceIndex(namespace, key, hydrated)
				if v, decodeErr := decodeValue[T](hydrated.value); decodeErr == nil {
					c.metrics.IncHits()
					return v, nil
				}
			} else {
				_ = pc.store.RemoveEntry(namespace, key)
			}
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
		pc.setAndMaybePersist(namespace, key, full, newEntry)
		return val, nil
	})
	if err != nil {
		c.metrics.IncErrors()
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// decodeValue converts a stored entry value — which may be a live T (fresh
// write this process) or a json.RawMessage (hydrated from disk) — into T.
func decodeValue[T any](raw any) (T, error) {
	var zero T
	if v, ok := raw.(T); ok {
		return v, nil
	}
	if rm, ok := raw.(json.RawMessage); ok {
		var out T
		if err := json.Unmarshal(rm, &out); err != nil {
			return zero, err
		}
		return out, nil
	}
	// Fall back to a marshal/unmarshal round trip for any other shape.
	b, err := json.Marshal(raw)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, err
	}
	return out, nil
}

func (pc *PersistentCache) setAndMaybePersist(namespace, key, full string, e entry) {
	c := pc.core
	c.mu.Lock()
	c.index[full] = e
	c.accessLog[full] = c.clock.Now()
	over := len(c.index) > c.maxSize && c.maxSize > 0
	c.mu.Unlock()

	pc.mirrorToNamespaceIndex(namespace, key, e)
	pc.dirty.Store(true)

	if pc.policy.ShouldPersistOnSet(namespace, key, toPolicyEntry(e)) {
		pc.writeThrough(namespace, key, e)
	}

	if over {
		pc.evictLRUWithStore(c.maxSize / 5)
	}
}

// evictLRUWithStore evicts the LRU batch from memory, the namespace index,
// and their on-disk mirror (in parallel via the shared worker pool).
func (pc *PersistentCache) evictLRUWithStore(n int) {
	victims := pc.core.evictLRU(n)
	if len(victims) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, full := range victims {
		namespace, fp := splitFullKey(full)
		pc.removeFromNamespaceIndex(namespace, fp)
		wg.Add(1)
		pc.pool.Submit(func() {
			defer wg.Done()
			if err := pc.store.RemoveEntry(namespace, fp); err != nil {
				pc.log.Errorf("cache: evict-delete %s/%s failed: %v", namespace, fp, err)
			}
		})
	}
	wg.Wait()
}

// InvalidatePersistent removes the entry both in memory and on disk.
func InvalidatePersistent(pc *PersistentCache, namespace string, arg any) {
	key := fingerprint.Fingerprint(namespace, arg)
	full := fullKey(namespace, key)
	pc.core.mu.Lock()
	delete(pc.core.index, full)
	delete(pc.core.accessLog, full)
	pc.core.mu.Unlock()
	pc.removeFromNamespaceIndex(namespace, key)
	if err := pc.store.RemoveEntry(namespace, key); err != nil {
		pc.log.Errorf("cache: invalidate %s/%s failed: %v", namespace, key, err)
	}
}

// Clear empties memory immediately and clears the on-disk store
// asynchronously (errors are logged, never raised to the caller).
func (pc *PersistentCache) Clear() {
	pc.core.Clear()
	pc.mu.Lock()
	pc.namespaceIndex = make(map[string]map[string]entry)
	pc.mu.Unlock()
	pc.pool.Submit(func() {
		if err := pc.store.Clear(); err != nil {
			pc.log.Errorf("cache: clear store failed: %v", err)
		}
	})
}

func (pc *PersistentCache) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-pc.flushStop:
			return
		case <-ticker.C:
			pc.PersistToDisk()
		}
	}
}

// PersistToDisk flushes dirty in-memory state to the store. The dirty flag
// is cleared *before* the write begins (a documented tradeoff: a `set` that
// lands mid-flush re-raises the flag and is caught by the next flush; a
// write that fails with no subsequent `set` loses that change until
// shutdown — see DESIGN.md's Open Question resolution).
func (pc *PersistentCache) PersistToDisk() {
	if !pc.dirty.CompareAndSwap(true, false) {
		return
	}
	snapshot := pc.snapshotForPersist()
	if err := pc.store.SaveAllEntries(snapshot); err != nil {
		pc.log.Errorf("cache: periodic flush failed: %v", err)
	}
}

func (pc *PersistentCache) snapshotForPersist() map[string]map[string]store.PersistedEntry {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make(map[string]map[string]store.PersistedEntry, len(pc.namespaceIndex))
	for namespace, entries := range pc.namespaceIndex {
		m := make(map[string]store.PersistedEntry, len(entries))
		for fp, e := range entries {
			pe, err := toPersistedEntry(fp, e)
			if err != nil {
				pc.log.Errorf("cache: marshal %s/%s for flush: %v", namespace, fp, err)
				continue
			}
			m[fp] = pe
		}
		out[namespace] = m
	}
	return out
}

// ShutdownFlush performs a final, synchronous flush regardless of the
// dirty flag, skipping dead entries. Must be called during graceful
// shutdown.
func (pc *PersistentCache) ShutdownFlush() {
	now := pc.core.clock.Now()
	pc.mu.RLock()
	out := make(map[string]map[string]store.PersistedEntry)
	for namespace, entries := range pc.namespaceIndex {
		m := make(map[string]store.PersistedEntry)
		for fp, e := range entries {
			deadline := e.expiresAt
			if !e.staleUntil.IsZero() {
				deadline = e.staleUntil
			}
			if !now.Before(deadline) {
				continue
			}
			pe, err := toPersistedEntry(fp, e)
			if err != nil {
				continue
			}
			m[fp] = pe
		}
		if len(m) > 0 {
			out[namespace] = m
		}
	}
	pc.mu.RUnlock()

	if err := pc.store.SaveAllEntries(out); err != nil {
		pc.log.Errorf("cache: shutdown flush failed: %v", err)
	}
}

// Dispose stops the flush timer and the expiry sweeper, then performs a
// final shutdown flush.
func (pc *PersistentCache) Dispose() {
	pc.flushOnce.Do(func() { close(pc.flushStop) })
	pc.core.Dispose()
	pc.ShutdownFlush()
}

// GetStats returns the composed cache's statistics.
func (pc *PersistentCache) GetStats() Stats { return pc.core.GetStats() }

// Logger exposes the logger PersistentCache was constructed with, for
// callers that want to share it (e.g. the HTTP transport's session logs).
func (pc *PersistentCache) Logger() *logger.Logger { return pc.log }
