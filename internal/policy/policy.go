// Package policy defines the persistence-policy contract used by the
// persistent cache (component C): pure predicates deciding when an
// in-memory entry gets mirrored to disk.
package policy

import "time"

// Entry is the minimal view of a cache entry a policy needs to decide
// whether to persist it.
type Entry struct {
	ExpiresAt  time.Time
	StaleUntil *time.Time
}

// Policy decides when cache entries are persisted.
type Policy interface {
	// ShouldPersistOnSet reports whether an entry should be written
	// through to disk immediately on Set.
	ShouldPersistOnSet(namespace, fingerprint string, entry Entry) bool
	// ShouldPersistOnGet reports whether reading an entry should refresh
	// its on-disk copy.
	ShouldPersistOnGet(namespace, fingerprint string, entry Entry) bool
	// PersistenceInterval returns the periodic flush period, or 0 if the
	// policy does not flush periodically.
	PersistenceInterval() time.Duration
}

func inList(list []string, namespace string) bool {
	if len(list) == 0 {
		return true // empty whitelist means "all"
	}
	for _, n := range list {
		if n == namespace {
			return true
		}
	}
	return false
}

// WriteThrough persists every Set for namespaces in namespaces (empty means
// all) immediately, with no periodic flush.
type WriteThrough struct {
	Namespaces []string
}

func (p WriteThrough) ShouldPersistOnSet(namespace, _ string, _ Entry) bool {
	return inList(p.Namespaces, namespace)
}
func (WriteThrough) ShouldPersistOnGet(string, string, Entry) bool { return false }
func (WriteThrough) PersistenceInterval() time.Duration           { return 0 }

// Periodic never writes on Set, flushing only on the given interval.
type Periodic struct {
	Interval time.Duration
}

func (Periodic) ShouldPersistOnSet(string, string, Entry) bool { return false }
func (Periodic) ShouldPersistOnGet(string, string, Entry) bool { return false }
func (p Periodic) PersistenceInterval() time.Duration          { return p.Interval }

// OnShutdown never writes on Set or on an interval; persistence happens
// only as part of the cache's shutdown flush.
type OnShutdown struct{}

func (OnShutdown) ShouldPersistOnSet(string, string, Entry) bool { return false }
func (OnShutdown) ShouldPersistOnGet(string, string, Entry) bool { return false }
func (OnShutdown) PersistenceInterval() time.Duration           { return 0 }

// Hybrid write-throughs entries in Critical namespaces immediately and
// flushes everything else on the given interval.
type Hybrid struct {
	Critical []string
	Interval time.Duration
}

func (p Hybrid) ShouldPersistOnSet(namespace, _ string, _ Entry) bool {
	return inList(p.Critical, namespace) && len(p.Critical) > 0
}
func (Hybrid) ShouldPersistOnGet(string, string, Entry) bool { return false }
func (p Hybrid) PersistenceInterval() time.Duration          { return p.Interval }
