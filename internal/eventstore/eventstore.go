// Package eventstore implements the append-only, stream-scoped, TTL-capped
// event log backing SSE session resume (component F). Events are kept in
// memory; persistence to disk reuses the cache's policy abstraction
// (component C) and writes its own per-stream snapshot files (persist.go),
// with an optional AEAD encryption layer applied
// only at the persistence boundary — in-memory events are always plaintext.
package eventstore

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
)

// Event is one entry in a stream.
type Event struct {
	EventID   int64
	StreamID  string
	Message   any
	Timestamp time.Time
	ExpiresAt time.Time
}

// Stats summarizes the store's current contents.
type Stats struct {
	Streams     int
	Events      int
	MemoryBytes int64
	DiskBytes   int64
	Hits        uint64
	Misses      uint64
}

// Store is an in-memory, TTL-capped, per-stream-bounded event log.
type Store struct {
	mu      sync.RWMutex
	streams map[string][]Event

	nextID atomic.Int64
	hits   atomic.Uint64
	misses atomic.Uint64

	ttl          time.Duration
	maxPerStream int
	log          *logger.Logger
	clock        func() time.Time
	persister    *Persister

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// Option configures a Store at construction.
type Option func(*Store)

// WithClock overrides the time source (for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithPersister attaches a Persister: every Append marks its stream dirty,
// and the persister's own Run loop (started separately by the caller)
// flushes dirty streams to disk on its policy's interval.
func WithPersister(p *Persister) Option {
	return func(s *Store) { s.persister = p }
}

// New creates a Store with the given per-event TTL and per-stream cap. If
// sweepInterval is non-zero, a background goroutine periodically purges
// expired events.
func New(ttl time.Duration, maxPerStream int, log *logger.Logger, sweepInterval time.Duration, opts ...Option) *Store {
	s := &Store{
		streams:      make(map[string][]Event),
		ttl:          ttl,
		maxPerStream: maxPerStream,
		log:          log,
		clock:        time.Now,
		sweepStop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Append adds message to streamID's log, returning the newly assigned,
// globally monotonic event ID. If the stream is at capacity, the oldest
// event is evicted first.
func (s *Store) Append(streamID string, message any) int64 {
	s.mu.Lock()
	id := s.nextID.Add(1)
	now := s.clock()
	ev := Event{
		EventID:   id,
		StreamID:  streamID,
		Message:   message,
		Timestamp: now,
		ExpiresAt: now.Add(s.ttl),
	}

	events := s.streams[streamID]
	events = append(events, ev)
	if s.maxPerStream > 0 && len(events) > s.maxPerStream {
		events = events[len(events)-s.maxPerStream:]
	}
	s.streams[streamID] = events
	s.mu.Unlock()

	if s.persister != nil {
		s.persister.MarkDirty(streamID)
	}
	return id
}

// HydrateStream loads a persisted snapshot for streamID into memory if the
// stream is not already present and a Persister is attached. It is the
// event-store analogue of the persistent cache's lazy disk-load-on-miss
// path.
func (s *Store) HydrateStream(streamID string) {
	if s.persister == nil {
		return
	}
	s.mu.RLock()
	_, present := s.streams[streamID]
	s.mu.RUnlock()
	if present {
		return
	}

	events, err := s.persister.Load(streamID)
	if err != nil || len(events) == 0 {
		return
	}
	s.mu.Lock()
	if _, present := s.streams[streamID]; !present {
		s.streams[streamID] = events
	}
	s.mu.Unlock()
}

// ReplayAfter returns every non-expired event in streamID with
// EventID > lastEventID, in order.
func (s *Store) ReplayAfter(streamID string, lastEventID int64) []Event {
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.streams[streamID]
	if len(events) == 0 {
		s.misses.Add(1)
		return nil
	}

	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.EventID > lastEventID && now.Before(ev.ExpiresAt) {
			out = append(out, ev)
		}
	}
	if len(out) > 0 {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return out
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.purgeExpired()
		}
	}
}

func (s *Store) purgeExpired() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for streamID, events := range s.streams {
		kept := events[:0:0]
		for _, ev := range events {
			if now.Before(ev.ExpiresAt) {
				kept = append(kept, ev)
			}
		}
		if len(kept) == 0 {
			delete(s.streams, streamID)
		} else {
			s.streams[streamID] = kept
		}
	}
}

// GetStats returns the store's current statistics.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	total := 0
	var memoryBytes int64
	for _, events := range s.streams {
		total += len(events)
		if b, err := json.Marshal(events); err == nil {
			memoryBytes += int64(len(b))
		}
	}
	s.mu.RUnlock()

	var diskBytes int64
	if s.persister != nil {
		diskBytes = s.persister.DiskBytes()
	}

	return Stats{
		Streams:     len(s.streams),
		Events:      total,
		MemoryBytes: memoryBytes,
		DiskBytes:   diskBytes,
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
	}
}

// Dispose stops the background sweeper and, if a Persister is attached,
// flushes every dirty stream one last time before returning. Safe to call
// multiple times.
func (s *Store) Dispose() {
	s.sweepOnce.Do(func() { close(s.sweepStop) })
	if s.persister != nil {
		s.persister.FlushAll(s)
		s.persister.Stop()
	}
}
