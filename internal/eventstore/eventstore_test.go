package eventstore

import (
	"testing"
	"time"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(time.Hour, 1000, logger.New(logger.LevelError), 0)
	t.Cleanup(s.Dispose)
	return s
}

// S10 — event replay after reconnect.
func TestStore_ReplayAfter(t *testing.T) {
	s := newTestStore(t)
	var lastID int64
	for i := 0; i < 5; i++ {
		lastID = s.Append("s1", map[string]any{"n": i})
	}
	if lastID != 5 {
		t.Fatalf("expected monotonic IDs ending at 5, got %d", lastID)
	}

	replayed := s.ReplayAfter("s1", 3)
	if len(replayed) != 2 {
		t.Fatalf("expected 2 events after ID 3, got %d", len(replayed))
	}
	if replayed[0].EventID != 4 || replayed[1].EventID != 5 {
		t.Fatalf("expected events 4 and 5 in order, got %+v", replayed)
	}
}

func TestStore_PerStreamCap(t *testing.T) {
	s := New(time.Hour, 3, logger.New(logger.LevelError), 0)
	defer s.Dispose()

	for i := 0; i < 10; i++ {
		s.Append("s1", i)
	}
	stats := s.GetStats()
	if stats.Events != 3 {
		t.Fatalf("expected at most 3 events retained, got %d", stats.Events)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	clockVal := now
	s := New(time.Second, 100, logger.New(logger.LevelError), 0, WithClock(func() time.Time { return clockVal }))
	defer s.Dispose()

	s.Append("s1", "a")
	clockVal = clockVal.Add(2 * time.Second)

	replayed := s.ReplayAfter("s1", 0)
	if len(replayed) != 0 {
		t.Fatalf("expected expired event to be excluded from replay, got %d", len(replayed))
	}
}

func TestStore_DifferentStreamsIndependent(t *testing.T) {
	s := newTestStore(t)
	s.Append("a", 1)
	s.Append("b", 1)
	if len(s.ReplayAfter("a", 0)) != 1 || len(s.ReplayAfter("b", 0)) != 1 {
		t.Fatalf("expected each stream to hold its own event independently")
	}
}
