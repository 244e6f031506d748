package policy

import (
	"testing"
	"time"
)

func TestWriteThrough(t *testing.T) {
	p := WriteThrough{Namespaces: []string{"crit"}}
	if !p.ShouldPersistOnSet("crit", "fp", Entry{}) {
		t.Fatal("expected crit namespace to persist on set")
	}
	if p.ShouldPersistOnSet("other", "fp", Entry{}) {
		t.Fatal("expected non-whitelisted namespace to not persist")
	}
	if p.PersistenceInterval() != 0 {
		t.Fatal("expected no periodic interval")
	}
}

func TestWriteThrough_EmptyWhitelistMeansAll(t *testing.T) {
	p := WriteThrough{}
	if !p.ShouldPersistOnSet("anything", "fp", Entry{}) {
		t.Fatal("expected empty whitelist to persist all namespaces")
	}
}

func TestPeriodic(t *testing.T) {
	p := Periodic{Interval: 5 * time.Second}
	if p.ShouldPersistOnSet("ns", "fp", Entry{}) {
		t.Fatal("periodic should never persist on set")
	}
	if p.PersistenceInterval() != 5*time.Second {
		t.Fatal("expected configured interval")
	}
}

func TestOnShutdown(t *testing.T) {
	p := OnShutdown{}
	if p.ShouldPersistOnSet("ns", "fp", Entry{}) || p.PersistenceInterval() != 0 {
		t.Fatal("expected OnShutdown to never persist proactively")
	}
}

func TestHybrid(t *testing.T) {
	p := Hybrid{Critical: []string{"crit"}, Interval: time.Second}
	if !p.ShouldPersistOnSet("crit", "fp", Entry{}) {
		t.Fatal("expected critical namespace to write through")
	}
	if p.ShouldPersistOnSet("other", "fp", Entry{}) {
		t.Fatal("expected non-critical namespace to not write through")
	}
	if p.PersistenceInterval() != time.Second {
		t.Fatal("expected configured interval")
	}
}
