// Package config loads the server's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the full configuration surface for the server.
type Config struct {
	// Cache Core (component D)
	DefaultTTLMillis int64 `json:"defaultTTL"`
	MaxSize          int   `json:"maxSize"`

	// Persistence (components B/C/E)
	StoragePath          string   `json:"storagePath"`
	PersistentNamespaces []string `json:"persistentNamespaces"`
	CriticalNamespaces   []string `json:"criticalNamespaces"`
	PersistenceInterval  int64    `json:"persistenceInterval"`
	EagerLoading         bool     `json:"eagerLoading"`

	// Event store (component F)
	EventTTLMillis        int64    `json:"eventTTL"`
	MaxEventsPerStream    int      `json:"maxEventsPerStream"`
	CriticalStreamIDs     []string `json:"criticalStreamIDs"`
	EventEncryptionKeyHex string   `json:"eventEncryptionKeyHex"`

	// SSRF validator (component H)
	SSRFAllowedHosts  []string `json:"ssrfAllowedHosts"`
	SSRFBlockPrivate  bool     `json:"ssrfBlockPrivate"`
	SSRFBlockLoopback bool     `json:"ssrfBlockLoopback"`

	// Scrape orchestrator (component I): hostnames that are known
	// JavaScript-rendered SPAs, routed straight to the JS-evaluation
	// fallback instead of the static-HTML fast path.
	ScrapeSPAHosts []string `json:"scrapeSPAHosts"`

	// Transport
	HTTPAddr string `json:"httpAddr"`

	// Circuit breakers (component G)
	SearchCircuitFailureThreshold int   `json:"searchCircuitFailureThreshold"`
	SearchCircuitResetTimeout     int64 `json:"searchCircuitResetTimeout"`
	ScrapeCircuitFailureThreshold int   `json:"scrapeCircuitFailureThreshold"`
	ScrapeCircuitResetTimeout     int64 `json:"scrapeCircuitResetTimeout"`

	// Worker pool
	WorkerPoolSize int `json:"workerPoolSize"`

	// Optional egress proxy rotation file (newline-delimited, # comments)
	ProxyFile string `json:"proxyFile"`
}

// DefaultTTL returns DefaultTTLMillis as a time.Duration.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLMillis) * time.Millisecond
}

// PersistenceIntervalDuration returns PersistenceInterval as a time.Duration.
func (c *Config) PersistenceIntervalDuration() time.Duration {
	return time.Duration(c.PersistenceInterval) * time.Millisecond
}

// EventTTL returns EventTTLMillis as a time.Duration.
func (c *Config) EventTTL() time.Duration {
	return time.Duration(c.EventTTLMillis) * time.Millisecond
}

// DefaultConfig returns production-sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultTTLMillis: int64(5 * time.Minute / time.Millisecond),
		MaxSize:          10_000,

		StoragePath:          "./data/cache",
		PersistentNamespaces: nil, // nil == all namespaces
		CriticalNamespaces:   nil,
		PersistenceInterval:  int64(30 * time.Second / time.Millisecond),
		EagerLoading:         true,

		EventTTLMillis:     int64(24 * time.Hour / time.Millisecond),
		MaxEventsPerStream: 1000,

		SSRFBlockPrivate:  true,
		SSRFBlockLoopback: true,

		HTTPAddr: ":8090",

		SearchCircuitFailureThreshold: 5,
		SearchCircuitResetTimeout:     int64(30 * time.Second / time.Millisecond),
		ScrapeCircuitFailureThreshold: 5,
		ScrapeCircuitResetTimeout:     int64(30 * time.Second / time.Millisecond),

		WorkerPoolSize: 16,
	}
}

// LoadConfig reads and validates a JSON configuration file. Unknown fields
// are rejected so a typo in the config file surfaces immediately rather than
// silently falling back to a default.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return cfg, nil
}
