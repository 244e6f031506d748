// Package proxy provides optional egress-proxy rotation for the scrape
// orchestrator, adapted from the teacher's round-robin proxy manager.
package proxy

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Manager round-robins through a list of proxy URLs loaded from a
// newline-delimited file (blank lines and '#'-prefixed comments are
// skipped).
type Manager struct {
	mu      sync.Mutex
	proxies []string
	next    int
}

// LoadProxies reads proxies from filename, replacing any previously loaded
// list.
func (m *Manager) LoadProxies(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("proxy: open %q: %w", filename, err)
	}
	defer f.Close()

	var proxies []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read %q: %w", filename, err)
	}

	m.mu.Lock()
	m.proxies = proxies
	m.next = 0
	m.mu.Unlock()
	return nil
}

// Count returns the number of loaded proxies.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.proxies)
}

// Next returns the next proxy in round-robin order, or "" if none are
// loaded.
func (m *Manager) Next() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.proxies) == 0 {
		return ""
	}
	p := m.proxies[m.next]
	m.next = (m.next + 1) % len(m.proxies)
	return p
}
