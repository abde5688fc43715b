package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Memory is an instance-owned Store. Expired entries are dropped when they are
// looked up; nothing is evicted in the background.
type Memory struct {
	ttl   time.Duration
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemory(ttl time.Duration, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.New()
	}
	return &Memory{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]Entry),
	}
}

func (m *Memory) Get(_ context.Context, symbol string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[symbol]
	if !ok {
		return nil, nil
	}
	if !entry.Fresh(m.clock.Now(), m.ttl) {
		delete(m.entries, symbol)
		return nil, nil
	}

	entry.Snapshot = entry.Snapshot.Clone()
	return &entry, nil
}

func (m *Memory) Set(_ context.Context, entry Entry) error {
	entry.Snapshot = entry.Snapshot.Clone()

	m.mu.Lock()
	m.entries[entry.Symbol] = entry
	m.mu.Unlock()

	return nil
}

// Len counts stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
