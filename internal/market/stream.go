package market

import (
	"sync"

	"github.com/igefined/market-feed/internal/domain"
)

// State is what a consumer renders for one symbol.
type State struct {
	Symbol   string
	Snapshot *domain.Snapshot
	// Loading is true while the first snapshot is being fetched.
	Loading bool
	// Err holds the last recoverable fetch failure, cleared by the next
	// successful fetch.
	Err        error
	Connection domain.ConnectionState
	// Reconnecting marks a transient streaming outage.
	Reconnecting bool
	// Notice is set once the symbol has fallen back to polling.
	Notice *domain.DegradedNotice
}

// Stream is a subscriber's handle. Updates are coalesced: a slow reader only
// ever sees the latest state.
type Stream struct {
	id     uint64
	symbol string

	mu      sync.Mutex
	state   State
	updates chan State
	closed  bool
}

func newStream(id uint64, symbol string) *Stream {
	return &Stream{
		id:      id,
		symbol:  symbol,
		state:   State{Symbol: symbol},
		updates: make(chan State, 1),
	}
}

func (s *Stream) Symbol() string {
	return s.symbol
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates delivers state changes and is closed on unsubscribe.
func (s *Stream) Updates() <-chan State {
	return s.updates
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) publish(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.state = st

	select {
	case s.updates <- st:
	default:
		// publishers hold s.mu, so the slot is free once drained
		select {
		case <-s.updates:
		default:
		}
		s.updates <- st
	}
}

func (s *Stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
}
