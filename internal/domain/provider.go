package domain

import (
	"context"
)

// TickerSource fetches a full snapshot over request/response.
type TickerSource interface {
	Name() string
	FetchSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// StreamDialer opens a streaming ticker connection. Dial should give up when
// ctx is cancelled, but callers do not rely on it.
type StreamDialer interface {
	Dial(ctx context.Context, url string) (StreamConn, error)
}

// StreamConn is one live ticker connection. ReadTick blocks until a tick
// arrives or the connection fails; it is called from a single goroutine.
// Ping and Close may be called concurrently with ReadTick.
type StreamConn interface {
	ReadTick() (Tick, error)
	Ping() error
	Close() error
}
