package cache

import (
	"context"
	"time"

	"github.com/igefined/market-feed/internal/domain"
)

type Entry struct {
	Symbol          string          `json:"symbol"`
	Snapshot        domain.Snapshot `json:"snapshot"`
	FetchedAtMillis int64           `json:"fetchedAtMillis"`
}

func NewEntry(snapshot domain.Snapshot, fetchedAt time.Time) Entry {
	return Entry{
		Symbol:          snapshot.Symbol,
		Snapshot:        snapshot,
		FetchedAtMillis: fetchedAt.UnixMilli(),
	}
}

func (e Entry) FetchedAt() time.Time {
	return time.UnixMilli(e.FetchedAtMillis)
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt()) < ttl
}

// Store holds the most recent snapshot per symbol. Get returns nil, nil when
// the symbol is unknown or its entry has expired.
type Store interface {
	Get(ctx context.Context, symbol string) (*Entry, error)
	Set(ctx context.Context, entry Entry) error
}
