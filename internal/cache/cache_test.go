package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igefined/market-feed/internal/domain"
)

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Symbol:      "ETHUSDT",
		Price:       3120.5,
		PriceChange: map[domain.Period]float64{domain.Period24h: 1.2},
		Volume:      "1000.5",
	}
}

func TestMemoryEvictsOnLookup(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	store := NewMemory(30*time.Second, clk)

	require.NoError(t, store.Set(ctx, NewEntry(testSnapshot(), clk.Now())))

	clk.Add(29 * time.Second)
	entry, err := store.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 3120.5, entry.Snapshot.Price)

	clk.Add(time.Second)
	// still held until somebody asks for it
	assert.Equal(t, 1, store.Len())

	entry, err = store.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	store := NewMemory(30*time.Second, clk)

	snap := testSnapshot()
	require.NoError(t, store.Set(ctx, NewEntry(snap, clk.Now())))
	snap.PriceChange[domain.Period24h] = 99

	entry, err := store.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	entry.Snapshot.PriceChange[domain.Period24h] = 42

	again, err := store.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1.2, again.Snapshot.PriceChange[domain.Period24h])
}

func TestMemoryMiss(t *testing.T) {
	store := NewMemory(30*time.Second, clock.NewMock())

	entry, err := store.Get(context.Background(), "XRPUSDT")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestEntryFresh(t *testing.T) {
	fetched := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := NewEntry(testSnapshot(), fetched)

	assert.Equal(t, fetched.UnixMilli(), entry.FetchedAtMillis)
	assert.True(t, entry.Fresh(fetched.Add(29999*time.Millisecond), 30*time.Second))
	assert.False(t, entry.Fresh(fetched.Add(30*time.Second), 30*time.Second))
}

func TestRedisRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedis(client, 30*time.Second)

	entry, err := store.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Nil(t, entry)

	now := time.Now()
	require.NoError(t, store.Set(ctx, NewEntry(testSnapshot(), now)))
	assert.True(t, srv.Exists(keyPrefix+"ETHUSDT"))
	assert.Equal(t, 30*time.Second, srv.TTL(keyPrefix+"ETHUSDT"))

	entry, err = store.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "ETHUSDT", entry.Symbol)
	assert.Equal(t, 3120.5, entry.Snapshot.Price)
	assert.Equal(t, 1.2, entry.Snapshot.PriceChange[domain.Period24h])
	assert.Equal(t, now.UnixMilli(), entry.FetchedAtMillis)

	srv.FastForward(31 * time.Second)
	entry, err = store.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRedisSurfacesDecodeErrors(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, srv.Set(keyPrefix+"ETHUSDT", "not json"))

	_, err := NewRedis(client, 30*time.Second).Get(ctx, "ETHUSDT")
	assert.Error(t, err)
}
