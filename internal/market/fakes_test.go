package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/cache"
	"github.com/igefined/market-feed/internal/config"
	"github.com/igefined/market-feed/internal/domain"
)

var testEndpoints = []string{"wss://a.test", "wss://b.test", "wss://c.test"}

// fakeClock hands timers to the test, which fires them explicitly.
type fakeClock struct {
	mock *clock.Mock

	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC))
	return &fakeClock{mock: mock}
}

func (c *fakeClock) Now() time.Time {
	return c.mock.Now()
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// run invokes the callback even if the timer was stopped, the way a timer
// that already fired races a Stop.
func (t *fakeTimer) run() {
	t.fn()
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.delay)
	}
	return out
}

func (c *fakeClock) pending(d time.Duration) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.delay == d {
			return t
		}
	}
	return nil
}

func (c *fakeClock) waitPending(t *testing.T, d time.Duration) *fakeTimer {
	t.Helper()
	var timer *fakeTimer
	require.Eventually(t, func() bool {
		timer = c.pending(d)
		return timer != nil
	}, time.Second, 2*time.Millisecond, "no pending %v timer", d)
	return timer
}

// fire runs the pending timer with delay d on the calling goroutine.
func (c *fakeClock) fire(t *testing.T, d time.Duration) {
	t.Helper()
	timer := c.waitPending(t, d)
	c.mu.Lock()
	timer.fired = true
	c.mu.Unlock()
	c.mock.Add(d)
	timer.fn()
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	snap  domain.Snapshot
	err   error
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) FetchSnapshot(_ context.Context, symbol string) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	snap := s.snap.Clone()
	snap.Symbol = symbol
	return &snap, nil
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *eventLog) contains(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakeDialer struct {
	log *eventLog

	mu    sync.Mutex
	fail  bool
	urls  []string
	conns []*fakeConn
	gates map[string]chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{log: &eventLog{}}
}

// Dial ignores ctx, like a transport whose handshake cannot be interrupted.
func (d *fakeDialer) Dial(_ context.Context, url string) (domain.StreamConn, error) {
	d.mu.Lock()
	var gate chan struct{}
	for fragment, g := range d.gates {
		if strings.Contains(url, fragment) {
			gate = g
		}
	}
	d.mu.Unlock()

	if gate != nil {
		d.log.add("dialing %s", url)
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.fail {
		d.log.add("refused %s", url)
		return nil, errors.New("connection refused")
	}
	conn := &fakeConn{
		url:   url,
		log:   d.log,
		ticks: make(chan domain.Tick, 16),
		done:  make(chan struct{}),
	}
	d.conns = append(d.conns, conn)
	d.log.add("open %s", url)
	return conn, nil
}

// hold makes dials to URLs containing fragment block until the returned
// channel is closed.
func (d *fakeDialer) hold(fragment string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gates == nil {
		d.gates = make(map[string]chan struct{})
	}
	gate := make(chan struct{})
	d.gates[fragment] = gate
	return gate
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *fakeDialer) dialedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	var conn *fakeConn
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.conns) > i {
			conn = d.conns[i]
			return true
		}
		return false
	}, time.Second, 2*time.Millisecond, "connection %d never opened", i)
	return conn
}

type fakeConn struct {
	url   string
	log   *eventLog
	ticks chan domain.Tick
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	pingErr error
	pings   int
}

func (c *fakeConn) ReadTick() (domain.Tick, error) {
	select {
	case t := <-c.ticks:
		return t, nil
	case <-c.done:
		return domain.Tick{}, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.log.add("close %s", c.url)
	})
	return nil
}

// drop simulates the server going away.
func (c *fakeConn) drop() {
	c.once.Do(func() {
		close(c.done)
		c.log.add("drop %s", c.url)
	})
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeConn) setPingErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

type harness struct {
	client *Client
	clock  *fakeClock
	source *fakeSource
	dialer *fakeDialer
	store  *cache.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := newFakeClock()
	h := &harness{
		clock: clk,
		source: &fakeSource{snap: domain.Snapshot{
			Price:       3000,
			PriceChange: domain.ExtrapolateChanges(2.4),
			Volume:      "1200.5",
			Txns:        domain.Txns{Buys: 60, Sells: 40},
		}},
		dialer: newFakeDialer(),
		store:  cache.NewMemory(30*time.Second, clk.mock),
	}

	cfg := config.MarketConfig{
		SupportedSymbols: []string{"ETHUSDT", "BNBUSDT", "ADAUSDT", "DOGEUSDT", "XRPUSDT"},
		CacheTTL:         30 * time.Second,
		PollInterval:     5 * time.Second,
		HealthInterval:   30 * time.Second,
		FetchTimeout:     time.Second,
	}
	h.client = NewClient(cfg, testEndpoints, h.source, h.dialer, h.store, zap.NewNop(), WithClock(clk))
	t.Cleanup(h.client.Close)

	return h
}

func waitState(t *testing.T, s *Stream, cond func(State) bool) State {
	t.Helper()
	var st State
	require.Eventually(t, func() bool {
		st = s.State()
		return cond(st)
	}, time.Second, 2*time.Millisecond, "stream %s never reached the expected state", s.Symbol())
	return st
}

func connected(st State) bool {
	return st.Connection == domain.Connected
}

func ptr(v float64) *float64 { return &v }
