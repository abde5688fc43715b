package market

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/cache"
	"github.com/igefined/market-feed/internal/domain"
)

// feed is the per-symbol state machine. All fields are guarded by Client.mu.
// gen identifies the feed's lifetime; callbacks capture it when scheduled and
// do nothing once it no longer matches, which is how late timers and socket
// reads after Unsubscribe become no-ops.
type feed struct {
	symbol string
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc

	subs map[uint64]*Stream

	state    domain.ConnectionState
	conn     domain.StreamConn
	endpoint int
	retries  int
	fetching bool
	polling  bool

	snapshot *domain.Snapshot
	err      error
	notice   *domain.DegradedNotice

	retryTimer  Timer
	healthTimer Timer
	pollTimer   Timer
}

func newFeed(parent context.Context, symbol string, gen uint64) *feed {
	ctx, cancel := context.WithCancel(parent)
	return &feed{
		symbol: symbol,
		gen:    gen,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[uint64]*Stream),
		state:  domain.Disconnected,
	}
}

func (f *feed) view() State {
	st := State{
		Symbol:       f.symbol,
		Loading:      f.fetching && f.snapshot == nil,
		Err:          f.err,
		Connection:   f.state,
		Reconnecting: !f.polling && f.retries > 0 && f.state != domain.Connected,
		Notice:       f.notice,
	}
	if f.snapshot != nil {
		snap := f.snapshot.Clone()
		st.Snapshot = &snap
	}
	return st
}

func (c *Client) broadcast(f *feed) {
	for _, s := range f.subs {
		s.publish(f.view())
	}
}

// retire ends the feed's generation. Must hold c.mu.
func (c *Client) retire(f *feed) {
	f.gen = 0
	f.cancel()

	stopTimer(&f.retryTimer)
	stopTimer(&f.healthTimer)
	stopTimer(&f.pollTimer)

	if f.conn != nil {
		if err := f.conn.Close(); err != nil {
			c.logger.Debug("Stream close failed", zap.String("symbol", f.symbol), zap.Error(err))
		}
		f.conn = nil
	}
	f.state = domain.Disconnected

	if c.feeds[f.symbol] == f {
		delete(c.feeds, f.symbol)
	}
	c.metrics.Forget(f.symbol)

	c.logger.Info("Feed stopped", zap.String("symbol", f.symbol))
}

func (c *Client) start(f *feed, gen uint64, fetch bool) {
	if fetch {
		c.refresh(f, gen)
	}
	c.connect(f, gen)
}

// refresh performs one REST fetch and merges the result. Failures keep the
// previous snapshot and surface a *domain.FetchError.
func (c *Client) refresh(f *feed, gen uint64) {
	ctx, cancel := context.WithTimeout(f.ctx, c.fetchTimeout())
	defer cancel()

	snap, err := c.source.FetchSnapshot(ctx, f.symbol)

	c.mu.Lock()
	if f.gen != gen {
		c.mu.Unlock()
		return
	}
	f.fetching = false

	if err != nil {
		f.err = &domain.FetchError{Symbol: f.symbol, Err: err}
		c.metrics.FetchFailed(f.symbol)
		c.logger.Warn("Failed to fetch snapshot",
			zap.String("symbol", f.symbol),
			zap.String("source", c.source.Name()),
			zap.Error(err))
		c.broadcast(f)
		c.mu.Unlock()
		return
	}

	merged := snap.Clone()
	if f.snapshot != nil {
		merged = f.snapshot.Merge(*snap)
	}
	merged.Symbol = f.symbol
	merged.UpdatedAt = c.clock.Now()
	f.snapshot = &merged
	f.err = nil
	entry := cache.NewEntry(merged, c.clock.Now())

	c.broadcast(f)
	c.mu.Unlock()

	c.save(entry)
}

func (c *Client) connect(f *feed, gen uint64) {
	c.mu.Lock()
	if f.gen != gen {
		c.mu.Unlock()
		return
	}
	f.retryTimer = nil
	if len(c.endpoints) == 0 {
		c.startPolling(f, gen, fmt.Errorf("no stream endpoints configured"))
		c.mu.Unlock()
		return
	}
	// a retired feed for the same symbol may still be dialing
	for {
		prev, busy := c.dials[f.symbol]
		if !busy {
			break
		}
		c.mu.Unlock()
		<-prev
		c.mu.Lock()
		if f.gen != gen {
			c.mu.Unlock()
			return
		}
	}
	done := make(chan struct{})
	c.dials[f.symbol] = done

	f.state = domain.Connecting
	endpoint := c.endpoints[f.endpoint]
	url := domain.StreamURL(endpoint, f.symbol)
	c.metrics.SetConnectionState(f.symbol, f.state)
	c.broadcast(f)
	c.mu.Unlock()

	c.logger.Debug("Opening stream", zap.String("symbol", f.symbol), zap.String("url", url))
	conn, err := c.dialer.Dial(f.ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finishDial(f.symbol, done)

	if f.gen != gen {
		// superseded while dialing
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.handleDisconnect(f, gen, &domain.TransportError{Symbol: f.symbol, Endpoint: endpoint, Err: err})
		return
	}

	f.conn = conn
	f.state = domain.Connected
	f.retries = 0
	c.metrics.SetConnectionState(f.symbol, f.state)
	c.scheduleHealth(f, gen)
	c.broadcast(f)

	c.logger.Info("Stream connected", zap.String("symbol", f.symbol), zap.String("endpoint", endpoint))

	go c.read(f, gen, conn, endpoint)
}

// finishDial releases the symbol's dial slot. Must hold c.mu.
func (c *Client) finishDial(symbol string, done chan struct{}) {
	if c.dials[symbol] == done {
		delete(c.dials, symbol)
	}
	close(done)
}

func (c *Client) read(f *feed, gen uint64, conn domain.StreamConn, endpoint string) {
	for {
		tick, err := conn.ReadTick()
		if err != nil {
			c.mu.Lock()
			if f.gen == gen && f.conn == conn {
				c.handleDisconnect(f, gen, &domain.TransportError{Symbol: f.symbol, Endpoint: endpoint, Err: err})
			}
			c.mu.Unlock()
			return
		}

		if !c.applyTick(f, gen, conn, tick) {
			return
		}
	}
}

// applyTick merges one tick; false means the connection is no longer current.
func (c *Client) applyTick(f *feed, gen uint64, conn domain.StreamConn, tick domain.Tick) bool {
	c.mu.Lock()
	if f.gen != gen || f.conn != conn {
		c.mu.Unlock()
		return false
	}

	base := domain.Snapshot{Symbol: f.symbol}
	if f.snapshot != nil {
		base = *f.snapshot
	}
	if tick.ReceivedAt.IsZero() {
		tick.ReceivedAt = c.clock.Now()
	}
	next := base.ApplyTick(tick)
	f.snapshot = &next
	c.metrics.Tick(f.symbol)
	entry := cache.NewEntry(next, c.clock.Now())

	c.broadcast(f)
	c.mu.Unlock()

	c.save(entry)
	return true
}

// handleDisconnect schedules a reconnect on the next endpoint or, once the
// retry budget is spent, falls back to polling. Must hold c.mu.
func (c *Client) handleDisconnect(f *feed, gen uint64, cause error) {
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	stopTimer(&f.healthTimer)
	f.state = domain.Disconnected
	c.metrics.SetConnectionState(f.symbol, f.state)

	if !c.policy.Allow(f.retries) {
		c.startPolling(f, gen, cause)
		return
	}

	f.endpoint = (f.endpoint + 1) % len(c.endpoints)
	delay := c.policy.Delay(f.retries)
	f.retries++
	c.metrics.Reconnect(f.symbol)

	c.logger.Warn("Stream disconnected, reconnecting",
		zap.String("symbol", f.symbol),
		zap.Int("attempt", f.retries),
		zap.Duration("delay", delay),
		zap.String("next_endpoint", c.endpoints[f.endpoint]),
		zap.Error(cause))

	c.broadcast(f)
	f.retryTimer = c.clock.AfterFunc(delay, func() { c.connect(f, gen) })
}

// startPolling abandons streaming for the feed. Must hold c.mu.
func (c *Client) startPolling(f *feed, gen uint64, cause error) {
	f.polling = true
	f.notice = &domain.DegradedNotice{
		Symbol: f.symbol,
		Reason: fmt.Sprintf("live stream unavailable after %d reconnect attempts: %v", f.retries, cause),
		Since:  c.clock.Now(),
	}
	c.metrics.SetDegraded(f.symbol, true)

	c.logger.Warn("Falling back to polling",
		zap.String("symbol", f.symbol),
		zap.Duration("interval", c.config.PollInterval),
		zap.Error(cause))

	c.broadcast(f)
	c.schedulePoll(f, gen)
}

func (c *Client) schedulePoll(f *feed, gen uint64) {
	f.pollTimer = c.clock.AfterFunc(c.config.PollInterval, func() { c.poll(f, gen) })
}

func (c *Client) poll(f *feed, gen uint64) {
	c.refresh(f, gen)

	c.mu.Lock()
	defer c.mu.Unlock()
	if f.gen == gen {
		c.schedulePoll(f, gen)
	}
}

func (c *Client) scheduleHealth(f *feed, gen uint64) {
	f.healthTimer = c.clock.AfterFunc(c.config.HealthInterval, func() { c.checkHealth(f, gen) })
}

// checkHealth pings the live connection and forces the disconnect path when
// the ping fails, without waiting for a read error.
func (c *Client) checkHealth(f *feed, gen uint64) {
	c.mu.Lock()
	if f.gen != gen || f.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := f.conn
	c.mu.Unlock()

	err := conn.Ping()

	c.mu.Lock()
	defer c.mu.Unlock()
	if f.gen != gen || f.conn != conn {
		return
	}
	if err != nil {
		c.logger.Warn("Stream health check failed", zap.String("symbol", f.symbol), zap.Error(err))
		c.handleDisconnect(f, gen, &domain.TransportError{Symbol: f.symbol, Endpoint: c.endpoints[f.endpoint], Err: err})
		return
	}
	c.scheduleHealth(f, gen)
}
