package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/cache"
	"github.com/igefined/market-feed/internal/config"
	"github.com/igefined/market-feed/internal/domain"
	"github.com/igefined/market-feed/internal/metrics"
)

var ErrClientClosed = errors.New("market client closed")

// Client keeps live snapshots for the symbols its subscribers ask for. One
// feed, and so at most one stream connection, exists per symbol no matter how
// many subscribers share it.
type Client struct {
	config  config.MarketConfig
	allow   *domain.AllowList
	source  domain.TickerSource
	dialer  domain.StreamDialer
	store   cache.Store
	policy  RetryPolicy
	clock   Clock
	metrics *metrics.Metrics
	logger  *zap.Logger

	endpoints []string

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	feeds map[string]*feed
	// dials holds the in-flight dial per symbol; closed once the dial has
	// returned and any stale connection it produced is closed.
	dials   map[string]chan struct{}
	nextID  uint64
	nextGen uint64
	closed  bool
}

type Option func(*Client)

func WithClock(c Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(cl *Client) { cl.policy = p }
}

func NewClient(
	cfg config.MarketConfig,
	endpoints []string,
	source domain.TickerSource,
	dialer domain.StreamDialer,
	store cache.Store,
	logger *zap.Logger,
	opts ...Option,
) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:    cfg,
		allow:     domain.NewAllowList(cfg.SupportedSymbols),
		source:    source,
		dialer:    dialer,
		store:     store,
		policy:    PolicyFromConfig(cfg),
		logger:    logger.Named("market"),
		endpoints: endpoints,
		ctx:       ctx,
		cancel:    cancel,
		feeds:     make(map[string]*feed),
		dials:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = NewClock(nil)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.store == nil {
		c.store = cache.NewMemory(cfg.CacheTTL, nil)
	}

	return c
}

func (c *Client) AllowList() *domain.AllowList {
	return c.allow
}

// Subscribe starts delivering snapshots for symbol. A symbol outside the
// allow-list fails with *domain.InvalidSymbolError before any network call.
// A cached snapshot younger than the cache TTL is delivered at once;
// otherwise the stream starts in the loading state while a REST fetch runs.
func (c *Client) Subscribe(symbol string) (*Stream, error) {
	normalized, err := c.allow.Validate(symbol)
	if err != nil {
		c.logger.Warn("Rejected subscription", zap.String("symbol", symbol))
		return nil, err
	}

	cached := c.lookup(normalized)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	c.nextID++
	s := newStream(c.nextID, normalized)

	f, exists := c.feeds[normalized]
	if !exists {
		c.nextGen++
		f = newFeed(c.ctx, normalized, c.nextGen)
		c.feeds[normalized] = f
	}
	f.subs[s.id] = s
	c.metrics.SetSubscribers(normalized, len(f.subs))

	if cached != nil && f.snapshot == nil {
		snap := cached.Snapshot.Clone()
		f.snapshot = &snap
	}
	needFetch := cached == nil && !f.fetching
	if needFetch {
		f.fetching = true
	}

	c.logger.Info("Subscribed",
		zap.String("symbol", normalized),
		zap.Uint64("stream", s.id),
		zap.Int("subscribers", len(f.subs)),
		zap.Bool("cached", cached != nil))

	s.publish(f.view())

	if !exists {
		go c.start(f, f.gen, needFetch)
	} else if needFetch {
		go c.refresh(f, f.gen)
	}

	return s, nil
}

// Unsubscribe releases s. When it was the last subscriber for its symbol the
// feed is torn down before Unsubscribe returns: timers are stopped, in-flight
// work is cancelled and the stream connection is closed.
func (c *Client) Unsubscribe(s *Stream) {
	if s == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s.close()

	f, ok := c.feeds[s.symbol]
	if !ok || f.subs[s.id] != s {
		return
	}
	delete(f.subs, s.id)
	c.metrics.SetSubscribers(f.symbol, len(f.subs))

	c.logger.Info("Unsubscribed",
		zap.String("symbol", f.symbol),
		zap.Uint64("stream", s.id),
		zap.Int("subscribers", len(f.subs)))

	if len(f.subs) == 0 {
		c.retire(f)
	}
}

// Switch moves a subscriber to another symbol. The old subscription is fully
// released, its connection closed, before the new one is opened. A dial
// still in flight for the old symbol is waited for. An invalid target leaves
// s untouched.
func (c *Client) Switch(s *Stream, symbol string) (*Stream, error) {
	if _, err := c.allow.Validate(symbol); err != nil {
		return nil, err
	}

	c.Unsubscribe(s)
	c.awaitRetiredDial(s.symbol)
	return c.Subscribe(symbol)
}

// awaitRetiredDial blocks until a dial left behind by a retired feed for
// symbol has returned and its connection is closed.
func (c *Client) awaitRetiredDial(symbol string) {
	c.mu.Lock()
	done, dialing := c.dials[symbol]
	_, live := c.feeds[symbol]
	c.mu.Unlock()

	if dialing && !live {
		<-done
	}
}

// Close tears down every feed and closes all streams.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for _, f := range c.feeds {
		for _, s := range f.subs {
			s.close()
		}
		c.retire(f)
	}
	c.cancel()

	c.logger.Info("Market client closed")
}

func (c *Client) lookup(symbol string) *cache.Entry {
	ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout())
	defer cancel()

	entry, err := c.store.Get(ctx, symbol)
	if err != nil {
		c.logger.Warn("Snapshot cache lookup failed", zap.String("symbol", symbol), zap.Error(err))
		entry = nil
	}
	if entry != nil && !entry.Fresh(c.clock.Now(), c.config.CacheTTL) {
		entry = nil
	}

	c.metrics.CacheLookup(entry != nil)
	return entry
}

func (c *Client) save(entry cache.Entry) {
	ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout())
	defer cancel()

	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.Warn("Snapshot cache write failed", zap.String("symbol", entry.Symbol), zap.Error(err))
	}
}

func (c *Client) fetchTimeout() time.Duration {
	if c.config.FetchTimeout > 0 {
		return c.config.FetchTimeout
	}
	return 10 * time.Second
}
