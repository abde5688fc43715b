package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/igefined/market-feed/internal/config"
	"github.com/igefined/market-feed/internal/domain"
)

// Provider fetches ticker snapshots from the public REST API.
type Provider struct {
	config  config.BinanceConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewProvider(cfg config.BinanceConfig, logger *zap.Logger) *Provider {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Provider{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(limit, 2),
		logger:  logger.Named(moduleName),
	}
}

func (p *Provider) Name() string {
	return moduleName
}

type tickerResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

type tradeResponse struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// FetchSnapshot combines the 24h ticker with a sample of recent trades. A
// failed trades request only leaves the transaction counts empty.
func (p *Provider) FetchSnapshot(ctx context.Context, symbol string) (*domain.Snapshot, error) {
	start := time.Now()

	var ticker tickerResponse
	if err := p.get(ctx, "/ticker/24hr", url.Values{"symbol": {symbol}}, &ticker); err != nil {
		return nil, fmt.Errorf("failed to fetch ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lastPrice %q: %w", ticker.LastPrice, err)
	}
	change, err := strconv.ParseFloat(ticker.PriceChangePercent, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid priceChangePercent %q: %w", ticker.PriceChangePercent, err)
	}

	snapshot := &domain.Snapshot{
		Symbol:      symbol,
		Price:       price,
		PriceChange: domain.ExtrapolateChanges(change),
		Volume:      ticker.Volume,
		Liquidity:   ticker.QuoteVolume,
	}

	var trades []tradeResponse
	query := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(p.config.TradesLimit)},
	}
	if err := p.get(ctx, "/trades", query, &trades); err != nil {
		p.logger.Warn("Failed to fetch recent trades",
			zap.String("symbol", symbol),
			zap.Error(err))
	} else {
		snapshot.Txns = countTrades(trades)
	}

	p.logger.Debug("Fetched snapshot",
		zap.String("symbol", symbol),
		zap.Float64("price", price),
		zap.Float64("change_24h", change),
		zap.Int("buys", snapshot.Txns.Buys),
		zap.Int("sells", snapshot.Txns.Sells),
		zap.Duration("execution_time", time.Since(start)))

	return snapshot, nil
}

// countTrades splits a trade sample by aggressor: when the buyer is the
// maker the taker sold.
func countTrades(trades []tradeResponse) domain.Txns {
	var txns domain.Txns
	for _, t := range trades {
		if t.IsBuyerMaker {
			txns.Sells++
		} else {
			txns.Buys++
		}
	}
	return txns
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := p.config.RestURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
