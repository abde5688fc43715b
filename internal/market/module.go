package market

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/cache"
	"github.com/igefined/market-feed/internal/config"
	"github.com/igefined/market-feed/internal/domain"
	"github.com/igefined/market-feed/internal/metrics"
)

const moduleName = "market"

type Params struct {
	fx.In

	Config  *config.Config
	Source  domain.TickerSource
	Dialer  domain.StreamDialer
	Store   cache.Store
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

var Module = fx.Module(moduleName,
	fx.Provide(func(lc fx.Lifecycle, p Params) *Client {
		client := NewClient(
			p.Config.Market,
			p.Config.Binance.StreamEndpoints,
			p.Source,
			p.Dialer,
			p.Store,
			p.Logger,
			WithMetrics(p.Metrics),
		)
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				client.Close()
				return nil
			},
		})
		return client
	}),
)
