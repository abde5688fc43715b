package binance

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/config"
	"github.com/igefined/market-feed/internal/domain"
)

const moduleName = "binance"

var Module = fx.Module(moduleName,
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, logger *zap.Logger) *Provider {
				return NewProvider(cfg.Binance, logger)
			},
			fx.As(new(domain.TickerSource)),
		),
		fx.Annotate(
			func(cfg *config.Config, logger *zap.Logger) *Dialer {
				return NewDialer(cfg.Binance, logger)
			},
			fx.As(new(domain.StreamDialer)),
		),
	),
)
