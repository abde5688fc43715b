package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/igefined/market-feed/pkg/logger"

	"github.com/igefined/market-feed/internal/api"
	"github.com/igefined/market-feed/internal/cache"
	"github.com/igefined/market-feed/internal/config"
	"github.com/igefined/market-feed/internal/market"
	"github.com/igefined/market-feed/internal/metrics"
	"github.com/igefined/market-feed/internal/providers/binance"
	"github.com/igefined/market-feed/internal/watcher"
)

func main() {
	fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		cache.Module,
		// Provider modules
		binance.Module,
		// Business logic modules
		market.Module,
		watcher.Module,
		api.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	).Run()
}
