package watcher

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/config"
	"github.com/igefined/market-feed/internal/domain"
	"github.com/igefined/market-feed/internal/market"
)

// Subscriber is the part of the market client the watcher needs.
type Subscriber interface {
	Subscribe(symbol string) (*market.Stream, error)
	Unsubscribe(s *market.Stream)
}

// Service keeps one long-lived subscription per watched symbol and serves the
// latest state of each.
type Service struct {
	client  Subscriber
	symbols []string
	logger  *zap.Logger

	mu      sync.RWMutex
	streams map[string]*market.Stream
	wg      sync.WaitGroup
}

type Params struct {
	fx.In

	Config *config.Config
	Client *market.Client
	Logger *zap.Logger
}

func NewService(params Params) *Service {
	return New(params.Client, params.Config.WatchSymbols, params.Logger)
}

func New(client Subscriber, symbols []string, logger *zap.Logger) *Service {
	return &Service{
		client:  client,
		symbols: symbols,
		logger:  logger.Named(moduleName),
		streams: make(map[string]*market.Stream),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting watcher", zap.Strings("symbols", s.symbols))

	for _, symbol := range s.symbols {
		if _, err := s.Watch(symbol); err != nil {
			s.logger.Error("Failed to watch symbol",
				zap.String("symbol", symbol),
				zap.Error(err))
			return err
		}
	}

	return nil
}

func (s *Service) Stop() error {
	s.logger.Info("Stopping watcher")

	s.mu.Lock()
	for symbol, stream := range s.streams {
		s.client.Unsubscribe(stream)
		delete(s.streams, symbol)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Watch subscribes to symbol unless it is already watched and returns the
// current state.
func (s *Service) Watch(symbol string) (market.State, error) {
	key := domain.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if stream, ok := s.streams[key]; ok {
		return stream.State(), nil
	}

	stream, err := s.client.Subscribe(symbol)
	if err != nil {
		return market.State{}, err
	}
	s.streams[stream.Symbol()] = stream

	s.wg.Add(1)
	go s.consume(stream)

	return stream.State(), nil
}

// Unwatch drops the subscription; false if symbol was not watched.
func (s *Service) Unwatch(symbol string) bool {
	key := domain.NormalizeSymbol(symbol)

	s.mu.Lock()
	stream, ok := s.streams[key]
	if ok {
		delete(s.streams, key)
	}
	s.mu.Unlock()

	if ok {
		s.client.Unsubscribe(stream)
	}
	return ok
}

// All returns the watched states ordered by symbol.
func (s *Service) All() []market.State {
	s.mu.RLock()
	states := make([]market.State, 0, len(s.streams))
	for _, stream := range s.streams {
		states = append(states, stream.State())
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].Symbol < states[j].Symbol
	})
	return states
}

func (s *Service) consume(stream *market.Stream) {
	defer s.wg.Done()

	for state := range stream.Updates() {
		s.processState(state)
	}

	s.logger.Debug("Stream closed", zap.String("symbol", stream.Symbol()))
}

func (s *Service) processState(state market.State) {
	fields := []zap.Field{
		zap.String("symbol", state.Symbol),
		zap.Stringer("connection", state.Connection),
		zap.Bool("loading", state.Loading),
	}
	if state.Snapshot != nil {
		fields = append(fields,
			zap.Float64("price", state.Snapshot.Price),
			zap.Any("price_change", state.Snapshot.PriceChange),
			zap.Int("buys", state.Snapshot.Txns.Buys),
			zap.Int("sells", state.Snapshot.Txns.Sells))
	}

	switch {
	case state.Err != nil:
		s.logger.Warn("Market data update", append(fields, zap.Error(state.Err))...)
	case state.Notice != nil:
		s.logger.Warn("Market data degraded", append(fields, zap.Stringer("notice", state.Notice))...)
	case state.Reconnecting:
		s.logger.Info("Market data reconnecting", fields...)
	default:
		s.logger.Debug("Market data update", fields...)
	}
}
