package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/config"
	"github.com/igefined/market-feed/internal/domain"
)

const pingTimeout = 5 * time.Second

// Dialer opens ticker streams over websocket.
type Dialer struct {
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewDialer(cfg config.BinanceConfig, logger *zap.Logger) *Dialer {
	return &Dialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.Named(moduleName),
	}
}

func (d *Dialer) Dial(ctx context.Context, url string) (domain.StreamConn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	d.logger.Debug("Stream connected", zap.String("url", url))
	return &streamConn{conn: conn, logger: d.logger}, nil
}

type streamConn struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

func (s *streamConn) ReadTick() (domain.Tick, error) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return domain.Tick{}, err
		}

		tick, ok := ParseTickerMessage(message, time.Now())
		if !ok {
			s.logger.Debug("Ignoring stream message", zap.ByteString("message", message))
			continue
		}
		return tick, nil
	}
}

func (s *streamConn) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingTimeout))
}

func (s *streamConn) Close() error {
	return s.conn.Close()
}

// ParseTickerMessage reads the last price "c" and the 24h change "P" from a
// ticker event. Other fields are ignored. ok is false when neither field
// holds a number.
func ParseTickerMessage(message []byte, receivedAt time.Time) (domain.Tick, bool) {
	if !gjson.ValidBytes(message) {
		return domain.Tick{}, false
	}

	fields := gjson.GetManyBytes(message, "c", "P")
	tick := domain.Tick{ReceivedAt: receivedAt}

	if v, ok := parseNumber(fields[0]); ok {
		tick.Price = &v
	}
	if v, ok := parseNumber(fields[1]); ok {
		tick.Change24h = &v
	}

	return tick, tick.Price != nil || tick.Change24h != nil
}

func parseNumber(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.String:
		v, err := strconv.ParseFloat(r.Str, 64)
		return v, err == nil
	case gjson.Number:
		return r.Num, true
	default:
		return 0, false
	}
}
