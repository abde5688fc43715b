package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/domain"
	"github.com/igefined/market-feed/internal/market"
	"github.com/igefined/market-feed/internal/metrics"
	"github.com/igefined/market-feed/internal/watcher"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Handler struct {
	client  *market.Client
	watcher *watcher.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewHandler(client *market.Client, watcher *watcher.Service, metrics *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		client:  client,
		watcher: watcher,
		metrics: metrics,
		logger:  logger.Named(moduleName),
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/symbols", h.Symbols)
	v1.GET("/tickers", h.ListTickers)
	v1.GET("/tickers/:symbol", h.GetTicker)
	v1.DELETE("/tickers/:symbol", h.DeleteTicker)

	r.GET("/ws/tickers/:symbol", h.StreamTicker)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Symbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": h.client.AllowList().Symbols()})
}

func (h *Handler) ListTickers(c *gin.Context) {
	states := h.watcher.All()
	tickers := make([]tickerResponse, 0, len(states))
	for _, st := range states {
		tickers = append(tickers, newTickerResponse(st))
	}
	c.JSON(http.StatusOK, gin.H{"tickers": tickers})
}

// GetTicker returns the watched state of a symbol, starting to watch it on
// first request.
func (h *Handler) GetTicker(c *gin.Context) {
	st, err := h.watcher.Watch(c.Param("symbol"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTickerResponse(st))
}

func (h *Handler) DeleteTicker(c *gin.Context) {
	if !h.watcher.Unwatch(c.Param("symbol")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol is not watched"})
		return
	}
	c.Status(http.StatusNoContent)
}

// StreamTicker upgrades to a WebSocket and pushes every state change of its
// own subscription until either side goes away.
func (h *Handler) StreamTicker(c *gin.Context) {
	stream, err := h.client.Subscribe(c.Param("symbol"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer h.client.Unsubscribe(stream)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("symbol", stream.Symbol()), zap.Error(err))
		return
	}
	defer conn.Close()

	// the peer never sends anything we use; reading only notices the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.client.Unsubscribe(stream)
				return
			}
		}
	}()

	h.logger.Info("WebSocket client attached", zap.String("symbol", stream.Symbol()))

	for st := range stream.Updates() {
		if err := conn.WriteJSON(newTickerResponse(st)); err != nil {
			h.logger.Debug("WebSocket write failed", zap.String("symbol", stream.Symbol()), zap.Error(err))
			return
		}
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, market.ErrClientClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
