package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Binance BinanceConfig
	Market  MarketConfig
	Redis   RedisConfig
	HTTP    HTTPConfig
	Log     LogConfig
	// WatchSymbols are subscribed when the application starts.
	WatchSymbols []string
}

type BinanceConfig struct {
	RestURL           string
	StreamEndpoints   []string
	TradesLimit       int
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	HandshakeTimeout  time.Duration
}

type MarketConfig struct {
	SupportedSymbols []string
	CacheTTL         time.Duration
	PollInterval     time.Duration
	HealthInterval   time.Duration
	FetchTimeout     time.Duration
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type HTTPConfig struct {
	Addr string
	// AllowOrigins lists CORS origins; "*" allows any.
	AllowOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// a missing .env file is fine; the environment alone is enough
	_ = godotenv.Load()

	cfg := &Config{
		Binance: BinanceConfig{
			RestURL: getEnv("BINANCE_REST_URL", "https://api.binance.com/api/v3"),
			StreamEndpoints: getList("BINANCE_STREAM_ENDPOINTS", []string{
				"wss://stream.binance.com:9443",
				"wss://stream.binance.com:443",
				"wss://data-stream.binance.vision",
			}),
			TradesLimit:       getInt("BINANCE_TRADES_LIMIT", 100),
			RequestsPerSecond: getFloat("BINANCE_REQUESTS_PER_SECOND", 10),
			RequestTimeout:    getDuration("BINANCE_REQUEST_TIMEOUT", 10*time.Second),
			HandshakeTimeout:  getDuration("BINANCE_HANDSHAKE_TIMEOUT", 10*time.Second),
		},
		Market: DefaultMarketConfig(),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			AllowOrigins: getList("HTTP_CORS_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		WatchSymbols: getList("WATCH_SYMBOLS", []string{"ETHUSDT"}),
	}

	if err := cfg.Market.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market config: %w", err)
	}
	return cfg, nil
}

// DefaultMarketConfig returns the market client settings, overridable from
// the environment.
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		SupportedSymbols: getList("SUPPORTED_SYMBOLS", []string{
			"ETHUSDT", "BNBUSDT", "ADAUSDT", "DOGEUSDT", "XRPUSDT",
		}),
		CacheTTL:       getDuration("MARKET_CACHE_TTL", 30*time.Second),
		PollInterval:   getDuration("MARKET_POLL_INTERVAL", 5*time.Second),
		HealthInterval: getDuration("MARKET_HEALTH_INTERVAL", 30*time.Second),
		FetchTimeout:   getDuration("MARKET_FETCH_TIMEOUT", 10*time.Second),
		MaxRetries:     getInt("MARKET_MAX_RETRIES", 3),
		BaseDelay:      getDuration("MARKET_RETRY_BASE_DELAY", time.Second),
		MaxDelay:       getDuration("MARKET_RETRY_MAX_DELAY", 30*time.Second),
	}
}

// Validate rejects settings that would disable retries or spin timers with a
// zero period.
func (c MarketConfig) Validate() error {
	var errs []error
	if len(c.SupportedSymbols) == 0 {
		errs = append(errs, errors.New("SUPPORTED_SYMBOLS is empty"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MARKET_MAX_RETRIES must be at least 1, got %d", c.MaxRetries))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"MARKET_CACHE_TTL", c.CacheTTL},
		{"MARKET_POLL_INTERVAL", c.PollInterval},
		{"MARKET_HEALTH_INTERVAL", c.HealthInterval},
		{"MARKET_FETCH_TIMEOUT", c.FetchTimeout},
		{"MARKET_RETRY_BASE_DELAY", c.BaseDelay},
		{"MARKET_RETRY_MAX_DELAY", c.MaxDelay},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.name, d.value))
		}
	}
	if c.BaseDelay > 0 && c.MaxDelay > 0 && c.MaxDelay < c.BaseDelay {
		errs = append(errs, fmt.Errorf("MARKET_RETRY_MAX_DELAY %v is below MARKET_RETRY_BASE_DELAY %v", c.MaxDelay, c.BaseDelay))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}
