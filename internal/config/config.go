package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	RedisURL    string

	// Market data
	MarketDataURL     string        // base URL of the quote/history source
	PriceCacheTTL     time.Duration // snapshot freshness window
	PriceFetchWorkers int
	ExchangeTimezone  string        // IANA name used for the market-hours fallback

	// News
	PolygonAPIKey string
	NewsCacheTTL  time.Duration

	// Rebalancing defaults
	ToleranceThreshold  float64 // percentage points of allocation drift
	TransactionCostRate float64 // fraction of trade notional

	// Background refresh
	RefreshCronSpec string

	CORSAllowedOrigins string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL")
	if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}

	return &Config{
		Env:         env,
		Port:        port,
		DatabaseURL: dbURL,
		RedisURL:    viper.GetString("REDIS_URL"),

		MarketDataURL:     stringOrDefault("MARKET_DATA_URL", "http://localhost:8001"),
		PriceCacheTTL:     durationOrDefault("PRICE_CACHE_TTL", 5*time.Minute),
		PriceFetchWorkers: intOrDefault("PRICE_FETCH_WORKERS", 10),
		ExchangeTimezone:  stringOrDefault("EXCHANGE_TIMEZONE", "America/New_York"),

		PolygonAPIKey: viper.GetString("POLYGON_API_KEY"),
		NewsCacheTTL:  durationOrDefault("NEWS_CACHE_TTL", 4*time.Hour),

		ToleranceThreshold:  floatOrDefault("REBALANCE_TOLERANCE", 2.0),
		TransactionCostRate: floatOrDefault("TRANSACTION_COST_RATE", 0.005),

		RefreshCronSpec: stringOrDefault("PRICE_REFRESH_CRON", "@every 15m"),

		CORSAllowedOrigins: viper.GetString("CORS_ALLOWED_ORIGINS"),
	}, nil
}

func stringOrDefault(key, def string) string {
	if v := strings.TrimSpace(viper.GetString(key)); v != "" {
		return v
	}
	return def
}

func intOrDefault(key string, def int) int {
	if v := viper.GetInt(key); v > 0 {
		return v
	}
	return def
}

func floatOrDefault(key string, def float64) float64 {
	if v := viper.GetFloat64(key); v > 0 {
		return v
	}
	return def
}

func durationOrDefault(key string, def time.Duration) time.Duration {
	if v := viper.GetDuration(key); v > 0 {
		return v
	}
	return def
}
