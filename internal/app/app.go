package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"stockfolio-backend/internal/config"
	"stockfolio-backend/internal/health"
	"stockfolio-backend/internal/infrastructure/database"
	"stockfolio-backend/internal/marketdata"
	"stockfolio-backend/internal/middleware"
	"stockfolio-backend/internal/news"
	"stockfolio-backend/internal/portfolios"
	"stockfolio-backend/internal/rebalancing"
	"stockfolio-backend/internal/scheduler"
	"stockfolio-backend/internal/watchlists"
)

// gormPinger adapts a gorm DB to the health module's DBPinger.
type gormPinger struct {
	db *gorm.DB
}

func (p *gormPinger) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp builds the Fiber app with all global middleware, routes, and the
// background refresh scheduler. The returned scheduler is started; callers
// stop it on shutdown.
func CreateApp(cfg *config.Config) (*fiber.App, *scheduler.Scheduler, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}))

	// Redis is optional; without it the health dashboard loses traffic stats.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rdb = redis.NewClient(opt)
		app.Use(middleware.HealthMarker(rdb))
	}

	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, err
		}
	}

	// Health endpoints
	var pinger health.DBPinger
	if db != nil {
		pinger = &gormPinger{db: db}
	}
	healthHandlers := &health.Handlers{Rdb: rdb, DB: pinger, MarketDataURL: cfg.MarketDataURL}
	app.Get("/health/json", healthHandlers.JSON)
	if rdb != nil {
		app.Get("/reset", healthHandlers.Reset)
		app.Get("/health/errors", healthHandlers.Errors)
	}

	// Market data provider with its in-memory snapshot cache
	provider := marketdata.NewProvider(
		marketdata.NewHTTPClient(cfg.MarketDataURL),
		marketdata.NewCache(cfg.PriceCacheTTL),
		marketdata.WithWorkers(cfg.PriceFetchWorkers),
		marketdata.WithExchangeTimezone(cfg.ExchangeTimezone),
	)

	// News source chain: Polygon -> Yahoo -> mock fallback
	newsChain := news.NewChain(cfg.PolygonAPIKey, news.WithCacheTTL(cfg.NewsCacheTTL))

	// Stocks endpoints need no database
	stocksHandlers := &marketdata.Handlers{Provider: provider}
	stocksGroup := app.Group("/api/v1/stocks")
	stocksGroup.Get("/price/:symbol", stocksHandlers.Price)
	stocksGroup.Post("/prices", stocksHandlers.Prices)
	stocksGroup.Post("/validate", stocksHandlers.Validate)
	stocksGroup.Get("/market-summary", stocksHandlers.MarketSummary)
	stocksGroup.Get("/cache-stats", stocksHandlers.CacheStats)
	stocksGroup.Post("/clear-cache", stocksHandlers.ClearCache)

	var sched *scheduler.Scheduler
	if db != nil {
		portfolioService := &portfolios.Service{DB: db, Prices: provider}
		portfolioHandlers := &portfolios.Handlers{Service: portfolioService}
		portfolioGroup := app.Group("/api/v1/portfolios")
		portfolioGroup.Get("/", portfolioHandlers.List)
		portfolioGroup.Post("/", portfolioHandlers.Create)
		portfolioGroup.Get("/:id", portfolioHandlers.Get)
		portfolioGroup.Put("/:id", portfolioHandlers.Update)
		portfolioGroup.Delete("/:id", portfolioHandlers.Delete)
		portfolioGroup.Get("/:id/holdings", portfolioHandlers.Holdings)
		portfolioGroup.Post("/:id/holdings", portfolioHandlers.AddHolding)
		portfolioGroup.Put("/:id/holdings/:symbol", portfolioHandlers.UpdateHolding)
		portfolioGroup.Delete("/:id/holdings/:symbol", portfolioHandlers.DeleteHolding)
		portfolioGroup.Post("/:id/holdings/:symbol/refresh-price", portfolioHandlers.RefreshHoldingPrice)
		portfolioGroup.Post("/:id/refresh-prices", portfolioHandlers.RefreshPrices)
		portfolioGroup.Get("/:id/valuation", portfolioHandlers.Valuation)
		portfolioGroup.Get("/:id/summary", portfolioHandlers.Summary)
		portfolioGroup.Post("/:id/validate-symbols", portfolioHandlers.ValidateSymbols)
		portfolioGroup.Post("/:id/import-csv", portfolioHandlers.ImportCSV)

		engine := rebalancing.NewEngine(db, cfg.ToleranceThreshold, cfg.TransactionCostRate)
		rebalancingHandlers := &rebalancing.Handlers{Engine: engine}
		rebalancingGroup := app.Group("/api/v1/rebalancing")
		rebalancingGroup.Post("/:id/analyze", rebalancingHandlers.Analyze)
		rebalancingGroup.Get("/:id/summary", rebalancingHandlers.Summary)
		rebalancingGroup.Get("/:id/feasibility", rebalancingHandlers.Feasibility)
		rebalancingGroup.Post("/:id/execute", rebalancingHandlers.Execute)

		watchlistService := &watchlists.Service{DB: db, Prices: provider, News: newsChain}
		watchlistHandlers := &watchlists.Handlers{Service: watchlistService}
		watchlistGroup := app.Group("/api/v1/watchlists")
		watchlistGroup.Get("/", watchlistHandlers.List)
		watchlistGroup.Post("/", watchlistHandlers.Create)
		watchlistGroup.Get("/:id", watchlistHandlers.Get)
		watchlistGroup.Put("/:id", watchlistHandlers.Update)
		watchlistGroup.Delete("/:id", watchlistHandlers.Delete)
		watchlistGroup.Get("/:id/items", watchlistHandlers.Items)
		watchlistGroup.Post("/:id/items", watchlistHandlers.AddItem)
		watchlistGroup.Put("/:id/items/:symbol", watchlistHandlers.UpdateItem)
		watchlistGroup.Delete("/:id/items/:symbol", watchlistHandlers.DeleteItem)
		watchlistGroup.Post("/:id/items/:symbol/refresh-price", watchlistHandlers.RefreshItemPrice)
		watchlistGroup.Get("/:id/items/:symbol/news", watchlistHandlers.ItemNews)
		watchlistGroup.Put("/:id/reorder", watchlistHandlers.Reorder)
		watchlistGroup.Post("/:id/refresh-prices", watchlistHandlers.RefreshPrices)
		watchlistGroup.Get("/:id/summary", watchlistHandlers.Summary)
		watchlistGroup.Post("/:id/validate-symbols", watchlistHandlers.ValidateSymbols)

		sched = scheduler.New(log.Logger)
		job := &scheduler.PriceRefreshJob{DB: db, Prices: provider}
		if err := sched.AddJob(cfg.RefreshCronSpec, job); err != nil {
			return nil, nil, err
		}
		sched.Start()
	}

	return app, sched, nil
}
