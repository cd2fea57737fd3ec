package marketdata

import (
	"github.com/gofiber/fiber/v2"

	"stockfolio-backend/internal/pkg/response"
	"stockfolio-backend/internal/pkg/validation"
)

// Handlers exposes stock price lookups and cache controls.
type Handlers struct {
	Provider *Provider
}

// Price GET /api/v1/stocks/price/:symbol?use_cache=true
func (h *Handlers) Price(c *fiber.Ctx) error {
	symbol := validation.NormalizeSymbol(c.Params("symbol"))
	if symbol == "" || !validation.IsValidSymbol(symbol) {
		return response.Error(c, "Invalid stock symbol", 400, nil)
	}
	useCache := c.QueryBool("use_cache", true)

	snapshot, ok := h.Provider.GetPrice(c.Context(), symbol, useCache)
	if !ok {
		return response.Error(c, "No price data available for "+symbol, 404, nil)
	}
	return response.Success(c, "Price fetched successfully", snapshot, nil)
}

type pricesRequest struct {
	Symbols  []string `json:"symbols"`
	UseCache *bool    `json:"use_cache"`
}

// Prices POST /api/v1/stocks/prices
func (h *Handlers) Prices(c *fiber.Ctx) error {
	var req pricesRequest
	if err := c.BodyParser(&req); err != nil || len(req.Symbols) == 0 {
		return response.Error(c, "symbols list is required", 400, nil)
	}
	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}
	snapshots := h.Provider.GetPrices(c.Context(), req.Symbols, useCache)
	return response.Success(c, "Prices fetched successfully", snapshots, nil)
}

type validateRequest struct {
	Symbols []string `json:"symbols"`
}

// Validate POST /api/v1/stocks/validate
func (h *Handlers) Validate(c *fiber.Ctx) error {
	var req validateRequest
	if err := c.BodyParser(&req); err != nil || len(req.Symbols) == 0 {
		return response.Error(c, "symbols list is required", 400, nil)
	}
	results := h.Provider.ValidateSymbols(c.Context(), req.Symbols)
	return response.Success(c, "Symbols validated", results, nil)
}

// MarketSummary GET /api/v1/stocks/market-summary
func (h *Handlers) MarketSummary(c *fiber.Ctx) error {
	return response.Success(c, "Market summary fetched", h.Provider.MarketSummary(c.Context()), nil)
}

// CacheStats GET /api/v1/stocks/cache-stats
func (h *Handlers) CacheStats(c *fiber.Ctx) error {
	return response.Success(c, "Cache statistics", h.Provider.CacheStats(), nil)
}

// ClearCache POST /api/v1/stocks/clear-cache
func (h *Handlers) ClearCache(c *fiber.Ctx) error {
	h.Provider.ClearCache()
	return response.Success(c, "Price cache cleared", nil, nil)
}
