package watchlists

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"stockfolio-backend/internal/pkg/response"
)

// Handlers bundles watchlist handlers.
type Handlers struct {
	Service *Service
}

func parseWatchlistID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, response.Error(c, "Invalid watchlist ID format (must be a valid UUID)", 400, nil)
	}
	return id, nil
}

func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrWatchlistNotFound), errors.Is(err, ErrItemNotFound):
		return response.Error(c, err.Error(), 404, nil)
	case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrDuplicateSymbol):
		return response.Error(c, err.Error(), 409, nil)
	default:
		return response.Error(c, err.Error(), 400, nil)
	}
}

// List GET /api/v1/watchlists
func (h *Handlers) List(c *fiber.Ctx) error {
	data, err := h.Service.List(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Watchlists fetched successfully", data, nil)
}

type watchlistRequest struct {
	Name string `json:"name"`
}

// Create POST /api/v1/watchlists
func (h *Handlers) Create(c *fiber.Ctx) error {
	var req watchlistRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	data, err := h.Service.Create(c.Context(), req.Name)
	if err != nil {
		return serviceError(c, err)
	}
	return response.SuccessCreated(c, "Watchlist created successfully", data, nil)
}

// Get GET /api/v1/watchlists/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	data, err := h.Service.Get(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Watchlist fetched successfully", data, nil)
}

// Update PUT /api/v1/watchlists/:id
func (h *Handlers) Update(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	var req watchlistRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	data, err := h.Service.Update(c.Context(), id, req.Name)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Watchlist updated successfully", data, nil)
}

// Delete DELETE /api/v1/watchlists/:id
func (h *Handlers) Delete(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	if err := h.Service.Delete(c.Context(), id); err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Watchlist deleted successfully", nil, nil)
}

// Items GET /api/v1/watchlists/:id/items
func (h *Handlers) Items(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	if _, err := h.Service.Get(c.Context(), id); err != nil {
		return serviceError(c, err)
	}
	data, err := h.Service.Items(c.Context(), id)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Watched items fetched successfully", data, nil)
}

type addItemRequest struct {
	Symbol string  `json:"symbol"`
	Notes  *string `json:"notes"`
}

// AddItem POST /api/v1/watchlists/:id/items
func (h *Handlers) AddItem(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	var req addItemRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	data, err := h.Service.AddItem(c.Context(), id, req.Symbol, req.Notes)
	if err != nil {
		return serviceError(c, err)
	}
	return response.SuccessCreated(c, "Watched item added successfully", data, nil)
}

type updateItemRequest struct {
	Notes *string `json:"notes"`
}

// UpdateItem PUT /api/v1/watchlists/:id/items/:symbol
func (h *Handlers) UpdateItem(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	var req updateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	data, err := h.Service.UpdateItem(c.Context(), id, c.Params("symbol"), req.Notes)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Watched item updated successfully", data, nil)
}

// DeleteItem DELETE /api/v1/watchlists/:id/items/:symbol
func (h *Handlers) DeleteItem(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	if err := h.Service.DeleteItem(c.Context(), id, c.Params("symbol")); err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Watched item deleted successfully", nil, nil)
}

type reorderRequest struct {
	SymbolOrder []string `json:"symbol_order"`
}

// Reorder PUT /api/v1/watchlists/:id/reorder
func (h *Handlers) Reorder(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	var req reorderRequest
	if err := c.BodyParser(&req); err != nil || len(req.SymbolOrder) == 0 {
		return response.Error(c, "symbol_order is required", 400, nil)
	}
	if err := h.Service.Reorder(c.Context(), id, req.SymbolOrder); err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Watchlist reordered successfully", nil, nil)
}

// RefreshPrices POST /api/v1/watchlists/:id/refresh-prices
func (h *Handlers) RefreshPrices(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	data, err := h.Service.RefreshPrices(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, data.Message, data, nil)
}

// RefreshItemPrice POST /api/v1/watchlists/:id/items/:symbol/refresh-price
func (h *Handlers) RefreshItemPrice(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	price, err := h.Service.RefreshItemPrice(c.Context(), id, c.Params("symbol"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Price refreshed successfully", fiber.Map{"price": price}, nil)
}

// ItemNews GET /api/v1/watchlists/:id/items/:symbol/news?limit=5
func (h *Handlers) ItemNews(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	limit, err := strconv.Atoi(c.Query("limit", "5"))
	if err != nil || limit <= 0 {
		return response.Error(c, "limit must be a positive integer", 400, nil)
	}
	articles, fresh, err := h.Service.ItemNews(c.Context(), id, c.Params("symbol"), limit)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "News fetched successfully", fiber.Map{
		"articles": articles,
		"fresh":    fresh,
	}, nil)
}

// Summary GET /api/v1/watchlists/:id/summary
func (h *Handlers) Summary(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	if _, err := h.Service.Get(c.Context(), id); err != nil {
		return serviceError(c, err)
	}
	data, err := h.Service.Summary(c.Context(), id)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Summary computed successfully", data, nil)
}

// ValidateSymbols POST /api/v1/watchlists/:id/validate-symbols
func (h *Handlers) ValidateSymbols(c *fiber.Ctx) error {
	id, err := parseWatchlistID(c)
	if err != nil {
		return err
	}
	if _, err := h.Service.Get(c.Context(), id); err != nil {
		return serviceError(c, err)
	}
	data, err := h.Service.ValidateSymbols(c.Context(), id)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Symbols validated", data, nil)
}
