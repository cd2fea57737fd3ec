package portfolios

import (
	"bytes"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"stockfolio-backend/internal/pkg/response"
)

// Handlers bundles portfolio handlers.
type Handlers struct {
	Service *Service
}

func parsePortfolioID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, response.Error(c, "Invalid portfolio ID format (must be a valid UUID)", 400, nil)
	}
	return id, nil
}

func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrPortfolioNotFound), errors.Is(err, ErrHoldingNotFound):
		return response.Error(c, err.Error(), 404, nil)
	case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrDuplicateHolding):
		return response.Error(c, err.Error(), 409, nil)
	default:
		return response.Error(c, err.Error(), 400, nil)
	}
}

// List GET /api/v1/portfolios
func (h *Handlers) List(c *fiber.Ctx) error {
	data, err := h.Service.List(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Portfolios fetched successfully", data, nil)
}

type portfolioRequest struct {
	Name string `json:"name"`
}

// Create POST /api/v1/portfolios
func (h *Handlers) Create(c *fiber.Ctx) error {
	var req portfolioRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	data, err := h.Service.Create(c.Context(), req.Name)
	if err != nil {
		return serviceError(c, err)
	}
	return response.SuccessCreated(c, "Portfolio created successfully", data, nil)
}

// Get GET /api/v1/portfolios/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	data, err := h.Service.Get(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Portfolio fetched successfully", data, nil)
}

// Update PUT /api/v1/portfolios/:id
func (h *Handlers) Update(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	var req portfolioRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	data, err := h.Service.Update(c.Context(), id, req.Name)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Portfolio updated successfully", data, nil)
}

// Delete DELETE /api/v1/portfolios/:id
func (h *Handlers) Delete(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	if err := h.Service.Delete(c.Context(), id); err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Portfolio deleted successfully", nil, nil)
}

// Holdings GET /api/v1/portfolios/:id/holdings
func (h *Handlers) Holdings(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	if _, err := h.Service.Get(c.Context(), id); err != nil {
		return serviceError(c, err)
	}
	data, err := h.Service.Holdings(c.Context(), id)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Holdings fetched successfully", data, nil)
}

// AddHolding POST /api/v1/portfolios/:id/holdings
func (h *Handlers) AddHolding(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	var req HoldingInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	data, err := h.Service.AddHolding(c.Context(), id, req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.SuccessCreated(c, "Holding added successfully", data, nil)
}

type updateHoldingRequest struct {
	Shares           float64 `json:"shares"`
	TargetAllocation float64 `json:"target_allocation"`
}

// UpdateHolding PUT /api/v1/portfolios/:id/holdings/:symbol
func (h *Handlers) UpdateHolding(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	var req updateHoldingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	data, err := h.Service.UpdateHolding(c.Context(), id, c.Params("symbol"), req.Shares, req.TargetAllocation)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Holding updated successfully", data, nil)
}

// DeleteHolding DELETE /api/v1/portfolios/:id/holdings/:symbol
func (h *Handlers) DeleteHolding(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	if err := h.Service.DeleteHolding(c.Context(), id, c.Params("symbol")); err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Holding deleted successfully", nil, nil)
}

// RefreshPrices POST /api/v1/portfolios/:id/refresh-prices
func (h *Handlers) RefreshPrices(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	data, err := h.Service.RefreshPrices(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, data.Message, data, nil)
}

// RefreshHoldingPrice POST /api/v1/portfolios/:id/holdings/:symbol/refresh-price
func (h *Handlers) RefreshHoldingPrice(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	price, err := h.Service.RefreshHoldingPrice(c.Context(), id, c.Params("symbol"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Price refreshed successfully", fiber.Map{"price": price}, nil)
}

// Valuation GET /api/v1/portfolios/:id/valuation
func (h *Handlers) Valuation(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	data, err := h.Service.Valuation(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Success(c, "Valuation computed successfully", data, nil)
}

// Summary GET /api/v1/portfolios/:id/summary
func (h *Handlers) Summary(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
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

// ValidateSymbols POST /api/v1/portfolios/:id/validate-symbols
func (h *Handlers) ValidateSymbols(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
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

// ImportCSV POST /api/v1/portfolios/:id/import-csv
func (h *Handlers) ImportCSV(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}

	body := c.Body()
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return response.Error(c, "Failed to read uploaded file", 400, nil)
		}
		defer f.Close()
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(f); err != nil {
			return response.Error(c, "Failed to read uploaded file", 400, nil)
		}
		body = buf.Bytes()
	}
	if len(body) == 0 {
		return response.Error(c, "CSV content is required", 400, nil)
	}

	data, err := h.Service.ImportCSV(c.Context(), id, bytes.NewReader(body))
	if err != nil {
		return serviceError(c, err)
	}
	if !data.Success {
		return response.Error(c, "CSV validation failed", 400, data)
	}
	return response.Success(c, "CSV import processed", data, nil)
}
