package rebalancing

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"stockfolio-backend/internal/pkg/response"
)

// Handlers bundles rebalancing handlers.
type Handlers struct {
	Engine *Engine
}

func parsePortfolioID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, response.Error(c, "Invalid portfolio ID format (must be a valid UUID)", 400, nil)
	}
	return id, nil
}

func engineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrPortfolioNotFound):
		return response.Error(c, err.Error(), 404, nil)
	case errors.Is(err, ErrNoHoldings), errors.Is(err, ErrNoMarketValue):
		return response.Error(c, err.Error(), 422, nil)
	default:
		return response.Error(c, "Internal Server Error", 500, nil)
	}
}

type analyzeRequest struct {
	Tolerance *float64 `json:"tolerance"`
	CostRate  *float64 `json:"cost_rate"`
}

// Analyze POST /api/v1/rebalancing/:id/analyze
func (h *Handlers) Analyze(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	var req analyzeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.Error(c, "Invalid request body", 400, nil)
		}
	}
	analysis, err := h.Engine.Analyze(c.Context(), id, &AnalyzeOptions{Tolerance: req.Tolerance, CostRate: req.CostRate})
	if err != nil {
		return engineError(c, err)
	}
	return response.Success(c, "Rebalancing analysis completed", analysis, nil)
}

// Summary GET /api/v1/rebalancing/:id/summary
func (h *Handlers) Summary(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	summary, err := h.Engine.Summarize(c.Context(), id)
	if err != nil {
		return engineError(c, err)
	}
	return response.Success(c, "Rebalancing summary computed", summary, nil)
}

// Feasibility GET /api/v1/rebalancing/:id/feasibility
func (h *Handlers) Feasibility(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	result, err := h.Engine.Feasibility(c.Context(), id)
	if err != nil {
		return engineError(c, err)
	}
	return response.Success(c, "Feasibility check completed", result, nil)
}

type executeRequest struct {
	Transactions []Transaction `json:"transactions"`
	DryRun       *bool         `json:"dry_run"`
}

// Execute POST /api/v1/rebalancing/:id/execute
func (h *Handlers) Execute(c *fiber.Ctx) error {
	id, err := parsePortfolioID(c)
	if err != nil {
		return err
	}
	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	if len(req.Transactions) == 0 {
		return response.Error(c, "Transaction list is required", 400, nil)
	}

	// Dry run is the safe default; live execution must be explicit.
	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	result, err := h.Engine.Execute(c.Context(), id, req.Transactions, dryRun)
	if err != nil {
		return engineError(c, err)
	}
	return response.Success(c, result.Message, result, nil)
}
