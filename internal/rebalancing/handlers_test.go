package rebalancing

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRebalancingApp(t *testing.T, seed []seedHolding) (*fiber.App, uuid.UUID) {
	t.Helper()
	engine, id, _ := setupEngineTest(t, seed)
	h := &Handlers{Engine: engine}

	app := fiber.New()
	api := app.Group("/api/v1/rebalancing")
	api.Post("/:id/analyze", h.Analyze)
	api.Get("/:id/summary", h.Summary)
	api.Get("/:id/feasibility", h.Feasibility)
	api.Post("/:id/execute", h.Execute)
	return app, id
}

func TestRebalancingHandlers_InvalidID(t *testing.T) {
	app, _ := setupRebalancingApp(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/rebalancing/not-a-uuid/analyze", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRebalancingHandlers_AnalyzeEmptyPortfolio(t *testing.T) {
	app, id := setupRebalancingApp(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/rebalancing/"+id.String()+"/analyze", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRebalancingHandlers_AnalyzeAndExecuteDryRun(t *testing.T) {
	app, id := setupRebalancingApp(t, unbalancedSeed())

	req := httptest.NewRequest("POST", "/api/v1/rebalancing/"+id.String()+"/analyze", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var analyzed struct {
		Data Analysis `json:"data"`
	}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &analyzed))
	assert.False(t, analyzed.Data.IsBalanced)
	require.NotEmpty(t, analyzed.Data.Transactions)

	// Execute without dry_run flag defaults to a dry run.
	body, _ := json.Marshal(map[string]interface{}{"transactions": analyzed.Data.Transactions})
	req = httptest.NewRequest("POST", "/api/v1/rebalancing/"+id.String()+"/execute", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var executed struct {
		Data ExecutionResult `json:"data"`
	}
	raw, _ = io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &executed))
	assert.False(t, executed.Data.Executed)
	assert.True(t, executed.Data.Success)
}
