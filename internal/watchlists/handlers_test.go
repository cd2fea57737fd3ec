package watchlists

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWatchlistApp(t *testing.T) (*fiber.App, *Service) {
	t.Helper()
	svc, _ := setupWatchlistTest(t, map[string]float64{"AAPL": 150, "MSFT": 300})
	h := &Handlers{Service: svc}

	app := fiber.New()
	api := app.Group("/api/v1/watchlists")
	api.Post("/", h.Create)
	api.Get("/:id", h.Get)
	api.Post("/:id/items", h.AddItem)
	api.Put("/:id/reorder", h.Reorder)
	api.Get("/:id/items/:symbol/news", h.ItemNews)
	return app, svc
}

func TestWatchlistHandlers_InvalidID(t *testing.T) {
	app, _ := setupWatchlistApp(t)

	req := httptest.NewRequest("GET", "/api/v1/watchlists/not-a-uuid", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWatchlistHandlers_CreateAddItemNews(t *testing.T) {
	app, _ := setupWatchlistApp(t)

	body, _ := json.Marshal(map[string]string{"name": "Tech"})
	req := httptest.NewRequest("POST", "/api/v1/watchlists/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			WatchlistID string `json:"watchlist_id"`
		} `json:"data"`
	}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &created))
	require.NotEmpty(t, created.Data.WatchlistID)

	body, _ = json.Marshal(map[string]string{"symbol": "AAPL"})
	req = httptest.NewRequest("POST", "/api/v1/watchlists/"+created.Data.WatchlistID+"/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/v1/watchlists/"+created.Data.WatchlistID+"/items/AAPL/news?limit=2", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var newsResp struct {
		Data struct {
			Articles []map[string]interface{} `json:"articles"`
			Fresh    bool                     `json:"fresh"`
		} `json:"data"`
	}
	raw, _ = io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &newsResp))
	assert.True(t, newsResp.Data.Fresh)
	assert.LessOrEqual(t, len(newsResp.Data.Articles), 2)
}

func TestWatchlistHandlers_ReorderValidation(t *testing.T) {
	app, svc := setupWatchlistApp(t)

	w, err := svc.Create(context.Background(), "Tech")
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), w.WatchlistID, "AAPL", nil)
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), w.WatchlistID, "MSFT", nil)
	require.NoError(t, err)

	// Incomplete symbol set rejected.
	body, _ := json.Marshal(map[string][]string{"symbol_order": {"MSFT"}})
	req := httptest.NewRequest("PUT", "/api/v1/watchlists/"+w.WatchlistID.String()+"/reorder", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body, _ = json.Marshal(map[string][]string{"symbol_order": {"MSFT", "AAPL"}})
	req = httptest.NewRequest("PUT", "/api/v1/watchlists/"+w.WatchlistID.String()+"/reorder", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
