package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"agent-arena-system/models"
)

func newAgentApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc := NewAgentService(db)

	app := fiber.New()
	app.Get("/agents/leaderboard", svc.Leaderboard)
	app.Get("/agents/:id", svc.Get)
	app.Post("/agents", svc.Upsert)
	return app, db
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestStrategyDisplayConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := strategyDisplay("berzerker strategy"); got != "Berzerker Strategy" {
					t.Errorf("strategyDisplay = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestAgentReadHandlersConcurrent(t *testing.T) {
	app, db := newAgentApp(t)
	for i := 1; i <= 4; i++ {
		seedAgent(t, db, fmt.Sprintf("agent-%02d", i), 1000)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			path := fmt.Sprintf("/agents/agent-%02d", n%4+1)
			if n%2 == 0 {
				path = "/agents/leaderboard"
			}
			for j := 0; j < 20; j++ {
				req := httptest.NewRequest("GET", path, nil)
				resp, err := app.Test(req, -1)
				if err != nil || resp.StatusCode != 200 {
					t.Errorf("GET %s: status %v err %v", path, resp.StatusCode, err)
					return
				}
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()
}

func TestUpsertPreservesStrategyWhenOmitted(t *testing.T) {
	app, db := newAgentApp(t)

	resp := postJSON(t, app, "/agents", fiber.Map{
		"id": "alpha", "display_name": "Alpha", "strategy": "merchant",
	})
	require.Equal(t, 201, resp.StatusCode)
	resp.Body.Close()

	// Re-upsert without a strategy field. Display name moves, strategy stays.
	resp = postJSON(t, app, "/agents", fiber.Map{
		"id": "alpha", "display_name": "Alpha Prime",
	})
	require.Equal(t, 201, resp.StatusCode)
	resp.Body.Close()

	var saved models.AgentProfile
	require.NoError(t, db.First(&saved, "id = ?", "alpha").Error)
	assert.Equal(t, "merchant", saved.Strategy)
	assert.Equal(t, "Alpha Prime", saved.DisplayName)
}

func TestUpsertRejectsUnknownStrategy(t *testing.T) {
	app, _ := newAgentApp(t)

	resp := postJSON(t, app, "/agents", fiber.Map{
		"id": "alpha", "strategy": "rock_only",
	})
	require.Equal(t, 400, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, string(body), "unknown strategy")
}

func TestUpsertRendersStrategyDisplay(t *testing.T) {
	app, db := newAgentApp(t)
	seedAgent(t, db, "alpha", 1000)

	req := httptest.NewRequest("GET", "/agents/alpha", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload struct {
		StrategyDisplay string `json:"strategy_display"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "Berzerker", payload.StrategyDisplay)
}
