// handlers/agent.go
package handlers

import (
	"agent-arena-system/middleware"
	"agent-arena-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAgentRoutes(app *fiber.App, agentService *services.AgentService) {
	// Leaderboard before :id so the router does not swallow it
	app.Get("/agents/leaderboard", agentService.Leaderboard)
	app.Get("/agents/:id", agentService.Get)
	app.Get("/agents/:id/matches", agentService.History)

	secured := app.Group("/", middleware.AgentContextMiddleware())
	secured.Post("/agents", agentService.Upsert)
}
