// handlers/matchmaking.go
package handlers

import (
	"agent-arena-system/middleware"
	"agent-arena-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchmakingRoutes(app *fiber.App, matchmakingService *services.MatchmakingService) {
	app.Get("/matchmaking/queue", matchmakingService.QueueStatus)
	// Registered before the tournament routes so /matches/:id does not
	// swallow it.
	app.Get("/matches/recent", matchmakingService.RecentMatches)

	secured := app.Group("/", middleware.AgentContextMiddleware())

	secured.Post("/matchmaking/join", matchmakingService.Join)
	secured.Post("/matchmaking/leave", matchmakingService.Leave)
}
