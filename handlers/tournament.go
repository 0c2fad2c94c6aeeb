// handlers/tournament.go
package handlers

import (
	"agent-arena-system/middleware"
	"agent-arena-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	// Public reads, still behind Gateway auth
	app.Get("/tournaments", tournamentService.List)
	app.Get("/tournaments/:id", tournamentService.Get)
	app.Get("/tournaments/:id/bracket", tournamentService.GetBracket)
	app.Get("/tournaments/:id/results", tournamentService.GetResults)
	app.Get("/matches/:id", tournamentService.GetMatch)

	// Mutations require agent context from the Gateway
	secured := app.Group("/", middleware.AgentContextMiddleware())

	secured.Post("/tournaments", tournamentService.Create)
	secured.Post("/tournaments/:id/register", tournamentService.Register)
	secured.Post("/tournaments/:id/start", tournamentService.Start)
	secured.Post("/matches/:id/result", tournamentService.SubmitMatchResult)
}
