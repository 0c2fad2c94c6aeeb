package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agent-arena-system/engine"
	"agent-arena-system/handlers"
	"agent-arena-system/middleware"
	"agent-arena-system/models"
	"agent-arena-system/services"
	"agent-arena-system/utils"
	"agent-arena-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "agent-arena-system",
	})

	// Only Gateway requests allowed, no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Agent-ID, X-Session-ID, X-Agent-Scopes",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitArchive(); err != nil {
		log.Printf("Standings archive disabled: %v", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.AgentProfile{},
		&models.Tournament{},
		&models.TournamentRegistration{},
		&models.TournamentResult{},
		&models.Match{},
		&models.MatchOutcome{},
		&models.QueueEntry{},
		&models.AgentEscrow{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ledgerURL := os.Getenv("LEDGER_SERVICE_URL")
	if ledgerURL == "" {
		log.Println("LEDGER_SERVICE_URL not set, settlement transfers disabled")
	}
	ledger := services.NewLedgerServiceClient(ledgerURL, os.Getenv("ARENA_SERVICE_TOKEN"))

	settlementService := services.NewSettlementService(ledger)
	bracketService := services.NewBracketService(db, settlementService)
	resolverService := services.NewResolverService(db, bracketService, engine.NewRPS(), settlementService)
	tournamentService := services.NewTournamentService(db, bracketService, resolverService)
	matchmakingService := services.NewMatchmakingService(db)
	matchmakingService.Resolver = resolverService
	agentService := services.NewAgentService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.PollExpiredQueueEntries(ctx, matchmakingService, 30*time.Second)

	sched := bracketService.StartProgressionScheduler()
	defer func() { _ = sched.Shutdown() }()

	// Matchmaking first: /matches/recent must register before /matches/:id.
	handlers.SetupMatchmakingRoutes(app, matchmakingService)
	handlers.SetupTournamentRoutes(app, tournamentService)
	handlers.SetupAgentRoutes(app, agentService)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server running on http://localhost:%s", port)
	log.Println("Queue cleanup running (every 30s)")
	log.Println("Bracket progression sweep running (every 1m)")
	log.Println("GatewayAuthMiddleware enforced globally, all requests must come from Gateway")
	log.Printf("CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
