package services

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agent-arena-system/engine"
	"agent-arena-system/models"
)

// strategyDisplay renders a strategy tag for presentation. The caser is built
// per call because cases.Caser carries transformer state and is not safe for
// concurrent use across handlers.
func strategyDisplay(strategy string) string {
	return cases.Title(language.English).String(strategy)
}

// AgentService manages agent competitive profiles.
type AgentService struct {
	DB *gorm.DB
}

func NewAgentService(db *gorm.DB) *AgentService {
	return &AgentService{DB: db}
}

type upsertAgentRequest struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Strategy    string   `json:"strategy"`
	Balance     *float64 `json:"balance,omitempty"`
}

// Upsert handles POST /agents: registers a new agent profile or refreshes an
// existing one. Ratings and play statistics are never writable from here.
func (s *AgentService) Upsert(c *fiber.Ctx) error {
	var req upsertAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	strategy, ok := engine.NormalizeStrategy(req.Strategy)
	if req.Strategy != "" && !ok {
		return c.Status(400).JSON(fiber.Map{"error": "unknown strategy", "known": engine.KnownStrategies})
	}
	if req.DisplayName == "" {
		req.DisplayName = "Agent " + req.ID[:8]
	}

	profile := models.AgentProfile{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Strategy:    strategy,
	}
	if req.Balance != nil && *req.Balance >= 0 {
		profile.Balance = *req.Balance
	}

	// Strategy only moves to a value the caller actually sent; an omitted
	// field must not reset an existing agent back to the default.
	updateCols := []string{"display_name", "updated_at"}
	if req.Strategy != "" {
		updateCols = append(updateCols, "strategy")
	}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updateCols),
	}).Create(&profile).Error
	if err != nil {
		log.Printf("[agent] upsert failed for %s: %v", req.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to save agent"})
	}

	var saved models.AgentProfile
	if err := s.DB.First(&saved, "id = ?", req.ID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to read agent"})
	}
	return c.Status(201).JSON(saved)
}

// Get handles GET /agents/:id.
func (s *AgentService) Get(c *fiber.Ctx) error {
	var profile models.AgentProfile
	if err := s.DB.First(&profile, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "agent not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{
		"agent":            profile,
		"strategy_display": strategyDisplay(profile.Strategy),
	})
}

// leaderboardRow flattens a profile for the rating table.
type leaderboardRow struct {
	Rank        int     `json:"rank"`
	AgentID     string  `json:"agent_id"`
	DisplayName string  `json:"display_name"`
	Strategy    string  `json:"strategy"`
	Rating      int     `json:"rating"`
	GamesPlayed int     `json:"games_played"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
	WinRate     float64 `json:"win_rate"`
	Earnings    float64 `json:"earnings"`
}

// Leaderboard handles GET /agents/leaderboard: top agents by rating.
func (s *AgentService) Leaderboard(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	var profiles []models.AgentProfile
	if err := s.DB.Where("is_banned = ?", false).
		Order("rating DESC, wins DESC").Limit(limit).Find(&profiles).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to read leaderboard"})
	}

	rows := make([]leaderboardRow, 0, len(profiles))
	for i, p := range profiles {
		row := leaderboardRow{
			Rank:        i + 1,
			AgentID:     p.ID,
			DisplayName: p.DisplayName,
			Strategy:    strategyDisplay(p.Strategy),
			Rating:      p.Rating,
			GamesPlayed: p.GamesPlayed,
			Wins:        p.Wins,
			Losses:      p.Losses,
			Draws:       p.Draws,
			Earnings:    p.Earnings,
		}
		if p.GamesPlayed > 0 {
			row.WinRate = float64(p.Wins) / float64(p.GamesPlayed)
		}
		rows = append(rows, row)
	}
	return c.JSON(fiber.Map{"leaderboard": rows, "generated_at": time.Now()})
}

// History handles GET /agents/:id/matches: the agent's recent matches.
func (s *AgentService) History(c *fiber.Ctx) error {
	agentID := c.Params("id")
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var matches []models.Match
	if err := s.DB.Where("player1_id = ? OR player2_id = ?", agentID, agentID).
		Order("updated_at DESC").Limit(limit).Find(&matches).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to read matches"})
	}
	return c.JSON(fiber.Map{"agent_id": agentID, "matches": matches, "count": len(matches)})
}
