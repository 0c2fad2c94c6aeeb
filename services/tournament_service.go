package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"agent-arena-system/models"
)

// validSizes are the accepted max_participants values for a new tournament.
// The bracket itself tolerates any field size of at least two; this only
// constrains what can be requested at creation.
var validSizes = map[int]bool{8: true, 16: true, 32: true, 64: true, 128: true}

// TournamentService exposes the tournament HTTP surface: creation,
// registration, start, bracket and results views. Bracket math lives in
// BracketService, match resolution in ResolverService.
type TournamentService struct {
	DB       *gorm.DB
	Bracket  *BracketService
	Resolver *ResolverService
}

func NewTournamentService(db *gorm.DB, bracket *BracketService, resolver *ResolverService) *TournamentService {
	return &TournamentService{DB: db, Bracket: bracket, Resolver: resolver}
}

type createTournamentRequest struct {
	Name            string  `json:"name"`
	GameType        string  `json:"game_type"`
	MaxParticipants int     `json:"max_participants"`
	EntryFee        float64 `json:"entry_fee"`
	PrizePool       float64 `json:"prize_pool"`
}

// Create handles POST /tournaments.
func (s *TournamentService) Create(c *fiber.Ctx) error {
	var req createTournamentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	if !validSizes[req.MaxParticipants] {
		return c.Status(400).JSON(fiber.Map{"error": "max_participants must be one of 8, 16, 32, 64, 128"})
	}
	if req.EntryFee < 0 || req.PrizePool < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "entry_fee and prize_pool must not be negative"})
	}
	if req.GameType == "" {
		req.GameType = "rps"
	}

	tournament := models.Tournament{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Slug:            slug.Make(req.Name),
		GameType:        req.GameType,
		Status:          models.TournamentStatusOpen,
		MaxParticipants: req.MaxParticipants,
		EntryFee:        req.EntryFee,
		PrizePool:       req.PrizePool,
	}
	if err := s.DB.Create(&tournament).Error; err != nil {
		log.Printf("[tournament] create failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create tournament"})
	}

	log.Printf("[tournament] created %s (%s), cap %d, entry fee %.2f",
		tournament.ID, tournament.Slug, tournament.MaxParticipants, tournament.EntryFee)
	return c.Status(201).JSON(tournament)
}

// List handles GET /tournaments.
func (s *TournamentService) List(c *fiber.Ctx) error {
	q := s.DB.Model(&models.Tournament{})
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var tournaments []models.Tournament
	if err := q.Order("created_at DESC").Find(&tournaments).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list tournaments"})
	}
	return c.JSON(fiber.Map{"tournaments": tournaments, "count": len(tournaments)})
}

// Get handles GET /tournaments/:id.
func (s *TournamentService) Get(c *fiber.Ctx) error {
	var tournament models.Tournament
	if err := s.DB.Preload("Registrations").First(&tournament, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(tournament)
}

type registerRequest struct {
	AgentID string `json:"agent_id"`
}

// Register handles POST /tournaments/:id/register. Seeds are assigned by
// registration order. The entry fee is debited from the agent's balance
// mirror and accrues to the prize pool.
func (s *TournamentService) Register(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.AgentID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "agent_id is required"})
	}

	reg, err := s.register(tournamentID, req.AgentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTournamentNotFound), errors.Is(err, ErrAgentNotFound):
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrRegistrationClosed):
			return c.Status(403).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrAgentBanned), errors.Is(err, ErrInsufficientBalance):
			return c.Status(403).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrTournamentFull), errors.Is(err, ErrAlreadyRegistered):
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("[tournament] register failed for %s in %s: %v", req.AgentID, tournamentID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to register"})
		}
	}
	return c.Status(201).JSON(reg)
}

func (s *TournamentService) register(tournamentID, agentID string) (*models.TournamentRegistration, error) {
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if tournament.Status != models.TournamentStatusOpen && tournament.Status != models.TournamentStatusPending {
		return nil, ErrRegistrationClosed
	}

	var profile models.AgentProfile
	if err := s.DB.First(&profile, "id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	if profile.IsBanned {
		return nil, ErrAgentBanned
	}
	if profile.Balance < tournament.EntryFee {
		return nil, ErrInsufficientBalance
	}

	var count int64
	if err := s.DB.Model(&models.TournamentRegistration{}).
		Where("tournament_id = ? AND agent_id = ?", tournamentID, agentID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadyRegistered
	}

	// Serialize seed assignment per tournament; idx_tournament_agent is the
	// cross-process backstop against double registration.
	lock := s.Bracket.tournamentLock(tournamentID)
	lock.Lock()
	defer lock.Unlock()

	var reg models.TournamentRegistration
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Tournament{}).
			Where("id = ? AND current_participants < max_participants AND status IN ?",
				tournamentID, []string{models.TournamentStatusPending, models.TournamentStatusOpen}).
			Updates(map[string]interface{}{
				"current_participants": gorm.Expr("current_participants + 1"),
				"prize_pool":           gorm.Expr("prize_pool + ?", tournament.EntryFee),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTournamentFull
		}

		var seeded models.Tournament
		if err := tx.First(&seeded, "id = ?", tournamentID).Error; err != nil {
			return err
		}

		reg = models.TournamentRegistration{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			AgentID:      agentID,
			SeedNumber:   seeded.CurrentParticipants,
			EntryFeePaid: tournament.EntryFee,
		}
		if err := tx.Create(&reg).Error; err != nil {
			return err
		}

		if tournament.EntryFee > 0 {
			fee := tx.Model(&models.AgentProfile{}).
				Where("id = ? AND balance >= ?", agentID, tournament.EntryFee).
				Update("balance", gorm.Expr("balance - ?", tournament.EntryFee))
			if fee.Error != nil {
				return fee.Error
			}
			if fee.RowsAffected == 0 {
				return ErrInsufficientBalance
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[tournament] agent %s registered for %s as seed %d",
		agentID, tournamentID, reg.SeedNumber)
	return &reg, nil
}

// Start handles POST /tournaments/:id/start: generates the bracket and flips
// the tournament to active.
func (s *TournamentService) Start(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	matches, err := s.Bracket.GenerateBracket(tournamentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTournamentNotFound):
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrInsufficientParticipants):
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrNotStartable):
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("[tournament] start failed for %s: %v", tournamentID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to start tournament"})
		}
	}
	return c.JSON(fiber.Map{
		"tournament_id": tournamentID,
		"matches":       matches,
		"total_rounds":  matches[0].RoundNumber,
	})
}

// BracketRound is one round of the bracket view, newest (highest number)
// first so the first played round leads.
type BracketRound struct {
	RoundNumber int            `json:"round_number"`
	RoundName   string         `json:"round_name"`
	Matches     []models.Match `json:"matches"`
}

// GetBracket handles GET /tournaments/:id/bracket.
func (s *TournamentService) GetBracket(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	var matches []models.Match
	if err := s.DB.Where("tournament_id = ?", tournamentID).
		Order("round_number DESC, bracket_number ASC").Find(&matches).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	rounds := []BracketRound{}
	for _, m := range matches {
		if len(rounds) == 0 || rounds[len(rounds)-1].RoundNumber != m.RoundNumber {
			rounds = append(rounds, BracketRound{
				RoundNumber: m.RoundNumber,
				RoundName:   RoundName(m.RoundNumber, tournament.TotalRounds, tournament.CurrentParticipants),
			})
		}
		rounds[len(rounds)-1].Matches = append(rounds[len(rounds)-1].Matches, m)
	}

	return c.JSON(fiber.Map{
		"tournament_id": tournamentID,
		"status":        tournament.Status,
		"total_rounds":  tournament.TotalRounds,
		"rounds":        rounds,
	})
}

// GetResults handles GET /tournaments/:id/results. Completed tournaments
// serve the persisted standings; running ones serve a live projection.
func (s *TournamentService) GetResults(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	if tournament.Status == models.TournamentStatusCompleted {
		var results []models.TournamentResult
		if err := s.DB.Where("tournament_id = ?", tournamentID).
			Order("rank ASC").Find(&results).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "database error"})
		}
		return c.JSON(fiber.Map{
			"tournament_id": tournamentID,
			"status":        tournament.Status,
			"prize_pool":    tournament.PrizePool,
			"final":         true,
			"results":       results,
		})
	}

	standings, err := s.Bracket.ComputeResults(tournamentID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to compute standings"})
	}
	return c.JSON(fiber.Map{
		"tournament_id": tournamentID,
		"status":        tournament.Status,
		"prize_pool":    tournament.PrizePool,
		"final":         false,
		"results":       standings,
	})
}

// SubmitMatchResult handles POST /matches/:id/result: runs the simulator and
// commits the outcome. Re-submitting for a completed match returns the
// committed outcome unchanged.
func (s *TournamentService) SubmitMatchResult(c *fiber.Ctx) error {
	matchID := c.Params("id")
	out, err := s.Resolver.Resolve(c.Context(), matchID)
	if err != nil {
		switch {
		case errors.Is(err, ErrMatchNotFound):
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrMatchNotReady), errors.Is(err, ErrAgentNotFound):
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrSimulatorFailed):
			return c.Status(503).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("[tournament] resolve failed for match %s: %v", matchID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to resolve match"})
		}
	}
	return c.JSON(out)
}

// GetMatch handles GET /matches/:id.
func (s *TournamentService) GetMatch(c *fiber.Ctx) error {
	matchID := c.Params("id")
	var match models.Match
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "match not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	resp := fiber.Map{"match": match}
	var outcome models.MatchOutcome
	if err := s.DB.First(&outcome, "match_id = ?", matchID).Error; err == nil {
		resp["outcome"] = outcome
	}
	return c.JSON(resp)
}
