package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	mrand "math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"agent-arena-system/engine"
	"agent-arena-system/models"
)

// simulateTimeout bounds a single simulation run. The simulator is in-process
// and fast; hitting this means something is wrong, not slow.
const simulateTimeout = 10 * time.Second

// DrawPolicy turns a drawn match into a single winner. Single elimination
// cannot carry a draw forward, so some policy always runs.
type DrawPolicy interface {
	ResolveDraw(player1ID, player2ID string) (winnerID string)
	Name() string
}

// CoinFlip resolves a draw by a fair random pick between the two players.
type CoinFlip struct{}

func (CoinFlip) ResolveDraw(player1ID, player2ID string) string {
	if mrand.Intn(2) == 0 {
		return player1ID
	}
	return player2ID
}

func (CoinFlip) Name() string { return "coin_flip" }

// MatchSettler is notified after a match outcome is committed so the external
// ledger can move the pot. Fire and forget from the resolver's point of view.
type MatchSettler interface {
	SettleMatch(match *models.Match, outcome *models.MatchOutcome, pot float64)
}

// ResolverService drives a match from pending to completed: runs the
// simulator, applies the draw policy, commits the outcome with rating and
// stat updates, releases escrow and advances tournament brackets.
type ResolverService struct {
	DB         *gorm.DB
	Bracket    *BracketService
	Simulator  engine.Simulator
	DrawPolicy DrawPolicy
	Settler    MatchSettler
}

func NewResolverService(db *gorm.DB, bracket *BracketService, sim engine.Simulator, settler MatchSettler) *ResolverService {
	return &ResolverService{
		DB:         db,
		Bracket:    bracket,
		Simulator:  sim,
		DrawPolicy: CoinFlip{},
		Settler:    settler,
	}
}

// ResolveOutput is what a resolution attempt produced. AlreadyCompleted means
// the match had a committed outcome before this call; the existing outcome is
// returned unchanged.
type ResolveOutput struct {
	Match            *models.Match        `json:"match"`
	Outcome          *models.MatchOutcome `json:"outcome,omitempty"`
	Advance          *AdvanceResult       `json:"advance,omitempty"`
	AlreadyCompleted bool                 `json:"already_completed"`
}

// Resolve completes the given match exactly once. Re-invocation for a
// completed match returns the committed outcome without side effects.
// A simulator failure leaves the match pending and is safe to retry.
func (s *ResolverService) Resolve(ctx context.Context, matchID string) (*ResolveOutput, error) {
	var match models.Match
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	switch match.Status {
	case models.MatchStatusCompleted:
		return s.completedOutput(&match)
	case models.MatchStatusBye:
		return s.resolveBye(&match)
	}

	if match.Player1ID == nil || match.Player2ID == nil {
		return nil, ErrMatchNotReady
	}

	p1, err := s.loadProfile(*match.Player1ID)
	if err != nil {
		return nil, err
	}
	p2, err := s.loadProfile(*match.Player2ID)
	if err != nil {
		return nil, err
	}

	simCtx, cancel := context.WithTimeout(ctx, simulateTimeout)
	defer cancel()
	result, err := s.Simulator.Simulate(simCtx, match.ID,
		engine.Profile{ID: p1.ID, Rating: p1.Rating, Strategy: p1.Strategy, Stake: match.StakeAmount},
		engine.Profile{ID: p2.ID, Rating: p2.Rating, Strategy: p2.Strategy, Stake: match.StakeAmount},
		match.BestOf)
	if err != nil {
		log.Printf("[resolver] match %s: simulation failed: %v", matchID, err)
		return nil, fmt.Errorf("%w: %v", ErrSimulatorFailed, err)
	}

	winnerID := result.WinnerID
	drawResolvedBy := ""
	if result.IsDraw {
		winnerID = s.DrawPolicy.ResolveDraw(p1.ID, p2.ID)
		drawResolvedBy = s.DrawPolicy.Name()
		log.Printf("[resolver] match %s: draw after %d rounds, %s awarded to %s",
			matchID, result.RoundsPlayed, drawResolvedBy, winnerID)
	}

	roundData, _ := json.Marshal(result.Rounds)
	outcome := models.MatchOutcome{
		ID:             uuid.NewString(),
		MatchID:        match.ID,
		WinnerID:       winnerID,
		IsDraw:         result.IsDraw,
		DrawResolvedBy: drawResolvedBy,
		Player1Score:   result.P1Score,
		Player2Score:   result.P2Score,
		RoundsPlayed:   result.RoundsPlayed,
		DurationMs:     result.DurationMs,
		RoundData:      string(roundData),
		ServerSeedHash: result.ServerSeedHash,
		ServerSeed:     result.ServerSeed,
		ClientSeed1:    result.ClientSeed1,
		ClientSeed2:    result.ClientSeed2,
		EloChangeP1:    result.P1EloChange,
		EloChangeP2:    result.P2EloChange,
	}

	committed := false
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// CAS guard: only the writer that flips pending to completed owns
		// the rest of the commit.
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status = ?", match.ID, models.MatchStatusPending).
			Updates(map[string]interface{}{
				"status":    models.MatchStatusCompleted,
				"winner_id": winnerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		committed = true

		if err := tx.Create(&outcome).Error; err != nil {
			return err
		}
		if err := applyProfileStats(tx, p1, result.P1EloChange, winnerID, result.IsDraw); err != nil {
			return err
		}
		if err := applyProfileStats(tx, p2, result.P2EloChange, winnerID, result.IsDraw); err != nil {
			return err
		}
		// Tournament matches carry no per-match pot; prize shares come out
		// of the pool when the final completes.
		if match.StakeAmount > 0 && !match.IsTournament() {
			if err := s.payoutAndRelease(tx, &match, winnerID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !committed {
		// Lost the race to a concurrent resolver.
		if err := s.DB.First(&match, "id = ?", match.ID).Error; err != nil {
			return nil, err
		}
		return s.completedOutput(&match)
	}

	match.Status = models.MatchStatusCompleted
	match.WinnerID = &winnerID
	log.Printf("[resolver] match %s resolved: winner %s (%d-%d, %d rounds)",
		match.ID, winnerID, result.P1Score, result.P2Score, result.RoundsPlayed)

	if s.Settler != nil && match.StakeAmount > 0 && !match.IsTournament() {
		s.Settler.SettleMatch(&match, &outcome, match.StakeAmount*2)
	}

	out := &ResolveOutput{Match: &match, Outcome: &outcome}
	if match.IsTournament() {
		adv, err := s.Bracket.AdvanceWinner(&match, winnerID)
		if err != nil {
			// The outcome is committed; the scheduler sweep re-drives
			// advancement for matches like this one.
			log.Printf("[resolver] match %s: advancement failed: %v", match.ID, err)
		} else {
			out.Advance = adv
		}
	}
	return out, nil
}

// resolveBye re-drives advancement for a bye whose winner never reached the
// next round, without minting an outcome.
func (s *ResolverService) resolveBye(match *models.Match) (*ResolveOutput, error) {
	if match.WinnerID == nil || !match.IsTournament() {
		return nil, ErrMatchNotReady
	}
	adv, err := s.Bracket.AdvanceWinner(match, *match.WinnerID)
	if err != nil {
		return nil, err
	}
	return &ResolveOutput{Match: match, Advance: adv, AlreadyCompleted: true}, nil
}

func (s *ResolverService) completedOutput(match *models.Match) (*ResolveOutput, error) {
	var outcome models.MatchOutcome
	out := &ResolveOutput{Match: match, AlreadyCompleted: true}
	err := s.DB.First(&outcome, "match_id = ?", match.ID).Error
	if err == nil {
		out.Outcome = &outcome
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return out, nil
}

func (s *ResolverService) loadProfile(agentID string) (*models.AgentProfile, error) {
	var profile models.AgentProfile
	if err := s.DB.First(&profile, "id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
		}
		return nil, err
	}
	return &profile, nil
}

func applyProfileStats(tx *gorm.DB, profile *models.AgentProfile, eloChange int, winnerID string, isDraw bool) error {
	updates := map[string]interface{}{
		"rating":       engine.ClampRating(profile.Rating + eloChange),
		"games_played": gorm.Expr("games_played + 1"),
		"last_seen":    time.Now(),
	}
	switch {
	case isDraw:
		updates["draws"] = gorm.Expr("draws + 1")
	case winnerID == profile.ID:
		updates["wins"] = gorm.Expr("wins + 1")
	default:
		updates["losses"] = gorm.Expr("losses + 1")
	}
	return tx.Model(&models.AgentProfile{}).Where("id = ?", profile.ID).Updates(updates).Error
}

// payoutAndRelease credits the pot to the winner's local balance mirror and
// flips the match escrows to released. The external ledger is told separately
// by the settler.
func (s *ResolverService) payoutAndRelease(tx *gorm.DB, match *models.Match, winnerID string) error {
	pot := match.StakeAmount * 2
	if err := tx.Model(&models.AgentProfile{}).Where("id = ?", winnerID).
		Updates(map[string]interface{}{
			"balance":  gorm.Expr("balance + ?", pot),
			"earnings": gorm.Expr("earnings + ?", match.StakeAmount),
		}).Error; err != nil {
		return err
	}
	now := time.Now()
	return tx.Model(&models.AgentEscrow{}).
		Where("match_id = ? AND status = ?", match.ID, models.EscrowStatusLocked).
		Updates(map[string]interface{}{
			"status":      models.EscrowStatusReleased,
			"released_at": now,
		}).Error
}
