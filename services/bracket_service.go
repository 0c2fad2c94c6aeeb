package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"agent-arena-system/models"
)

// BracketService owns single-elimination bracket generation, winner
// advancement and final standings. Round numbers count DOWN: the first
// round is ceil(log2(N)) and round 1 is the final.
type BracketService struct {
	DB      *gorm.DB
	Settler TournamentSettler

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// TournamentSettler is notified when a tournament completes so prize
// shares can be pushed to the external ledger. Settlement failures are
// logged, never propagated: the bracket outcome is already committed.
type TournamentSettler interface {
	SettleTournament(tournamentID string, prizePool float64, results []models.TournamentResult)
}

func NewBracketService(db *gorm.DB, settler TournamentSettler) *BracketService {
	return &BracketService{
		DB:      db,
		Settler: settler,
		locks:   map[string]*sync.Mutex{},
	}
}

// tournamentLock serializes advancement writes per tournament. The unique
// index idx_bracket_cell is the cross-process backstop.
func (s *BracketService) tournamentLock(tournamentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tournamentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tournamentID] = l
	}
	return l
}

// AdvanceResult reports what a recorded winner did to the bracket.
type AdvanceResult struct {
	WinnerID           string  `json:"winner_id"`
	TournamentComplete bool    `json:"tournament_complete"`
	NextMatchID        *string `json:"next_match_id,omitempty"`
	NextRoundNumber    int     `json:"next_round_number,omitempty"`
	NextBracketNumber  int     `json:"next_bracket_number,omitempty"`
}

// Standing is a live standings row, recomputable at any point during a
// tournament. PrizeShare is zero outside the top three ranks.
type Standing struct {
	Rank       int     `json:"rank"`
	AgentID    string  `json:"agentId"`
	SeedNumber int     `json:"seedNumber"`
	Played     int     `json:"played"`
	Won        int     `json:"won"`
	Lost       int     `json:"lost"`
	WinRate    float64 `json:"winRate"`
	PrizeShare float64 `json:"prizeShare"`
}

// Prize split for the top three ranks.
var prizeShares = [3]float64{0.50, 0.30, 0.20}

func totalRoundsFor(n int) int {
	return int(math.Ceil(math.Log2(float64(n))))
}

// GenerateBracket seeds registered agents into first-round matches, pairing
// consecutive seeds. With an odd field the last seed draws a bye and is
// advanced immediately. The tournament flips to active in the same
// transaction that creates the matches.
func (s *BracketService) GenerateBracket(tournamentID string) ([]models.Match, error) {
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if tournament.Status != models.TournamentStatusPending && tournament.Status != models.TournamentStatusOpen {
		return nil, ErrNotStartable
	}

	var regs []models.TournamentRegistration
	if err := s.DB.Where("tournament_id = ?", tournamentID).
		Order("seed_number ASC").Find(&regs).Error; err != nil {
		return nil, err
	}
	if len(regs) < 2 {
		return nil, ErrInsufficientParticipants
	}

	firstRound := totalRoundsFor(len(regs))
	now := time.Now()

	matches := make([]models.Match, 0, (len(regs)+1)/2)
	bracket := 0
	for i := 0; i < len(regs); i += 2 {
		bracket++
		m := models.Match{
			ID:            uuid.NewString(),
			TournamentID:  &tournament.ID,
			RoundNumber:   firstRound,
			BracketNumber: bracket,
			GameType:      tournament.GameType,
			StakeAmount:   tournament.EntryFee,
			BestOf:        3,
			Player1ID:     &regs[i].AgentID,
			Status:        models.MatchStatusPending,
		}
		if i+1 < len(regs) {
			m.Player2ID = &regs[i+1].AgentID
		} else {
			// Odd field: last seed sits out the first round.
			m.Status = models.MatchStatusBye
			m.WinnerID = &regs[i].AgentID
		}
		matches = append(matches, m)
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		for i := range matches {
			if err := tx.Create(&matches[i]).Error; err != nil {
				return err
			}
		}
		return tx.Model(&tournament).Updates(map[string]interface{}{
			"status":       models.TournamentStatusActive,
			"total_rounds": firstRound,
			"start_date":   now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[bracket] tournament %s: generated round %d with %d matches (%d participants)",
		tournamentID, firstRound, len(matches), len(regs))

	// Byes advance in the same pass so the next round never waits on a
	// match that will never be played.
	for i := range matches {
		if matches[i].Status == models.MatchStatusBye {
			if _, err := s.AdvanceWinner(&matches[i], *matches[i].WinnerID); err != nil {
				log.Printf("[bracket] tournament %s: bye advancement failed for match %s: %v",
					tournamentID, matches[i].ID, err)
			}
		}
	}

	return matches, nil
}

// AdvanceWinner slots the winner of a decided match into the next round,
// creating the next match lazily if its sibling has not been decided yet.
// Odd bracket numbers feed player1 of the parent cell, even feed player2.
// Winning the final (round 1) completes the tournament instead.
func (s *BracketService) AdvanceWinner(match *models.Match, winnerID string) (*AdvanceResult, error) {
	if match.TournamentID == nil {
		return nil, fmt.Errorf("match %s is not a tournament match", match.ID)
	}
	if match.RoundNumber <= 1 {
		if err := s.finishTournament(*match.TournamentID, winnerID); err != nil {
			return nil, err
		}
		return &AdvanceResult{WinnerID: winnerID, TournamentComplete: true}, nil
	}

	nextRound := match.RoundNumber - 1
	nextBracket := (match.BracketNumber + 1) / 2
	slotIsPlayer1 := match.BracketNumber%2 == 1

	lock := s.tournamentLock(*match.TournamentID)
	lock.Lock()
	defer lock.Unlock()

	next, err := s.fillNextSlot(*match.TournamentID, match.GameType, match.StakeAmount,
		nextRound, nextBracket, slotIsPlayer1, winnerID)
	if err != nil {
		return nil, err
	}

	return &AdvanceResult{
		WinnerID:          winnerID,
		NextMatchID:       &next.ID,
		NextRoundNumber:   nextRound,
		NextBracketNumber: nextBracket,
	}, nil
}

func (s *BracketService) fillNextSlot(tournamentID, gameType string, stake float64,
	round, bracket int, slotIsPlayer1 bool, winnerID string) (*models.Match, error) {

	var next models.Match
	err := s.DB.Where("tournament_id = ? AND round_number = ? AND bracket_number = ?",
		tournamentID, round, bracket).First(&next).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		next = models.Match{
			ID:            uuid.NewString(),
			TournamentID:  &tournamentID,
			RoundNumber:   round,
			BracketNumber: bracket,
			GameType:      gameType,
			StakeAmount:   stake,
			BestOf:        3,
			Status:        models.MatchStatusPending,
		}
		if slotIsPlayer1 {
			next.Player1ID = &winnerID
		} else {
			next.Player2ID = &winnerID
		}
		if createErr := s.DB.Create(&next).Error; createErr != nil {
			// Lost a race on idx_bracket_cell with another process.
			// Re-read and fall through to the update path.
			if readErr := s.DB.Where("tournament_id = ? AND round_number = ? AND bracket_number = ?",
				tournamentID, round, bracket).First(&next).Error; readErr != nil {
				return nil, createErr
			}
		} else {
			return &next, nil
		}
	} else if err != nil {
		return nil, err
	}

	column, occupant := "player1_id", next.Player1ID
	if !slotIsPlayer1 {
		column, occupant = "player2_id", next.Player2ID
	}
	if occupant != nil {
		if *occupant == winnerID {
			return &next, nil
		}
		return nil, fmt.Errorf("%w: %s of match %s already holds %s",
			ErrBracketInconsistent, column, next.ID, *occupant)
	}
	if err := s.DB.Model(&next).Update(column, winnerID).Error; err != nil {
		return nil, err
	}
	return &next, nil
}

// finishTournament marks the tournament completed exactly once, persists the
// final standings with the champion pinned to rank 1, and hands prize shares
// to the settler.
func (s *BracketService) finishTournament(tournamentID, championID string) error {
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		return err
	}

	now := time.Now()
	res := s.DB.Model(&models.Tournament{}).
		Where("id = ? AND status = ?", tournamentID, models.TournamentStatusActive).
		Updates(map[string]interface{}{
			"status":   models.TournamentStatusCompleted,
			"end_date": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Another writer already completed it.
		return nil
	}

	standings, err := s.ComputeResults(tournamentID)
	if err != nil {
		return err
	}
	// The final decides rank 1 regardless of win totals; a bye path can
	// leave the champion with fewer recorded wins than a runner-up.
	ordered := make([]Standing, 0, len(standings))
	for _, st := range standings {
		if st.AgentID == championID {
			ordered = append([]Standing{st}, ordered...)
		} else {
			ordered = append(ordered, st)
		}
	}

	results := make([]models.TournamentResult, 0, len(ordered))
	for i, st := range ordered {
		r := models.TournamentResult{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			AgentID:      st.AgentID,
			Rank:         i + 1,
			SeedNumber:   st.SeedNumber,
			GamesPlayed:  st.Played,
			GamesWon:     st.Won,
			GamesLost:    st.Lost,
		}
		if i < len(prizeShares) {
			r.PrizeShare = tournament.PrizePool * prizeShares[i]
		}
		results = append(results, r)
	}
	if err := s.DB.Transaction(func(tx *gorm.DB) error {
		for i := range results {
			if err := tx.Create(&results[i]).Error; err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	log.Printf("[bracket] tournament %s completed, champion %s, prize pool %.2f",
		tournamentID, championID, tournament.PrizePool)

	if s.Settler != nil {
		s.Settler.SettleTournament(tournamentID, tournament.PrizePool, results)
	}
	return nil
}

// ComputeResults projects live standings: wins descending, then seed
// ascending. Bye matches carry no played game and are skipped.
func (s *BracketService) ComputeResults(tournamentID string) ([]Standing, error) {
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	var regs []models.TournamentRegistration
	if err := s.DB.Where("tournament_id = ?", tournamentID).
		Order("seed_number ASC").Find(&regs).Error; err != nil {
		return nil, err
	}

	var matches []models.Match
	if err := s.DB.Where("tournament_id = ? AND status = ?",
		tournamentID, models.MatchStatusCompleted).Find(&matches).Error; err != nil {
		return nil, err
	}

	type tally struct{ played, won, lost int }
	tallies := map[string]*tally{}
	for _, r := range regs {
		tallies[r.AgentID] = &tally{}
	}
	count := func(id *string, winner *string) {
		if id == nil {
			return
		}
		t, ok := tallies[*id]
		if !ok {
			return
		}
		t.played++
		if winner != nil && *winner == *id {
			t.won++
		} else {
			t.lost++
		}
	}
	for i := range matches {
		count(matches[i].Player1ID, matches[i].WinnerID)
		count(matches[i].Player2ID, matches[i].WinnerID)
	}

	standings := make([]Standing, 0, len(regs))
	for _, r := range regs {
		t := tallies[r.AgentID]
		st := Standing{
			AgentID:    r.AgentID,
			SeedNumber: r.SeedNumber,
			Played:     t.played,
			Won:        t.won,
			Lost:       t.lost,
		}
		if t.played > 0 {
			st.WinRate = float64(t.won) / float64(t.played)
		}
		standings = append(standings, st)
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Won != standings[j].Won {
			return standings[i].Won > standings[j].Won
		}
		return standings[i].SeedNumber < standings[j].SeedNumber
	})
	for i := range standings {
		standings[i].Rank = i + 1
		if i < len(prizeShares) {
			standings[i].PrizeShare = tournament.PrizePool * prizeShares[i]
		}
	}
	return standings, nil
}

// RoundName renders the human label for a round given the tournament's
// first-round number.
func RoundName(round, totalRounds, participants int) string {
	switch round {
	case 1:
		return "Finals"
	case 2:
		return "Semi-Finals"
	case 3:
		return "Quarter-Finals"
	default:
		size := participants
		if round < totalRounds {
			size = 1 << uint(round)
		}
		return fmt.Sprintf("Round of %d", size)
	}
}
