package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"agent-arena-system/models"
	"agent-arena-system/utils"
)

// SettlementService pushes committed outcomes to the external ledger and
// archives final standings to object storage. All methods are best effort:
// the match and tournament records are already durable when the settler is
// called, so failures here are logged and retried by humans, never bubbled
// back into resolution.
type SettlementService struct {
	Ledger *LedgerServiceClient
}

func NewSettlementService(ledger *LedgerServiceClient) *SettlementService {
	return &SettlementService{Ledger: ledger}
}

// SettleMatch instructs the ledger to move the pot to the match winner.
func (s *SettlementService) SettleMatch(match *models.Match, outcome *models.MatchOutcome, pot float64) {
	if !s.Ledger.Enabled() {
		return
	}
	reference := "match:" + match.ID
	if _, err := s.Ledger.Transfer(reference, outcome.WinnerID, pot, "match_pot"); err != nil {
		log.Printf("[settlement] match %s: ledger transfer failed: %v", match.ID, err)
		return
	}
	log.Printf("[settlement] match %s: pot %.2f settled to %s", match.ID, pot, outcome.WinnerID)
}

// SettleTournament pushes each nonzero prize share to the ledger and archives
// the final standings document.
func (s *SettlementService) SettleTournament(tournamentID string, prizePool float64, results []models.TournamentResult) {
	if s.Ledger.Enabled() {
		for _, r := range results {
			if r.PrizeShare <= 0 {
				continue
			}
			reference := fmt.Sprintf("tournament:%s:rank:%d", tournamentID, r.Rank)
			if _, err := s.Ledger.Transfer(reference, r.AgentID, r.PrizeShare, "tournament_prize"); err != nil {
				log.Printf("[settlement] tournament %s: prize transfer to %s failed: %v",
					tournamentID, r.AgentID, err)
			}
		}
	}

	if !utils.ArchiveEnabled() {
		return
	}
	doc, err := json.Marshal(map[string]interface{}{
		"tournament_id": tournamentID,
		"prize_pool":    prizePool,
		"results":       results,
		"archived_at":   time.Now(),
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	url, err := utils.UploadArchive(ctx, "standings/"+tournamentID+".json", doc)
	if err != nil {
		log.Printf("[settlement] tournament %s: standings archive failed: %v", tournamentID, err)
		return
	}
	log.Printf("[settlement] tournament %s: standings archived at %s", tournamentID, url)
}
