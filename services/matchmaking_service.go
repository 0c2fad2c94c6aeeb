package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"agent-arena-system/models"
)

const (
	// QueueTTL is how long a queue entry stays searchable before the
	// cleanup worker reclaims it and refunds the stake.
	QueueTTL = 5 * time.Minute

	// stakeBandPct defines the compatible stake range around an entry's
	// own stake. The band is widened to at least +-1 so micro stakes can
	// still pair.
	stakeBandPct = 0.30

	defaultBestOf = 3

	// awaitMatchWindow bounds how long a join request hangs around waiting
	// for another joiner to pair with it before answering "queued".
	awaitMatchWindow = 2 * time.Second
	awaitMatchPoll   = 150 * time.Millisecond
)

// MatchmakingService pairs agents into casual stake matches. Mutations on a
// gameType partition are serialized through a per-partition mutex so two
// concurrent joins cannot both claim the same waiting opponent.
//
// Resolver, when set, is invoked from the HTTP join flow so a freshly paired
// match resolves in the same request.
type MatchmakingService struct {
	DB       *gorm.DB
	Resolver *ResolverService

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMatchmakingService(db *gorm.DB) *MatchmakingService {
	return &MatchmakingService{DB: db, locks: map[string]*sync.Mutex{}}
}

func (s *MatchmakingService) partitionLock(gameType string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[gameType]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gameType] = l
	}
	return l
}

// StakeBand returns the inclusive range of opponent stakes compatible with
// the given stake.
func StakeBand(stake float64) (min, max float64) {
	delta := stake * stakeBandPct
	if delta < 1 {
		delta = 1
	}
	min = stake - delta
	if min < 0 {
		min = 0
	}
	return min, stake + delta
}

// JoinResult is the outcome of a join: either an immediate pairing or a
// queued entry still searching.
type JoinResult struct {
	Matched    bool    `json:"matched"`
	MatchID    string  `json:"match_id,omitempty"`
	OpponentID string  `json:"opponent_id,omitempty"`
	EntryID    string  `json:"entry_id,omitempty"`
	QueuedAt   *int64  `json:"queued_at,omitempty"`
	ExpiresIn  float64 `json:"expires_in_seconds,omitempty"`
}

// JoinQueue enqueues an agent, pairing immediately when a compatible
// opponent is already waiting. The stake is locked in escrow for the
// lifetime of the entry. Both sides of a pairing receive the same match id:
// the pairing side from the pairing itself, the other side from its entry
// flipping to matched.
func (s *MatchmakingService) JoinQueue(agentID, sessionID, gameType string, stake float64, strategy string) (*JoinResult, error) {
	profile, err := s.eligibleProfile(agentID, stake)
	if err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = profile.Strategy
	}

	// An agent carries at most one unresolved casual match. A pairing whose
	// inline resolution failed leaves the match pending; it must be resolved
	// through the match result endpoint before the agent can queue again.
	var pending int64
	if err := s.DB.Model(&models.Match{}).
		Where("tournament_id IS NULL AND status = ? AND (player1_id = ? OR player2_id = ?)",
			models.MatchStatusPending, agentID, agentID).
		Count(&pending).Error; err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, ErrUnresolvedMatch
	}

	lock := s.partitionLock(gameType)
	lock.Lock()

	if err := s.purgeExpiredLocked(gameType); err != nil {
		lock.Unlock()
		return nil, err
	}

	var existing models.QueueEntry
	err = s.DB.Where("agent_id = ? AND game_type = ? AND status = ?",
		agentID, gameType, models.QueueStatusSearching).First(&existing).Error
	if err == nil {
		lock.Unlock()
		return nil, ErrAlreadyQueued
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		lock.Unlock()
		return nil, err
	}

	minStake, maxStake := StakeBand(stake)
	now := time.Now()
	entry := models.QueueEntry{
		ID:            uuid.NewString(),
		AgentID:       agentID,
		SessionID:     sessionID,
		GameType:      gameType,
		StakeAmount:   stake,
		StakeRangeMin: minStake,
		StakeRangeMax: maxStake,
		Strategy:      strategy,
		Rating:        profile.Rating,
		Status:        models.QueueStatusSearching,
		EnqueuedAt:    now,
		ExpiresAt:     now.Add(QueueTTL),
	}

	// Compatible opponent: searching in the same partition, each stake
	// inside the other's band. Oldest waiter first.
	var opponent models.QueueEntry
	err = s.DB.Where(
		"game_type = ? AND status = ? AND agent_id <> ? AND stake_amount BETWEEN ? AND ? AND stake_range_min <= ? AND stake_range_max >= ?",
		gameType, models.QueueStatusSearching, agentID, minStake, maxStake, stake, stake,
	).Order("enqueued_at ASC").First(&opponent).Error

	if err == nil {
		result, pairErr := s.pairLocked(&entry, &opponent)
		lock.Unlock()
		return result, pairErr
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		lock.Unlock()
		return nil, err
	}

	// Nobody compatible yet: persist the entry with its escrow lock.
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return s.lockStake(tx, agentID, sessionID, stake, nil)
	})
	lock.Unlock()
	if txErr != nil {
		return nil, txErr
	}

	log.Printf("[matchmaking] agent %s queued for %s at stake %.2f (band %.2f-%.2f)",
		agentID, gameType, stake, minStake, maxStake)

	// Hold the request briefly: a concurrent joiner may pair with this
	// entry, in which case we hand back that match id instead of "queued".
	if matched := s.awaitMatch(entry.ID); matched != nil {
		return matched, nil
	}

	queuedAt := entry.EnqueuedAt.UnixMilli()
	return &JoinResult{
		Matched:   false,
		EntryID:   entry.ID,
		QueuedAt:  &queuedAt,
		ExpiresIn: QueueTTL.Seconds(),
	}, nil
}

// pairLocked mints a match between the joining entry and a waiting opponent.
// Caller holds the partition lock. The joiner never touched the queue table,
// so it is inserted already matched; the opponent's row flips searching to
// matched with a CAS guard.
func (s *MatchmakingService) pairLocked(entry, opponent *models.QueueEntry) (*JoinResult, error) {
	matchID := uuid.NewString()
	match := models.Match{
		ID:          matchID,
		GameType:    entry.GameType,
		StakeAmount: entry.StakeAmount,
		BestOf:      defaultBestOf,
		Player1ID:   &opponent.AgentID,
		Player2ID:   &entry.AgentID,
		Status:      models.MatchStatusPending,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.QueueEntry{}).
			Where("id = ? AND status = ?", opponent.ID, models.QueueStatusSearching).
			Updates(map[string]interface{}{
				"status":       models.QueueStatusMatched,
				"match_id":     matchID,
				"matched_with": entry.AgentID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotInQueue
		}

		entry.Status = models.QueueStatusMatched
		entry.MatchID = &matchID
		entry.MatchedWith = &opponent.AgentID
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		if err := tx.Create(&match).Error; err != nil {
			return err
		}
		if err := s.lockStake(tx, entry.AgentID, entry.SessionID, entry.StakeAmount, &matchID); err != nil {
			return err
		}
		// The opponent's stake was locked at their join; attach that
		// session's escrow to the match so resolution can release it.
		return tx.Model(&models.AgentEscrow{}).
			Where("agent_id = ? AND session_id = ? AND status = ? AND match_id IS NULL",
				opponent.AgentID, opponent.SessionID, models.EscrowStatusLocked).
			Update("match_id", matchID).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[matchmaking] paired %s vs %s in %s, match %s, stake %.2f",
		opponent.AgentID, entry.AgentID, entry.GameType, matchID, entry.StakeAmount)

	return &JoinResult{
		Matched:    true,
		MatchID:    matchID,
		OpponentID: opponent.AgentID,
		EntryID:    entry.ID,
	}, nil
}

// awaitMatch polls the entry for a short window and returns a JoinResult if
// another joiner paired with it, nil if it is still searching.
func (s *MatchmakingService) awaitMatch(entryID string) *JoinResult {
	deadline := time.Now().Add(awaitMatchWindow)
	for time.Now().Before(deadline) {
		time.Sleep(awaitMatchPoll)
		var entry models.QueueEntry
		if err := s.DB.First(&entry, "id = ?", entryID).Error; err != nil {
			// Entry already consumed and cleaned up; nothing to report.
			return nil
		}
		if entry.Status == models.QueueStatusMatched && entry.MatchID != nil {
			r := &JoinResult{Matched: true, MatchID: *entry.MatchID, EntryID: entry.ID}
			if entry.MatchedWith != nil {
				r.OpponentID = *entry.MatchedWith
			}
			return r
		}
	}
	return nil
}

// LeaveQueue removes the agent's still-searching entries and refunds their
// escrow. An empty gameType leaves every partition. Leaving when not queued,
// or after a match formed, reports left=false without error.
func (s *MatchmakingService) LeaveQueue(agentID, gameType string) (bool, error) {
	q := s.DB.Where("agent_id = ? AND status = ?", agentID, models.QueueStatusSearching)
	if gameType != "" {
		q = q.Where("game_type = ?", gameType)
	}
	var entries []models.QueueEntry
	if err := q.Find(&entries).Error; err != nil {
		return false, err
	}

	left := false
	for i := range entries {
		entry := entries[i]
		lock := s.partitionLock(entry.GameType)
		lock.Lock()
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			// Re-check under the lock: a join may have paired it since.
			res := tx.Where("id = ? AND status = ?", entry.ID, models.QueueStatusSearching).
				Delete(&models.QueueEntry{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			left = true
			log.Printf("[matchmaking] agent %s left %s queue, stake %.2f refunded",
				agentID, entry.GameType, entry.StakeAmount)
			return s.refundStake(tx, entry.AgentID, entry.StakeAmount)
		})
		lock.Unlock()
		if err != nil {
			return left, err
		}
	}
	return left, nil
}

// PurgeExpired reclaims expired searching entries across all partitions and
// refunds their stakes. Called by the cleanup worker.
func (s *MatchmakingService) PurgeExpired() (int, error) {
	var expired []models.QueueEntry
	if err := s.DB.Where("status = ? AND expires_at < ?",
		models.QueueStatusSearching, time.Now()).Find(&expired).Error; err != nil {
		return 0, err
	}
	purged := 0
	for i := range expired {
		entry := expired[i]
		lock := s.partitionLock(entry.GameType)
		lock.Lock()
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			// Re-check under the lock: a join may have claimed it since.
			res := tx.Where("id = ? AND status = ?", entry.ID, models.QueueStatusSearching).
				Delete(&models.QueueEntry{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			purged++
			return s.refundStake(tx, entry.AgentID, entry.StakeAmount)
		})
		lock.Unlock()
		if err != nil {
			return purged, err
		}
	}

	// Matched entries past their TTL have served their discovery purpose;
	// their stakes live with the match escrow, so no refund.
	if err := s.DB.Where("status = ? AND expires_at < ?",
		models.QueueStatusMatched, time.Now()).Delete(&models.QueueEntry{}).Error; err != nil {
		return purged, err
	}
	return purged, nil
}

func (s *MatchmakingService) purgeExpiredLocked(gameType string) error {
	var expired []models.QueueEntry
	if err := s.DB.Where("game_type = ? AND status = ? AND expires_at < ?",
		gameType, models.QueueStatusSearching, time.Now()).Find(&expired).Error; err != nil {
		return err
	}
	for i := range expired {
		entry := expired[i]
		if err := s.DB.Transaction(func(tx *gorm.DB) error {
			res := tx.Where("id = ? AND status = ?", entry.ID, models.QueueStatusSearching).
				Delete(&models.QueueEntry{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			return s.refundStake(tx, entry.AgentID, entry.StakeAmount)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *MatchmakingService) eligibleProfile(agentID string, stake float64) (*models.AgentProfile, error) {
	if stake < 0 {
		return nil, errors.New("stake must not be negative")
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
	if profile.Balance < stake {
		return nil, ErrInsufficientBalance
	}
	return &profile, nil
}

// lockStake debits the local balance mirror and records the escrow row.
func (s *MatchmakingService) lockStake(tx *gorm.DB, agentID, sessionID string, amount float64, matchID *string) error {
	if amount <= 0 {
		return nil
	}
	res := tx.Model(&models.AgentProfile{}).
		Where("id = ? AND balance >= ?", agentID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return tx.Create(&models.AgentEscrow{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		SessionID: sessionID,
		MatchID:   matchID,
		Amount:    amount,
		Status:    models.EscrowStatusLocked,
	}).Error
}

// refundStake releases the oldest unattached escrow lock for the agent and
// credits its amount back. One escrow per queue entry, so one refund per call.
func (s *MatchmakingService) refundStake(tx *gorm.DB, agentID string, amount float64) error {
	if amount <= 0 {
		return nil
	}
	var escrow models.AgentEscrow
	err := tx.Where("agent_id = ? AND status = ? AND match_id IS NULL",
		agentID, models.EscrowStatusLocked).
		Order("created_at ASC").First(&escrow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	now := time.Now()
	if err := tx.Model(&escrow).Updates(map[string]interface{}{
		"status":      models.EscrowStatusRefunded,
		"released_at": now,
	}).Error; err != nil {
		return err
	}
	return tx.Model(&models.AgentProfile{}).Where("id = ?", agentID).
		Update("balance", gorm.Expr("balance + ?", escrow.Amount)).Error
}

// ---- HTTP handlers ----

type joinQueueRequest struct {
	AgentID     string  `json:"agent_id"`
	SessionID   string  `json:"session_id"`
	GameType    string  `json:"game_type"`
	StakeAmount float64 `json:"stake_amount"`
	Strategy    string  `json:"strategy,omitempty"`
}

// Join handles POST /matchmaking/join.
func (s *MatchmakingService) Join(c *fiber.Ctx) error {
	var req joinQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.AgentID == "" || req.GameType == "" {
		return c.Status(400).JSON(fiber.Map{"error": "agent_id and game_type are required"})
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result, err := s.JoinQueue(req.AgentID, req.SessionID, req.GameType, req.StakeAmount, req.Strategy)
	if err != nil {
		switch {
		case errors.Is(err, ErrAgentNotFound):
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrAlreadyQueued), errors.Is(err, ErrUnresolvedMatch):
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrAgentBanned), errors.Is(err, ErrInsufficientBalance):
			return c.Status(403).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("[matchmaking] join failed for %s: %v", req.AgentID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to join queue"})
		}
	}

	// A paired match resolves in the same request. Resolve is idempotent, so
	// it does not matter which side of the pairing gets there first.
	if result.Matched && s.Resolver != nil {
		out, rerr := s.Resolver.Resolve(c.Context(), result.MatchID)
		if rerr != nil {
			log.Printf("[matchmaking] match %s: inline resolution failed: %v", result.MatchID, rerr)
			return c.JSON(result)
		}
		return c.JSON(fiber.Map{
			"matched":     true,
			"match_id":    result.MatchID,
			"opponent_id": result.OpponentID,
			"entry_id":    result.EntryID,
			"outcome":     out.Outcome,
		})
	}
	return c.JSON(result)
}

type leaveQueueRequest struct {
	AgentID  string `json:"agent_id"`
	GameType string `json:"game_type,omitempty"`
}

// Leave handles POST /matchmaking/leave. Omitting game_type leaves every
// partition the agent is waiting in.
func (s *MatchmakingService) Leave(c *fiber.Ctx) error {
	var req leaveQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.AgentID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "agent_id is required"})
	}
	left, err := s.LeaveQueue(req.AgentID, req.GameType)
	if err != nil {
		log.Printf("[matchmaking] leave failed for %s: %v", req.AgentID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to leave queue"})
	}
	return c.JSON(fiber.Map{"left": left})
}

// QueueStatus handles GET /matchmaking/queue.
func (s *MatchmakingService) QueueStatus(c *fiber.Ctx) error {
	gameType := c.Query("game_type")
	q := s.DB.Model(&models.QueueEntry{}).Where("status = ?", models.QueueStatusSearching)
	if gameType != "" {
		q = q.Where("game_type = ?", gameType)
	}
	var entries []models.QueueEntry
	if err := q.Order("enqueued_at ASC").Find(&entries).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to read queue"})
	}
	return c.JSON(fiber.Map{
		"count":   len(entries),
		"entries": entries,
	})
}

// RecentMatches handles GET /matches/recent: latest completed casual
// matches with their outcomes.
func (s *MatchmakingService) RecentMatches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var matches []models.Match
	if err := s.DB.Where("tournament_id IS NULL AND status = ?", models.MatchStatusCompleted).
		Order("updated_at DESC").Limit(limit).Find(&matches).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to read matches"})
	}
	return c.JSON(fiber.Map{"matches": matches, "count": len(matches)})
}
