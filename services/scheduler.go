// services/scheduler.go
package services

import (
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"agent-arena-system/models"
)

// StartProgressionScheduler runs the bracket repair sweep: every minute it
// re-drives advancement for decided matches whose winner never reached the
// next round (a crash between outcome commit and advancement, or a bye whose
// advancement failed). Advancement is idempotent, so sweeping an already
// healthy match is harmless.
func (s *BracketService) StartProgressionScheduler() gocron.Scheduler {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if err := s.SweepStalledAdvancements(); err != nil {
				log.Printf("[Scheduler] advancement sweep error: %v", err)
			}
		}),
	)

	return sched
}

// SweepStalledAdvancements finds decided matches in active tournaments whose
// winner is missing from the parent bracket cell and advances them.
func (s *BracketService) SweepStalledAdvancements() error {
	var tournaments []models.Tournament
	if err := s.DB.Where("status = ?", models.TournamentStatusActive).
		Find(&tournaments).Error; err != nil {
		return err
	}

	for _, t := range tournaments {
		var decided []models.Match
		if err := s.DB.Where(
			"tournament_id = ? AND winner_id IS NOT NULL AND status IN ?",
			t.ID, []string{models.MatchStatusCompleted, models.MatchStatusBye},
		).Find(&decided).Error; err != nil {
			return err
		}

		for i := range decided {
			m := decided[i]
			if m.RoundNumber <= 1 {
				// The final was decided but the tournament is still active:
				// completion itself stalled. AdvanceWinner re-drives it.
				if _, err := s.AdvanceWinner(&m, *m.WinnerID); err != nil {
					log.Printf("[Scheduler] tournament %s: completion sweep failed: %v", t.ID, err)
				}
				continue
			}
			stalled, err := s.advancementMissing(&m)
			if err != nil {
				return err
			}
			if !stalled {
				continue
			}
			if _, err := s.AdvanceWinner(&m, *m.WinnerID); err != nil {
				log.Printf("[Scheduler] tournament %s: sweep advancement failed for match %s: %v",
					t.ID, m.ID, err)
			} else {
				log.Printf("[Scheduler] tournament %s: re-advanced winner of match %s", t.ID, m.ID)
			}
		}
	}
	return nil
}

// advancementMissing reports whether the match winner is absent from its
// parent bracket cell.
func (s *BracketService) advancementMissing(m *models.Match) (bool, error) {
	nextRound := m.RoundNumber - 1
	nextBracket := (m.BracketNumber + 1) / 2

	var next models.Match
	err := s.DB.Where("tournament_id = ? AND round_number = ? AND bracket_number = ?",
		*m.TournamentID, nextRound, nextBracket).First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No parent cell yet means the advancement never ran.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if m.BracketNumber%2 == 1 {
		return next.Player1ID == nil, nil
	}
	return next.Player2ID == nil, nil
}
