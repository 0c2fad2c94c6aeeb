package models

import (
	"time"
)

// Tournament lifecycle: pending → open → active → completed.
// Tournaments are never deleted.
const (
	TournamentStatusPending   = "pending"
	TournamentStatusOpen      = "open"
	TournamentStatusActive    = "active"
	TournamentStatusCompleted = "completed"
)

// Tournament represents a single-elimination bracket tournament between agents.
type Tournament struct {
	ID                  string  `json:"id" gorm:"primaryKey"`
	Name                string  `json:"name" gorm:"not null"`
	Slug                string  `json:"slug" gorm:"index"`
	GameType            string  `json:"game_type" gorm:"not null;default:'rps'"`
	Status              string  `json:"status" gorm:"default:'pending';index"`
	MaxParticipants     int     `json:"max_participants" gorm:"not null"`
	CurrentParticipants int     `json:"current_participants" gorm:"default:0"`
	EntryFee            float64 `json:"entry_fee" gorm:"default:0"`
	PrizePool           float64 `json:"prize_pool" gorm:"default:0"`
	// TotalRounds is fixed at bracket generation: ceil(log2(participants)).
	// Round numbers count DOWN from TotalRounds to 1; 1 is the final.
	TotalRounds int       `json:"total_rounds" gorm:"default:0"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Registrations []TournamentRegistration `json:"registrations,omitempty" gorm:"foreignKey:TournamentID"`
	Matches       []Match                  `json:"matches,omitempty" gorm:"foreignKey:TournamentID"`
}

// TournamentRegistration binds an agent to a tournament. Unique per
// (tournament, agent); immutable once created. SeedNumber is the registration
// order, 1-indexed, and drives first-round pairing.
type TournamentRegistration struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TournamentID string    `json:"tournament_id" gorm:"not null;uniqueIndex:idx_tournament_agent"`
	AgentID      string    `json:"agent_id" gorm:"not null;uniqueIndex:idx_tournament_agent"`
	SeedNumber   int       `json:"seed_number" gorm:"not null"`
	EntryFeePaid float64   `json:"entry_fee_paid" gorm:"default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TournamentResult is one row of the final standings table, written when the
// final completes. PrizeShare is reported to the settlement collaborator; this
// service never moves funds itself.
type TournamentResult struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TournamentID string    `json:"tournament_id" gorm:"not null;index"`
	AgentID      string    `json:"agent_id" gorm:"not null"`
	Rank         int       `json:"rank" gorm:"not null"`
	SeedNumber   int       `json:"seed_number"`
	GamesPlayed  int       `json:"games_played"`
	GamesWon     int       `json:"games_won"`
	GamesLost    int       `json:"games_lost"`
	PrizeShare   float64   `json:"prize_share" gorm:"default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}
