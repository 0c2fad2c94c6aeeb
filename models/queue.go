package models

import (
	"time"
)

// Queue entry status. An entry exists only between join and
// (leave | expiry). "matched" is a short-lived state: the entry carries the
// minted match id so the other side of the pairing can discover it from its
// own request; the cleanup worker reclaims matched entries after the TTL.
const (
	QueueStatusSearching = "searching"
	QueueStatusMatched   = "matched"
)

// QueueEntry is one agent waiting for an opponent in a gameType partition.
// At most one live entry per agent per gameType.
type QueueEntry struct {
	ID            string  `json:"id" gorm:"primaryKey"`
	AgentID       string  `json:"agent_id" gorm:"not null;index"`
	SessionID     string  `json:"session_id" gorm:"not null"`
	GameType      string  `json:"game_type" gorm:"not null;index"`
	StakeAmount   float64 `json:"stake_amount" gorm:"not null"`
	StakeRangeMin float64 `json:"stake_range_min"`
	StakeRangeMax float64 `json:"stake_range_max"`
	Strategy      string  `json:"strategy"`
	Rating        int     `json:"rating" gorm:"default:1000"`
	Status        string  `json:"status" gorm:"default:'searching';index"`
	MatchID       *string `json:"match_id,omitempty" gorm:"index"`
	MatchedWith   *string `json:"matched_with,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at" gorm:"autoCreateTime"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"index"`
}
