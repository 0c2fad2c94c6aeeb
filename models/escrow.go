package models

import (
	"time"
)

// Escrow lock lifecycle. "locked" while the agent waits in queue or fights,
// "released" after settlement paid out, "refunded" when the agent left the
// queue before a match formed.
const (
	EscrowStatusLocked   = "locked"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// AgentEscrow marks a stake as locked while its owner sits in the matchmaking
// queue or plays a match. The external settlement ledger owns the actual
// funds; these rows exist so a stake can never back two matches at once.
type AgentEscrow struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	AgentID    string     `json:"agent_id" gorm:"not null;index"`
	SessionID  string     `json:"session_id"`
	MatchID    *string    `json:"match_id,omitempty" gorm:"index"`
	Amount     float64    `json:"amount" gorm:"not null"`
	Status     string     `json:"status" gorm:"default:'locked';index"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
