package models

import (
	"time"

	"gorm.io/gorm"
)

// AgentProfile is the local snapshot of an autonomous agent's competitive
// profile: rating, strategy tag and play statistics. Identity verification and
// balance custody live in external services; this table is what the match
// resolver reads when building simulator inputs.
type AgentProfile struct {
	ID          string  `json:"id" gorm:"primaryKey"`
	DisplayName string  `json:"display_name"`
	Strategy    string  `json:"strategy" gorm:"default:'berzerker'"`
	Rating      int     `json:"rating" gorm:"default:1000;index"`
	Balance     float64 `json:"balance" gorm:"default:0"`
	GamesPlayed int     `json:"games_played" gorm:"default:0"`
	Wins        int     `json:"wins" gorm:"default:0"`
	Losses      int     `json:"losses" gorm:"default:0"`
	Draws       int     `json:"draws" gorm:"default:0"`
	Earnings    float64 `json:"earnings" gorm:"default:0"`

	IsBanned  bool           `json:"is_banned" gorm:"default:false"`
	LastSeen  *time.Time     `json:"last_seen,omitempty"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
