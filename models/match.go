package models

import (
	"time"
)

// Match status values. A bye match has only Player1 set and is resolvable
// without simulation. A match is completed exactly once; re-submission of a
// result for a completed match is a no-op.
const (
	MatchStatusBye       = "bye"
	MatchStatusPending   = "pending"
	MatchStatusCompleted = "completed"
)

// Match records a single contest between two agents. TournamentID nil means a
// casual matchmaking match; otherwise the match is one bracket cell at
// (TournamentID, RoundNumber, BracketNumber).
//
// RoundNumber counts down: the first played round carries the highest value
// and 1 is the final. BracketNumber is the 1-indexed position within a round.
// Player slots may be nil: a bye in the first round, or "to be determined"
// while a future round waits for a sibling match to finish.
type Match struct {
	ID            string  `json:"id" gorm:"primaryKey"`
	TournamentID  *string `json:"tournament_id,omitempty" gorm:"uniqueIndex:idx_bracket_cell"`
	RoundNumber   int     `json:"round_number" gorm:"uniqueIndex:idx_bracket_cell"`
	BracketNumber int     `json:"bracket_number" gorm:"uniqueIndex:idx_bracket_cell"`
	GameType      string  `json:"game_type" gorm:"not null;default:'rps'"`
	Player1ID     *string `json:"player1_id,omitempty" gorm:"index"`
	Player2ID     *string `json:"player2_id,omitempty" gorm:"index"`
	StakeAmount   float64 `json:"stake_amount" gorm:"default:0"`
	BestOf        int     `json:"best_of" gorm:"default:3"`
	Status        string  `json:"status" gorm:"default:'pending';index"`
	WinnerID      *string `json:"winner_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsTournament reports whether the match is a bracket cell rather than a
// matchmaking match.
func (m *Match) IsTournament() bool { return m.TournamentID != nil }

// MatchOutcome is the authoritative, append-only record of what the simulator
// decided for a match. At most one row exists per match.
type MatchOutcome struct {
	ID      string `json:"id" gorm:"primaryKey"`
	MatchID string `json:"match_id" gorm:"not null;uniqueIndex"`
	// WinnerID is always set: when the simulator declares a draw, the engine
	// resolves it through the configured draw policy and records which one in
	// DrawResolvedBy (e.g. "coin_flip"). IsDraw preserves the simulator's view.
	WinnerID       string `json:"winner_id" gorm:"not null"`
	IsDraw         bool   `json:"is_draw" gorm:"default:false"`
	DrawResolvedBy string `json:"draw_resolved_by,omitempty"`
	Player1Score   int    `json:"player1_score"`
	Player2Score   int    `json:"player2_score"`
	RoundsPlayed   int    `json:"rounds_played"`
	DurationMs     int64  `json:"duration_ms"`
	// RoundData is the per-round move history as JSON, for audit/replay.
	RoundData      string `json:"round_data" gorm:"type:text"`
	ServerSeedHash string `json:"server_seed_hash"`
	ServerSeed     string `json:"server_seed"`
	ClientSeed1    string `json:"client_seed_1"`
	ClientSeed2    string `json:"client_seed_2"`
	EloChangeP1    int    `json:"elo_change_p1"`
	EloChangeP2    int    `json:"elo_change_p2"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
