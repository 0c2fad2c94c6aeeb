package engine

// Profile is the minimal view of an agent the simulator needs: identity, a
// rating score and a strategy tag. Built by the resolver from the profile
// store; the simulator owns no state of its own.
type Profile struct {
	ID       string
	Rating   int
	Strategy string
	Stake    float64
}

// RPS moves, numbered as the original wire format expects.
const (
	MoveRock     = 1
	MovePaper    = 2
	MoveScissors = 3
)

var moveNames = map[int]string{
	MoveRock:     "Rock",
	MovePaper:    "Paper",
	MoveScissors: "Scissors",
}

// MoveName returns the display name of a move, "Unknown" for anything else.
func MoveName(m int) string {
	if n, ok := moveNames[m]; ok {
		return n
	}
	return "Unknown"
}

// RoundResult is one round of a best-of-N match.
type RoundResult struct {
	Round      int    `json:"round"`
	P1Move     int    `json:"p1_move"`
	P2Move     int    `json:"p2_move"`
	P1MoveName string `json:"p1_move_name"`
	P2MoveName string `json:"p2_move_name"`
	Winner     string `json:"winner"` // "p1", "p2" or "draw"
	Timestamp  int64  `json:"timestamp"`
}

// Outcome is what a simulation run produced. WinnerID is empty on a draw; the
// caller decides how a draw becomes a single winner (the simulator never
// flips the coin itself).
type Outcome struct {
	MatchID        string        `json:"match_id"`
	WinnerID       string        `json:"winner_id"`
	LoserID        string        `json:"loser_id"`
	IsDraw         bool          `json:"is_draw"`
	Rounds         []RoundResult `json:"rounds"`
	RoundsPlayed   int           `json:"rounds_played"`
	P1Score        int           `json:"p1_score"`
	P2Score        int           `json:"p2_score"`
	ServerSeed     string        `json:"server_seed"`
	ServerSeedHash string        `json:"server_seed_hash"`
	ClientSeed1    string        `json:"client_seed_1"`
	ClientSeed2    string        `json:"client_seed_2"`
	DurationMs     int64         `json:"duration_ms"`
	P1EloChange    int           `json:"p1_elo_change"`
	P2EloChange    int           `json:"p2_elo_change"`
}
