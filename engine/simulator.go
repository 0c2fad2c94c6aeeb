package engine

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math"
	mrand "math/rand"
	"time"
)

// Simulator runs a match between two agent profiles and reports the outcome.
// Implementations must terminate and must never play more rounds than bestOf.
type Simulator interface {
	Simulate(ctx context.Context, matchID string, p1, p2 Profile, bestOf int) (*Outcome, error)
}

// RPS is the default simulator: best-of-N rock-paper-scissors where move
// selection is biased by the rating differential and the strategy matchup
// table. Safe for concurrent use.
type RPS struct{}

func NewRPS() *RPS { return &RPS{} }

// Simulate plays up to bestOf rounds, stopping as soon as one side reaches a
// majority. Equal scores after bestOf rounds is a draw; resolving the draw to
// a single winner is the caller's job.
func (s *RPS) Simulate(ctx context.Context, matchID string, p1, p2 Profile, bestOf int) (*Outcome, error) {
	start := time.Now()
	if bestOf < 1 {
		bestOf = 3
	}

	serverSeed, serverSeedHash := generateSeed(32)
	clientSeed1, _ := generateSeed(16)
	clientSeed2, _ := generateSeed(16)

	// Per-round win probability for p1: expected ELO score skewed by the
	// strategy matchup edge, clamped so no pairing is ever a lock.
	adv := EloExpect(p1.Rating, p2.Rating) - 0.5 + MatchupEdge(p1.Strategy, p2.Strategy)
	adv = clamp(adv, -0.3, 0.3)
	pWin := 1.0/3.0 + adv/2
	pLose := 1.0/3.0 - adv/2

	winsNeeded := int(math.Ceil(float64(bestOf) / 2.0))
	var rounds []RoundResult
	p1Score, p2Score := 0, 0

	for round := 1; round <= bestOf; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p1Score >= winsNeeded || p2Score >= winsNeeded {
			break
		}

		m1 := mrand.Intn(3) + 1
		m2 := rollOpponentMove(m1, pWin, pLose)
		winner := ResolveRound(m1, m2)

		switch winner {
		case "p1":
			p1Score++
		case "p2":
			p2Score++
		}

		rounds = append(rounds, RoundResult{
			Round:      round,
			P1Move:     m1,
			P2Move:     m2,
			P1MoveName: MoveName(m1),
			P2MoveName: MoveName(m2),
			Winner:     winner,
			Timestamp:  time.Now().UnixMilli(),
		})
	}

	out := &Outcome{
		MatchID:        matchID,
		IsDraw:         p1Score == p2Score,
		Rounds:         rounds,
		RoundsPlayed:   len(rounds),
		P1Score:        p1Score,
		P2Score:        p2Score,
		ServerSeed:     serverSeed,
		ServerSeedHash: serverSeedHash,
		ClientSeed1:    clientSeed1,
		ClientSeed2:    clientSeed2,
		DurationMs:     time.Since(start).Milliseconds(),
	}

	eloScore := 0.5
	if !out.IsDraw {
		if p1Score > p2Score {
			out.WinnerID = p1.ID
			out.LoserID = p2.ID
			eloScore = 1.0
		} else {
			out.WinnerID = p2.ID
			out.LoserID = p1.ID
			eloScore = 0.0
		}
	}
	out.P1EloChange, out.P2EloChange = EloDeltas(p1.Rating, p2.Rating, eloScore)

	return out, nil
}

// ResolveRound decides a single RPS round from the two moves.
// Rock(1) beats Scissors(3), Paper(2) beats Rock(1), Scissors(3) beats Paper(2).
func ResolveRound(p1Move, p2Move int) string {
	if p1Move == p2Move {
		return "draw"
	}
	if (p1Move == MoveRock && p2Move == MoveScissors) ||
		(p1Move == MovePaper && p2Move == MoveRock) ||
		(p1Move == MoveScissors && p2Move == MovePaper) {
		return "p1"
	}
	return "p2"
}

// rollOpponentMove picks p2's move relative to m1 so that p1 wins the round
// with probability pWin and loses with pLose; everything else is a tie.
func rollOpponentMove(m1 int, pWin, pLose float64) int {
	r := mrand.Float64()
	switch {
	case r < pWin:
		return beatenBy(m1)
	case r < pWin+pLose:
		return beats(m1)
	default:
		return m1
	}
}

// beatenBy returns the move that m defeats.
func beatenBy(m int) int {
	switch m {
	case MoveRock:
		return MoveScissors
	case MovePaper:
		return MoveRock
	default:
		return MovePaper
	}
}

// beats returns the move that defeats m.
func beats(m int) int {
	switch m {
	case MoveRock:
		return MovePaper
	case MovePaper:
		return MoveScissors
	default:
		return MoveRock
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func generateSeed(n int) (seed, hash string) {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	seed = hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(seed))
	return seed, hex.EncodeToString(sum[:])
}
