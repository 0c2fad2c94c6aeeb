package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateRespectsBestOf(t *testing.T) {
	sim := NewRPS()
	p1 := Profile{ID: "a", Rating: 1000, Strategy: StrategyBerzerker}
	p2 := Profile{ID: "b", Rating: 1000, Strategy: StrategyMerchant}

	for i := 0; i < 50; i++ {
		out, err := sim.Simulate(context.Background(), "m", p1, p2, 3)
		require.NoError(t, err)
		assert.LessOrEqual(t, out.RoundsPlayed, 3)
		assert.Len(t, out.Rounds, out.RoundsPlayed)
		assert.LessOrEqual(t, out.P1Score, 2)
		assert.LessOrEqual(t, out.P2Score, 2)
	}
}

func TestSimulateWinnerMatchesScores(t *testing.T) {
	sim := NewRPS()
	p1 := Profile{ID: "a", Rating: 1200, Strategy: StrategyDisciple}
	p2 := Profile{ID: "b", Rating: 900, Strategy: StrategyDisciple}

	for i := 0; i < 50; i++ {
		out, err := sim.Simulate(context.Background(), "m", p1, p2, 5)
		require.NoError(t, err)
		switch {
		case out.IsDraw:
			assert.Equal(t, out.P1Score, out.P2Score)
			assert.Empty(t, out.WinnerID)
		case out.P1Score > out.P2Score:
			assert.Equal(t, "a", out.WinnerID)
			assert.Equal(t, "b", out.LoserID)
		default:
			assert.Equal(t, "b", out.WinnerID)
			assert.Equal(t, "a", out.LoserID)
		}
		// Elo changes are zero sum.
		assert.Zero(t, out.P1EloChange+out.P2EloChange)
	}
}

func TestSimulateRecordsProvableSeeds(t *testing.T) {
	sim := NewRPS()
	out, err := sim.Simulate(context.Background(), "m",
		Profile{ID: "a", Rating: 1000}, Profile{ID: "b", Rating: 1000}, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, out.ServerSeed)
	assert.NotEmpty(t, out.ServerSeedHash)
	assert.NotEmpty(t, out.ClientSeed1)
	assert.NotEmpty(t, out.ClientSeed2)
	assert.NotEqual(t, out.ServerSeed, out.ServerSeedHash)
}

func TestSimulateHonorsCancelledContext(t *testing.T) {
	sim := NewRPS()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Simulate(ctx, "m",
		Profile{ID: "a", Rating: 1000}, Profile{ID: "b", Rating: 1000}, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveRound(t *testing.T) {
	assert.Equal(t, "draw", ResolveRound(MoveRock, MoveRock))
	assert.Equal(t, "p1", ResolveRound(MoveRock, MoveScissors))
	assert.Equal(t, "p1", ResolveRound(MovePaper, MoveRock))
	assert.Equal(t, "p1", ResolveRound(MoveScissors, MovePaper))
	assert.Equal(t, "p2", ResolveRound(MoveScissors, MoveRock))
	assert.Equal(t, "p2", ResolveRound(MoveRock, MovePaper))
}

func TestRatingBiasShowsUpInResults(t *testing.T) {
	sim := NewRPS()
	strong := Profile{ID: "strong", Rating: 1600, Strategy: StrategyBerzerker}
	weak := Profile{ID: "weak", Rating: 800, Strategy: StrategyBerzerker}

	strongWins := 0
	const runs = 300
	for i := 0; i < runs; i++ {
		out, err := sim.Simulate(context.Background(), "m", strong, weak, 3)
		require.NoError(t, err)
		if out.WinnerID == "strong" {
			strongWins++
		}
	}
	// The per-round edge is capped at +0.3, which still makes the strong
	// side a heavy favorite over a best-of-3. A coin would sit near 150.
	assert.Greater(t, strongWins, runs/2)
}
