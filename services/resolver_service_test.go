package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"agent-arena-system/engine"
	"agent-arena-system/models"
)

// stubSimulator returns a scripted outcome so resolution paths can be tested
// deterministically.
type stubSimulator struct {
	winP1 bool
	draw  bool
	err   error
}

func (s *stubSimulator) Simulate(_ context.Context, matchID string, p1, p2 engine.Profile, bestOf int) (*engine.Outcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := &engine.Outcome{
		MatchID:      matchID,
		RoundsPlayed: 3,
	}
	switch {
	case s.draw:
		out.IsDraw = true
		out.P1Score, out.P2Score = 1, 1
		out.P1EloChange, out.P2EloChange = engine.EloDeltas(p1.Rating, p2.Rating, 0.5)
	case s.winP1:
		out.WinnerID, out.LoserID = p1.ID, p2.ID
		out.P1Score, out.P2Score = 2, 1
		out.P1EloChange, out.P2EloChange = engine.EloDeltas(p1.Rating, p2.Rating, 1.0)
	default:
		out.WinnerID, out.LoserID = p2.ID, p1.ID
		out.P1Score, out.P2Score = 1, 2
		out.P1EloChange, out.P2EloChange = engine.EloDeltas(p1.Rating, p2.Rating, 0.0)
	}
	return out, nil
}

func newCasualMatch(t *testing.T, db *gorm.DB, p1, p2 string, stake float64) *models.Match {
	t.Helper()
	match := models.Match{
		ID:          uuid.NewString(),
		GameType:    "rps",
		StakeAmount: stake,
		BestOf:      3,
		Player1ID:   &p1,
		Player2ID:   &p2,
		Status:      models.MatchStatusPending,
	}
	require.NoError(t, db.Create(&match).Error)
	return &match
}

func newResolver(db *gorm.DB, sim engine.Simulator) *ResolverService {
	bracket := NewBracketService(db, nil)
	return NewResolverService(db, bracket, sim, nil)
}

func TestResolveCommitsOutcomeOnce(t *testing.T) {
	db := newTestDB(t)
	seedAgent(t, db, "alpha", 1000)
	seedAgent(t, db, "beta", 1000)
	svc := newResolver(db, &stubSimulator{winP1: true})
	match := newCasualMatch(t, db, "alpha", "beta", 0)

	out, err := svc.Resolve(context.Background(), match.ID)
	require.NoError(t, err)
	assert.False(t, out.AlreadyCompleted)
	require.NotNil(t, out.Outcome)
	assert.Equal(t, "alpha", out.Outcome.WinnerID)
	assert.Equal(t, models.MatchStatusCompleted, out.Match.Status)

	// Re-submission is a no-op returning the committed outcome.
	again, err := svc.Resolve(context.Background(), match.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCompleted)
	require.NotNil(t, again.Outcome)
	assert.Equal(t, out.Outcome.ID, again.Outcome.ID)

	var count int64
	require.NoError(t, db.Model(&models.MatchOutcome{}).
		Where("match_id = ?", match.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var alpha, beta models.AgentProfile
	require.NoError(t, db.First(&alpha, "id = ?", "alpha").Error)
	require.NoError(t, db.First(&beta, "id = ?", "beta").Error)
	assert.Equal(t, 1, alpha.Wins)
	assert.Equal(t, 1, beta.Losses)
	assert.Equal(t, 1016, alpha.Rating)
	assert.Equal(t, 984, beta.Rating)
}

func TestResolveDrawUsesDrawPolicy(t *testing.T) {
	db := newTestDB(t)
	seedAgent(t, db, "alpha", 1000)
	seedAgent(t, db, "beta", 1000)
	svc := newResolver(db, &stubSimulator{draw: true})
	match := newCasualMatch(t, db, "alpha", "beta", 0)

	out, err := svc.Resolve(context.Background(), match.ID)
	require.NoError(t, err)
	require.NotNil(t, out.Outcome)
	assert.True(t, out.Outcome.IsDraw)
	assert.Equal(t, "coin_flip", out.Outcome.DrawResolvedBy)
	assert.Contains(t, []string{"alpha", "beta"}, out.Outcome.WinnerID)

	// A resolved draw still counts as a draw in both records.
	var alpha, beta models.AgentProfile
	require.NoError(t, db.First(&alpha, "id = ?", "alpha").Error)
	require.NoError(t, db.First(&beta, "id = ?", "beta").Error)
	assert.Equal(t, 1, alpha.Draws)
	assert.Equal(t, 1, beta.Draws)
	assert.Zero(t, alpha.Wins)
	assert.Zero(t, beta.Wins)
}

func TestResolveSimulatorFailureLeavesPending(t *testing.T) {
	db := newTestDB(t)
	seedAgent(t, db, "alpha", 1000)
	seedAgent(t, db, "beta", 1000)
	svc := newResolver(db, &stubSimulator{err: errors.New("engine offline")})
	match := newCasualMatch(t, db, "alpha", "beta", 0)

	_, err := svc.Resolve(context.Background(), match.ID)
	assert.ErrorIs(t, err, ErrSimulatorFailed)

	var reloaded models.Match
	require.NoError(t, db.First(&reloaded, "id = ?", match.ID).Error)
	assert.Equal(t, models.MatchStatusPending, reloaded.Status)
	assert.Nil(t, reloaded.WinnerID)

	// Retry with a healthy simulator succeeds.
	svc.Simulator = &stubSimulator{winP1: true}
	out, err := svc.Resolve(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", out.Outcome.WinnerID)
}

func TestResolveMissingMatch(t *testing.T) {
	db := newTestDB(t)
	svc := newResolver(db, &stubSimulator{winP1: true})

	_, err := svc.Resolve(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestResolveRejectsHalfFilledMatch(t *testing.T) {
	db := newTestDB(t)
	seedAgent(t, db, "alpha", 1000)
	svc := newResolver(db, &stubSimulator{winP1: true})

	p1 := "alpha"
	match := models.Match{
		ID:        uuid.NewString(),
		GameType:  "rps",
		BestOf:    3,
		Player1ID: &p1,
		Status:    models.MatchStatusPending,
	}
	require.NoError(t, db.Create(&match).Error)

	_, err := svc.Resolve(context.Background(), match.ID)
	assert.ErrorIs(t, err, ErrMatchNotReady)
}

func TestResolvePaysStakesAndReleasesEscrow(t *testing.T) {
	db := newTestDB(t)
	seedAgent(t, db, "alpha", 900)
	seedAgent(t, db, "beta", 900)
	svc := newResolver(db, &stubSimulator{winP1: true})
	match := newCasualMatch(t, db, "alpha", "beta", 100)

	// Stakes already debited and locked, as matchmaking leaves them.
	for _, agent := range []string{"alpha", "beta"} {
		require.NoError(t, db.Create(&models.AgentEscrow{
			ID:      uuid.NewString(),
			AgentID: agent,
			MatchID: &match.ID,
			Amount:  100,
			Status:  models.EscrowStatusLocked,
		}).Error)
	}

	_, err := svc.Resolve(context.Background(), match.ID)
	require.NoError(t, err)

	var alpha, beta models.AgentProfile
	require.NoError(t, db.First(&alpha, "id = ?", "alpha").Error)
	require.NoError(t, db.First(&beta, "id = ?", "beta").Error)
	assert.InDelta(t, 1100.0, alpha.Balance, 1e-9)
	assert.InDelta(t, 900.0, beta.Balance, 1e-9)
	assert.InDelta(t, 100.0, alpha.Earnings, 1e-9)

	var escrows []models.AgentEscrow
	require.NoError(t, db.Where("match_id = ?", match.ID).Find(&escrows).Error)
	require.Len(t, escrows, 2)
	for _, e := range escrows {
		assert.Equal(t, models.EscrowStatusReleased, e.Status)
		assert.NotNil(t, e.ReleasedAt)
	}
}

func TestResolveAdvancesTournamentWinner(t *testing.T) {
	db := newTestDB(t)
	bracket := NewBracketService(db, nil)
	svc := NewResolverService(db, bracket, &stubSimulator{winP1: true}, nil)
	tournament := seedTournament(t, db, 0, 8)
	agents := seedField(t, db, tournament, 4)

	matches, err := bracket.GenerateBracket(tournament.ID)
	require.NoError(t, err)

	out, err := svc.Resolve(context.Background(), matches[0].ID)
	require.NoError(t, err)
	require.NotNil(t, out.Advance)
	assert.Equal(t, agents[0], out.Advance.WinnerID)
	assert.False(t, out.Advance.TournamentComplete)

	out, err = svc.Resolve(context.Background(), matches[1].ID)
	require.NoError(t, err)
	require.NotNil(t, out.Advance)

	var final models.Match
	require.NoError(t, db.Where("tournament_id = ? AND round_number = ?",
		tournament.ID, 1).First(&final).Error)
	require.NotNil(t, final.Player1ID)
	require.NotNil(t, final.Player2ID)

	out, err = svc.Resolve(context.Background(), final.ID)
	require.NoError(t, err)
	require.NotNil(t, out.Advance)
	assert.True(t, out.Advance.TournamentComplete)

	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tournament.ID).Error)
	assert.Equal(t, models.TournamentStatusCompleted, reloaded.Status)
}
