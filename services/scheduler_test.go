package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-arena-system/models"
)

func TestSweepReAdvancesStalledWinners(t *testing.T) {
	db := newTestDB(t)
	svc := NewBracketService(db, nil)
	tournament := seedTournament(t, db, 0, 8)
	agents := seedField(t, db, tournament, 4)

	matches, err := svc.GenerateBracket(tournament.ID)
	require.NoError(t, err)

	// Decide both matches without running advancement, as if the process
	// died between outcome commit and AdvanceWinner.
	require.NoError(t, db.Model(&models.Match{}).Where("id = ?", matches[0].ID).
		Updates(map[string]interface{}{"status": models.MatchStatusCompleted, "winner_id": agents[0]}).Error)
	require.NoError(t, db.Model(&models.Match{}).Where("id = ?", matches[1].ID).
		Updates(map[string]interface{}{"status": models.MatchStatusCompleted, "winner_id": agents[3]}).Error)

	require.NoError(t, svc.SweepStalledAdvancements())

	var final models.Match
	require.NoError(t, db.Where("tournament_id = ? AND round_number = ?",
		tournament.ID, 1).First(&final).Error)
	require.NotNil(t, final.Player1ID)
	require.NotNil(t, final.Player2ID)
	assert.Equal(t, agents[0], *final.Player1ID)
	assert.Equal(t, agents[3], *final.Player2ID)

	// A healthy bracket sweeps clean.
	require.NoError(t, svc.SweepStalledAdvancements())
	var count int64
	require.NoError(t, db.Model(&models.Match{}).
		Where("tournament_id = ?", tournament.ID).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestSweepCompletesStalledFinal(t *testing.T) {
	db := newTestDB(t)
	svc := NewBracketService(db, nil)
	tournament := seedTournament(t, db, 0, 8)
	agents := seedField(t, db, tournament, 2)

	matches, err := svc.GenerateBracket(tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].RoundNumber)

	require.NoError(t, db.Model(&models.Match{}).Where("id = ?", matches[0].ID).
		Updates(map[string]interface{}{"status": models.MatchStatusCompleted, "winner_id": agents[1]}).Error)

	require.NoError(t, svc.SweepStalledAdvancements())

	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tournament.ID).Error)
	assert.Equal(t, models.TournamentStatusCompleted, reloaded.Status)

	var results []models.TournamentResult
	require.NoError(t, db.Where("tournament_id = ?", tournament.ID).
		Order("rank ASC").Find(&results).Error)
	require.Len(t, results, 2)
	assert.Equal(t, agents[1], results[0].AgentID)
}
