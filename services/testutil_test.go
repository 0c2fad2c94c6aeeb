package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"agent-arena-system/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Single connection keeps the shared in-memory database alive and
	// avoids sqlite write contention in concurrent tests.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.AgentProfile{},
		&models.Tournament{},
		&models.TournamentRegistration{},
		&models.TournamentResult{},
		&models.Match{},
		&models.MatchOutcome{},
		&models.QueueEntry{},
		&models.AgentEscrow{},
	))
	return db
}

func seedAgent(t *testing.T, db *gorm.DB, id string, balance float64) *models.AgentProfile {
	t.Helper()
	profile := models.AgentProfile{
		ID:          id,
		DisplayName: "Agent " + id,
		Strategy:    "berzerker",
		Rating:      1000,
		Balance:     balance,
	}
	require.NoError(t, db.Create(&profile).Error)
	return &profile
}

func seedTournament(t *testing.T, db *gorm.DB, entryFee float64, maxParticipants int) *models.Tournament {
	t.Helper()
	tournament := models.Tournament{
		ID:              uuid.NewString(),
		Name:            "Test Cup",
		Slug:            "test-cup",
		GameType:        "rps",
		Status:          models.TournamentStatusOpen,
		MaxParticipants: maxParticipants,
		EntryFee:        entryFee,
	}
	require.NoError(t, db.Create(&tournament).Error)
	return &tournament
}
