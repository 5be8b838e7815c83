package services

import (
	"fmt"
	"testing"
	"time"

	"break-timer-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database migrated with the full
// schema. cache=shared keeps the database alive across the pool's
// connections within one test, and the busy timeout lets concurrent
// writers wait for each other instead of failing immediately.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.UserAccount{},
		&models.UserTimerSettings{},
		&models.TimerSession{},
		&models.TimerInterval{},
		&models.BreakRecord{},
		&models.DailyStats{},
		&models.WeeklyStats{},
		&models.MonthlyStats{},
		&models.UserStreakData{},
		&models.UserLevel{},
		&models.Badge{},
		&models.UserBadge{},
		&models.Challenge{},
		&models.ChallengeParticipation{},
		&models.ActivityFeedEntry{},
	))
	return db
}

type testStack struct {
	db          *gorm.DB
	compliance  *ComplianceService
	progression *ProgressionService
	badges      *BadgeService
	challenges  *ChallengeService
	sessions    *SessionService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := newTestDB(t)
	events := NopPublisher{}

	compliance := NewComplianceService(db)
	progression := NewProgressionService(db, events, compliance)
	badges := NewBadgeService(db, events, progression, compliance)
	challenges := NewChallengeService(db, events, progression)
	sessions := NewSessionService(db, events, compliance, progression, badges, challenges)

	return &testStack{
		db:          db,
		compliance:  compliance,
		progression: progression,
		badges:      badges,
		challenges:  challenges,
		sessions:    sessions,
	}
}

func createAccount(t *testing.T, db *gorm.DB, userID string, tier models.SubscriptionTier) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserAccount{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		SubscriptionTier: tier,
		Timezone:         "UTC",
	}).Error)
}

// seedBreak inserts a raw break record, finalized with the given outcome.
func seedBreak(t *testing.T, db *gorm.DB, userID string, startedAt time.Time, durationSeconds int, lookedAtDistance, completed bool) {
	t.Helper()
	end := startedAt.Add(time.Duration(durationSeconds) * time.Second)
	require.NoError(t, db.Create(&models.BreakRecord{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		SessionID:        uuid.NewString(),
		IntervalID:       uuid.NewString(),
		BreakStartTime:   startedAt,
		BreakEndTime:     &end,
		DurationSeconds:  durationSeconds,
		LookedAtDistance: lookedAtDistance,
		Completed:        completed,
	}).Error)
}

// seedEndedSession inserts a closed session with final counters.
func seedEndedSession(t *testing.T, db *gorm.DB, userID string, startedAt time.Time, intervals, workMinutes, breaks int) string {
	t.Helper()
	end := startedAt.Add(time.Duration(workMinutes) * time.Minute)
	session := &models.TimerSession{
		ID:                      uuid.NewString(),
		ExternalUserID:          userID,
		StartTime:               startedAt,
		EndTime:                 &end,
		IsActive:                false,
		WorkIntervalMinutes:     20,
		BreakDurationSeconds:    20,
		TotalIntervalsCompleted: intervals,
		TotalWorkMinutes:        workMinutes,
		TotalBreaksTaken:        breaks,
		LastActivityAt:          end,
	}
	require.NoError(t, db.Create(session).Error)
	return session.ID
}
