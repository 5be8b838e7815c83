package services

import (
	"testing"
	"time"

	"break-timer-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardExperienceLevelsUp(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	level, leveledUp, err := stack.progression.AwardExperience(userID, 50, "test")
	require.NoError(t, err)
	assert.False(t, leveledUp)
	assert.Equal(t, int64(50), level.TotalExperiencePoints)
	assert.Equal(t, 1, level.CurrentLevel)

	// Crossing the 100 XP threshold reaches level 2
	level, leveledUp, err = stack.progression.AwardExperience(userID, 60, "test")
	require.NoError(t, err)
	assert.True(t, leveledUp)
	assert.Equal(t, int64(110), level.TotalExperiencePoints)
	assert.Equal(t, 2, level.CurrentLevel)
	require.NotNil(t, level.LastLevelUpAt)

	// Level-up leaves an activity trail
	var entries []models.ActivityFeedEntry
	require.NoError(t, stack.db.Where("external_user_id = ? AND activity_type = ?", userID, models.ActivityLevelUp).Find(&entries).Error)
	assert.Len(t, entries, 1)
}

func TestAwardExperienceRejectsNonPositive(t *testing.T) {
	stack := newTestStack(t)

	_, _, err := stack.progression.AwardExperience("user-1", 0, "test")
	assert.ErrorIs(t, err, ErrNegativeExperience)

	_, _, err = stack.progression.AwardExperience("user-1", -10, "test")
	assert.ErrorIs(t, err, ErrNegativeExperience)
}

func TestSessionXPWeights(t *testing.T) {
	weights := DefaultXPWeights()

	// Base only: no breaks, no intervals
	assert.Equal(t, int64(10), weights.SessionXP(0, 0))

	// Full compliance plus the capped length bonus
	assert.Equal(t, int64(10+20+20), weights.SessionXP(1.0, 50))

	// Half compliance, two intervals
	assert.Equal(t, int64(10+10+4), weights.SessionXP(0.5, 2))

	// Out-of-range rates are clamped
	assert.Equal(t, int64(10), weights.SessionXP(-2, 0))
	assert.Equal(t, int64(30), weights.SessionXP(7, 0))
}

// seedQualifyingDay inserts breaks giving the day full compliance.
func seedQualifyingDay(t *testing.T, stack *testStack, userID string, d time.Time) {
	t.Helper()
	seedBreak(t, stack.db, userID, d.Add(10*time.Hour), 25, true, true)
	seedBreak(t, stack.db, userID, d.Add(11*time.Hour), 25, true, true)
}

// seedFailingDay inserts breaks below the qualify threshold.
func seedFailingDay(t *testing.T, stack *testStack, userID string, d time.Time) {
	t.Helper()
	seedBreak(t, stack.db, userID, d.Add(10*time.Hour), 5, false, true)
	seedBreak(t, stack.db, userID, d.Add(11*time.Hour), 25, true, true)
}

func TestStreakGrowsAndResets(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	days := []time.Time{
		day(t, "2026-08-17"),
		day(t, "2026-08-18"),
		day(t, "2026-08-19"),
	}
	for _, d := range days {
		seedQualifyingDay(t, stack, userID, d)
	}
	seedFailingDay(t, stack, userID, day(t, "2026-08-20"))

	for i, d := range days {
		streak, err := stack.progression.UpdateStreak(userID, d, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, i+1, streak.CurrentDailyStreak)
	}

	// A day with data below threshold resets the current streak
	streak, err := stack.progression.UpdateStreak(userID, day(t, "2026-08-20"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0, streak.CurrentDailyStreak)
	assert.Equal(t, 3, streak.BestDailyStreak)
	assert.Nil(t, streak.StreakStartDate)

	// The next qualifying day starts over at 1
	seedQualifyingDay(t, stack, userID, day(t, "2026-08-21"))
	streak, err = stack.progression.UpdateStreak(userID, day(t, "2026-08-21"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentDailyStreak)
	assert.Equal(t, 3, streak.BestDailyStreak)
}

func TestStreakEvaluationIsIdempotentPerDay(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"
	d := day(t, "2026-08-17")
	seedQualifyingDay(t, stack, userID, d)

	first, err := stack.progression.UpdateStreak(userID, d, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, first.CurrentDailyStreak)

	second, err := stack.progression.UpdateStreak(userID, d, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, second.CurrentDailyStreak)
}

func TestStreakUnchangedOnDayWithoutData(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	seedQualifyingDay(t, stack, userID, day(t, "2026-08-17"))
	streak, err := stack.progression.UpdateStreak(userID, day(t, "2026-08-17"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentDailyStreak)

	// No breaks on the 18th: nothing to judge
	streak, err = stack.progression.UpdateStreak(userID, day(t, "2026-08-18"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentDailyStreak)
}

func TestStreakGapBreaksContinuity(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	seedQualifyingDay(t, stack, userID, day(t, "2026-08-17"))
	seedQualifyingDay(t, stack, userID, day(t, "2026-08-19"))

	_, err := stack.progression.UpdateStreak(userID, day(t, "2026-08-17"), time.UTC)
	require.NoError(t, err)

	// The 19th qualifies but the 18th was idle, so it restarts at 1
	streak, err := stack.progression.UpdateStreak(userID, day(t, "2026-08-19"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentDailyStreak)
}

func TestStreakSameDayVerdictCanUpgrade(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// One short break early in the day: rate 0.00, below the threshold
	seedBreak(t, stack.db, userID, today.Add(time.Hour), 5, false, true)
	streak, err := stack.progression.UpdateStreak(userID, today, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0, streak.CurrentDailyStreak)

	// Nine compliant breaks later lift the same day to 0.90
	for i := 0; i < 9; i++ {
		seedBreak(t, stack.db, userID, today.Add(2*time.Hour+time.Duration(i)*10*time.Minute), 25, true, true)
	}
	streak, err = stack.progression.UpdateStreak(userID, today, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentDailyStreak)
	require.NotNil(t, streak.LastQualifiedDate)
}

func TestStreakNotResetWhileDayInProgress(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	seedQualifyingDay(t, stack, userID, yesterday)
	streak, err := stack.progression.UpdateStreak(userID, yesterday, time.UTC)
	require.NoError(t, err)
	require.Equal(t, 1, streak.CurrentDailyStreak)

	// Today is failing so far, but the verdict stays open until midnight
	seedBreak(t, stack.db, userID, today.Add(time.Hour), 5, false, true)
	streak, err = stack.progression.UpdateStreak(userID, today, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentDailyStreak)

	// Enough compliant breaks turn the day around and extend the chain
	for i := 0; i < 9; i++ {
		seedBreak(t, stack.db, userID, today.Add(2*time.Hour+time.Duration(i)*10*time.Minute), 25, true, true)
	}
	streak, err = stack.progression.UpdateStreak(userID, today, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentDailyStreak)
}

func TestRecordSessionCompleted(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	require.NoError(t, stack.progression.RecordSessionCompleted(userID, 40, 120))
	require.NoError(t, stack.progression.RecordSessionCompleted(userID, 20, 60))

	var streak models.UserStreakData
	require.NoError(t, stack.db.Where("external_user_id = ?", userID).First(&streak).Error)
	assert.Equal(t, 2, streak.TotalSessionsCompleted)
	assert.Equal(t, 3, streak.TotalBreakTimeMinutes)
	assert.InDelta(t, 30.0, streak.AverageSessionLength, 0.0001)
}

func TestLevelLadder(t *testing.T) {
	assert.Equal(t, 1, models.LevelForXP(0))
	assert.Equal(t, 1, models.LevelForXP(99))
	assert.Equal(t, 2, models.LevelForXP(100))
	assert.Equal(t, 3, models.LevelForXP(250))
	assert.Equal(t, models.MaxLevel, models.LevelForXP(22000))
	assert.Equal(t, models.MaxLevel, models.LevelForXP(1_000_000))

	assert.Equal(t, int64(100), models.XPForNextLevel(1))
	assert.Equal(t, int64(-1), models.XPForNextLevel(models.MaxLevel))
}
