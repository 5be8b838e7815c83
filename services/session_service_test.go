package services

import (
	"testing"
	"time"

	"break-timer-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSessionSingleActive(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	assert.True(t, session.IsActive)
	require.Len(t, session.Intervals, 1)
	assert.Equal(t, models.IntervalPending, session.Intervals[0].Status)
	assert.Equal(t, 20, session.WorkIntervalMinutes)
	assert.Equal(t, 20, session.BreakDurationSeconds)

	_, err = stack.sessions.StartSession(userID)
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)

	// Another user is unaffected
	_, err = stack.sessions.StartSession("user-2")
	require.NoError(t, err)

	_, err = stack.sessions.EndSession(userID, session.ID)
	require.NoError(t, err)

	_, err = stack.sessions.StartSession(userID)
	require.NoError(t, err)
}

func TestActiveSessionBackedByUniqueIndex(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)

	// A second active row slipping past the pre-insert check must be
	// rejected by the database itself
	dupe := &models.TimerSession{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		StartTime:      time.Now().UTC(),
		IsActive:       true,
		LastActivityAt: time.Now().UTC(),
	}
	err = stack.db.Create(dupe).Error
	require.Error(t, err)
	assert.True(t, isDuplicateKeyError(err))

	var active int64
	require.NoError(t, stack.db.Model(&models.TimerSession{}).
		Where("external_user_id = ? AND is_active = ?", userID, true).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)

	// Ended sessions never collide; the index only covers active rows
	_, err = stack.sessions.EndSession(userID, session.ID)
	require.NoError(t, err)
	again, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	_, err = stack.sessions.EndSession(userID, again.ID)
	require.NoError(t, err)

	var inactive int64
	require.NoError(t, stack.db.Model(&models.TimerSession{}).
		Where("external_user_id = ? AND is_active = ?", userID, false).
		Count(&inactive).Error)
	assert.Equal(t, int64(2), inactive)
}

func TestIntervalLifecycle(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)

	interval, err := stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalActive, interval.Status)
	require.NotNil(t, interval.StartTime)

	// Only one interval may run at a time
	_, err = stack.sessions.BeginInterval(userID, session.ID)
	assert.ErrorIs(t, err, ErrIntervalState)

	done, err := stack.sessions.CompleteInterval(userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalCompleted, done.Status)
	require.NotNil(t, done.EndTime)

	// No active interval left to complete
	_, err = stack.sessions.CompleteInterval(userID, session.ID)
	assert.ErrorIs(t, err, ErrIntervalState)

	var reloaded models.TimerSession
	require.NoError(t, stack.db.First(&reloaded, "id = ?", session.ID).Error)
	assert.Equal(t, 1, reloaded.TotalIntervalsCompleted)
	assert.Equal(t, 20, reloaded.TotalWorkMinutes)
}

func TestBreakLifecycle(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	interval, err := stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)

	// Break before the interval finished
	_, err = stack.sessions.StartBreak(userID, session.ID, interval.ID)
	assert.ErrorIs(t, err, ErrIntervalState)

	_, err = stack.sessions.CompleteInterval(userID, session.ID)
	require.NoError(t, err)

	record, err := stack.sessions.StartBreak(userID, session.ID, interval.ID)
	require.NoError(t, err)
	assert.False(t, record.Completed)

	// The open break must be finalized before another can start
	_, err = stack.sessions.StartBreak(userID, session.ID, interval.ID)
	assert.ErrorIs(t, err, ErrIntervalState)

	// Backdate the break start so the server-measured duration qualifies
	backdated := time.Now().UTC().Add(-25 * time.Second)
	require.NoError(t, stack.db.Model(&models.BreakRecord{}).
		Where("id = ?", record.ID).
		Update("break_start_time", backdated).Error)

	finished, err := stack.sessions.CompleteBreak(userID, record.ID, true, 0)
	require.NoError(t, err)
	assert.True(t, finished.Completed)
	assert.True(t, finished.IsCompliant())
	assert.GreaterOrEqual(t, finished.DurationSeconds, models.CompliantBreakSeconds)

	// Completing again is refused
	_, err = stack.sessions.CompleteBreak(userID, record.ID, true, 0)
	assert.ErrorIs(t, err, ErrBreakAlreadyCompleted)

	// A compliant break pays XP
	progress, err := stack.progression.Progress(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), progress.Level.TotalExperiencePoints)

	// And queues the next interval
	var pending int64
	require.NoError(t, stack.db.Model(&models.TimerInterval{}).
		Where("session_id = ? AND status = ?", session.ID, models.IntervalPending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)

	// A completed break closes the interval's break slot permanently
	_, err = stack.sessions.StartBreak(userID, session.ID, interval.ID)
	assert.ErrorIs(t, err, ErrBreakAlreadyCompleted)
}

func TestAbandonedBreakAllowsRetry(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	interval, err := stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)
	_, err = stack.sessions.CompleteInterval(userID, session.ID)
	require.NoError(t, err)

	first, err := stack.sessions.StartBreak(userID, session.ID, interval.ID)
	require.NoError(t, err)
	_, err = stack.sessions.SkipBreak(userID, first.ID)
	require.NoError(t, err)

	// Skipping abandoned the break; the interval can still get a real one
	second, err := stack.sessions.StartBreak(userID, session.ID, interval.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	backdated := time.Now().UTC().Add(-25 * time.Second)
	require.NoError(t, stack.db.Model(&models.BreakRecord{}).
		Where("id = ?", second.ID).
		Update("break_start_time", backdated).Error)

	finished, err := stack.sessions.CompleteBreak(userID, second.ID, true, 0)
	require.NoError(t, err)
	assert.True(t, finished.IsCompliant())

	// Now the slot really is closed
	_, err = stack.sessions.StartBreak(userID, session.ID, interval.ID)
	assert.ErrorIs(t, err, ErrBreakAlreadyCompleted)
}

func TestClientElapsedNeverExceedsServer(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	interval, err := stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)
	_, err = stack.sessions.CompleteInterval(userID, session.ID)
	require.NoError(t, err)

	record, err := stack.sessions.StartBreak(userID, session.ID, interval.ID)
	require.NoError(t, err)

	// Client claims 120s but the break just started: server wins
	finished, err := stack.sessions.CompleteBreak(userID, record.ID, true, 120)
	require.NoError(t, err)
	assert.Less(t, finished.DurationSeconds, models.CompliantBreakSeconds)
	assert.False(t, finished.IsCompliant())
}

func TestSkipInterval(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	_, err = stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)

	skipped, err := stack.sessions.SkipInterval(userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalSkipped, skipped.Status)

	// No work credited, and the session can continue
	var reloaded models.TimerSession
	require.NoError(t, stack.db.First(&reloaded, "id = ?", session.ID).Error)
	assert.Equal(t, 0, reloaded.TotalIntervalsCompleted)

	next, err := stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.IntervalNumber)
}

func TestEndSessionIdempotent(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	_, err = stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)
	_, err = stack.sessions.CompleteInterval(userID, session.ID)
	require.NoError(t, err)

	first, err := stack.sessions.EndSession(userID, session.ID)
	require.NoError(t, err)
	assert.False(t, first.IsActive)
	require.NotNil(t, first.EndTime)

	second, err := stack.sessions.EndSession(userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TotalIntervalsCompleted, second.TotalIntervalsCompleted)
	assert.Equal(t, first.TotalWorkMinutes, second.TotalWorkMinutes)
	assert.Equal(t, first.EndTime.Unix(), second.EndTime.Unix())

	// Ending someone else's session is a not-found, not a hint
	_, err = stack.sessions.EndSession("user-2", session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndSessionRecomputesDailyStats(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	_, err = stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)
	_, err = stack.sessions.CompleteInterval(userID, session.ID)
	require.NoError(t, err)
	_, err = stack.sessions.EndSession(userID, session.ID)
	require.NoError(t, err)

	var stats models.DailyStats
	today := time.Now().UTC().Format("2006-01-02")
	require.NoError(t, stack.db.Where("external_user_id = ? AND date = ?", userID, today).First(&stats).Error)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.TotalIntervalsCompleted)
	assert.Equal(t, 20, stats.TotalWorkMinutes)
}

func TestFreeDailyIntervalLimit(t *testing.T) {
	stack := newTestStack(t)
	userID := "free-user"
	createAccount(t, stack.db, userID, models.TierFree)

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)

	// Spend the default quota of 6 intervals
	for i := 0; i < 6; i++ {
		_, err = stack.sessions.BeginInterval(userID, session.ID)
		require.NoError(t, err)
		_, err = stack.sessions.SkipInterval(userID, session.ID)
		require.NoError(t, err)
	}

	_, err = stack.sessions.BeginInterval(userID, session.ID)
	assert.ErrorIs(t, err, ErrDailyLimitExceeded)

	// A fresh session doesn't refund the quota
	_, err = stack.sessions.EndSession(userID, session.ID)
	require.NoError(t, err)
	_, err = stack.sessions.StartSession(userID)
	assert.ErrorIs(t, err, ErrDailyLimitExceeded)
}

func TestPremiumHasNoDailyLimit(t *testing.T) {
	stack := newTestStack(t)
	userID := "premium-user"
	createAccount(t, stack.db, userID, models.TierPremium)

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err = stack.sessions.BeginInterval(userID, session.ID)
		require.NoError(t, err)
		_, err = stack.sessions.SkipInterval(userID, session.ID)
		require.NoError(t, err)
	}
}

func TestSyncStateServerAuthoritative(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	interval, err := stack.sessions.BeginInterval(userID, session.ID)
	require.NoError(t, err)

	// Pretend the interval started 5 minutes ago
	backdated := time.Now().UTC().Add(-5 * time.Minute)
	require.NoError(t, stack.db.Model(&models.TimerInterval{}).
		Where("id = ?", interval.ID).
		Update("start_time", backdated).Error)

	state, err := stack.sessions.SyncState(userID, session.ID)
	require.NoError(t, err)
	require.NotNil(t, state.CurrentInterval)
	assert.InDelta(t, 300, state.IntervalElapsedSeconds, 2)
	assert.InDelta(t, 20*60-300, state.IntervalRemainingSeconds, 2)
	assert.Nil(t, state.OpenBreak)
}

func TestSweepStaleSessions(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)

	// Fresh session is not swept
	closed, err := stack.sessions.SweepStaleSessions(time.Now().UTC().Add(-2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	require.NoError(t, stack.db.Model(&models.TimerSession{}).
		Where("id = ?", session.ID).
		Update("last_activity_at", time.Now().UTC().Add(-3*time.Hour)).Error)

	closed, err = stack.sessions.SweepStaleSessions(time.Now().UTC().Add(-2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	var reloaded models.TimerSession
	require.NoError(t, stack.db.First(&reloaded, "id = ?", session.ID).Error)
	assert.False(t, reloaded.IsActive)
}

func TestUpdateSettingsDoesNotTouchRunningSession(t *testing.T) {
	stack := newTestStack(t)
	userID := "user-1"

	session, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)

	_, err = stack.sessions.UpdateSettings(userID, &models.UserTimerSettings{
		WorkIntervalMinutes:  25,
		BreakDurationSeconds: 30,
	})
	require.NoError(t, err)

	var reloaded models.TimerSession
	require.NoError(t, stack.db.First(&reloaded, "id = ?", session.ID).Error)
	assert.Equal(t, 20, reloaded.WorkIntervalMinutes)

	_, err = stack.sessions.EndSession(userID, session.ID)
	require.NoError(t, err)

	// The next session picks up the new settings
	next, err := stack.sessions.StartSession(userID)
	require.NoError(t, err)
	assert.Equal(t, 25, next.WorkIntervalMinutes)
	assert.Equal(t, 30, next.BreakDurationSeconds)
}
