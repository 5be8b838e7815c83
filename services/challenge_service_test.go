package services

import (
	"testing"
	"time"

	"break-timer-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChallenge(t *testing.T, stack *testStack, metric models.ChallengeMetric, target int64, start, end time.Time) *models.Challenge {
	t.Helper()
	challenge := &models.Challenge{
		ID:               uuid.NewString(),
		Code:             "challenge-" + uuid.NewString()[:8],
		Name:             "Test Challenge",
		Metric:           metric,
		TargetValue:      target,
		StartDate:        start,
		EndDate:          end,
		IsActive:         true,
		ExperienceReward: 50,
	}
	require.NoError(t, stack.db.Create(challenge).Error)
	return challenge
}

func openWindow() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-24 * time.Hour), now.Add(24 * time.Hour)
}

func TestJoinChallenge(t *testing.T) {
	stack := newTestStack(t)
	start, end := openWindow()
	challenge := seedChallenge(t, stack, models.MetricSessions, 10, start, end)

	participation, err := stack.challenges.JoinChallenge("user-1", challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), participation.CurrentProgress)
	assert.False(t, participation.IsCompleted)

	_, err = stack.challenges.JoinChallenge("user-1", challenge.ID)
	assert.ErrorIs(t, err, ErrChallengeAlreadyJoined)

	_, err = stack.challenges.JoinChallenge("user-1", uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoinClosedChallenge(t *testing.T) {
	stack := newTestStack(t)
	now := time.Now().UTC()

	past := seedChallenge(t, stack, models.MetricSessions, 10, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	_, err := stack.challenges.JoinChallenge("user-1", past.ID)
	assert.ErrorIs(t, err, ErrChallengeClosed)

	future := seedChallenge(t, stack, models.MetricSessions, 10, now.Add(24*time.Hour), now.Add(48*time.Hour))
	_, err = stack.challenges.JoinChallenge("user-1", future.ID)
	assert.ErrorIs(t, err, ErrChallengeClosed)

	inactive := seedChallenge(t, stack, models.MetricSessions, 10, now.Add(-24*time.Hour), now.Add(24*time.Hour))
	require.NoError(t, stack.db.Model(inactive).Update("is_active", false).Error)
	_, err = stack.challenges.JoinChallenge("user-1", inactive.ID)
	assert.ErrorIs(t, err, ErrChallengeClosed)
}

func TestRecordProgressCapsAtTarget(t *testing.T) {
	stack := newTestStack(t)
	start, end := openWindow()
	challenge := seedChallenge(t, stack, models.MetricCompliantBreaks, 10, start, end)

	_, err := stack.challenges.JoinChallenge("user-1", challenge.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, stack.challenges.RecordProgress("user-1", models.MetricCompliantBreaks, 4))
	}

	var participation models.ChallengeParticipation
	require.NoError(t, stack.db.Where("external_user_id = ? AND challenge_id = ?", "user-1", challenge.ID).
		First(&participation).Error)
	assert.Equal(t, int64(10), participation.CurrentProgress)
	assert.True(t, participation.IsCompleted)
	require.NotNil(t, participation.CompletedAt)

	// Completion paid the reward exactly once
	progress, err := stack.progression.Progress("user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), progress.Level.TotalExperiencePoints)

	// Progress after completion is ignored
	require.NoError(t, stack.challenges.RecordProgress("user-1", models.MetricCompliantBreaks, 4))
	require.NoError(t, stack.db.Where("id = ?", participation.ID).First(&participation).Error)
	assert.Equal(t, int64(10), participation.CurrentProgress)
}

func TestRecordProgressNoOpWhenNotJoined(t *testing.T) {
	stack := newTestStack(t)
	start, end := openWindow()
	seedChallenge(t, stack, models.MetricSessions, 10, start, end)

	require.NoError(t, stack.challenges.RecordProgress("user-1", models.MetricSessions, 1))

	var count int64
	require.NoError(t, stack.db.Model(&models.ChallengeParticipation{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRecordProgressOnlyMatchingMetric(t *testing.T) {
	stack := newTestStack(t)
	start, end := openWindow()
	sessionsChallenge := seedChallenge(t, stack, models.MetricSessions, 10, start, end)
	minutesChallenge := seedChallenge(t, stack, models.MetricWorkMinutes, 100, start, end)

	_, err := stack.challenges.JoinChallenge("user-1", sessionsChallenge.ID)
	require.NoError(t, err)
	_, err = stack.challenges.JoinChallenge("user-1", minutesChallenge.ID)
	require.NoError(t, err)

	require.NoError(t, stack.challenges.RecordProgress("user-1", models.MetricWorkMinutes, 20))

	var sessions, minutes models.ChallengeParticipation
	require.NoError(t, stack.db.Where("challenge_id = ?", sessionsChallenge.ID).First(&sessions).Error)
	require.NoError(t, stack.db.Where("challenge_id = ?", minutesChallenge.ID).First(&minutes).Error)
	assert.Equal(t, int64(0), sessions.CurrentProgress)
	assert.Equal(t, int64(20), minutes.CurrentProgress)
}

func TestActiveChallenges(t *testing.T) {
	stack := newTestStack(t)
	now := time.Now().UTC()

	open := seedChallenge(t, stack, models.MetricSessions, 10, now.Add(-time.Hour), now.Add(time.Hour))
	seedChallenge(t, stack, models.MetricSessions, 10, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	active, err := stack.challenges.ActiveChallenges(now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)
}
