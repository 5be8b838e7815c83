package services

import (
	"log"
	"os"
	"strconv"
	"time"

	"break-timer-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartSchedulers runs the stale-session sweep and the nightly stats
// reconciliation.
func (s *SessionService) StartSchedulers() {
	idleMinutes := 120
	if raw := os.Getenv("SESSION_IDLE_TIMEOUT_MINUTES"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			log.Printf("⚠️ Invalid SESSION_IDLE_TIMEOUT_MINUTES %q, using default 120", raw)
		} else {
			idleMinutes = parsed
		}
	}

	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: close sessions whose client stopped checking in
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			idleBefore := time.Now().UTC().Add(-time.Duration(idleMinutes) * time.Minute)
			if _, err := s.SweepStaleSessions(idleBefore); err != nil {
				log.Printf("[Scheduler] Stale-session sweep failed: %v", err)
			}
		}),
	)

	// Hourly: recompute stats caches for recently active users, catching
	// anything the per-request recompute missed
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			s.reconcileRecentStats()
		}),
	)
}

// reconcileRecentStats rebuilds the stats caches for every user with session
// activity in the last 48 hours. Recomputation is idempotent, so overlapping
// runs are safe.
func (s *SessionService) reconcileRecentStats() {
	since := time.Now().UTC().Add(-48 * time.Hour)

	var userIDs []string
	err := s.DB.Model(&models.TimerSession{}).
		Distinct("external_user_id").
		Where("last_activity_at >= ?", since).
		Pluck("external_user_id", &userIDs).Error
	if err != nil {
		log.Printf("[Scheduler] Failed to list recently active users: %v", err)
		return
	}

	now := time.Now().UTC()
	for _, userID := range userIDs {
		loc := s.account(userID).Location()
		for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
			if _, err := s.Compliance.RecomputeDailyStats(userID, day, loc); err != nil {
				log.Printf("[Scheduler] Daily recompute failed for %s: %v", userID, err)
			}
		}
		if _, err := s.Compliance.RecomputeWeeklyStats(userID, now, loc); err != nil {
			log.Printf("[Scheduler] Weekly recompute failed for %s: %v", userID, err)
		}
		if _, err := s.Compliance.RecomputeMonthlyStats(userID, now, loc); err != nil {
			log.Printf("[Scheduler] Monthly recompute failed for %s: %v", userID, err)
		}
	}
	if len(userIDs) > 0 {
		log.Printf("✅ Reconciled stats for %d user(s)", len(userIDs))
	}
}
