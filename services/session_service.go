package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"break-timer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionService drives the session/interval/break state machine and fans
// completed work out to stats, streaks, XP, badges, and challenges. All state
// transitions happen inside transactions with the session row locked; the
// gamification fan-out runs after commit and is never allowed to fail the
// user's request.
type SessionService struct {
	DB          *gorm.DB
	Events      EventPublisher
	Compliance  *ComplianceService
	Progression *ProgressionService
	Badges      *BadgeService
	Challenges  *ChallengeService

	freeDailyIntervalLimit int
}

func NewSessionService(
	db *gorm.DB,
	events EventPublisher,
	compliance *ComplianceService,
	progression *ProgressionService,
	badges *BadgeService,
	challenges *ChallengeService,
) *SessionService {
	limit := 6
	if raw := os.Getenv("FREE_DAILY_INTERVAL_LIMIT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			log.Printf("⚠️ Invalid FREE_DAILY_INTERVAL_LIMIT %q, using default 6", raw)
		} else {
			limit = parsed
		}
	}
	return &SessionService{
		DB:                     db,
		Events:                 events,
		Compliance:             compliance,
		Progression:            progression,
		Badges:                 badges,
		Challenges:             challenges,
		freeDailyIntervalLimit: limit,
	}
}

// account returns the local user snapshot, or a free-tier UTC default when
// the sync worker hasn't delivered this user yet.
func (s *SessionService) account(userID string) *models.UserAccount {
	var account models.UserAccount
	err := s.DB.Where("external_user_id = ?", userID).First(&account).Error
	if err != nil {
		return &models.UserAccount{ExternalUserID: userID, SubscriptionTier: models.TierFree, Timezone: "UTC"}
	}
	return &account
}

// dailyIntervalsUsed counts intervals begun today in the user's timezone.
// The free-tier quota is spent when an interval starts, not when a session
// does, so abandoning a session doesn't refund anything.
func (s *SessionService) dailyIntervalsUsed(tx *gorm.DB, userID string, now time.Time, loc *time.Location) (int64, error) {
	dayStart, dayEnd := dayBounds(now, loc)
	var count int64
	err := tx.Model(&models.TimerInterval{}).
		Joins("JOIN timer_sessions ON timer_sessions.id = timer_intervals.session_id").
		Where("timer_sessions.external_user_id = ? AND timer_intervals.start_time >= ? AND timer_intervals.start_time < ?",
			userID, dayStart, dayEnd).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count today's intervals for %s: %w", userID, err)
	}
	return count, nil
}

// StartSession opens a new session with one pending interval, freezing the
// user's timer settings into it. Fails when the user already has an active
// session or a free user has spent today's interval quota.
func (s *SessionService) StartSession(userID string) (*models.TimerSession, error) {
	account := s.account(userID)
	now := time.Now().UTC()

	settings := s.settingsOrDefaults(userID)

	var session *models.TimerSession
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.TimerSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_user_id = ? AND is_active = ?", userID, true).
			First(&existing).Error
		if err == nil {
			return ErrSessionAlreadyActive
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check active session for %s: %w", userID, err)
		}

		if !account.IsPremium() {
			used, err := s.dailyIntervalsUsed(tx, userID, now, account.Location())
			if err != nil {
				return err
			}
			if used >= int64(s.freeDailyIntervalLimit) {
				return ErrDailyLimitExceeded
			}
		}

		session = &models.TimerSession{
			ID:                   uuid.NewString(),
			ExternalUserID:       userID,
			StartTime:            now,
			IsActive:             true,
			WorkIntervalMinutes:  settings.WorkIntervalMinutes,
			BreakDurationSeconds: settings.BreakDurationSeconds,
			LastActivityAt:       now,
		}
		if err := tx.Create(session).Error; err != nil {
			// Two concurrent starts can both pass the check above; the
			// partial unique index on active sessions decides the winner.
			if isDuplicateKeyError(err) {
				return ErrSessionAlreadyActive
			}
			return fmt.Errorf("failed to create session for %s: %w", userID, err)
		}

		first := models.TimerInterval{
			ID:             uuid.NewString(),
			SessionID:      session.ID,
			IntervalNumber: 1,
			Status:         models.IntervalPending,
		}
		if err := tx.Create(&first).Error; err != nil {
			return fmt.Errorf("failed to create first interval for session %s: %w", session.ID, err)
		}
		session.Intervals = []models.TimerInterval{first}

		entry := activityEntry(userID, models.ActivitySessionStarted, map[string]any{
			"session_id": session.ID,
		})
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Session %s started for user %s", session.ID, userID)
	return session, nil
}

// lockSession loads the caller's session under FOR UPDATE. Missing and
// not-owned both come back as ErrNotFound.
func (s *SessionService) lockSession(tx *gorm.DB, userID, sessionID string) (*models.TimerSession, error) {
	var session models.TimerSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND external_user_id = ?", sessionID, userID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return &session, nil
}

// BeginInterval activates the session's next pending interval. Only one
// interval may run at a time, and free users are held to the daily quota.
func (s *SessionService) BeginInterval(userID, sessionID string) (*models.TimerInterval, error) {
	account := s.account(userID)
	now := time.Now().UTC()

	var interval *models.TimerInterval
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if !session.IsActive {
			return ErrSessionNotActive
		}

		var running int64
		err = tx.Model(&models.TimerInterval{}).
			Where("session_id = ? AND status = ?", sessionID, models.IntervalActive).
			Count(&running).Error
		if err != nil {
			return fmt.Errorf("failed to check running interval in %s: %w", sessionID, err)
		}
		if running > 0 {
			return ErrIntervalState
		}

		if !account.IsPremium() {
			used, err := s.dailyIntervalsUsed(tx, userID, now, account.Location())
			if err != nil {
				return err
			}
			if used >= int64(s.freeDailyIntervalLimit) {
				return ErrDailyLimitExceeded
			}
		}

		var pending models.TimerInterval
		err = tx.Where("session_id = ? AND status = ?", sessionID, models.IntervalPending).
			Order("interval_number ASC").
			First(&pending).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrIntervalState
		}
		if err != nil {
			return fmt.Errorf("failed to load pending interval in %s: %w", sessionID, err)
		}

		pending.StartTime = &now
		pending.Status = models.IntervalActive
		if err := tx.Save(&pending).Error; err != nil {
			return fmt.Errorf("failed to activate interval %s: %w", pending.ID, err)
		}
		interval = &pending

		return s.touchSession(tx, session, now)
	})
	if err != nil {
		return nil, err
	}
	return interval, nil
}

// CompleteInterval closes the running interval and credits its work minutes
// to the session.
func (s *SessionService) CompleteInterval(userID, sessionID string) (*models.TimerInterval, error) {
	now := time.Now().UTC()
	var interval *models.TimerInterval
	var workMinutes int

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if !session.IsActive {
			return ErrSessionNotActive
		}

		active, err := s.activeInterval(tx, sessionID)
		if err != nil {
			return err
		}

		active.EndTime = &now
		active.Status = models.IntervalCompleted
		if err := tx.Save(active).Error; err != nil {
			return fmt.Errorf("failed to complete interval %s: %w", active.ID, err)
		}
		interval = active

		session.TotalIntervalsCompleted++
		session.TotalWorkMinutes += session.WorkIntervalMinutes
		workMinutes = session.WorkIntervalMinutes
		return s.touchSession(tx, session, now)
	})
	if err != nil {
		return nil, err
	}

	if err := s.Challenges.RecordProgress(userID, models.MetricWorkMinutes, int64(workMinutes)); err != nil {
		log.Printf("⚠️ Failed to record work-minute challenge progress for %s: %v", userID, err)
	}
	return interval, nil
}

// SkipInterval abandons the running interval without credit and queues the
// next one so the session can continue.
func (s *SessionService) SkipInterval(userID, sessionID string) (*models.TimerInterval, error) {
	now := time.Now().UTC()
	var interval *models.TimerInterval

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if !session.IsActive {
			return ErrSessionNotActive
		}

		active, err := s.activeInterval(tx, sessionID)
		if err != nil {
			return err
		}

		active.EndTime = &now
		active.Status = models.IntervalSkipped
		if err := tx.Save(active).Error; err != nil {
			return fmt.Errorf("failed to skip interval %s: %w", active.ID, err)
		}
		interval = active

		if err := s.appendPendingInterval(tx, sessionID); err != nil {
			return err
		}
		return s.touchSession(tx, session, now)
	})
	if err != nil {
		return nil, err
	}
	return interval, nil
}

// StartBreak opens a break after a completed interval. The interval must be
// the session's most recently finished one and must not already have a break.
func (s *SessionService) StartBreak(userID, sessionID, intervalID string) (*models.BreakRecord, error) {
	now := time.Now().UTC()
	var record *models.BreakRecord

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if !session.IsActive {
			return ErrSessionNotActive
		}

		var interval models.TimerInterval
		err = tx.Where("id = ? AND session_id = ?", intervalID, sessionID).First(&interval).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load interval %s: %w", intervalID, err)
		}
		if interval.Status != models.IntervalCompleted {
			return ErrIntervalState
		}

		// A completed break closes the interval's break for good; an open one
		// must be finalized first. Abandoned breaks don't block a retry.
		var prior []models.BreakRecord
		err = tx.Where("interval_id = ?", intervalID).Find(&prior).Error
		if err != nil {
			return fmt.Errorf("failed to check existing breaks for interval %s: %w", intervalID, err)
		}
		for i := range prior {
			if prior[i].Completed {
				return ErrBreakAlreadyCompleted
			}
			if prior[i].BreakEndTime == nil {
				return ErrIntervalState
			}
		}

		record = &models.BreakRecord{
			ID:             uuid.NewString(),
			ExternalUserID: userID,
			SessionID:      sessionID,
			IntervalID:     intervalID,
			BreakStartTime: now,
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to create break for interval %s: %w", intervalID, err)
		}

		session.TotalBreaksTaken++
		if err := s.touchSession(tx, session, now); err != nil {
			return err
		}

		entry := activityEntry(userID, models.ActivityBreakStarted, map[string]any{
			"session_id": sessionID,
		})
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CompleteBreak finalizes a break. Duration is measured on the server from
// the break's own start time; a smaller client-reported elapsed is honored
// (the tab may have been backgrounded) but a larger one never is.
func (s *SessionService) CompleteBreak(userID, breakID string, lookedAtDistance bool, clientElapsedSeconds int) (*models.BreakRecord, error) {
	now := time.Now().UTC()
	var record *models.BreakRecord

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockBreak(tx, userID, breakID)
		if err != nil {
			return err
		}

		elapsed := int(now.Sub(loaded.BreakStartTime).Seconds())
		if clientElapsedSeconds > 0 && clientElapsedSeconds < elapsed {
			elapsed = clientElapsedSeconds
		}

		loaded.BreakEndTime = &now
		loaded.DurationSeconds = elapsed
		loaded.LookedAtDistance = lookedAtDistance
		loaded.Completed = true
		if err := tx.Save(loaded).Error; err != nil {
			return fmt.Errorf("failed to complete break %s: %w", breakID, err)
		}
		record = loaded

		session, err := s.lockSession(tx, userID, loaded.SessionID)
		if err != nil {
			return err
		}
		if session.IsActive {
			if err := s.appendPendingInterval(tx, session.ID); err != nil {
				return err
			}
			if err := s.touchSession(tx, session, now); err != nil {
				return err
			}
		}

		entry := activityEntry(userID, models.ActivityBreakTaken, map[string]any{
			"session_id": loaded.SessionID,
			"compliant":  loaded.IsCompliant(),
		})
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}

	if record.IsCompliant() {
		if _, _, err := s.Progression.AwardExperience(userID, s.Progression.Weights.CompliantBreak, "compliant_break"); err != nil {
			log.Printf("⚠️ Failed to award break XP for %s: %v", userID, err)
		}
		if err := s.Challenges.RecordProgress(userID, models.MetricCompliantBreaks, 1); err != nil {
			log.Printf("⚠️ Failed to record break challenge progress for %s: %v", userID, err)
		}
		if _, err := s.Badges.EvaluateBadges(userID); err != nil {
			log.Printf("⚠️ Badge evaluation failed for %s: %v", userID, err)
		}
	}
	return record, nil
}

// SkipBreak finalizes a break as abandoned. It still queues the next interval
// so skipping never strands the session.
func (s *SessionService) SkipBreak(userID, breakID string) (*models.BreakRecord, error) {
	now := time.Now().UTC()
	var record *models.BreakRecord

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockBreak(tx, userID, breakID)
		if err != nil {
			return err
		}

		loaded.BreakEndTime = &now
		loaded.DurationSeconds = int(now.Sub(loaded.BreakStartTime).Seconds())
		loaded.Completed = false
		if err := tx.Save(loaded).Error; err != nil {
			return fmt.Errorf("failed to skip break %s: %w", breakID, err)
		}
		record = loaded

		session, err := s.lockSession(tx, userID, loaded.SessionID)
		if err != nil {
			return err
		}
		if session.IsActive {
			if err := s.appendPendingInterval(tx, session.ID); err != nil {
				return err
			}
			return s.touchSession(tx, session, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// EndSession closes the session and runs the gamification fan-out. Ending an
// already-ended session returns its summary unchanged, so client retries are
// harmless.
func (s *SessionService) EndSession(userID, sessionID string) (*models.TimerSession, error) {
	now := time.Now().UTC()
	var session *models.TimerSession
	alreadyEnded := false

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if !loaded.IsActive {
			session = loaded
			alreadyEnded = true
			return nil
		}

		// A still-running interval is abandoned with the session.
		err = tx.Model(&models.TimerInterval{}).
			Where("session_id = ? AND status = ?", sessionID, models.IntervalActive).
			Updates(map[string]any{"status": models.IntervalSkipped, "end_time": now}).Error
		if err != nil {
			return fmt.Errorf("failed to close running interval in %s: %w", sessionID, err)
		}

		loaded.EndTime = &now
		loaded.IsActive = false
		loaded.LastActivityAt = now
		if err := tx.Save(loaded).Error; err != nil {
			return fmt.Errorf("failed to end session %s: %w", sessionID, err)
		}
		session = loaded

		entry := activityEntry(userID, models.ActivitySessionEnded, map[string]any{
			"session_id":          sessionID,
			"intervals_completed": loaded.TotalIntervalsCompleted,
			"work_minutes":        loaded.TotalWorkMinutes,
		})
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	if alreadyEnded {
		return session, nil
	}

	s.finalizeSession(userID, session)
	return session, nil
}

// finalizeSession runs the post-commit fan-out for a freshly ended session.
// Every step is best-effort: stats and streak recomputation are idempotent
// and the nightly job covers anything that fails here.
func (s *SessionService) finalizeSession(userID string, session *models.TimerSession) {
	account := s.account(userID)
	loc := account.Location()
	now := time.Now().UTC()

	if _, err := s.Compliance.RecomputeDailyStats(userID, now, loc); err != nil {
		log.Printf("⚠️ Daily stats recompute failed for %s: %v", userID, err)
	}
	if _, err := s.Compliance.RecomputeWeeklyStats(userID, now, loc); err != nil {
		log.Printf("⚠️ Weekly stats recompute failed for %s: %v", userID, err)
	}
	if _, err := s.Compliance.RecomputeMonthlyStats(userID, now, loc); err != nil {
		log.Printf("⚠️ Monthly stats recompute failed for %s: %v", userID, err)
	}

	streakBefore := 0
	if streak, err := s.streakSnapshot(userID); err == nil {
		streakBefore = streak
	}
	streak, err := s.Progression.UpdateStreak(userID, now, loc)
	if err != nil {
		log.Printf("⚠️ Streak update failed for %s: %v", userID, err)
	} else if streak.CurrentDailyStreak > streakBefore {
		if err := s.Challenges.RecordProgress(userID, models.MetricStreakDays, int64(streak.CurrentDailyStreak-streakBefore)); err != nil {
			log.Printf("⚠️ Failed to record streak challenge progress for %s: %v", userID, err)
		}
	}

	breakSeconds := s.sessionBreakSeconds(session.ID)
	if err := s.Progression.RecordSessionCompleted(userID, session.TotalWorkMinutes, breakSeconds); err != nil {
		log.Printf("⚠️ Lifetime counter update failed for %s: %v", userID, err)
	}

	if account.IsPremium() {
		rate := s.sessionComplianceRate(session.ID)
		points := s.Progression.Weights.SessionXP(rate, session.TotalIntervalsCompleted)
		if _, _, err := s.Progression.AwardExperience(userID, points, "session_completed"); err != nil {
			log.Printf("⚠️ Failed to award session XP for %s: %v", userID, err)
		}
	}

	if err := s.Challenges.RecordProgress(userID, models.MetricSessions, 1); err != nil {
		log.Printf("⚠️ Failed to record session challenge progress for %s: %v", userID, err)
	}
	if _, err := s.Badges.EvaluateBadges(userID); err != nil {
		log.Printf("⚠️ Badge evaluation failed for %s: %v", userID, err)
	}

	emit(s.Events, EventSessionEnded, userID, session.ID)
	log.Printf("✅ Session %s ended for user %s (%d intervals, %d min)",
		session.ID, userID, session.TotalIntervalsCompleted, session.TotalWorkMinutes)
}

func (s *SessionService) streakSnapshot(userID string) (int, error) {
	var streak models.UserStreakData
	err := s.DB.Where("external_user_id = ?", userID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return streak.CurrentDailyStreak, nil
}

func (s *SessionService) sessionBreakSeconds(sessionID string) int {
	var total int64
	err := s.DB.Model(&models.BreakRecord{}).
		Select("COALESCE(SUM(duration_seconds), 0)").
		Where("session_id = ?", sessionID).
		Scan(&total).Error
	if err != nil {
		return 0
	}
	return int(total)
}

func (s *SessionService) sessionComplianceRate(sessionID string) float64 {
	base := s.DB.Model(&models.BreakRecord{}).Where("session_id = ?", sessionID)
	var total, compliant int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil || total == 0 {
		return 0
	}
	if err := compliantBreakScope(base.Session(&gorm.Session{})).Count(&compliant).Error; err != nil {
		return 0
	}
	return float64(compliant) / float64(total)
}

// SessionState is the authoritative snapshot for client resync. Elapsed and
// remaining are computed from server timestamps so a clock-skewed or
// throttled client converges back to the truth.
type SessionState struct {
	Session                  *models.TimerSession  `json:"session"`
	CurrentInterval          *models.TimerInterval `json:"current_interval,omitempty"`
	IntervalElapsedSeconds   int                   `json:"interval_elapsed_seconds"`
	IntervalRemainingSeconds int                   `json:"interval_remaining_seconds"`
	OpenBreak                *models.BreakRecord   `json:"open_break,omitempty"`
	BreakElapsedSeconds      int                   `json:"break_elapsed_seconds"`
	ServerTime               time.Time             `json:"server_time"`
}

// SyncState returns the current session snapshot and counts as a client
// check-in for the stale-session sweep.
func (s *SessionService) SyncState(userID, sessionID string) (*SessionState, error) {
	now := time.Now().UTC()
	state := &SessionState{ServerTime: now}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		state.Session = session

		var active models.TimerInterval
		err = tx.Where("session_id = ? AND status = ?", sessionID, models.IntervalActive).
			First(&active).Error
		if err == nil && active.StartTime != nil {
			state.CurrentInterval = &active
			state.IntervalElapsedSeconds = int(now.Sub(*active.StartTime).Seconds())
			state.IntervalRemainingSeconds = session.WorkIntervalMinutes*60 - state.IntervalElapsedSeconds
			if state.IntervalRemainingSeconds < 0 {
				state.IntervalRemainingSeconds = 0
			}
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load active interval in %s: %w", sessionID, err)
		}

		var open models.BreakRecord
		err = tx.Where("session_id = ? AND completed = ? AND break_end_time IS NULL", sessionID, false).
			Order("break_start_time DESC").
			First(&open).Error
		if err == nil {
			state.OpenBreak = &open
			state.BreakElapsedSeconds = int(now.Sub(open.BreakStartTime).Seconds())
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load open break in %s: %w", sessionID, err)
		}

		if session.IsActive {
			return s.touchSession(tx, session, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ActiveSession returns the user's running session with its intervals, or
// ErrNotFound when nothing is active.
func (s *SessionService) ActiveSession(userID string) (*models.TimerSession, error) {
	var session models.TimerSession
	err := s.DB.Preload("Intervals", func(db *gorm.DB) *gorm.DB {
		return db.Order("interval_number ASC")
	}).Where("external_user_id = ? AND is_active = ?", userID, true).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session for %s: %w", userID, err)
	}
	return &session, nil
}

// SweepStaleSessions force-ends active sessions with no client check-in since
// idleBefore. Each one goes through the normal end path so its work still
// counts. Returns how many were closed.
func (s *SessionService) SweepStaleSessions(idleBefore time.Time) (int, error) {
	var stale []models.TimerSession
	err := s.DB.Where("is_active = ? AND last_activity_at < ?", true, idleBefore).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	closed := 0
	for i := range stale {
		if _, err := s.EndSession(stale[i].ExternalUserID, stale[i].ID); err != nil {
			log.Printf("⚠️ Failed to sweep session %s: %v", stale[i].ID, err)
			continue
		}
		closed++
	}
	if closed > 0 {
		log.Printf("🧹 Swept %d stale session(s)", closed)
	}
	return closed, nil
}

// Settings returns the user's timer settings, creating defaults on first
// read.
func (s *SessionService) Settings(userID string) (*models.UserTimerSettings, error) {
	var settings models.UserTimerSettings
	err := s.DB.Where("external_user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = defaultSettings(userID)
		if err := s.DB.Create(&settings).Error; err != nil {
			return nil, fmt.Errorf("failed to create settings for %s: %w", userID, err)
		}
		return &settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for %s: %w", userID, err)
	}
	return &settings, nil
}

// UpdateSettings persists timer customization. Running sessions keep the
// values frozen at their start.
func (s *SessionService) UpdateSettings(userID string, update *models.UserTimerSettings) (*models.UserTimerSettings, error) {
	settings, err := s.Settings(userID)
	if err != nil {
		return nil, err
	}

	if update.WorkIntervalMinutes >= 1 {
		settings.WorkIntervalMinutes = update.WorkIntervalMinutes
	}
	if update.BreakDurationSeconds >= models.CompliantBreakSeconds {
		settings.BreakDurationSeconds = update.BreakDurationSeconds
	}
	settings.SoundNotification = update.SoundNotification
	settings.DesktopNotification = update.DesktopNotification
	settings.AutoStartBreak = update.AutoStartBreak
	settings.AutoStartWork = update.AutoStartWork

	if err := s.DB.Save(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to save settings for %s: %w", userID, err)
	}
	return settings, nil
}

func (s *SessionService) settingsOrDefaults(userID string) *models.UserTimerSettings {
	settings, err := s.Settings(userID)
	if err != nil {
		defaults := defaultSettings(userID)
		return &defaults
	}
	return settings
}

func defaultSettings(userID string) models.UserTimerSettings {
	return models.UserTimerSettings{
		ID:                   uuid.NewString(),
		ExternalUserID:       userID,
		WorkIntervalMinutes:  20,
		BreakDurationSeconds: 20,
		SoundNotification:    true,
		DesktopNotification:  true,
	}
}

func (s *SessionService) lockBreak(tx *gorm.DB, userID, breakID string) (*models.BreakRecord, error) {
	var record models.BreakRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND external_user_id = ?", breakID, userID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load break %s: %w", breakID, err)
	}
	if record.Terminal() {
		return nil, ErrBreakAlreadyCompleted
	}
	return &record, nil
}

func (s *SessionService) activeInterval(tx *gorm.DB, sessionID string) (*models.TimerInterval, error) {
	var interval models.TimerInterval
	err := tx.Where("session_id = ? AND status = ?", sessionID, models.IntervalActive).
		First(&interval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntervalState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active interval in %s: %w", sessionID, err)
	}
	return &interval, nil
}

// appendPendingInterval queues interval max+1 unless a pending one already
// exists, keeping exactly one runnable interval ahead of the user.
func (s *SessionService) appendPendingInterval(tx *gorm.DB, sessionID string) error {
	var pending int64
	err := tx.Model(&models.TimerInterval{}).
		Where("session_id = ? AND status = ?", sessionID, models.IntervalPending).
		Count(&pending).Error
	if err != nil {
		return fmt.Errorf("failed to count pending intervals in %s: %w", sessionID, err)
	}
	if pending > 0 {
		return nil
	}

	var maxNumber int64
	err = tx.Model(&models.TimerInterval{}).
		Select("COALESCE(MAX(interval_number), 0)").
		Where("session_id = ?", sessionID).
		Scan(&maxNumber).Error
	if err != nil {
		return fmt.Errorf("failed to read interval numbers in %s: %w", sessionID, err)
	}

	next := models.TimerInterval{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		IntervalNumber: int(maxNumber) + 1,
		Status:         models.IntervalPending,
	}
	if err := tx.Create(&next).Error; err != nil {
		return fmt.Errorf("failed to queue next interval in %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionService) touchSession(tx *gorm.DB, session *models.TimerSession, now time.Time) error {
	session.LastActivityAt = now
	if err := tx.Save(session).Error; err != nil {
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	return nil
}
