package services

import (
	"encoding/json"
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

// XPWeights are the award amounts for each progression action. Values are
// read once at startup so a running process always scores consistently.
type XPWeights struct {
	CompliantBreak         int64
	SessionBase            int64
	ComplianceBonusMax     int64
	LengthBonusPerInterval int64
	LengthBonusMax         int64
	ChallengeComplete      int64
}

func DefaultXPWeights() XPWeights {
	return XPWeights{
		CompliantBreak:         5,
		SessionBase:            10,
		ComplianceBonusMax:     20,
		LengthBonusPerInterval: 2,
		LengthBonusMax:         20,
		ChallengeComplete:      50,
	}
}

// SessionXP computes the award for a completed premium session: base points,
// a compliance bonus proportional to the session's break compliance rate,
// and a capped length bonus per completed interval.
func (w XPWeights) SessionXP(complianceRate float64, intervalsCompleted int) int64 {
	if complianceRate < 0 {
		complianceRate = 0
	}
	if complianceRate > 1 {
		complianceRate = 1
	}
	bonus := int64(complianceRate * float64(w.ComplianceBonusMax))
	length := w.LengthBonusPerInterval * int64(intervalsCompleted)
	if length > w.LengthBonusMax {
		length = w.LengthBonusMax
	}
	return w.SessionBase + bonus + length
}

// ProgressionService owns experience, levels, and streaks.
type ProgressionService struct {
	DB         *gorm.DB
	Events     EventPublisher
	Compliance *ComplianceService
	Weights    XPWeights

	qualifyThreshold float64
}

func NewProgressionService(db *gorm.DB, events EventPublisher, compliance *ComplianceService) *ProgressionService {
	threshold := 0.8
	if raw := os.Getenv("STREAK_QUALIFY_THRESHOLD"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed > 1 {
			log.Printf("⚠️ Invalid STREAK_QUALIFY_THRESHOLD %q, using default 0.8", raw)
		} else {
			threshold = parsed
		}
	}
	return &ProgressionService{
		DB:               db,
		Events:           events,
		Compliance:       compliance,
		Weights:          DefaultXPWeights(),
		qualifyThreshold: threshold,
	}
}

// UserProgress is the combined progression snapshot served to clients.
type UserProgress struct {
	Level          *models.UserLevel      `json:"level"`
	Streak         *models.UserStreakData `json:"streak"`
	LevelTitle     string                 `json:"level_title"`
	XPForNextLevel int64                  `json:"xp_for_next_level"`
}

// AwardExperience adds points to a user's total and recomputes their level.
// Returns the updated ledger and whether the award crossed a level boundary.
// Points must be positive: the total only ever grows.
func (s *ProgressionService) AwardExperience(userID string, points int64, reason string) (*models.UserLevel, bool, error) {
	var level *models.UserLevel
	var leveledUp bool

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		level, leveledUp, txErr = s.awardExperienceTx(tx, userID, points, reason)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}

	if leveledUp {
		emit(s.Events, EventLevelUp, userID, fmt.Sprintf("level:%d", level.CurrentLevel))
	}
	return level, leveledUp, nil
}

// awardExperienceTx is the in-transaction award path, shared with badge and
// challenge completion so their XP lands atomically with the triggering
// record. The UserLevel row lock also serializes concurrent awards.
func (s *ProgressionService) awardExperienceTx(tx *gorm.DB, userID string, points int64, reason string) (*models.UserLevel, bool, error) {
	if points <= 0 {
		return nil, false, ErrNegativeExperience
	}

	level, err := s.lockLevel(tx, userID)
	if err != nil {
		return nil, false, err
	}

	previousLevel := level.CurrentLevel
	level.TotalExperiencePoints += points
	level.CurrentLevel = models.LevelForXP(level.TotalExperiencePoints)

	leveledUp := level.CurrentLevel > previousLevel
	if leveledUp {
		now := time.Now().UTC()
		level.LastLevelUpAt = &now
	}

	if err := tx.Save(level).Error; err != nil {
		return nil, false, fmt.Errorf("failed to save experience for %s: %w", userID, err)
	}

	if leveledUp {
		entry := activityEntry(userID, models.ActivityLevelUp, map[string]any{
			"level":  level.CurrentLevel,
			"title":  models.LevelTitle(level.CurrentLevel),
			"reason": reason,
		})
		if err := tx.Create(&entry).Error; err != nil {
			return nil, false, fmt.Errorf("failed to record level up for %s: %w", userID, err)
		}
		log.Printf("🎖️ User %s reached level %d (%s)", userID, level.CurrentLevel, reason)
	}

	return level, leveledUp, nil
}

// lockLevel fetches the user's level row under FOR UPDATE, creating it on
// first touch. The row doubles as the per-user serialization point for all
// progression writes.
func (s *ProgressionService) lockLevel(tx *gorm.DB, userID string) (*models.UserLevel, error) {
	var level models.UserLevel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_user_id = ?", userID).
		First(&level).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		level = models.UserLevel{
			ID:             uuid.NewString(),
			ExternalUserID: userID,
			CurrentLevel:   1,
		}
		if err := tx.Create(&level).Error; err != nil {
			return nil, fmt.Errorf("failed to create level row for %s: %w", userID, err)
		}
		return &level, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load level for %s: %w", userID, err)
	}
	return &level, nil
}

// UpdateStreak evaluates one calendar day against the qualify threshold and
// rolls the user's streak forward. A day counts toward the streak at most
// once (LastQualifiedDate), but re-evaluating the same day is allowed and
// can only upgrade it: mid-day data below the threshold never resets the
// streak, because later breaks may still lift the day's rate. The reset for
// a failing day applies only once the day is over.
func (s *ProgressionService) UpdateStreak(userID string, day time.Time, loc *time.Location) (*models.UserStreakData, error) {
	local := day.In(loc)
	dayStr := local.Format(dateLayout)
	yesterday := local.AddDate(0, 0, -1).Format(dateLayout)
	dayCompleted := dayStr < time.Now().In(loc).Format(dateLayout)

	var streak *models.UserStreakData
	var milestone int

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		streak, err = s.lockStreak(tx, userID)
		if err != nil {
			return err
		}

		if streak.LastEvaluatedDate != nil && *streak.LastEvaluatedDate > dayStr {
			return nil
		}
		alreadyQualified := streak.LastQualifiedDate != nil && *streak.LastQualifiedDate == dayStr

		compliant, total, err := s.Compliance.dailyBreakCounts(tx, userID, day, loc)
		if err != nil {
			return err
		}

		switch {
		case total > 0 && float64(compliant)/float64(total) >= s.qualifyThreshold:
			if !alreadyQualified {
				if streak.LastQualifiedDate != nil && *streak.LastQualifiedDate == yesterday {
					streak.CurrentDailyStreak++
				} else {
					streak.CurrentDailyStreak = 1
					streak.StreakStartDate = &dayStr
				}
				streak.LastQualifiedDate = &dayStr
				if streak.CurrentDailyStreak > streak.BestDailyStreak {
					streak.BestDailyStreak = streak.CurrentDailyStreak
				}
				for _, m := range models.StreakMilestones {
					if streak.CurrentDailyStreak == m {
						milestone = m
					}
				}
			}
		case dayCompleted && total > 0 && !alreadyQualified:
			// A finished day with data below the threshold breaks the chain.
			streak.CurrentDailyStreak = 0
			streak.StreakStartDate = nil
		}
		// Remaining cases: no data (nothing to judge) or a same-day
		// shortfall (still provisional). Both leave the streak untouched.

		streak.LastEvaluatedDate = &dayStr
		if err := tx.Save(streak).Error; err != nil {
			return fmt.Errorf("failed to save streak for %s: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if milestone > 0 {
		log.Printf("✅ User %s hit a %d-day streak", userID, milestone)
		emit(s.Events, EventStreakMilestone, userID, fmt.Sprintf("streak:%d", milestone))
	}
	return streak, nil
}

func (s *ProgressionService) lockStreak(tx *gorm.DB, userID string) (*models.UserStreakData, error) {
	var streak models.UserStreakData
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_user_id = ?", userID).
		First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		streak = models.UserStreakData{
			ID:             uuid.NewString(),
			ExternalUserID: userID,
		}
		if err := tx.Create(&streak).Error; err != nil {
			return nil, fmt.Errorf("failed to create streak row for %s: %w", userID, err)
		}
		return &streak, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load streak for %s: %w", userID, err)
	}
	return &streak, nil
}

// RecordSessionCompleted rolls a finished session into the lifetime counters.
func (s *ProgressionService) RecordSessionCompleted(userID string, workMinutes, breakSeconds int) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		streak, err := s.lockStreak(tx, userID)
		if err != nil {
			return err
		}

		previousTotal := float64(streak.AverageSessionLength) * float64(streak.TotalSessionsCompleted)
		streak.TotalSessionsCompleted++
		streak.TotalBreakTimeMinutes += breakSeconds / 60
		streak.AverageSessionLength = (previousTotal + float64(workMinutes)) / float64(streak.TotalSessionsCompleted)

		if err := tx.Save(streak).Error; err != nil {
			return fmt.Errorf("failed to update lifetime counters for %s: %w", userID, err)
		}
		return nil
	})
}

// Progress returns the combined level and streak snapshot, creating baseline
// rows for first-time users.
func (s *ProgressionService) Progress(userID string) (*UserProgress, error) {
	progress := &UserProgress{}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		level, err := s.lockLevel(tx, userID)
		if err != nil {
			return err
		}
		streak, err := s.lockStreak(tx, userID)
		if err != nil {
			return err
		}
		progress.Level = level
		progress.Streak = streak
		return nil
	})
	if err != nil {
		return nil, err
	}

	progress.LevelTitle = models.LevelTitle(progress.Level.CurrentLevel)
	progress.XPForNextLevel = models.XPForNextLevel(progress.Level.CurrentLevel)
	return progress, nil
}

// activityEntry builds a feed row with a JSON payload. Marshal of a flat
// string-keyed map cannot fail, so the error is ignored.
func activityEntry(userID, activityType string, data map[string]any) models.ActivityFeedEntry {
	payload, _ := json.Marshal(data)
	return models.ActivityFeedEntry{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		ActivityType:   activityType,
		ActivityData:   string(payload),
	}
}
