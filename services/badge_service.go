package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"break-timer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeService evaluates badge eligibility and records awards. Badges are
// data-driven: each row carries a requirement list and the evaluator checks
// every kind against one aggregated statistics snapshot, so adding a badge
// never needs new code.
type BadgeService struct {
	DB          *gorm.DB
	Events      EventPublisher
	Progression *ProgressionService
	Compliance  *ComplianceService
}

func NewBadgeService(db *gorm.DB, events EventPublisher, progression *ProgressionService, compliance *ComplianceService) *BadgeService {
	return &BadgeService{DB: db, Events: events, Progression: progression, Compliance: compliance}
}

// SeedDefaultBadges inserts the stock catalog, keyed by code. Existing rows
// are left alone so admin edits survive restarts.
func (s *BadgeService) SeedDefaultBadges() error {
	for _, badge := range models.DefaultBadges {
		badge.ID = uuid.NewString()
		badge.IsActive = true
		err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&badge).Error
		if err != nil {
			return fmt.Errorf("failed to seed badge %s: %w", badge.Code, err)
		}
	}
	log.Printf("✅ Badge catalog seeded (%d defaults)", len(models.DefaultBadges))
	return nil
}

// userStatistics is the snapshot every requirement kind is checked against.
type userStatistics struct {
	StreakDays            int64
	TotalSessions         int64
	CompliantBreaks       int64
	PerfectDays           int64
	ComplianceRatePercent int64
	Level                 int64
}

func meetsRequirements(badge *models.Badge, stats *userStatistics) bool {
	for _, req := range badge.Requirements {
		var actual int64
		switch req.Kind {
		case models.RequireStreakDays:
			actual = stats.StreakDays
		case models.RequireTotalSessions:
			actual = stats.TotalSessions
		case models.RequireCompliantBreaks:
			actual = stats.CompliantBreaks
		case models.RequirePerfectDays:
			actual = stats.PerfectDays
		case models.RequireComplianceRate:
			actual = stats.ComplianceRatePercent
		case models.RequireLevel:
			actual = stats.Level
		default:
			// Unknown kinds never match; a misconfigured badge stays unearned
			// instead of being handed to everyone.
			return false
		}
		if actual < req.Value {
			return false
		}
	}
	return len(badge.Requirements) > 0
}

// EvaluateBadges checks every active badge the user has not yet earned and
// awards the ones whose requirements are satisfied, with their XP rewards, in
// a single transaction. Safe to call after any progression-relevant action;
// the unique (user, badge) index makes each award exactly-once even when two
// evaluations race.
func (s *BadgeService) EvaluateBadges(userID string) ([]models.Badge, error) {
	awarded, err := s.evaluateOnce(userID)
	if err != nil && isRetryableTxError(err) {
		log.Printf("⚠️ Badge evaluation for %s hit %v, retrying once", userID, err)
		awarded, err = s.evaluateOnce(userID)
	}
	if err != nil {
		return nil, err
	}

	for _, badge := range awarded {
		log.Printf("🎖️ User %s earned badge %s", userID, badge.Code)
		emit(s.Events, EventBadgeAwarded, userID, badge.ID)
	}
	return awarded, nil
}

func (s *BadgeService) evaluateOnce(userID string) ([]models.Badge, error) {
	var awarded []models.Badge

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		awarded = awarded[:0]

		// The level row lock serializes progression writes per user, so the
		// snapshot below cannot shift under us mid-evaluation.
		level, err := s.Progression.lockLevel(tx, userID)
		if err != nil {
			return err
		}

		stats, err := s.collectStatistics(tx, userID, level)
		if err != nil {
			return err
		}

		var candidates []models.Badge
		err = tx.Where("is_active = ? AND id NOT IN (?)",
			true,
			tx.Model(&models.UserBadge{}).Select("badge_id").Where("external_user_id = ?", userID),
		).Find(&candidates).Error
		if err != nil {
			return fmt.Errorf("failed to load badge candidates for %s: %w", userID, err)
		}

		var entries []models.ActivityFeedEntry
		for i := range candidates {
			badge := candidates[i]
			if !meetsRequirements(&badge, stats) {
				continue
			}

			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.UserBadge{
				ID:             uuid.NewString(),
				ExternalUserID: userID,
				BadgeID:        badge.ID,
			})
			if result.Error != nil {
				return fmt.Errorf("failed to award badge %s to %s: %w", badge.Code, userID, result.Error)
			}
			if result.RowsAffected == 0 {
				// Lost a race with another evaluation; that one owns the award.
				continue
			}

			if badge.ExperienceReward > 0 {
				if _, _, err := s.Progression.awardExperienceTx(tx, userID, badge.ExperienceReward, "badge:"+badge.Code); err != nil {
					return err
				}
			}

			entries = append(entries, activityEntry(userID, models.ActivityBadgeEarned, map[string]any{
				"badge_code": badge.Code,
				"badge_name": badge.Name,
				"rarity":     badge.Rarity,
			}))
			awarded = append(awarded, badge)
		}

		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return fmt.Errorf("failed to record badge activity for %s: %w", userID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return awarded, nil
}

func (s *BadgeService) collectStatistics(tx *gorm.DB, userID string, level *models.UserLevel) (*userStatistics, error) {
	var streak models.UserStreakData
	err := tx.Where("external_user_id = ?", userID).First(&streak).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load streak for %s: %w", userID, err)
	}

	breakBase := tx.Model(&models.BreakRecord{}).Where("external_user_id = ?", userID)
	var totalBreaks, compliantBreaks int64
	if err := breakBase.Session(&gorm.Session{}).Count(&totalBreaks).Error; err != nil {
		return nil, fmt.Errorf("failed to count breaks for %s: %w", userID, err)
	}
	if err := compliantBreakScope(breakBase.Session(&gorm.Session{})).Count(&compliantBreaks).Error; err != nil {
		return nil, fmt.Errorf("failed to count compliant breaks for %s: %w", userID, err)
	}

	perfectDays, err := s.Compliance.PerfectDays(tx, userID)
	if err != nil {
		return nil, err
	}

	stats := &userStatistics{
		StreakDays:      int64(streak.BestDailyStreak),
		TotalSessions:   int64(streak.TotalSessionsCompleted),
		CompliantBreaks: compliantBreaks,
		PerfectDays:     perfectDays,
		Level:           int64(level.CurrentLevel),
	}
	if totalBreaks > 0 {
		stats.ComplianceRatePercent = compliantBreaks * 100 / totalBreaks
	}
	return stats, nil
}

// UserBadges returns the user's earned badges, newest first, joined with
// their catalog rows.
func (s *BadgeService) UserBadges(userID string) ([]models.Badge, error) {
	var badges []models.Badge
	err := s.DB.
		Joins("JOIN user_badges ON user_badges.badge_id = badges.id").
		Where("user_badges.external_user_id = ?", userID).
		Order("user_badges.awarded_at DESC").
		Find(&badges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load badges for %s: %w", userID, err)
	}
	return badges, nil
}

// CreateBadge registers a new catalog entry (admin surface).
func (s *BadgeService) CreateBadge(badge *models.Badge) error {
	if badge.ID == "" {
		badge.ID = uuid.NewString()
	}
	if err := s.DB.Create(badge).Error; err != nil {
		return fmt.Errorf("failed to create badge %s: %w", badge.Code, err)
	}
	return nil
}

// isRetryableTxError recognizes transient backend failures where rerunning
// the transaction is the documented remedy.
func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "serialization") ||
		strings.Contains(msg, "database is locked")
}
