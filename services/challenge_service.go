package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"break-timer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChallengeService manages time-bounded goals and per-user participation.
type ChallengeService struct {
	DB          *gorm.DB
	Events      EventPublisher
	Progression *ProgressionService
}

func NewChallengeService(db *gorm.DB, events EventPublisher, progression *ProgressionService) *ChallengeService {
	return &ChallengeService{DB: db, Events: events, Progression: progression}
}

// ActiveChallenges lists challenges whose window contains now.
func (s *ChallengeService) ActiveChallenges(now time.Time) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := s.DB.
		Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, now, now).
		Order("end_date ASC").
		Find(&challenges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active challenges: %w", err)
	}
	return challenges, nil
}

// JoinChallenge enrolls a user. Joining is only allowed while the window is
// open, and at most once per challenge.
func (s *ChallengeService) JoinChallenge(userID, challengeID string) (*models.ChallengeParticipation, error) {
	var challenge models.Challenge
	if err := s.DB.First(&challenge, "id = ?", challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load challenge %s: %w", challengeID, err)
	}
	if !challenge.IsOpen(time.Now().UTC()) {
		return nil, ErrChallengeClosed
	}

	participation := &models.ChallengeParticipation{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		ChallengeID:    challengeID,
	}
	result := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(participation)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to join challenge %s: %w", challengeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrChallengeAlreadyJoined
	}

	participation.Challenge = &challenge
	return participation, nil
}

// UserParticipations returns a user's enrollments with their challenge
// definitions, most recently joined first.
func (s *ChallengeService) UserParticipations(userID string) ([]models.ChallengeParticipation, error) {
	var participations []models.ChallengeParticipation
	err := s.DB.Preload("Challenge").
		Where("external_user_id = ?", userID).
		Order("joined_at DESC").
		Find(&participations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load participations for %s: %w", userID, err)
	}
	return participations, nil
}

// RecordProgress adds delta to every open challenge the user has joined that
// tracks the given metric. Users who never joined are silently unaffected.
// Progress is capped at the target; crossing it completes the participation
// and pays the challenge reward exactly once.
func (s *ChallengeService) RecordProgress(userID string, metric models.ChallengeMetric, delta int64) error {
	if delta <= 0 {
		return nil
	}
	now := time.Now().UTC()

	var completed []models.Challenge

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var participations []models.ChallengeParticipation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "challenge_participations"}}).
			Joins("Challenge").
			Where("challenge_participations.external_user_id = ? AND challenge_participations.is_completed = ?", userID, false).
			Find(&participations).Error
		if err != nil {
			return fmt.Errorf("failed to load open participations for %s: %w", userID, err)
		}

		for i := range participations {
			p := &participations[i]
			if p.Challenge == nil || p.Challenge.Metric != metric || !p.Challenge.IsOpen(now) {
				continue
			}

			p.CurrentProgress += delta
			if p.CurrentProgress >= p.Challenge.TargetValue {
				p.CurrentProgress = p.Challenge.TargetValue
				p.IsCompleted = true
				completedAt := now
				p.CompletedAt = &completedAt
			}

			err := tx.Model(&models.ChallengeParticipation{}).
				Where("id = ?", p.ID).
				Updates(map[string]any{
					"current_progress": p.CurrentProgress,
					"is_completed":     p.IsCompleted,
					"completed_at":     p.CompletedAt,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to update participation %s: %w", p.ID, err)
			}

			if !p.IsCompleted {
				continue
			}

			if p.Challenge.ExperienceReward > 0 {
				if _, _, err := s.Progression.awardExperienceTx(tx, userID, p.Challenge.ExperienceReward, "challenge:"+p.Challenge.Code); err != nil {
					return err
				}
			}
			entry := activityEntry(userID, models.ActivityChallengeDone, map[string]any{
				"challenge_code": p.Challenge.Code,
				"challenge_name": p.Challenge.Name,
			})
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("failed to record challenge activity for %s: %w", userID, err)
			}
			completed = append(completed, *p.Challenge)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, challenge := range completed {
		log.Printf("✅ User %s completed challenge %s", userID, challenge.Code)
		emit(s.Events, EventChallengeCompleted, userID, challenge.ID)
	}
	return nil
}

// CreateChallenge registers a new challenge definition (admin surface).
func (s *ChallengeService) CreateChallenge(challenge *models.Challenge) error {
	if challenge.ID == "" {
		challenge.ID = uuid.NewString()
	}
	if challenge.EndDate.Before(challenge.StartDate) {
		return fmt.Errorf("challenge %s: end date precedes start date", challenge.Code)
	}
	if err := s.DB.Create(challenge).Error; err != nil {
		return fmt.Errorf("failed to create challenge %s: %w", challenge.Code, err)
	}
	return nil
}
