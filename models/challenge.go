package models

import (
	"time"
)

type ChallengeMetric string

const (
	MetricSessions        ChallengeMetric = "sessions"
	MetricCompliantBreaks ChallengeMetric = "compliant_breaks"
	MetricWorkMinutes     ChallengeMetric = "work_minutes"
	MetricStreakDays      ChallengeMetric = "streak_days"
)

// Challenge is a time-bounded community goal. Definitions are shared
// read-only across users; everything else in this service is per-user.
type Challenge struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string          `gorm:"uniqueIndex;not null" json:"code"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `json:"description"`
	IconURL     string          `gorm:"type:text" json:"icon_url"`
	Metric      ChallengeMetric `gorm:"type:varchar(20);not null" json:"metric"`
	TargetValue int64           `gorm:"not null" json:"target_value"`

	StartDate time.Time `gorm:"index;not null" json:"start_date"`
	EndDate   time.Time `gorm:"index;not null" json:"end_date"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`

	ExperienceReward int64 `gorm:"default:50" json:"experience_reward"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsOpen reports whether the challenge accepts joins and progress at t.
func (c *Challenge) IsOpen(t time.Time) bool {
	return c.IsActive && !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// ChallengeParticipation tracks one user's progress toward a challenge
// target. Progress is capped at the target, never past 100%.
type ChallengeParticipation struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"index;uniqueIndex:uniq_user_challenge;not null" json:"external_user_id"`
	ChallengeID    string `gorm:"index;uniqueIndex:uniq_user_challenge;not null" json:"challenge_id"`

	CurrentProgress int64      `gorm:"default:0" json:"current_progress"`
	IsCompleted     bool       `gorm:"default:false" json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	JoinedAt        time.Time  `gorm:"autoCreateTime" json:"joined_at"`

	Challenge *Challenge `gorm:"foreignKey:ChallengeID" json:"challenge,omitempty"`
}

// ProgressPercentage is progress/target as 0-100.
func (p *ChallengeParticipation) ProgressPercentage(target int64) float64 {
	if target <= 0 {
		return 0
	}
	return float64(p.CurrentProgress) / float64(target) * 100
}
