package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RequirementKind tags one badge eligibility criterion. New badges are data,
// not code: the badge service evaluates every kind with one generic checker
// against the user's aggregated statistics.
type RequirementKind string

const (
	RequireStreakDays      RequirementKind = "streak_at_least"
	RequireTotalSessions   RequirementKind = "total_sessions_at_least"
	RequireCompliantBreaks RequirementKind = "compliant_breaks_at_least"
	RequirePerfectDays     RequirementKind = "perfect_days_at_least"
	RequireComplianceRate  RequirementKind = "compliance_rate_at_least" // percent, 0-100
	RequireLevel           RequirementKind = "level_at_least"
)

type BadgeRequirement struct {
	Kind  RequirementKind `json:"kind"`
	Value int64           `json:"value"`
}

// BadgeRequirements is stored as a jsonb column. All requirements must hold
// for the badge to be awarded.
type BadgeRequirements []BadgeRequirement

func (r BadgeRequirements) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *BadgeRequirements) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("cannot scan %T into BadgeRequirements", src)
	}
}

// Badge: static achievement config (seeded from DefaultBadges or created via
// the admin endpoints).
type Badge struct {
	ID           string            `gorm:"primaryKey;type:uuid" json:"id"`
	Code         string            `gorm:"uniqueIndex;not null" json:"code"` // e.g., "week-warrior"
	Name         string            `gorm:"not null" json:"name"`
	Description  string            `json:"description"`
	Icon         string            `gorm:"size:10" json:"icon"` // emoji fallback
	IconURL      string            `gorm:"type:text" json:"icon_url"`
	Category     string            `gorm:"size:20" json:"category"`
	Rarity       string            `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	Requirements BadgeRequirements `gorm:"type:jsonb" json:"requirements"`

	ExperienceReward int64 `gorm:"default:0" json:"experience_reward"`
	IsActive         bool  `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge: awarded instance. The unique (user, badge) index is what makes
// awards exactly-once under concurrent evaluation.
type UserBadge struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"index;uniqueIndex:uniq_user_badge;not null" json:"external_user_id"`
	BadgeID        string    `gorm:"index;uniqueIndex:uniq_user_badge;not null" json:"badge_id"`
	AwardedAt      time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

// DefaultBadges is the stock catalog, seeded at startup.
var DefaultBadges = []Badge{
	{
		Code:        "first-steps",
		Name:        "First Steps",
		Description: "Complete your first timer session",
		Icon:        "👶",
		Category:    "progress",
		Rarity:      "common",
		Requirements: BadgeRequirements{
			{Kind: RequireTotalSessions, Value: 1},
		},
		ExperienceReward: 25,
	},
	{
		Code:        "getting-started",
		Name:        "Getting Started",
		Description: "Complete 10 timer sessions",
		Icon:        "🚀",
		Category:    "progress",
		Rarity:      "common",
		Requirements: BadgeRequirements{
			{Kind: RequireTotalSessions, Value: 10},
		},
		ExperienceReward: 50,
	},
	{
		Code:        "dedicated-worker",
		Name:        "Dedicated Worker",
		Description: "Complete 100 timer sessions",
		Icon:        "💪",
		Category:    "progress",
		Rarity:      "rare",
		Requirements: BadgeRequirements{
			{Kind: RequireTotalSessions, Value: 100},
		},
		ExperienceReward: 200,
	},
	{
		Code:        "eye-health-champion",
		Name:        "Eye Health Champion",
		Description: "Complete 1000 timer sessions",
		Icon:        "🏆",
		Category:    "progress",
		Rarity:      "epic",
		Requirements: BadgeRequirements{
			{Kind: RequireTotalSessions, Value: 1000},
		},
		ExperienceReward: 500,
	},
	{
		Code:        "week-warrior",
		Name:        "Week Warrior",
		Description: "Maintain a 7-day streak",
		Icon:        "📅",
		Category:    "streaks",
		Rarity:      "common",
		Requirements: BadgeRequirements{
			{Kind: RequireStreakDays, Value: 7},
		},
		ExperienceReward: 100,
	},
	{
		Code:        "month-master",
		Name:        "Month Master",
		Description: "Maintain a 30-day streak",
		Icon:        "🗓️",
		Category:    "streaks",
		Rarity:      "rare",
		Requirements: BadgeRequirements{
			{Kind: RequireStreakDays, Value: 30},
		},
		ExperienceReward: 300,
	},
	{
		Code:        "centurion",
		Name:        "Centurion",
		Description: "Maintain a 100-day streak",
		Icon:        "💯",
		Category:    "streaks",
		Rarity:      "epic",
		Requirements: BadgeRequirements{
			{Kind: RequireStreakDays, Value: 100},
		},
		ExperienceReward: 1000,
	},
	{
		Code:        "break-compliance-expert",
		Name:        "Break Compliance Expert",
		Description: "Take 100 compliant breaks",
		Icon:        "✅",
		Category:    "compliance",
		Rarity:      "rare",
		Requirements: BadgeRequirements{
			{Kind: RequireCompliantBreaks, Value: 100},
		},
		ExperienceReward: 250,
	},
	{
		Code:        "perfect-day",
		Name:        "Perfect Day",
		Description: "Achieve 100% compliance for one day",
		Icon:        "🌟",
		Category:    "compliance",
		Rarity:      "common",
		Requirements: BadgeRequirements{
			{Kind: RequirePerfectDays, Value: 1},
		},
		ExperienceReward: 75,
	},
	{
		Code:        "perfect-week",
		Name:        "Perfect Week",
		Description: "Achieve 100% compliance on 7 days",
		Icon:        "⭐",
		Category:    "compliance",
		Rarity:      "epic",
		Requirements: BadgeRequirements{
			{Kind: RequirePerfectDays, Value: 7},
		},
		ExperienceReward: 500,
	},
	{
		Code:        "seasoned",
		Name:        "Seasoned",
		Description: "Reach level 10",
		Icon:        "🎖️",
		Category:    "progress",
		Rarity:      "rare",
		Requirements: BadgeRequirements{
			{Kind: RequireLevel, Value: 10},
		},
		ExperienceReward: 200,
	},
}
