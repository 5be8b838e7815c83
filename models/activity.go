package models

import (
	"time"
)

// Activity types written to the feed.
const (
	ActivitySessionStarted = "session_started"
	ActivitySessionEnded   = "session_ended"
	ActivityBreakStarted   = "break_started"
	ActivityBreakTaken     = "break_taken"
	ActivityBadgeEarned    = "badge_earned"
	ActivityLevelUp        = "level_up"
	ActivityChallengeDone  = "challenge_completed"
)

// ActivityFeedEntry is an append-only record for the live dashboard feed.
type ActivityFeedEntry struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"index;not null" json:"external_user_id"`
	ActivityType   string `gorm:"size:32;index;not null" json:"activity_type"`
	ActivityData   string `gorm:"type:jsonb" json:"activity_data"`
	IsPublic       bool   `gorm:"default:true" json:"is_public"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
