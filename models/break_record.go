package models

import (
	"time"
)

// CompliantBreakSeconds is the minimum break length for the 20-20-20 rule.
const CompliantBreakSeconds = 20

// BreakRecord is a break taken after a work interval.
// started → {completed | abandoned}; both end states are terminal. A break is
// abandoned when its end time is set without being marked completed.
type BreakRecord struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"index;not null" json:"external_user_id"`
	SessionID      string `gorm:"index;not null" json:"session_id"`
	IntervalID     string `gorm:"index;not null" json:"interval_id"`

	BreakStartTime time.Time  `gorm:"index;not null" json:"break_start_time"`
	BreakEndTime   *time.Time `json:"break_end_time,omitempty"`

	DurationSeconds  int  `gorm:"default:0" json:"duration_seconds"`
	LookedAtDistance bool `gorm:"default:false" json:"looked_at_distance"`
	Completed        bool `gorm:"default:false" json:"completed"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsCompliant reports whether the break satisfies the 20-20-20 rule. Pure:
// identical inputs always yield the same answer, compliance is never stored.
func (b *BreakRecord) IsCompliant() bool {
	return b.Completed && b.DurationSeconds >= CompliantBreakSeconds && b.LookedAtDistance
}

// Terminal reports whether the break reached an end state.
func (b *BreakRecord) Terminal() bool {
	return b.Completed || b.BreakEndTime != nil
}
