package models

// UserStreakData tracks consecutive qualifying days per user. A day qualifies
// when its compliance rate meets the configured threshold. A completed
// non-qualifying day with data resets the current streak to 0; the next
// qualifying day starts it again at 1. The current day is provisional until
// it ends and can only be upgraded. Dates are YYYY-MM-DD in the user's
// timezone.
type UserStreakData struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`

	CurrentDailyStreak int `gorm:"default:0" json:"current_daily_streak"`
	BestDailyStreak    int `gorm:"default:0" json:"best_daily_streak"`

	// LastQualifiedDate marks the most recent day that counted toward the
	// streak; LastEvaluatedDate is the newest day ever judged, so evaluations
	// of older days are ignored.
	LastQualifiedDate *string `gorm:"size:10" json:"last_qualified_date,omitempty"`
	LastEvaluatedDate *string `gorm:"size:10" json:"last_evaluated_date,omitempty"`
	StreakStartDate   *string `gorm:"size:10" json:"streak_start_date,omitempty"`

	// Lifetime counters, maintained on session completion
	TotalSessionsCompleted int     `gorm:"default:0" json:"total_sessions_completed"`
	TotalBreakTimeMinutes  int     `gorm:"default:0" json:"total_break_time_minutes"`
	AverageSessionLength   float64 `gorm:"default:0" json:"average_session_length"`

	Timestamps
}

// StreakMilestones are the streak lengths that emit a milestone event.
var StreakMilestones = []int{7, 30, 100}
