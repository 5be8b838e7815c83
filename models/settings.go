package models

// UserTimerSettings holds per-user timer customization. Sessions freeze a
// copy of the durations at start so mid-session edits don't shift running
// intervals.
type UserTimerSettings struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`

	WorkIntervalMinutes  int `gorm:"default:20" json:"work_interval_minutes"`
	BreakDurationSeconds int `gorm:"default:20" json:"break_duration_seconds"`

	SoundNotification   bool `gorm:"default:true" json:"sound_notification"`
	DesktopNotification bool `gorm:"default:true" json:"desktop_notification"`
	AutoStartBreak      bool `gorm:"default:false" json:"auto_start_break"`
	AutoStartWork       bool `gorm:"default:false" json:"auto_start_work"`

	Timestamps
}
