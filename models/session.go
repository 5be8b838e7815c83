package models

import (
	"time"
)

// IntervalStatus is the lifecycle state of a single work interval.
// pending → active → {completed | skipped}; both end states are terminal.
type IntervalStatus string

const (
	IntervalPending   IntervalStatus = "pending"
	IntervalActive    IntervalStatus = "active"
	IntervalCompleted IntervalStatus = "completed"
	IntervalSkipped   IntervalStatus = "skipped"
)

// TimerSession represents one continuous work period made of 20-minute
// intervals and the breaks taken between them. At most one session per user
// may be active at any time; the partial unique index on ExternalUserID is
// what holds that under concurrent starts, the same way uniq_user_badge
// holds exactly-once awards.
type TimerSession struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"index;uniqueIndex:uniq_user_active_session,where:is_active;not null" json:"external_user_id"`

	StartTime time.Time  `gorm:"index;not null" json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	IsActive  bool       `gorm:"index;default:true" json:"is_active"`

	// Timer settings frozen at session start
	WorkIntervalMinutes  int `gorm:"default:20" json:"work_interval_minutes"`
	BreakDurationSeconds int `gorm:"default:20" json:"break_duration_seconds"`

	// Session statistics, finalized on end
	TotalIntervalsCompleted int `gorm:"default:0" json:"total_intervals_completed"`
	TotalBreaksTaken        int `gorm:"default:0" json:"total_breaks_taken"`
	TotalWorkMinutes        int `gorm:"default:0" json:"total_work_minutes"`

	// Last client check-in, used by the stale-session sweep
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`

	Intervals []TimerInterval `gorm:"foreignKey:SessionID" json:"intervals,omitempty"`

	Timestamps
}

// DurationMinutes is the wall-clock length of the session up to now (or its
// end time once closed).
func (s *TimerSession) DurationMinutes(now time.Time) int {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return int(end.Sub(s.StartTime).Minutes())
}

// TimerInterval is one 20-minute work unit within a session. Interval numbers
// are strictly increasing within a session and only one interval may be
// active at a time.
type TimerInterval struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID      string `gorm:"index;uniqueIndex:uniq_session_interval;not null" json:"session_id"`
	IntervalNumber int    `gorm:"uniqueIndex:uniq_session_interval;not null" json:"interval_number"`

	StartTime *time.Time     `gorm:"index" json:"start_time,omitempty"` // set when the interval begins
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Status    IntervalStatus `gorm:"type:varchar(10);default:'pending';index" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Terminal reports whether the interval reached an end state.
func (i *TimerInterval) Terminal() bool {
	return i.Status == IntervalCompleted || i.Status == IntervalSkipped
}
