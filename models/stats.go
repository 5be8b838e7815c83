package models

// The *Stats tables are recomputable caches over raw session/break history.
// They are never incremented in place: the compliance service overwrites them
// wholesale from raw records, so a retried recompute produces the same rows.

// DailyStats holds one user's aggregates for one calendar day in the user's
// timezone. Date is YYYY-MM-DD.
type DailyStats struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:uniq_daily_user_date;not null" json:"external_user_id"`
	Date           string `gorm:"size:10;uniqueIndex:uniq_daily_user_date;index;not null" json:"date"`

	TotalSessions           int `gorm:"default:0" json:"total_sessions"`
	TotalWorkMinutes        int `gorm:"default:0" json:"total_work_minutes"`
	TotalIntervalsCompleted int `gorm:"default:0" json:"total_intervals_completed"`
	TotalBreaksTaken        int `gorm:"default:0" json:"total_breaks_taken"`
	BreaksCompliant         int `gorm:"default:0" json:"breaks_compliant"`

	Timestamps
}

// ComplianceRate is compliant/total in [0,1], 0 when no breaks were taken.
func (d *DailyStats) ComplianceRate() float64 {
	if d.TotalBreaksTaken == 0 {
		return 0
	}
	return float64(d.BreaksCompliant) / float64(d.TotalBreaksTaken)
}

// WeeklyStats aggregates a Monday-to-Sunday week. Dates are YYYY-MM-DD.
type WeeklyStats struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:uniq_weekly_user_week;not null" json:"external_user_id"`
	WeekStartDate  string `gorm:"size:10;uniqueIndex:uniq_weekly_user_week;not null" json:"week_start_date"`
	WeekEndDate    string `gorm:"size:10;not null" json:"week_end_date"`

	TotalSessions           int `gorm:"default:0" json:"total_sessions"`
	TotalWorkMinutes        int `gorm:"default:0" json:"total_work_minutes"`
	TotalIntervalsCompleted int `gorm:"default:0" json:"total_intervals_completed"`
	TotalBreaksTaken        int `gorm:"default:0" json:"total_breaks_taken"`
	BreaksCompliant         int `gorm:"default:0" json:"breaks_compliant"`
	ActiveDays              int `gorm:"default:0" json:"active_days"`

	Timestamps
}

// MonthlyStats aggregates a calendar month.
type MonthlyStats struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:uniq_monthly_user_month;not null" json:"external_user_id"`
	Year           int    `gorm:"uniqueIndex:uniq_monthly_user_month;not null" json:"year"`
	Month          int    `gorm:"uniqueIndex:uniq_monthly_user_month;not null" json:"month"` // 1-12

	TotalSessions           int `gorm:"default:0" json:"total_sessions"`
	TotalWorkMinutes        int `gorm:"default:0" json:"total_work_minutes"`
	TotalIntervalsCompleted int `gorm:"default:0" json:"total_intervals_completed"`
	TotalBreaksTaken        int `gorm:"default:0" json:"total_breaks_taken"`
	BreaksCompliant         int `gorm:"default:0" json:"breaks_compliant"`
	ActiveDays              int `gorm:"default:0" json:"active_days"`

	Timestamps
}
