package services

import (
	"fmt"
	"time"

	"break-timer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dateLayout = "2006-01-02"

// ComplianceService derives all statistics from raw session/interval/break
// history. It keeps no state of its own: the *Stats tables it maintains are
// caches rebuilt by overwrite, so any two recomputations over the same raw
// records produce identical results.
type ComplianceService struct {
	DB *gorm.DB
}

func NewComplianceService(db *gorm.DB) *ComplianceService {
	return &ComplianceService{DB: db}
}

// PeriodSummary aggregates an inclusive date range. Sessions are attributed
// to the day they started, breaks to the day they began, so the summary over
// [d1,d3] always equals summary([d1,d2]) + summary([d2+1,d3]).
type PeriodSummary struct {
	StartDate               string  `json:"start_date"`
	EndDate                 string  `json:"end_date"`
	TotalSessions           int64   `json:"total_sessions"`
	TotalWorkMinutes        int64   `json:"total_work_minutes"`
	TotalIntervalsCompleted int64   `json:"total_intervals_completed"`
	TotalBreaksTaken        int64   `json:"total_breaks_taken"`
	BreaksCompliant         int64   `json:"breaks_compliant"`
	ComplianceRate          float64 `json:"compliance_rate"`
}

// dayBounds returns [start, end) of the calendar day containing t in loc.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// compliantBreakScope narrows a BreakRecord query to compliant breaks using
// the same predicate as BreakRecord.IsCompliant.
func compliantBreakScope(db *gorm.DB) *gorm.DB {
	return db.Where("completed = ? AND duration_seconds >= ? AND looked_at_distance = ?",
		true, models.CompliantBreakSeconds, true)
}

// DailyCompliance returns compliant/total for breaks started on the given
// day in the user's timezone. Zero breaks is a rate of 0, never an error.
func (s *ComplianceService) DailyCompliance(userID string, day time.Time, loc *time.Location) (float64, error) {
	compliant, total, err := s.dailyBreakCounts(s.DB, userID, day, loc)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(compliant) / float64(total), nil
}

func (s *ComplianceService) dailyBreakCounts(tx *gorm.DB, userID string, day time.Time, loc *time.Location) (compliant, total int64, err error) {
	start, end := dayBounds(day, loc)

	base := tx.Model(&models.BreakRecord{}).
		Where("external_user_id = ? AND break_start_time >= ? AND break_start_time < ?", userID, start, end)

	if err = base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count breaks for %s on %s: %w", userID, start.Format(dateLayout), err)
	}
	if err = compliantBreakScope(base.Session(&gorm.Session{})).Count(&compliant).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count compliant breaks for %s on %s: %w", userID, start.Format(dateLayout), err)
	}
	return compliant, total, nil
}

// Summarize aggregates raw records across the inclusive date range [start, end].
func (s *ComplianceService) Summarize(userID string, start, end time.Time, loc *time.Location) (*PeriodSummary, error) {
	rangeStart, _ := dayBounds(start, loc)
	_, rangeEnd := dayBounds(end, loc)

	summary := &PeriodSummary{
		StartDate: rangeStart.Format(dateLayout),
		EndDate:   end.In(loc).Format(dateLayout),
	}

	var sessionAgg struct {
		Count       int64
		WorkMinutes int64
		Intervals   int64
	}
	err := s.DB.Model(&models.TimerSession{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_work_minutes), 0) AS work_minutes, COALESCE(SUM(total_intervals_completed), 0) AS intervals").
		Where("external_user_id = ? AND start_time >= ? AND start_time < ?", userID, rangeStart, rangeEnd).
		Scan(&sessionAgg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions for %s: %w", userID, err)
	}
	summary.TotalSessions = sessionAgg.Count
	summary.TotalWorkMinutes = sessionAgg.WorkMinutes
	summary.TotalIntervalsCompleted = sessionAgg.Intervals

	breakBase := s.DB.Model(&models.BreakRecord{}).
		Where("external_user_id = ? AND break_start_time >= ? AND break_start_time < ?", userID, rangeStart, rangeEnd)
	if err := breakBase.Session(&gorm.Session{}).Count(&summary.TotalBreaksTaken).Error; err != nil {
		return nil, fmt.Errorf("failed to count breaks for %s: %w", userID, err)
	}
	if err := compliantBreakScope(breakBase.Session(&gorm.Session{})).Count(&summary.BreaksCompliant).Error; err != nil {
		return nil, fmt.Errorf("failed to count compliant breaks for %s: %w", userID, err)
	}

	if summary.TotalBreaksTaken > 0 {
		summary.ComplianceRate = float64(summary.BreaksCompliant) / float64(summary.TotalBreaksTaken)
	}
	return summary, nil
}

// CachedSummary sums the stored DailyStats rows for the range. Used as the
// stale-but-valid fallback when live aggregation fails.
func (s *ComplianceService) CachedSummary(userID string, start, end time.Time, loc *time.Location) (*PeriodSummary, error) {
	startStr := start.In(loc).Format(dateLayout)
	endStr := end.In(loc).Format(dateLayout)

	var agg struct {
		Sessions    int64
		WorkMinutes int64
		Intervals   int64
		Breaks      int64
		Compliant   int64
	}
	err := s.DB.Model(&models.DailyStats{}).
		Select("COALESCE(SUM(total_sessions), 0) AS sessions, COALESCE(SUM(total_work_minutes), 0) AS work_minutes, COALESCE(SUM(total_intervals_completed), 0) AS intervals, COALESCE(SUM(total_breaks_taken), 0) AS breaks, COALESCE(SUM(breaks_compliant), 0) AS compliant").
		Where("external_user_id = ? AND date >= ? AND date <= ?", userID, startStr, endStr).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read cached stats for %s: %w", userID, err)
	}

	summary := &PeriodSummary{
		StartDate:               startStr,
		EndDate:                 endStr,
		TotalSessions:           agg.Sessions,
		TotalWorkMinutes:        agg.WorkMinutes,
		TotalIntervalsCompleted: agg.Intervals,
		TotalBreaksTaken:        agg.Breaks,
		BreaksCompliant:         agg.Compliant,
	}
	if summary.TotalBreaksTaken > 0 {
		summary.ComplianceRate = float64(summary.BreaksCompliant) / float64(summary.TotalBreaksTaken)
	}
	return summary, nil
}

// UserLocation resolves the user's configured timezone from the local
// account snapshot, defaulting to UTC for unknown users.
func (s *ComplianceService) UserLocation(userID string) *time.Location {
	var account models.UserAccount
	if err := s.DB.Where("external_user_id = ?", userID).First(&account).Error; err != nil {
		return time.UTC
	}
	return account.Location()
}

// RecomputeDailyStats rebuilds one user-day from raw records and upserts the
// cache row. Overwrite-by-recompute: a duplicated or retried run lands on the
// same values.
func (s *ComplianceService) RecomputeDailyStats(userID string, day time.Time, loc *time.Location) (*models.DailyStats, error) {
	summary, err := s.Summarize(userID, day, day, loc)
	if err != nil {
		return nil, err
	}

	stats := &models.DailyStats{
		ID:                      uuid.NewString(),
		ExternalUserID:          userID,
		Date:                    summary.StartDate,
		TotalSessions:           int(summary.TotalSessions),
		TotalWorkMinutes:        int(summary.TotalWorkMinutes),
		TotalIntervalsCompleted: int(summary.TotalIntervalsCompleted),
		TotalBreaksTaken:        int(summary.TotalBreaksTaken),
		BreaksCompliant:         int(summary.BreaksCompliant),
	}

	err = s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_sessions",
			"total_work_minutes",
			"total_intervals_completed",
			"total_breaks_taken",
			"breaks_compliant",
			"updated_at",
		}),
	}).Create(stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily stats for %s/%s: %w", userID, stats.Date, err)
	}
	return stats, nil
}

// RecomputeWeeklyStats rebuilds the Monday-to-Sunday week containing day.
func (s *ComplianceService) RecomputeWeeklyStats(userID string, day time.Time, loc *time.Location) (*models.WeeklyStats, error) {
	local := day.In(loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	weekStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -(weekday - 1))
	weekEnd := weekStart.AddDate(0, 0, 6)

	summary, err := s.Summarize(userID, weekStart, weekEnd, loc)
	if err != nil {
		return nil, err
	}
	activeDays, err := s.activeDays(userID, weekStart, weekEnd, loc)
	if err != nil {
		return nil, err
	}

	stats := &models.WeeklyStats{
		ID:                      uuid.NewString(),
		ExternalUserID:          userID,
		WeekStartDate:           weekStart.Format(dateLayout),
		WeekEndDate:             weekEnd.Format(dateLayout),
		TotalSessions:           int(summary.TotalSessions),
		TotalWorkMinutes:        int(summary.TotalWorkMinutes),
		TotalIntervalsCompleted: int(summary.TotalIntervalsCompleted),
		TotalBreaksTaken:        int(summary.TotalBreaksTaken),
		BreaksCompliant:         int(summary.BreaksCompliant),
		ActiveDays:              activeDays,
	}

	err = s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}, {Name: "week_start_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"week_end_date",
			"total_sessions",
			"total_work_minutes",
			"total_intervals_completed",
			"total_breaks_taken",
			"breaks_compliant",
			"active_days",
			"updated_at",
		}),
	}).Create(stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert weekly stats for %s/%s: %w", userID, stats.WeekStartDate, err)
	}
	return stats, nil
}

// RecomputeMonthlyStats rebuilds the calendar month containing day.
func (s *ComplianceService) RecomputeMonthlyStats(userID string, day time.Time, loc *time.Location) (*models.MonthlyStats, error) {
	local := day.In(loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, -1)

	summary, err := s.Summarize(userID, monthStart, monthEnd, loc)
	if err != nil {
		return nil, err
	}
	activeDays, err := s.activeDays(userID, monthStart, monthEnd, loc)
	if err != nil {
		return nil, err
	}

	stats := &models.MonthlyStats{
		ID:                      uuid.NewString(),
		ExternalUserID:          userID,
		Year:                    monthStart.Year(),
		Month:                   int(monthStart.Month()),
		TotalSessions:           int(summary.TotalSessions),
		TotalWorkMinutes:        int(summary.TotalWorkMinutes),
		TotalIntervalsCompleted: int(summary.TotalIntervalsCompleted),
		TotalBreaksTaken:        int(summary.TotalBreaksTaken),
		BreaksCompliant:         int(summary.BreaksCompliant),
		ActiveDays:              activeDays,
	}

	err = s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_sessions",
			"total_work_minutes",
			"total_intervals_completed",
			"total_breaks_taken",
			"breaks_compliant",
			"active_days",
			"updated_at",
		}),
	}).Create(stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert monthly stats for %s/%d-%02d: %w", userID, stats.Year, stats.Month, err)
	}
	return stats, nil
}

// activeDays counts distinct calendar days in [start, end] with at least one
// session. Day-by-day counting keeps the day boundary in the user's
// timezone regardless of how the backend stores timestamps.
func (s *ComplianceService) activeDays(userID string, start, end time.Time, loc *time.Location) (int, error) {
	active := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayStart, dayEnd := dayBounds(day, loc)
		var count int64
		err := s.DB.Model(&models.TimerSession{}).
			Where("external_user_id = ? AND start_time >= ? AND start_time < ?", userID, dayStart, dayEnd).
			Count(&count).Error
		if err != nil {
			return 0, fmt.Errorf("failed to count sessions for %s: %w", userID, err)
		}
		if count > 0 {
			active++
		}
	}
	return active, nil
}

// PerfectDays counts cached days where every break taken was compliant.
func (s *ComplianceService) PerfectDays(tx *gorm.DB, userID string) (int64, error) {
	var count int64
	err := tx.Model(&models.DailyStats{}).
		Where("external_user_id = ? AND total_breaks_taken > 0 AND breaks_compliant = total_breaks_taken", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count perfect days for %s: %w", userID, err)
	}
	return count, nil
}
