package models

import (
	"time"
)

// UserLevel is the per-user experience ledger. TotalExperiencePoints only
// ever grows; CurrentLevel is a pure function of it (LevelForXP) and is
// stored only as a convenience copy recomputed on every award.
type UserLevel struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`

	TotalExperiencePoints int64 `gorm:"default:0" json:"total_experience_points"`
	CurrentLevel          int   `gorm:"default:1" json:"current_level"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// levelThresholds[n] is the cumulative XP required to reach level n+1.
// Strictly increasing; the last entry caps the ladder.
var levelThresholds = []int64{
	0,     // level 1
	100,   // level 2
	250,   // level 3
	450,   // level 4
	700,   // level 5
	1000,  // level 6
	1400,  // level 7
	1900,  // level 8
	2500,  // level 9
	3200,  // level 10
	4000,  // level 11
	5000,  // level 12
	6200,  // level 13
	7600,  // level 14
	9200,  // level 15
	11000, // level 16
	13000, // level 17
	15500, // level 18
	18500, // level 19
	22000, // level 20
}

// MaxLevel is the top of the ladder.
var MaxLevel = len(levelThresholds)

// LevelForXP returns the level reached with the given cumulative experience.
func LevelForXP(xp int64) int {
	level := 1
	for i, threshold := range levelThresholds {
		if xp >= threshold {
			level = i + 1
		} else {
			break
		}
	}
	return level
}

// XPForNextLevel returns the cumulative XP needed to reach the next level,
// or -1 when the ladder is capped.
func XPForNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	if level >= MaxLevel {
		return -1
	}
	return levelThresholds[level]
}

// LevelTitle names the bracket a level falls into.
func LevelTitle(level int) string {
	switch {
	case level >= 20:
		return "Eye Health Legend"
	case level >= 15:
		return "Guardian"
	case level >= 10:
		return "Veteran"
	case level >= 5:
		return "Regular"
	default:
		return "Beginner"
	}
}
