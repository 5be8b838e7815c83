package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Domain errors surfaced to handlers. State-precondition and quota violations
// are distinct kinds so the web layer can map each to a specific message
// (quota failures get upgrade messaging). ErrNotFound deliberately covers
// both missing and not-owned records so callers cannot enumerate other
// users' data.
var (
	ErrSessionAlreadyActive   = errors.New("user already has an active session")
	ErrSessionNotActive       = errors.New("session is not active")
	ErrDailyLimitExceeded     = errors.New("daily free interval limit reached")
	ErrIntervalState          = errors.New("interval is not in the required state")
	ErrBreakAlreadyCompleted  = errors.New("break has already been finalized")
	ErrNotFound               = errors.New("record not found")
	ErrChallengeClosed        = errors.New("challenge window is closed")
	ErrChallengeAlreadyJoined = errors.New("challenge already joined")
	ErrNegativeExperience     = errors.New("experience points must be positive")
)

// isDuplicateKeyError recognizes unique-constraint violations across the
// postgres and sqlite drivers, for paths that treat the constraint as the
// authoritative race arbiter.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
