package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakIsCompliant(t *testing.T) {
	cases := []struct {
		name      string
		record    BreakRecord
		compliant bool
	}{
		{
			name:      "full compliance",
			record:    BreakRecord{Completed: true, DurationSeconds: 20, LookedAtDistance: true},
			compliant: true,
		},
		{
			name:      "longer than required",
			record:    BreakRecord{Completed: true, DurationSeconds: 90, LookedAtDistance: true},
			compliant: true,
		},
		{
			name:      "too short",
			record:    BreakRecord{Completed: true, DurationSeconds: 19, LookedAtDistance: true},
			compliant: false,
		},
		{
			name:      "did not look away",
			record:    BreakRecord{Completed: true, DurationSeconds: 45, LookedAtDistance: false},
			compliant: false,
		},
		{
			name:      "abandoned",
			record:    BreakRecord{Completed: false, DurationSeconds: 45, LookedAtDistance: true},
			compliant: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.compliant, tc.record.IsCompliant())
		})
	}
}

func TestBreakTerminal(t *testing.T) {
	open := BreakRecord{BreakStartTime: time.Now()}
	assert.False(t, open.Terminal())

	completed := BreakRecord{Completed: true}
	assert.True(t, completed.Terminal())

	end := time.Now()
	abandoned := BreakRecord{BreakEndTime: &end}
	assert.True(t, abandoned.Terminal())
}

func TestSessionDurationMinutes(t *testing.T) {
	start := time.Now().Add(-45 * time.Minute)
	session := TimerSession{StartTime: start}
	assert.Equal(t, 45, session.DurationMinutes(time.Now()))

	end := start.Add(30 * time.Minute)
	session.EndTime = &end
	assert.Equal(t, 30, session.DurationMinutes(time.Now()))
}
