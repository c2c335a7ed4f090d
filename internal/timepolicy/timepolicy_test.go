package timepolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestIsNight(t *testing.T) {
	assert.False(t, IsNight(date(20, 59)))
	assert.True(t, IsNight(date(21, 0)))
	assert.True(t, IsNight(date(23, 30)))
	assert.True(t, IsNight(date(0, 0)))
	assert.True(t, IsNight(date(6, 59)))
	assert.False(t, IsNight(date(7, 0)))
	assert.False(t, IsNight(date(12, 0)))
}

func TestNextBusinessTime(t *testing.T) {
	// ночью до полуночи — утро следующего дня
	next := NextBusinessTime(date(22, 0))
	assert.Equal(t, time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC), next)

	// после полуночи — утро того же дня
	next = NextBusinessTime(date(3, 0))
	assert.Equal(t, time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC), next)

	// ровно в 07:00 — уже следующее утро
	next = NextBusinessTime(date(7, 0))
	assert.Equal(t, time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC), next)
}

func TestImmediateDue(t *testing.T) {
	now := date(10, 0)
	assert.Equal(t, date(10, 5), ImmediateDue(now))
}

func TestAcceptanceDeadline(t *testing.T) {
	created := date(10, 0)

	tests := []struct {
		name string
		due  time.Time
		want time.Time
	}{
		{"within 90 minutes", created.Add(time.Hour), created.Add(time.Hour)},
		{"exactly 90 minutes", created.Add(90 * time.Minute), created.Add(90 * time.Minute)},
		{"within a day", created.Add(20 * time.Hour), created.Add(90 * time.Minute)},
		{"exactly a day", created.Add(24 * time.Hour), created.Add(90 * time.Minute)},
		{"within three days", created.Add(48 * time.Hour), created.Add(16 * time.Hour)},
		{"far ahead", created.Add(120 * time.Hour), created.Add(120 * time.Hour).Add(-48 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AcceptanceDeadline(tt.due, created))
		})
	}
}

func TestWithdrawCutoff(t *testing.T) {
	due := date(12, 0)
	assert.Equal(t, due.Add(-24*time.Hour), WithdrawCutoff(due))
}
