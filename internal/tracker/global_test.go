package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReminderGate(t *testing.T) {
	g := &reminderGate{}
	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, 8, day, hour, minute, 0, 0, time.UTC)
	}

	assert.True(t, g.due(at(1, 8, 0)))
	assert.False(t, g.due(at(1, 8, 0)), "an hour fires at most once")
	assert.False(t, g.due(at(1, 9, 0)), "odd hours are skipped")
	assert.False(t, g.due(at(1, 10, 5)), "only minute zero fires")
	assert.True(t, g.due(at(1, 10, 0)))

	// the day rollover resets the sent set even when no tick lands exactly
	// on 00:00
	assert.True(t, g.due(at(2, 8, 0)))
	assert.True(t, g.due(at(3, 8, 0)))
}
