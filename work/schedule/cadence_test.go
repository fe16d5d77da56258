package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHourlyNextRun(t *testing.T) {
	c := HourlyCadence(15)

	// Before the offset: fires later this hour.
	now := time.Date(2026, 3, 9, 10, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 10, 15, 0, 0, time.UTC), c.NextRun(now))

	// Past the offset: fires next hour.
	now = time.Date(2026, 3, 9, 10, 20, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 11, 15, 0, 0, time.UTC), c.NextRun(now))

	// Exactly on the offset: strictly after now, so next hour.
	now = time.Date(2026, 3, 9, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 11, 15, 0, 0, time.UTC), c.NextRun(now))
}

func TestDailyNextRun(t *testing.T) {
	c := DailyCadence(3)

	// Registered at 04:00 for a 03:00 cadence: fires 23 hours later.
	now := time.Date(2026, 3, 9, 4, 0, 0, 0, time.UTC)
	next := c.NextRun(now)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), next)
	assert.Equal(t, 23*time.Hour, next.Sub(now))

	// Registered at 02:00: fires later the same day.
	now = time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC), c.NextRun(now))

	// After firing at 03:00, the following occurrence is +24h.
	fired := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, fired.AddDate(0, 0, 1), c.NextRun(fired))
}

func TestWeeklyNextRun(t *testing.T) {
	// 2026-03-09 is a Monday.
	c := WeeklyCadence(time.Wednesday, 8)

	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), c.NextRun(now))

	// Same weekday, before the hour: fires today.
	now = time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), c.NextRun(now))

	// Same weekday, past the hour: fires next week.
	now = time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 18, 8, 0, 0, 0, time.UTC), c.NextRun(now))
}

func TestNextRunAlwaysInFuture(t *testing.T) {
	cadences := []Cadence{
		HourlyCadence(0),
		HourlyCadence(59),
		DailyCadence(0),
		DailyCadence(23),
		WeeklyCadence(time.Sunday, 0),
		WeeklyCadence(time.Saturday, 23),
	}
	now := time.Date(2026, 8, 30, 23, 59, 30, 0, time.UTC)

	for _, c := range cadences {
		next := c.NextRun(now)
		assert.True(t, next.After(now), "%s: %s is not after %s", c, next, now)
	}
}

func TestMinuteOffsetStableAndInRange(t *testing.T) {
	ids := []string{"sla-sweep-hourly", "article-renewal-hourly", "jobs-cleanup-daily"}
	for _, id := range ids {
		offset := MinuteOffset(id)
		assert.GreaterOrEqual(t, offset, 0)
		assert.Less(t, offset, 60)
		assert.Equal(t, offset, MinuteOffset(id), "offset must be stable per ID")
	}
}

func TestCadenceString(t *testing.T) {
	assert.Equal(t, "hourly@:07", HourlyCadence(7).String())
	assert.Equal(t, "daily@03:00", DailyCadence(3).String())
	assert.Equal(t, "weekly@Friday,17:00", WeeklyCadence(time.Friday, 17).String())
}
