// Package schedule provides Threadline's recurring-job scheduler: named
// cadence rules (hourly, daily, weekly) backed by self-rescheduling
// single-shot timers that enqueue through the job queue each time they fire.
package schedule

import (
	"fmt"
	"hash/fnv"
	"time"
)

// CadenceKind identifies the recurrence rule of a Cadence.
type CadenceKind int

const (
	KindHourly CadenceKind = iota
	KindDaily
	KindWeekly
)

func (k CadenceKind) String() string {
	switch k {
	case KindHourly:
		return "hourly"
	case KindDaily:
		return "daily"
	case KindWeekly:
		return "weekly"
	default:
		return "unknown"
	}
}

// Cadence is a pure recurrence rule. It owns no timer and reads no clock;
// NextRun derives the next fire time from whatever "now" the caller passes,
// which keeps the arithmetic fully deterministic under test.
type Cadence struct {
	Kind    CadenceKind
	Minute  int          // minute within the hour (hourly only)
	Hour    int          // hour of day, 0-23 (daily and weekly)
	Weekday time.Weekday // day of week (weekly only)
}

// HourlyCadence fires once per hour at the given minute offset.
func HourlyCadence(minute int) Cadence {
	return Cadence{Kind: KindHourly, Minute: minute}
}

// DailyCadence fires once per day at the given hour, server-local time.
func DailyCadence(hour int) Cadence {
	return Cadence{Kind: KindDaily, Hour: hour}
}

// WeeklyCadence fires once per week at the given weekday and hour,
// server-local time.
func WeeklyCadence(day time.Weekday, hour int) Cadence {
	return Cadence{Kind: KindWeekly, Weekday: day, Hour: hour}
}

// NextRun returns the next fire time strictly after now, in now's location.
// A daily cadence registered at 04:00 for hour 3 therefore lands at 03:00
// the next day, 23 hours out.
func (c Cadence) NextRun(now time.Time) time.Time {
	switch c.Kind {
	case KindHourly:
		next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), c.Minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(time.Hour)
		}
		return next

	case KindDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case KindWeekly:
		next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, 0, 0, 0, now.Location())
		daysAhead := (int(c.Weekday) - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, daysAhead)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	default:
		panic(fmt.Sprintf("unknown cadence kind: %d", c.Kind))
	}
}

func (c Cadence) String() string {
	switch c.Kind {
	case KindHourly:
		return fmt.Sprintf("hourly@:%02d", c.Minute)
	case KindDaily:
		return fmt.Sprintf("daily@%02d:00", c.Hour)
	case KindWeekly:
		return fmt.Sprintf("weekly@%s,%02d:00", c.Weekday, c.Hour)
	default:
		return "unknown"
	}
}

// MinuteOffset derives a stable minute-of-hour for a schedule ID, spreading
// the hourly schedules across the hour instead of stampeding at :00. The
// same ID always maps to the same minute, across restarts and deployments.
func MinuteOffset(scheduleID string) int {
	h := fnv.New32a()
	h.Write([]byte(scheduleID))
	return int(h.Sum32() % 60)
}
