/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package schedule computes firing instants for device schedules. All
// calculations happen in the schedule's IANA zone and results are returned
// in UTC. Matches erased by a spring-forward gap fire at the equivalent
// instant after the gap; wall times replayed by fall-back fire once, at
// the first occurrence.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reeflab/reefcore/internal/store"
)

// Status classifies the outcome of a next-fire computation
type Status int

const (
	// StatusActive means the schedule has a future or due firing instant
	StatusActive Status = iota
	// StatusExpired means the schedule will never fire again
	StatusExpired
	// StatusInvalid means the schedule definition cannot be evaluated
	StatusInvalid
)

// cronParser accepts standard 5-field expressions (minute hour dom month dow)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextAfter returns the next firing instant strictly governed by the
// schedule definition, evaluated at now (UTC). The result is UTC.
func NextAfter(s *store.Schedule, now time.Time) (time.Time, Status) {
	if err := Validate(s); err != nil {
		return time.Time{}, StatusInvalid
	}
	now = now.UTC()

	switch s.ScheduleType {
	case store.ScheduleOneOff:
		return nextOneOff(s, now)
	case store.ScheduleInterval:
		return nextInterval(s, now)
	case store.ScheduleCron:
		return nextCron(s, s.CronExpression, now)
	case store.ScheduleRecurring:
		return nextRecurring(s, now)
	case store.ScheduleStatic:
		// A static seed behaves as the pattern it carries
		if _, ok := recurringPattern(s); ok {
			return nextRecurring(s, now)
		}
		return nextOneOff(s, now)
	default:
		return time.Time{}, StatusInvalid
	}
}

func nextOneOff(s *store.Schedule, now time.Time) (time.Time, Status) {
	if s.LastRun != nil {
		return time.Time{}, StatusExpired
	}
	if s.StartTime.After(now) {
		return s.StartTime.UTC(), StatusActive
	}
	return time.Time{}, StatusExpired
}

func nextInterval(s *store.Schedule, now time.Time) (time.Time, Status) {
	start := s.StartTime.UTC()
	interval := time.Duration(*s.IntervalSeconds) * time.Second

	var candidate time.Time
	if start.After(now) {
		candidate = start
	} else {
		elapsed := now.Sub(start)
		k := elapsed / interval
		if elapsed%interval != 0 {
			k++
		}
		candidate = start.Add(k * interval)
	}

	if s.EndTime != nil && candidate.After(s.EndTime.UTC()) {
		return time.Time{}, StatusExpired
	}
	return candidate, StatusActive
}

func nextCron(s *store.Schedule, expr string, now time.Time) (time.Time, Status) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, StatusInvalid
	}
	loc, err := time.LoadLocation(zoneOrUTC(s.Timezone))
	if err != nil {
		return time.Time{}, StatusInvalid
	}

	base := now
	if s.StartTime != nil && s.StartTime.After(now) {
		// First fire is the first matching instant at or after start
		base = s.StartTime.UTC().Add(-time.Second)
	}

	next := sched.Next(base.In(loc))
	if next.IsZero() {
		return time.Time{}, StatusExpired
	}

	// A match skipped by a spring-forward gap fires at its pre-gap offset,
	// the first valid instant inside the new offset
	if skipped, ok := gapSkippedMatch(sched, base, next, loc); ok {
		next = skipped
	}

	// On fall-back overlaps only the first occurrence of a wall time fires
	if isRepeatedWallTime(sched, next, loc) {
		next = sched.Next(next)
	}

	candidate := next.UTC()
	if s.EndTime != nil && candidate.After(s.EndTime.UTC()) {
		return time.Time{}, StatusExpired
	}
	return candidate, StatusActive
}

// gapSkippedMatch detects a cron match whose wall time was erased by a
// spring-forward transition between base and next. The skipped wall time is
// interpreted at the pre-transition offset, which lands on the equivalent
// instant after the gap (02:30 in a one-hour gap fires at 03:30).
func gapSkippedMatch(sched cron.Schedule, base, next time.Time, loc *time.Location) (time.Time, bool) {
	offBase := zoneOffset(base, loc)
	offNext := zoneOffset(next, loc)
	if offNext <= offBase {
		return time.Time{}, false
	}

	// Evaluate the schedule in a frame frozen at the pre-transition offset;
	// a match that exists there but not in the real zone was skipped
	frozen := time.FixedZone(loc.String(), offBase)
	virtual := sched.Next(base.In(frozen))
	if virtual.IsZero() || !virtual.Before(next) {
		return time.Time{}, false
	}

	// Real matches before the gap would have been found by the zone-aware
	// walk; only a virtual match inside the gap differs
	if zoneOffset(virtual, loc) == offBase {
		return time.Time{}, false
	}
	return virtual, true
}

// starBit marks a wildcard field in a parsed cron expression
const starBit = 1 << 63

// isRepeatedWallTime reports whether t is the second occurrence of a wall
// time replayed by a fall-back transition. Schedules with a wildcard hour
// fire on absolute time and keep both passes.
func isRepeatedWallTime(sched cron.Schedule, t time.Time, loc *time.Location) bool {
	if ss, ok := sched.(*cron.SpecSchedule); ok && ss.Hour&starBit != 0 {
		return false
	}

	offNow := zoneOffset(t, loc)
	offEarlier := zoneOffset(t.Add(-time.Hour), loc)
	if offEarlier <= offNow {
		return false
	}
	shift := time.Duration(offEarlier-offNow) * time.Second
	earlier := t.Add(-shift).In(loc)
	local := t.In(loc)
	return earlier.Hour() == local.Hour() && earlier.Minute() == local.Minute() &&
		earlier.Day() == local.Day()
}

func zoneOffset(t time.Time, loc *time.Location) int {
	_, offset := t.In(loc).Zone()
	return offset
}

func nextRecurring(s *store.Schedule, now time.Time) (time.Time, Status) {
	pattern, ok := recurringPattern(s)
	if !ok {
		return time.Time{}, StatusInvalid
	}
	expr, err := pattern.CronExpression()
	if err != nil {
		return time.Time{}, StatusInvalid
	}
	return nextCron(s, expr, now)
}

// MostRecentDue walks forward from the known overdue instant t and returns
// the latest firing instant that is not after now. A worker that was down
// uses this to fire once when late instead of replaying every missed
// occurrence.
func MostRecentDue(s *store.Schedule, t, now time.Time) time.Time {
	const maxWalk = 5000

	best := t
	cursor := t
	for i := 0; i < maxWalk; i++ {
		// Interval boundaries are inclusive; step past the cursor so the
		// walk always advances
		next, st := NextAfter(s, cursor.Add(time.Second))
		if st != StatusActive || next.After(now) {
			return best
		}
		best, cursor = next, next
	}

	// Dense schedule with a long outage; resume the walk close to now.
	// Anything firing at least daily has an occurrence in this window.
	cursor = now.Add(-25 * time.Hour)
	if cursor.After(best) {
		for i := 0; i < maxWalk; i++ {
			next, st := NextAfter(s, cursor.Add(time.Second))
			if st != StatusActive || next.After(now) {
				break
			}
			best, cursor = next, next
		}
	}
	return best
}

func zoneOrUTC(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}
