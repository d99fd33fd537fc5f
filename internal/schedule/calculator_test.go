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

package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeflab/reefcore/internal/store"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed.UTC()
}

func timePtr(t time.Time) *time.Time { return &t }
func int64Ptr(v int64) *int64        { return &v }

func intervalSchedule(start string, seconds int64) *store.Schedule {
	s := &store.Schedule{
		ScheduleType:    store.ScheduleInterval,
		IntervalSeconds: int64Ptr(seconds),
		Timezone:        "UTC",
		ActionType:      store.ActionOff,
	}
	start2, _ := time.Parse(time.RFC3339, start)
	s.StartTime = timePtr(start2.UTC())
	return s
}

func TestNextAfter_Interval(t *testing.T) {
	s := intervalSchedule("2024-01-15T00:00:00Z", 60)

	next, status := NextAfter(s, mustParse(t, "2024-01-15T00:02:45Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-15T00:03:00Z"), next)

	// Exactly on a boundary the boundary itself is due
	next, status = NextAfter(s, mustParse(t, "2024-01-15T00:03:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-15T00:03:00Z"), next)

	// Before the start the first fire is the start itself
	next, status = NextAfter(s, mustParse(t, "2024-01-14T12:00:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-15T00:00:00Z"), next)
}

func TestNextAfter_IntervalEndTime(t *testing.T) {
	s := intervalSchedule("2024-01-15T00:00:00Z", 60)
	s.EndTime = timePtr(mustParse(t, "2024-01-15T00:05:00Z"))

	next, status := NextAfter(s, mustParse(t, "2024-01-15T00:04:30Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-15T00:05:00Z"), next)

	_, status = NextAfter(s, mustParse(t, "2024-01-15T00:05:30Z"))
	assert.Equal(t, StatusExpired, status)
}

func TestNextAfter_OneOff(t *testing.T) {
	s := &store.Schedule{
		ScheduleType: store.ScheduleOneOff,
		StartTime:    timePtr(mustParse(t, "2024-01-15T14:30:00Z")),
		Timezone:     "UTC",
		ActionType:   store.ActionOn,
	}

	next, status := NextAfter(s, mustParse(t, "2024-01-15T10:00:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-15T14:30:00Z"), next)

	// Already in the past
	_, status = NextAfter(s, mustParse(t, "2024-01-15T15:00:00Z"))
	assert.Equal(t, StatusExpired, status)

	// Already fired
	s.LastRun = timePtr(mustParse(t, "2024-01-15T14:30:00Z"))
	_, status = NextAfter(s, mustParse(t, "2024-01-15T10:00:00Z"))
	assert.Equal(t, StatusExpired, status)
}

func TestNextAfter_Cron(t *testing.T) {
	s := &store.Schedule{
		ScheduleType:   store.ScheduleCron,
		CronExpression: "0 8 * * *",
		Timezone:       "UTC",
		ActionType:     store.ActionOn,
	}

	next, status := NextAfter(s, mustParse(t, "2024-01-15T07:59:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-15T08:00:00Z"), next)

	next, status = NextAfter(s, mustParse(t, "2024-01-15T08:00:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-16T08:00:00Z"), next)
}

func TestNextAfter_CronZone(t *testing.T) {
	// 22:00 in Berlin (CET, UTC+1 in January) is 21:00 UTC
	s := &store.Schedule{
		ScheduleType:   store.ScheduleCron,
		CronExpression: "0 22 * * *",
		Timezone:       "Europe/Berlin",
		ActionType:     store.ActionOff,
	}

	next, status := NextAfter(s, mustParse(t, "2024-01-15T12:00:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-15T21:00:00Z"), next)
}

func TestNextAfter_CronSpringForward(t *testing.T) {
	// 2024-03-10: 02:00-03:00 does not exist in America/Los_Angeles.
	// The 02:30 match fires at the equivalent instant after the gap,
	// 03:30 PDT, which is 10:30 UTC.
	s := &store.Schedule{
		ScheduleType:   store.ScheduleCron,
		CronExpression: "30 2 * * *",
		Timezone:       "America/Los_Angeles",
		ActionType:     store.ActionOn,
	}

	next, status := NextAfter(s, mustParse(t, "2024-03-10T07:00:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-03-10T10:30:00Z"), next)
}

func TestNextAfter_CronSpringForwardFullHour(t *testing.T) {
	// 02:00 itself maps to 03:00 PDT, 10:00 UTC
	s := &store.Schedule{
		ScheduleType:   store.ScheduleCron,
		CronExpression: "0 2 * * *",
		Timezone:       "America/Los_Angeles",
		ActionType:     store.ActionOn,
	}

	next, status := NextAfter(s, mustParse(t, "2024-03-10T07:00:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-03-10T10:00:00Z"), next)
}

func TestNextAfter_CronFallBack(t *testing.T) {
	// 2024-11-03: 01:30 occurs twice in America/Los_Angeles
	// (08:30 UTC as PDT, 09:30 UTC as PST). Only the first fires.
	s := &store.Schedule{
		ScheduleType:   store.ScheduleCron,
		CronExpression: "30 1 * * *",
		Timezone:       "America/Los_Angeles",
		ActionType:     store.ActionOn,
	}

	next, status := NextAfter(s, mustParse(t, "2024-11-03T07:00:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-11-03T08:30:00Z"), next)

	// After the first occurrence the schedule skips the replayed wall
	// time and lands on the next day
	next, status = NextAfter(s, mustParse(t, "2024-11-03T08:30:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-11-04T09:30:00Z"), next)
}

func TestNextAfter_HourlyCronKeepsBothFallBackPasses(t *testing.T) {
	// An hour-wildcard schedule runs on absolute time; the repeated wall
	// hour is two distinct fires
	s := &store.Schedule{
		ScheduleType:   store.ScheduleCron,
		CronExpression: "30 * * * *",
		Timezone:       "America/Los_Angeles",
		ActionType:     store.ActionOn,
	}

	next, status := NextAfter(s, mustParse(t, "2024-11-03T08:30:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-11-03T09:30:00Z"), next)
}

func TestNextAfter_Recurring(t *testing.T) {
	s := &store.Schedule{
		ScheduleType: store.ScheduleRecurring,
		Timezone:     "UTC",
		ActionType:   store.ActionOn,
	}
	s.SetActionParams(map[string]any{
		"recurring_pattern": map[string]any{
			"frequency": "weekly",
			"at":        "09:00",
			"days":      []any{"mon", "fri"},
		},
	})

	// 2024-01-15 is a Monday
	next, status := NextAfter(s, mustParse(t, "2024-01-15T08:00:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-15T09:00:00Z"), next)

	next, status = NextAfter(s, mustParse(t, "2024-01-15T09:30:00Z"))
	require.Equal(t, StatusActive, status)
	assert.Equal(t, mustParse(t, "2024-01-19T09:00:00Z"), next)
}

func TestNextAfter_Invalid(t *testing.T) {
	cases := []struct {
		name string
		s    *store.Schedule
	}{
		{"missing cron expression", &store.Schedule{ScheduleType: store.ScheduleCron, ActionType: store.ActionOn}},
		{"bad cron grammar", &store.Schedule{ScheduleType: store.ScheduleCron, CronExpression: "not a cron", ActionType: store.ActionOn}},
		{"unknown zone", &store.Schedule{ScheduleType: store.ScheduleCron, CronExpression: "0 8 * * *", Timezone: "Mars/Olympus", ActionType: store.ActionOn}},
		{"interval without seconds", &store.Schedule{ScheduleType: store.ScheduleInterval, StartTime: timePtr(time.Unix(0, 0)), ActionType: store.ActionOn}},
		{"unknown type", &store.Schedule{ScheduleType: "lunar", ActionType: store.ActionOn}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, status := NextAfter(tc.s, time.Now().UTC())
			assert.Equal(t, StatusInvalid, status)
		})
	}
}

func TestValidate_EndBeforeStart(t *testing.T) {
	s := intervalSchedule("2024-01-15T00:00:00Z", 60)
	s.EndTime = timePtr(mustParse(t, "2024-01-14T00:00:00Z"))
	assert.Error(t, Validate(s))
}

func TestValidate_ActionParams(t *testing.T) {
	s := intervalSchedule("2024-01-15T00:00:00Z", 60)

	s.ActionType = store.ActionSetPWM
	s.SetActionParams(map[string]any{"target": 150.0})
	assert.Error(t, Validate(s))

	s.SetActionParams(map[string]any{"target": 75.0})
	assert.NoError(t, Validate(s))

	s.ActionType = store.ActionRamp
	s.SetActionParams(map[string]any{"target": 50.0, "duration_ms": -5.0})
	assert.Error(t, Validate(s))

	// Custom parameters pass through untouched
	s.ActionType = store.ActionCustom
	s.SetActionParams(map[string]any{"anything": "goes"})
	assert.NoError(t, Validate(s))
}

func TestNextAfter_Idempotent(t *testing.T) {
	s := intervalSchedule("2024-01-15T00:00:00Z", 60)
	now := mustParse(t, "2024-01-15T00:02:45Z")

	first, status1 := NextAfter(s, now)
	second, status2 := NextAfter(s, now)
	assert.Equal(t, status1, status2)
	assert.Equal(t, first, second)
}

func TestNextAfter_NonDecreasing(t *testing.T) {
	s := &store.Schedule{
		ScheduleType:   store.ScheduleCron,
		CronExpression: "*/15 * * * *",
		Timezone:       "America/Los_Angeles",
		ActionType:     store.ActionOn,
	}

	prev := time.Time{}
	now := mustParse(t, "2024-03-09T00:00:00Z")
	for i := 0; i < 400; i++ {
		next, status := NextAfter(s, now)
		require.Equal(t, StatusActive, status)
		assert.False(t, next.Before(prev), "NextAfter regressed at %s", now)
		prev = next
		now = now.Add(17 * time.Minute)
	}
}

func TestMostRecentDue(t *testing.T) {
	s := intervalSchedule("2024-01-15T00:00:00Z", 60)

	// Worker down for ten minutes: the most recent boundary fires
	due := MostRecentDue(s, mustParse(t, "2024-01-15T00:01:00Z"), mustParse(t, "2024-01-15T00:10:30Z"))
	assert.Equal(t, mustParse(t, "2024-01-15T00:10:00Z"), due)

	// Nothing newer due: the known instant stands
	due = MostRecentDue(s, mustParse(t, "2024-01-15T00:01:00Z"), mustParse(t, "2024-01-15T00:01:30Z"))
	assert.Equal(t, mustParse(t, "2024-01-15T00:01:00Z"), due)
}

func TestPattern_CronExpression(t *testing.T) {
	expr, err := Pattern{Frequency: "daily", At: "14:30"}.CronExpression()
	require.NoError(t, err)
	assert.Equal(t, "30 14 * * *", expr)

	expr, err = Pattern{Frequency: "weekly", At: "09:00", Days: []string{"mon", "wed", "sun"}}.CronExpression()
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 1,3,0", expr)

	_, err = Pattern{Frequency: "weekly", At: "09:00"}.CronExpression()
	assert.Error(t, err)

	_, err = Pattern{Frequency: "daily", At: "25:00"}.CronExpression()
	assert.Error(t, err)
}
