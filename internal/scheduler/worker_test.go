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

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/store"
	"github.com/reeflab/reefcore/internal/testutil"
)

func newTestWorker(t *testing.T, at time.Time) (*Worker, *store.GormStore, *clock.Fake, *testutil.FakeExecutor) {
	t.Helper()
	st := testutil.NewMemoryStore(t)
	cl := clock.NewFake(at)
	ex := &testutil.FakeExecutor{}
	w := NewWorker(st, ex, cl, logr.Discard(), 30*time.Second, 100)
	return w, st, cl, ex
}

func createDevice(t *testing.T, st store.Store, name string) *store.Device {
	t.Helper()
	d := &store.Device{Name: name, DeviceType: "outlet", PollInterval: 60, IsActive: true}
	require.NoError(t, st.CreateDevice(context.Background(), d))
	return d
}

func createIntervalSchedule(t *testing.T, st store.Store, start time.Time, seconds int64, deviceIDs []int64) *store.Schedule {
	t.Helper()
	s := &store.Schedule{
		Name:            "test-interval",
		ScheduleType:    store.ScheduleInterval,
		IntervalSeconds: &seconds,
		StartTime:       &start,
		Timezone:        "UTC",
		ActionType:      store.ActionOff,
		IsEnabled:       true,
	}
	s.SetDeviceIDs(deviceIDs)
	require.NoError(t, st.CreateSchedule(context.Background(), s))
	return s
}

func TestRunOnce_IntervalMaterializeAndDispatch(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	w, st, cl, ex := newTestWorker(t, start.Add(2*time.Minute+45*time.Second))
	d := createDevice(t, st, "pump")
	sched := createIntervalSchedule(t, st, start, 60, []int64{d.ID})

	// First tick computes the next boundary, nothing fires yet
	require.NoError(t, w.RunOnce(ctx))

	got, err := st.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.Equal(start.Add(3*time.Minute)), "next_run = %s", got.NextRun)
	assert.Equal(t, 0, ex.Count())

	// At the boundary one action materializes and executes
	cl.Set(start.Add(3 * time.Minute))
	require.NoError(t, w.RunOnce(ctx))

	actions, total, err := st.ListActions(ctx, store.ActionFilter{ScheduleID: &sched.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, actions, 1)
	assert.Equal(t, store.ActionSuccess, actions[0].Status)
	assert.True(t, actions[0].ScheduledTime.Equal(start.Add(3*time.Minute)))
	require.NotNil(t, actions[0].ExecutedTime)
	assert.Equal(t, 1, ex.Count())

	got, err = st.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	assert.True(t, got.LastRun.Equal(start.Add(3*time.Minute)))
	assert.Equal(t, store.RunSuccess, got.LastRunStatus)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.Equal(start.Add(4*time.Minute)), "subsequent next_run = %s", got.NextRun)
}

func TestRunOnce_OneOffFiresAndDisables(t *testing.T) {
	ctx := context.Background()
	fireAt := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	w, st, cl, ex := newTestWorker(t, fireAt.Add(-time.Hour))
	d1 := createDevice(t, st, "light-1")
	d2 := createDevice(t, st, "light-2")

	s := &store.Schedule{
		Name:         "sunrise",
		ScheduleType: store.ScheduleOneOff,
		StartTime:    &fireAt,
		Timezone:     "UTC",
		ActionType:   store.ActionOn,
		IsEnabled:    true,
	}
	s.SetDeviceIDs([]int64{d1.ID, d2.ID})
	require.NoError(t, st.CreateSchedule(ctx, s))

	require.NoError(t, w.RunOnce(ctx))
	assert.Equal(t, 0, ex.Count())

	cl.Set(fireAt.Add(5 * time.Second))
	require.NoError(t, w.RunOnce(ctx))

	actions, total, err := st.ListActions(ctx, store.ActionFilter{ScheduleID: &s.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, a := range actions {
		assert.Equal(t, store.ActionSuccess, a.Status)
	}

	got, err := st.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsEnabled)
	assert.Nil(t, got.NextRun)
}

func TestRunOnce_RematerializationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	w, st, cl, _ := newTestWorker(t, start)
	d := createDevice(t, st, "pump")
	sched := createIntervalSchedule(t, st, start, 60, []int64{d.ID})

	fireAt := start.Add(time.Minute)
	require.NoError(t, st.SetNextRun(ctx, sched.ID, &fireAt))
	cl.Set(fireAt)

	// A crash between materialization and advancement leaves the action
	// behind with next_run unchanged; the next tick must not duplicate it
	require.NoError(t, w.materialize(ctx, sched, fireAt))
	require.NoError(t, w.RunOnce(ctx))

	_, total, err := st.ListActions(ctx, store.ActionFilter{ScheduleID: &sched.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	got, err := st.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.After(fireAt))
}

func TestRunOnce_LateWorkerFiresOnceAtMostRecentInstant(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	w, st, cl, ex := newTestWorker(t, start)
	d := createDevice(t, st, "pump")
	sched := createIntervalSchedule(t, st, start, 60, []int64{d.ID})

	overdue := start.Add(time.Minute)
	require.NoError(t, st.SetNextRun(ctx, sched.ID, &overdue))

	// Ten minutes of downtime: exactly one catch-up firing at the most
	// recent boundary, no backfill burst
	now := start.Add(10*time.Minute + 30*time.Second)
	cl.Set(now)
	require.NoError(t, w.RunOnce(ctx))

	actions, total, err := st.ListActions(ctx, store.ActionFilter{ScheduleID: &sched.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].ScheduledTime.Equal(start.Add(10*time.Minute)))
	assert.Equal(t, 1, ex.Count())
}

func TestRunOnce_ExecutorFailureMarksActionAndSchedule(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	w, st, cl, ex := newTestWorker(t, start)
	ex.Err = errors.New("relay stuck")
	d := createDevice(t, st, "pump")
	sched := createIntervalSchedule(t, st, start, 60, []int64{d.ID})

	fireAt := start.Add(time.Minute)
	require.NoError(t, st.SetNextRun(ctx, sched.ID, &fireAt))
	cl.Set(fireAt)
	require.NoError(t, w.RunOnce(ctx))

	actions, _, err := st.ListActions(ctx, store.ActionFilter{ScheduleID: &sched.ID})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.ActionFailed, actions[0].Status)
	assert.Equal(t, "relay stuck", actions[0].ErrorMessage)

	got, err := st.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, got.LastRunStatus)

	// The schedule keeps running; failures are not retried at the action
	// level
	assert.True(t, got.IsEnabled)
}

func TestRunOnce_InvalidScheduleDisabled(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	w, st, _, _ := newTestWorker(t, now)
	s := &store.Schedule{
		Name:           "broken",
		ScheduleType:   store.ScheduleCron,
		CronExpression: "not a cron",
		Timezone:       "UTC",
		ActionType:     store.ActionOn,
		IsEnabled:      true,
	}
	s.SetDeviceIDs([]int64{1})
	require.NoError(t, st.CreateSchedule(ctx, s))

	require.NoError(t, w.RunOnce(ctx))

	got, err := st.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsEnabled)
	assert.Equal(t, store.RunFailed, got.LastRunStatus)
	assert.Contains(t, got.LastRunError, "cron")
}

func TestRunOnce_ExpiredScheduleDisabled(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	w, st, _, _ := newTestWorker(t, now)
	past := now.Add(-time.Hour)
	s := &store.Schedule{
		Name:         "stale",
		ScheduleType: store.ScheduleOneOff,
		StartTime:    &past,
		Timezone:     "UTC",
		ActionType:   store.ActionOn,
		IsEnabled:    true,
	}
	s.SetDeviceIDs([]int64{1})
	require.NoError(t, st.CreateSchedule(ctx, s))

	require.NoError(t, w.RunOnce(ctx))

	got, err := st.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsEnabled)
	assert.Nil(t, got.NextRun)
}

func TestCleanup_Bounds(t *testing.T) {
	w, _, _, _ := newTestWorker(t, time.Now().UTC())

	_, err := w.Cleanup(context.Background(), 0)
	assert.Error(t, err)
	_, err = w.Cleanup(context.Background(), 366)
	assert.Error(t, err)
	_, err = w.Cleanup(context.Background(), 30)
	assert.NoError(t, err)
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	w, st, cl, _ := newTestWorker(t, now)
	createIntervalSchedule(t, st, now, 60, []int64{1})

	cl.Advance(time.Minute)
	require.NoError(t, w.RunOnce(ctx))

	health, err := w.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), health.TotalSchedules)
	assert.Equal(t, 60.0, health.UptimeSeconds)
	require.NotNil(t, health.LastCheck)
	require.NotNil(t, health.NextCheck)
	assert.True(t, health.NextCheck.After(*health.LastCheck))
}
