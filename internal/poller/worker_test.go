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

package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/drivers"
	"github.com/reeflab/reefcore/internal/store"
	"github.com/reeflab/reefcore/internal/testutil"
)

func float64Ptr(v float64) *float64 { return &v }

func newTestPoller(t *testing.T) (*Worker, *store.GormStore, *clock.Fake, *testutil.FakeDriver) {
	t.Helper()
	st := testutil.NewMemoryStore(t)
	cl := clock.NewFake(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	driver := &testutil.FakeDriver{Sample: &drivers.Sample{Value: float64Ptr(78.5)}}

	registry := drivers.NewRegistry()
	registry.RegisterDriver("temperature_sensor", driver)

	w := NewWorker(st, registry, cl, logr.Discard(), 300*time.Second)
	t.Cleanup(w.Stop)
	return w, st, cl, driver
}

func createPollableDevice(t *testing.T, st store.Store, name string, interval int64) *store.Device {
	t.Helper()
	d := &store.Device{
		Name:         name,
		DeviceType:   "temperature_sensor",
		PollEnabled:  true,
		PollInterval: interval,
		IsActive:     true,
	}
	require.NoError(t, st.CreateDevice(context.Background(), d))
	return d
}

func TestRefresh_RegistersAndDeregisters(t *testing.T) {
	ctx := context.Background()
	w, st, _, _ := newTestPoller(t)
	d := createPollableDevice(t, st, "tank-temp", 10)

	require.NoError(t, w.Refresh(ctx))
	status := w.Status()
	require.Equal(t, 1, status.DeviceCount)
	assert.Equal(t, d.ID, status.Devices[0].DeviceID)

	// Disabling polling removes the ticker on the next refresh
	d.PollEnabled = false
	require.NoError(t, st.UpdateDevice(ctx, d))
	require.NoError(t, w.Refresh(ctx))
	assert.Equal(t, 0, w.Status().DeviceCount)
}

func TestRefresh_RearmsChangedInterval(t *testing.T) {
	ctx := context.Background()
	w, st, _, _ := newTestPoller(t)
	d := createPollableDevice(t, st, "tank-temp", 10)

	require.NoError(t, w.Refresh(ctx))
	first := w.Status().Devices[0]
	assert.Equal(t, int64(10), first.PollInterval)

	d.PollInterval = 30
	require.NoError(t, st.UpdateDevice(ctx, d))
	require.NoError(t, w.Refresh(ctx))

	status := w.Status()
	require.Equal(t, 1, status.DeviceCount)
	assert.Equal(t, int64(30), status.Devices[0].PollInterval)
}

func TestPollOnce_Success(t *testing.T) {
	ctx := context.Background()
	w, st, cl, driver := newTestPoller(t)
	d := createPollableDevice(t, st, "tank-temp", 10)

	w.pollOnce(ctx, *d, 10*time.Second)
	assert.Equal(t, 1, driver.Polls())

	reading, err := st.LatestReading(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, reading)
	require.NotNil(t, reading.Value)
	assert.Equal(t, 78.5, *reading.Value)
	assert.True(t, reading.Timestamp.Equal(cl.Now()))

	got, err := st.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastPolled)
	assert.Empty(t, got.LastError)
}

func TestPollOnce_FailureRecordsErrorWithoutReading(t *testing.T) {
	ctx := context.Background()
	w, st, _, driver := newTestPoller(t)
	driver.Err = errors.New("sensor unplugged")
	d := createPollableDevice(t, st, "tank-temp", 10)

	w.pollOnce(ctx, *d, 10*time.Second)

	reading, err := st.LatestReading(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, reading)

	got, err := st.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "sensor unplugged", got.LastError)
	require.NotNil(t, got.LastPolled)
}

func TestPollOnce_UnknownDeviceType(t *testing.T) {
	ctx := context.Background()
	w, st, _, _ := newTestPoller(t)
	d := &store.Device{Name: "mystery", DeviceType: "unknown", PollEnabled: true, PollInterval: 10, IsActive: true}
	require.NoError(t, st.CreateDevice(ctx, d))

	w.pollOnce(ctx, *d, 10*time.Second)

	got, err := st.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Contains(t, got.LastError, "no driver registered")
}

func TestClampTimestamp_MonotonicPerDevice(t *testing.T) {
	ctx := context.Background()
	w, st, cl, _ := newTestPoller(t)
	d := createPollableDevice(t, st, "tank-temp", 10)

	first := w.clampTimestamp(ctx, d.ID, cl.Now())
	assert.True(t, first.Equal(cl.Now()))

	// Clock steps backwards; the next stamp still advances
	regressed := cl.Now().Add(-time.Minute)
	second := w.clampTimestamp(ctx, d.ID, regressed)
	assert.True(t, second.After(first))
	assert.True(t, second.Equal(first.Add(time.Millisecond)))

	third := w.clampTimestamp(ctx, d.ID, cl.Now().Add(time.Minute))
	assert.True(t, third.After(second))
}

func TestClampTimestamp_SeedsFromStore(t *testing.T) {
	ctx := context.Background()
	w, st, cl, _ := newTestPoller(t)
	d := createPollableDevice(t, st, "tank-temp", 10)

	// A reading from a prior process run is newer than the current clock
	future := cl.Now().Add(time.Hour)
	require.NoError(t, st.InsertReading(ctx, &store.Reading{DeviceID: d.ID, Timestamp: future, Value: float64Ptr(77)}))

	stamp := w.clampTimestamp(ctx, d.ID, cl.Now())
	assert.True(t, stamp.Equal(future.Add(time.Millisecond)))
}

func TestSweeper_PrunesOldReadings(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemoryStore(t)
	cl := clock.NewFake(time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC))
	d := createPollableDevice(t, st, "tank-temp", 10)

	old := cl.Now().AddDate(0, 0, -100)
	recent := cl.Now().AddDate(0, 0, -10)
	require.NoError(t, st.InsertReading(ctx, &store.Reading{DeviceID: d.ID, Timestamp: old, Value: float64Ptr(75)}))
	require.NoError(t, st.InsertReading(ctx, &store.Reading{DeviceID: d.ID, Timestamp: recent, Value: float64Ptr(76)}))

	s := NewSweeper(st, cl, logr.Discard(), 90, 6*time.Hour)
	s.sweep(ctx)

	readings, err := st.ReadingHistory(ctx, d.ID, nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.True(t, readings[0].Timestamp.Equal(recent))
}
