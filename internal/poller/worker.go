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
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/drivers"
	"github.com/reeflab/reefcore/internal/metrics"
	"github.com/reeflab/reefcore/internal/store"
)

// maxPollTimeout bounds a single driver call regardless of interval
const maxPollTimeout = 10 * time.Second

// DeviceStatus is one device's entry in the poller status snapshot
type DeviceStatus struct {
	DeviceID     int64      `json:"device_id"`
	Name         string     `json:"name"`
	DeviceType   string     `json:"device_type"`
	PollInterval int64      `json:"poll_interval"`
	LastPolled   *time.Time `json:"last_polled,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// Status is the poller's operational snapshot
type Status struct {
	Running       bool           `json:"running"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	DeviceCount   int            `json:"device_count"`
	Devices       []DeviceStatus `json:"devices"`
}

// pollEntry tracks one registered device and its ticker goroutine
type pollEntry struct {
	device store.Device
	cancel context.CancelFunc
}

// Worker polls registered devices on independent per-device tickers and
// persists readings. The registry is rebuilt from the store every refresh
// interval so enable/disable flags take effect without a restart.
type Worker struct {
	store           store.Store
	registry        *drivers.Registry
	clock           clock.Clock
	logger          logr.Logger
	refreshInterval time.Duration

	stopCh  chan struct{}
	running bool
	mu      sync.Mutex

	entries map[int64]*pollEntry
	wg      sync.WaitGroup

	// lastStamp holds the newest reading timestamp per device so a clock
	// regression never produces out-of-order readings
	lastStamp   map[int64]time.Time
	lastStampMu sync.Mutex

	startTime time.Time
}

// NewWorker creates a poller worker
func NewWorker(st store.Store, registry *drivers.Registry, cl clock.Clock, logger logr.Logger, refreshInterval time.Duration) *Worker {
	return &Worker{
		store:           st,
		registry:        registry,
		clock:           cl,
		logger:          logger,
		refreshInterval: refreshInterval,
		stopCh:          make(chan struct{}),
		entries:         make(map[int64]*pollEntry),
		lastStamp:       make(map[int64]time.Time),
		startTime:       cl.Now(),
	}
}

// Start begins the refresh loop and blocks until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("starting poller worker", "refreshInterval", w.refreshInterval)

	// Build the registry immediately on start
	if err := w.Refresh(ctx); err != nil {
		w.logger.Error(err, "initial device refresh failed")
	}

	ticker := time.NewTicker(w.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return ctx.Err()
		case <-w.stopCh:
			w.shutdown()
			return nil
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil {
				w.logger.Error(err, "device refresh failed")
			}
		}
	}
}

// Stop halts the worker and cancels all device tickers
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

func (w *Worker) shutdown() {
	w.mu.Lock()
	for id, entry := range w.entries {
		entry.cancel()
		delete(w.entries, id)
	}
	w.mu.Unlock()
	w.wg.Wait()
	metrics.RegisteredDevices.Set(0)
}

// Refresh rebuilds the device registry: new pollable devices get tickers,
// removed ones are cancelled, changed intervals are re-armed
func (w *Worker) Refresh(ctx context.Context) error {
	devices, err := w.store.ListPollableDevices(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[int64]store.Device, len(devices))
	for _, d := range devices {
		wanted[d.ID] = d
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Cancel tickers for devices no longer pollable
	for id, entry := range w.entries {
		if _, ok := wanted[id]; !ok {
			w.logger.Info("deregistering device", "device", id, "name", entry.device.Name)
			entry.cancel()
			delete(w.entries, id)
		}
	}

	// Add new devices, re-arm changed ones
	for id, device := range wanted {
		if entry, ok := w.entries[id]; ok {
			if entry.device.PollInterval == device.PollInterval &&
				entry.device.Address == device.Address &&
				entry.device.Config == device.Config {
				continue
			}
			w.logger.Info("re-arming device ticker", "device", id, "interval", device.PollInterval)
			entry.cancel()
			delete(w.entries, id)
		} else {
			w.logger.Info("registering device", "device", id, "name", device.Name, "interval", device.PollInterval)
		}
		w.startTicker(device)
	}

	metrics.RegisteredDevices.Set(float64(len(w.entries)))
	return nil
}

// startTicker launches the per-device poll goroutine. Caller holds w.mu.
func (w *Worker) startTicker(device store.Device) {
	interval := time.Duration(device.PollInterval) * time.Second
	if interval < time.Second {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.entries[device.ID] = &pollEntry{device: device, cancel: cancel}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.pollOnce(ctx, device, interval)
			}
		}
	}()
}

// pollOnce performs one driver poll and persists the outcome. A failure
// only touches this device's row; other tickers are unaffected.
func (w *Worker) pollOnce(ctx context.Context, device store.Device, interval time.Duration) {
	timeout := interval / 2
	if timeout > maxPollTimeout {
		timeout = maxPollTimeout
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := w.clock.Now()
	sample, err := w.poll(pollCtx, &device)
	elapsed := w.clock.Now().Sub(started).Seconds()
	now := w.clock.Now()

	if err != nil {
		metrics.RecordPoll(device.DeviceType, "failed", elapsed)
		w.logger.V(1).Info("poll failed", "device", device.ID, "error", err.Error())
		if dbErr := w.store.RecordPollFailure(ctx, device.ID, now, err.Error()); dbErr != nil {
			w.logger.Error(dbErr, "failed to record poll failure", "device", device.ID)
		}
		return
	}

	reading := &store.Reading{
		DeviceID:  device.ID,
		Timestamp: w.clampTimestamp(ctx, device.ID, now),
		Value:     sample.Value,
	}
	reading.SetJSONValue(sample.Fields)
	reading.SetMetadata(sample.Metadata)

	if err := w.store.InsertReading(ctx, reading); err != nil {
		w.logger.Error(err, "failed to insert reading", "device", device.ID)
		return
	}
	if err := w.store.RecordPollSuccess(ctx, device.ID, now); err != nil {
		w.logger.Error(err, "failed to record poll success", "device", device.ID)
	}
	metrics.RecordPoll(device.DeviceType, "success", elapsed)
}

func (w *Worker) poll(ctx context.Context, device *store.Device) (*drivers.Sample, error) {
	driver, err := w.registry.Driver(device.DeviceType)
	if err != nil {
		return nil, err
	}
	return driver.Poll(ctx, device)
}

// clampTimestamp keeps per-device reading timestamps strictly increasing
// even if the system clock steps backwards
func (w *Worker) clampTimestamp(ctx context.Context, deviceID int64, now time.Time) time.Time {
	w.lastStampMu.Lock()
	defer w.lastStampMu.Unlock()

	prev, ok := w.lastStamp[deviceID]
	if !ok {
		if ts, err := w.store.LastReadingTimestamp(ctx, deviceID); err == nil && ts != nil {
			prev = *ts
		}
	}
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	w.lastStamp[deviceID] = now
	return now
}

// Status returns the poller's operational snapshot
func (w *Worker) Status() *Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := &Status{
		Running:       w.running,
		UptimeSeconds: w.clock.Now().Sub(w.startTime).Seconds(),
		DeviceCount:   len(w.entries),
	}
	for _, entry := range w.entries {
		st.Devices = append(st.Devices, DeviceStatus{
			DeviceID:     entry.device.ID,
			Name:         entry.device.Name,
			DeviceType:   entry.device.DeviceType,
			PollInterval: entry.device.PollInterval,
			LastPolled:   entry.device.LastPolled,
			LastError:    entry.device.LastError,
		})
	}
	return st
}
