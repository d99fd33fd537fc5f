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
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/metrics"
	"github.com/reeflab/reefcore/internal/schedule"
	"github.com/reeflab/reefcore/internal/store"
)

// Health is the scheduler worker's operational snapshot
type Health struct {
	UptimeSeconds  float64    `json:"uptime_seconds"`
	TotalSchedules int64      `json:"total_schedules"`
	LastCheck      *time.Time `json:"last_check,omitempty"`
	NextCheck      *time.Time `json:"next_check,omitempty"`
}

// Worker advances schedules and dispatches materialized device actions.
// Exactly one worker runs per deployment; the pending -> in_progress claim
// keeps an accidental second instance from double-executing actions.
type Worker struct {
	store         store.Store
	executor      Executor
	clock         clock.Clock
	logger        logr.Logger
	interval      time.Duration
	dispatchLimit int

	stopCh  chan struct{}
	running bool
	mu      sync.Mutex

	startTime time.Time
	lastCheck *time.Time
	nextCheck *time.Time
}

// NewWorker creates a scheduler worker
func NewWorker(st store.Store, ex Executor, cl clock.Clock, logger logr.Logger, interval time.Duration, dispatchLimit int) *Worker {
	if dispatchLimit <= 0 {
		dispatchLimit = 100
	}
	return &Worker{
		store:         st,
		executor:      ex,
		clock:         cl,
		logger:        logger,
		interval:      interval,
		dispatchLimit: dispatchLimit,
		stopCh:        make(chan struct{}),
		startTime:     cl.Now(),
	}
}

// Start begins the worker loop
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("starting scheduler worker", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				failures++
				backoff := w.backoff(failures)
				w.logger.Error(err, "scheduler tick failed", "failures", failures, "backoff", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				case <-w.stopCh:
					return nil
				}
			} else {
				failures = 0
			}
		}
	}
}

// Stop halts the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// SetInterval changes the tick interval
func (w *Worker) SetInterval(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.interval = d
}

// RunOnce executes one tick: recompute due schedules, materialize actions,
// advance next_run, then dispatch due pending actions
func (w *Worker) RunOnce(ctx context.Context) error {
	now := w.clock.Now()

	w.mu.Lock()
	w.lastCheck = &now
	next := now.Add(w.interval)
	w.nextCheck = &next
	slack := w.interval / 2
	w.mu.Unlock()

	if err := w.advanceSchedules(ctx, now, slack); err != nil {
		return fmt.Errorf("advancing schedules: %w", err)
	}
	if err := w.dispatch(ctx, now); err != nil {
		return fmt.Errorf("dispatching actions: %w", err)
	}
	return nil
}

// advanceSchedules recomputes next_run for due schedules and materializes
// actions for schedules whose instant has arrived
func (w *Worker) advanceSchedules(ctx context.Context, now time.Time, slack time.Duration) error {
	due, err := w.store.ListDueSchedules(ctx, now, slack)
	if err != nil {
		return err
	}

	for i := range due {
		s := &due[i]
		if err := w.advanceOne(ctx, s, now); err != nil {
			// Per-schedule failures never stop the tick
			w.logger.Error(err, "failed to advance schedule", "schedule", s.ID, "name", s.Name)
		}
	}
	return nil
}

func (w *Worker) advanceOne(ctx context.Context, s *store.Schedule, now time.Time) error {
	if s.NextRun == nil {
		next, status := schedule.NextAfter(s, now)
		switch status {
		case schedule.StatusInvalid:
			reason := "invalid schedule definition"
			if err := schedule.Validate(s); err != nil {
				reason = err.Error()
			}
			w.logger.Info("disabling invalid schedule", "schedule", s.ID, "reason", reason)
			if err := w.store.MarkScheduleRun(ctx, s.ID, now, store.RunFailed, reason); err != nil {
				return err
			}
			return w.store.SetScheduleEnabled(ctx, s.ID, false)
		case schedule.StatusExpired:
			w.logger.Info("disabling expired schedule", "schedule", s.ID)
			return w.store.SetScheduleEnabled(ctx, s.ID, false)
		}
		if err := w.store.SetNextRun(ctx, s.ID, &next); err != nil {
			return err
		}
		s.NextRun = &next
	}

	fireAt := s.NextRun.UTC()
	if fireAt.After(now) {
		return nil
	}

	// Late by more than one period: fire once at the most recent overdue
	// instant instead of replaying the backlog
	fireAt = schedule.MostRecentDue(s, fireAt, now)

	if err := w.materialize(ctx, s, fireAt); err != nil {
		return err
	}

	// Advance
	if isOneShot(s) {
		if err := w.store.SetNextRun(ctx, s.ID, nil); err != nil {
			return err
		}
		return w.store.SetScheduleEnabled(ctx, s.ID, false)
	}

	next, status := schedule.NextAfter(s, fireAt.Add(time.Second))
	if status != schedule.StatusActive {
		w.logger.Info("schedule reached its end", "schedule", s.ID)
		return w.store.SetScheduleEnabled(ctx, s.ID, false)
	}
	return w.store.SetNextRun(ctx, s.ID, &next)
}

// materialize creates one pending action per target device. The unique
// index on (schedule, instant, device) makes re-materialization after a
// crash or overlapping tick a no-op.
func (w *Worker) materialize(ctx context.Context, s *store.Schedule, fireAt time.Time) error {
	deviceIDs := s.GetDeviceIDs()
	if len(deviceIDs) == 0 {
		return nil
	}

	for _, deviceID := range deviceIDs {
		action := &store.DeviceAction{
			ScheduleID:    &s.ID,
			DeviceID:      deviceID,
			ActionType:    s.ActionType,
			Parameters:    s.ActionParams,
			Status:        store.ActionPending,
			ScheduledTime: fireAt,
		}
		err := w.store.CreateAction(ctx, action)
		if errors.Is(err, store.ErrDuplicateAction) {
			w.logger.V(1).Info("action already materialized",
				"schedule", s.ID, "device", deviceID, "instant", fireAt)
			continue
		}
		if err != nil {
			return fmt.Errorf("materializing action for device %d: %w", deviceID, err)
		}
		metrics.RecordMaterialization(s.ScheduleType)
	}

	w.logger.Info("materialized schedule firing",
		"schedule", s.ID, "name", s.Name, "instant", fireAt, "devices", len(deviceIDs))
	return nil
}

// Cleanup deletes terminal actions older than the given number of days
func (w *Worker) Cleanup(ctx context.Context, days int) (int64, error) {
	if days < 1 || days > 365 {
		return 0, fmt.Errorf("cleanup days %d outside accepted range [1, 365]", days)
	}
	cutoff := w.clock.Now().AddDate(0, 0, -days)
	count, err := w.store.CleanupActions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		w.logger.Info("cleaned up terminal actions", "deleted", count, "cutoff", cutoff)
	}
	return count, nil
}

// Health returns the worker's operational snapshot
func (w *Worker) Health(ctx context.Context) (*Health, error) {
	total, err := w.store.CountSchedules(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return &Health{
		UptimeSeconds:  w.clock.Now().Sub(w.startTime).Seconds(),
		TotalSchedules: total,
		LastCheck:      w.lastCheck,
		NextCheck:      w.nextCheck,
	}, nil
}

// backoff returns an exponential delay with jitter, capped at one interval
func (w *Worker) backoff(failures int) time.Duration {
	base := time.Second
	for i := 1; i < failures && base < w.interval; i++ {
		base *= 2
	}
	if base > w.interval {
		base = w.interval
	}
	jitter := time.Duration(rand.Int63n(int64(base / 4)))
	d := base + jitter
	if d > w.interval {
		d = w.interval
	}
	return d
}

// isOneShot reports whether the schedule fires exactly once
func isOneShot(s *store.Schedule) bool {
	switch s.ScheduleType {
	case store.ScheduleOneOff:
		return true
	case store.ScheduleStatic:
		return !schedule.HasRecurringPattern(s)
	}
	return false
}
