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

package store

import (
	"context"
	"time"
)

// ScheduleFilter narrows schedule listings
type ScheduleFilter struct {
	ScheduleType string
	IsEnabled    *bool
	DeviceID     *int64
	Skip         int
	Limit        int
}

// ActionFilter narrows device action listings
type ActionFilter struct {
	Status     string
	DeviceID   *int64
	ScheduleID *int64
	Skip       int
	Limit      int
}

// EventFilter narrows alert event listings
type EventFilter struct {
	AlertID    *int64
	DeviceID   *int64
	IsResolved *bool
	Skip       int
	Limit      int
}

// ScheduleStats contains aggregate schedule counts
type ScheduleStats struct {
	Total          int64            `json:"total"`
	Enabled        int64            `json:"enabled"`
	Disabled       int64            `json:"disabled"`
	ByType         map[string]int64 `json:"by_type"`
	PendingActions int64            `json:"pending_actions"`
	NextRun        *time.Time       `json:"next_run,omitempty"`
}

// Store defines the persistence interface shared by the workers and the API
type Store interface {
	// Init initializes the store (creates tables, connections, etc.)
	Init() error

	// Close closes the store and releases resources
	Close() error

	// Health checks if the store is healthy
	Health(ctx context.Context) error

	// Schedules
	CreateSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, id int64) (*Schedule, error)
	ListSchedules(ctx context.Context, f ScheduleFilter) ([]Schedule, int64, error)
	UpdateSchedule(ctx context.Context, s *Schedule) error
	DeleteSchedule(ctx context.Context, id int64) error
	// ListDueSchedules returns enabled schedules whose next_run is unset or
	// at most slack past now, ordered by (next_run, id)
	ListDueSchedules(ctx context.Context, now time.Time, slack time.Duration) ([]Schedule, error)
	SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error
	SetNextRun(ctx context.Context, id int64, next *time.Time) error
	MarkScheduleRun(ctx context.Context, id int64, at time.Time, status, errMsg string) error
	GetScheduleStats(ctx context.Context) (*ScheduleStats, error)
	CountSchedules(ctx context.Context) (int64, error)

	// Device actions
	CreateAction(ctx context.Context, a *DeviceAction) error
	GetAction(ctx context.Context, id int64) (*DeviceAction, error)
	ListActions(ctx context.Context, f ActionFilter) ([]DeviceAction, int64, error)
	// ListDispatchableActions returns pending actions due at or before now,
	// ordered by (scheduled_time, id)
	ListDispatchableActions(ctx context.Context, now time.Time, limit int) ([]DeviceAction, error)
	// ClaimAction atomically transitions pending -> in_progress; returns
	// ErrNotClaimed when another caller won the transition
	ClaimAction(ctx context.Context, id int64) error
	// CompleteAction records the terminal status and execution time
	CompleteAction(ctx context.Context, id int64, status string, executedAt time.Time, result, errMsg string) error
	DeleteAction(ctx context.Context, id int64) error
	// CleanupActions deletes terminal actions older than the cutoff
	CleanupActions(ctx context.Context, olderThan time.Time) (int64, error)

	// Devices
	CreateDevice(ctx context.Context, d *Device) error
	GetDevice(ctx context.Context, id int64) (*Device, error)
	ListDevices(ctx context.Context, skip, limit int) ([]Device, int64, error)
	UpdateDevice(ctx context.Context, d *Device) error
	DeleteDevice(ctx context.Context, id int64) error
	// ListPollableDevices returns devices with polling enabled and active
	ListPollableDevices(ctx context.Context) ([]Device, error)
	RecordPollSuccess(ctx context.Context, id int64, at time.Time) error
	RecordPollFailure(ctx context.Context, id int64, at time.Time, msg string) error

	// Readings
	InsertReading(ctx context.Context, r *Reading) error
	LatestReading(ctx context.Context, deviceID int64) (*Reading, error)
	LastReadingTimestamp(ctx context.Context, deviceID int64) (*time.Time, error)
	ReadingHistory(ctx context.Context, deviceID int64, start, end *time.Time, limit int) ([]Reading, error)
	PruneReadings(ctx context.Context, olderThan time.Time) (int64, error)

	// Alerts
	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id int64) (*Alert, error)
	ListAlerts(ctx context.Context, skip, limit int) ([]Alert, int64, error)
	ListEnabledAlerts(ctx context.Context) ([]Alert, error)
	UpdateAlert(ctx context.Context, a *Alert) error
	DeleteAlert(ctx context.Context, id int64) error
	SetAlertEnabled(ctx context.Context, id int64, enabled bool) error

	// Alert events
	OpenAlertEvent(ctx context.Context, e *AlertEvent) error
	GetAlertEvent(ctx context.Context, id int64) (*AlertEvent, error)
	// FindOpenAlertEvent returns the unresolved event for an alert, or
	// (nil, nil) when none is open
	FindOpenAlertEvent(ctx context.Context, alertID int64) (*AlertEvent, error)
	// ResolveAlertEvent marks an open event resolved; the update is
	// conditional on is_resolved=false
	ResolveAlertEvent(ctx context.Context, id int64, value float64, at time.Time) error
	ListAlertEvents(ctx context.Context, f EventFilter) ([]AlertEvent, int64, error)
}
