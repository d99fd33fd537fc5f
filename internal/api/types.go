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

package api

import (
	"time"

	"github.com/reeflab/reefcore/internal/store"
)

// HealthResponse is the response for GET /api/v1/health
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// StatsResponse is the response for GET /api/v1/stats
type StatsResponse struct {
	TotalSchedules  int64 `json:"total_schedules"`
	TotalDevices    int64 `json:"total_devices"`
	TotalAlerts     int64 `json:"total_alerts"`
	PendingActions  int64 `json:"pending_actions"`
	OpenAlertEvents int64 `json:"open_alert_events"`
}

// ScheduleHealthResponse is the response for GET /api/v1/schedules/health
type ScheduleHealthResponse struct {
	Status         string     `json:"status"`
	UptimeSeconds  float64    `json:"uptime_seconds"`
	TotalSchedules int64      `json:"total_schedules"`
	LastCheck      *time.Time `json:"last_check,omitempty"`
	NextCheck      *time.Time `json:"next_check,omitempty"`
}

// ListResponse wraps paginated collections
type ListResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
}

// ScheduleRequest is the create/update body for schedules
type ScheduleRequest struct {
	Name            string         `json:"name"`
	ScheduleType    string         `json:"schedule_type"`
	CronExpression  string         `json:"cron_expression,omitempty"`
	IntervalSeconds *int64         `json:"interval_seconds,omitempty"`
	StartTime       *time.Time     `json:"start_time,omitempty"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	Timezone        string         `json:"timezone,omitempty"`
	DeviceIDs       []int64        `json:"device_ids"`
	ActionType      string         `json:"action_type"`
	ActionParams    map[string]any `json:"action_params,omitempty"`
	IsEnabled       *bool          `json:"is_enabled,omitempty"`
}

// ScheduleResponse is the wire shape of a schedule
type ScheduleResponse struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	ScheduleType    string         `json:"schedule_type"`
	CronExpression  string         `json:"cron_expression,omitempty"`
	IntervalSeconds *int64         `json:"interval_seconds,omitempty"`
	StartTime       *time.Time     `json:"start_time,omitempty"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	Timezone        string         `json:"timezone"`
	DeviceIDs       []int64        `json:"device_ids"`
	ActionType      string         `json:"action_type"`
	ActionParams    map[string]any `json:"action_params,omitempty"`
	IsEnabled       bool           `json:"is_enabled"`
	NextRun         *time.Time     `json:"next_run,omitempty"`
	LastRun         *time.Time     `json:"last_run,omitempty"`
	LastRunStatus   string         `json:"last_run_status,omitempty"`
	LastRunError    string         `json:"last_run_error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func toScheduleResponse(s *store.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:              s.ID,
		Name:            s.Name,
		ScheduleType:    s.ScheduleType,
		CronExpression:  s.CronExpression,
		IntervalSeconds: s.IntervalSeconds,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		Timezone:        s.Timezone,
		DeviceIDs:       s.GetDeviceIDs(),
		ActionType:      s.ActionType,
		ActionParams:    s.GetActionParams(),
		IsEnabled:       s.IsEnabled,
		NextRun:         s.NextRun,
		LastRun:         s.LastRun,
		LastRunStatus:   s.LastRunStatus,
		LastRunError:    s.LastRunError,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// ActionRequest is the create body for manual device actions
type ActionRequest struct {
	DeviceID      int64          `json:"device_id"`
	ActionType    string         `json:"action_type"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	ScheduledTime *time.Time     `json:"scheduled_time,omitempty"`
}

// ActionResponse is the wire shape of a device action
type ActionResponse struct {
	ID            int64          `json:"id"`
	ScheduleID    *int64         `json:"schedule_id,omitempty"`
	DeviceID      int64          `json:"device_id"`
	ActionType    string         `json:"action_type"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Status        string         `json:"status"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	ExecutedTime  *time.Time     `json:"executed_time,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func toActionResponse(a *store.DeviceAction) ActionResponse {
	return ActionResponse{
		ID:            a.ID,
		ScheduleID:    a.ScheduleID,
		DeviceID:      a.DeviceID,
		ActionType:    a.ActionType,
		Parameters:    a.GetParameters(),
		Status:        a.Status,
		ScheduledTime: a.ScheduledTime,
		ExecutedTime:  a.ExecutedTime,
		Result:        a.GetResult(),
		ErrorMessage:  a.ErrorMessage,
		CreatedAt:     a.CreatedAt,
	}
}

// DeviceRequest is the create/update body for devices
type DeviceRequest struct {
	Name         string         `json:"name"`
	DeviceType   string         `json:"device_type"`
	Address      string         `json:"address,omitempty"`
	PollEnabled  *bool          `json:"poll_enabled,omitempty"`
	PollInterval *int64         `json:"poll_interval,omitempty"`
	IsActive     *bool          `json:"is_active,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// DeviceResponse is the wire shape of a device
type DeviceResponse struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	DeviceType   string         `json:"device_type"`
	Address      string         `json:"address,omitempty"`
	PollEnabled  bool           `json:"poll_enabled"`
	PollInterval int64          `json:"poll_interval"`
	IsActive     bool           `json:"is_active"`
	Config       map[string]any `json:"config,omitempty"`
	LastPolled   *time.Time     `json:"last_polled,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toDeviceResponse(d *store.Device) DeviceResponse {
	return DeviceResponse{
		ID:           d.ID,
		Name:         d.Name,
		DeviceType:   d.DeviceType,
		Address:      d.Address,
		PollEnabled:  d.PollEnabled,
		PollInterval: d.PollInterval,
		IsActive:     d.IsActive,
		Config:       d.GetConfig(),
		LastPolled:   d.LastPolled,
		LastError:    d.LastError,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// ReadingResponse is the wire shape of a reading
type ReadingResponse struct {
	ID        int64          `json:"id"`
	DeviceID  int64          `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	Value     *float64       `json:"value,omitempty"`
	JSONValue map[string]any `json:"json_value,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func toReadingResponse(r *store.Reading) ReadingResponse {
	return ReadingResponse{
		ID:        r.ID,
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp,
		Value:     r.Value,
		JSONValue: r.GetJSONValue(),
		Metadata:  r.GetMetadata(),
	}
}

// AlertRequest is the create/update body for alerts
type AlertRequest struct {
	Name           string   `json:"name"`
	DeviceID       int64    `json:"device_id"`
	Metric         string   `json:"metric"`
	Operator       string   `json:"operator"`
	ThresholdValue *float64 `json:"threshold_value"`
	IsEnabled      *bool    `json:"is_enabled,omitempty"`
	TrendEnabled   *bool    `json:"trend_enabled,omitempty"`
}

// AlertEventResponse is the wire shape of an alert event
type AlertEventResponse struct {
	ID              int64          `json:"id"`
	AlertID         int64          `json:"alert_id"`
	DeviceID        int64          `json:"device_id"`
	TriggeredAt     time.Time      `json:"triggered_at"`
	CurrentValue    float64        `json:"current_value"`
	ThresholdValue  float64        `json:"threshold_value"`
	Operator        string         `json:"operator"`
	Metric          string         `json:"metric"`
	IsResolved      bool           `json:"is_resolved"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolutionValue *float64       `json:"resolution_value,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func toAlertEventResponse(e *store.AlertEvent) AlertEventResponse {
	return AlertEventResponse{
		ID:              e.ID,
		AlertID:         e.AlertID,
		DeviceID:        e.DeviceID,
		TriggeredAt:     e.TriggeredAt,
		CurrentValue:    e.CurrentValue,
		ThresholdValue:  e.ThresholdValue,
		Operator:        e.Operator,
		Metric:          e.Metric,
		IsResolved:      e.IsResolved,
		ResolvedAt:      e.ResolvedAt,
		ResolutionValue: e.ResolutionValue,
		Metadata:        e.GetMetadata(),
	}
}
