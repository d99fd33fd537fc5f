package store

import (
	"encoding/json"
	"time"
)

// Schedule types
const (
	ScheduleOneOff    = "one_off"
	ScheduleInterval  = "interval"
	ScheduleCron      = "cron"
	ScheduleRecurring = "recurring"
	ScheduleStatic    = "static"
)

// Action types
const (
	ActionOn       = "on"
	ActionOff      = "off"
	ActionToggle   = "toggle"
	ActionSetPWM   = "set_pwm"
	ActionSetLevel = "set_level"
	ActionRamp     = "ramp"
	ActionCustom   = "custom"
)

// DeviceAction statuses
const (
	ActionPending    = "pending"
	ActionInProgress = "in_progress"
	ActionSuccess    = "success"
	ActionFailed     = "failed"
)

// Run statuses recorded on schedules
const (
	RunSuccess = "success"
	RunFailed  = "failed"
	RunSkipped = "skipped"
)

// Schedule represents a user-defined device schedule (GORM model)
type Schedule struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string     `gorm:"column:name;size:255;not null" json:"name"`
	ScheduleType    string     `gorm:"column:schedule_type;size:20;not null;index" json:"schedule_type"`
	CronExpression  string     `gorm:"column:cron_expression;size:255" json:"cron_expression,omitempty"`
	IntervalSeconds *int64     `gorm:"column:interval_seconds" json:"interval_seconds,omitempty"`
	StartTime       *time.Time `gorm:"column:start_time" json:"start_time,omitempty"`
	EndTime         *time.Time `gorm:"column:end_time" json:"end_time,omitempty"`
	Timezone        string     `gorm:"column:timezone;size:64;not null" json:"timezone"`
	DeviceIDs       string     `gorm:"column:device_ids;type:text" json:"-"`
	ActionType      string     `gorm:"column:action_type;size:20;not null" json:"action_type"`
	ActionParams    string     `gorm:"column:action_params;type:text" json:"-"`
	IsEnabled       bool       `gorm:"column:is_enabled;not null;default:true;index:idx_schedule_due,priority:1" json:"is_enabled"`
	NextRun         *time.Time `gorm:"column:next_run;index:idx_schedule_due,priority:2" json:"next_run,omitempty"`
	LastRun         *time.Time `gorm:"column:last_run" json:"last_run,omitempty"`
	LastRunStatus   string     `gorm:"column:last_run_status;size:20" json:"last_run_status,omitempty"`
	LastRunError    string     `gorm:"column:last_run_error;type:text" json:"last_run_error,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Schedule
func (*Schedule) TableName() string {
	return "schedules"
}

// GetDeviceIDs returns the target device ids as a slice
func (s *Schedule) GetDeviceIDs() []int64 {
	if s.DeviceIDs == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s.DeviceIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// SetDeviceIDs sets the target device ids from a slice
func (s *Schedule) SetDeviceIDs(ids []int64) {
	if len(ids) == 0 {
		s.DeviceIDs = ""
		return
	}
	b, _ := json.Marshal(ids)
	s.DeviceIDs = string(b)
}

// GetActionParams returns the action parameter bag
func (s *Schedule) GetActionParams() map[string]any {
	return decodeBag(s.ActionParams)
}

// SetActionParams sets the action parameter bag
func (s *Schedule) SetActionParams(params map[string]any) {
	s.ActionParams = encodeBag(params)
}

// DeviceAction is one materialized schedule firing against one device (GORM model)
type DeviceAction struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ScheduleID    *int64     `gorm:"column:schedule_id;uniqueIndex:uniq_action_instant,priority:1" json:"schedule_id,omitempty"`
	DeviceID      int64      `gorm:"column:device_id;not null;index;uniqueIndex:uniq_action_instant,priority:3" json:"device_id"`
	ActionType    string     `gorm:"column:action_type;size:20;not null" json:"action_type"`
	Parameters    string     `gorm:"column:parameters;type:text" json:"-"`
	Status        string     `gorm:"column:status;size:20;not null;index:idx_action_dispatch,priority:1" json:"status"`
	ScheduledTime time.Time  `gorm:"column:scheduled_time;not null;index:idx_action_dispatch,priority:2;uniqueIndex:uniq_action_instant,priority:2" json:"scheduled_time"`
	ExecutedTime  *time.Time `gorm:"column:executed_time" json:"executed_time,omitempty"`
	Result        string     `gorm:"column:result;type:text" json:"-"`
	ErrorMessage  string     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for DeviceAction
func (*DeviceAction) TableName() string {
	return "device_actions"
}

// Terminal reports whether the action has reached a final status
func (a *DeviceAction) Terminal() bool {
	return a.Status == ActionSuccess || a.Status == ActionFailed
}

// GetParameters returns the action parameter snapshot
func (a *DeviceAction) GetParameters() map[string]any {
	return decodeBag(a.Parameters)
}

// SetParameters sets the action parameter snapshot
func (a *DeviceAction) SetParameters(params map[string]any) {
	a.Parameters = encodeBag(params)
}

// GetResult returns the execution result bag
func (a *DeviceAction) GetResult() map[string]any {
	return decodeBag(a.Result)
}

// SetResult sets the execution result bag
func (a *DeviceAction) SetResult(result map[string]any) {
	a.Result = encodeBag(result)
}

// Device represents a physical sensor or actuator (GORM model)
type Device struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string     `gorm:"column:name;size:255;not null" json:"name"`
	DeviceType   string     `gorm:"column:device_type;size:64;not null;index" json:"device_type"`
	Address      string     `gorm:"column:address;size:255" json:"address,omitempty"`
	PollEnabled  bool       `gorm:"column:poll_enabled;not null;default:false;index:idx_device_pollable,priority:1" json:"poll_enabled"`
	PollInterval int64      `gorm:"column:poll_interval;not null;default:60" json:"poll_interval"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true;index:idx_device_pollable,priority:2" json:"is_active"`
	Config       string     `gorm:"column:config;type:text" json:"-"`
	LastPolled   *time.Time `gorm:"column:last_polled" json:"last_polled,omitempty"`
	LastError    string     `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Device
func (*Device) TableName() string {
	return "devices"
}

// Pollable reports whether the poller should register this device
func (d *Device) Pollable() bool {
	return d.PollEnabled && d.IsActive
}

// GetConfig returns the driver-specific configuration bag
func (d *Device) GetConfig() map[string]any {
	return decodeBag(d.Config)
}

// SetConfig sets the driver-specific configuration bag
func (d *Device) SetConfig(cfg map[string]any) {
	d.Config = encodeBag(cfg)
}

// Reading is one observation from a device (GORM model)
type Reading struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID  int64     `gorm:"column:device_id;not null;index:idx_reading_series,priority:1" json:"device_id"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_reading_series,priority:2,sort:desc" json:"timestamp"`
	Value     *float64  `gorm:"column:value" json:"value,omitempty"`
	JSONValue string    `gorm:"column:json_value;type:text" json:"-"`
	Metadata  string    `gorm:"column:metadata;type:text" json:"-"`
}

// TableName specifies the table name for Reading
func (*Reading) TableName() string {
	return "readings"
}

// GetJSONValue returns the structured value bag
func (r *Reading) GetJSONValue() map[string]any {
	return decodeBag(r.JSONValue)
}

// SetJSONValue sets the structured value bag
func (r *Reading) SetJSONValue(v map[string]any) {
	r.JSONValue = encodeBag(v)
}

// GetMetadata returns the driver metadata bag
func (r *Reading) GetMetadata() map[string]any {
	return decodeBag(r.Metadata)
}

// SetMetadata sets the driver metadata bag
func (r *Reading) SetMetadata(m map[string]any) {
	r.Metadata = encodeBag(m)
}

// Alert is a threshold rule against one device metric (GORM model)
type Alert struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"column:name;size:255;not null" json:"name"`
	DeviceID       int64     `gorm:"column:device_id;not null;index" json:"device_id"`
	Device         *Device   `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE" json:"-"`
	Metric         string    `gorm:"column:metric;size:64;not null" json:"metric"`
	Operator       string    `gorm:"column:operator;size:2;not null" json:"operator"`
	ThresholdValue float64   `gorm:"column:threshold_value;not null" json:"threshold_value"`
	IsEnabled      bool      `gorm:"column:is_enabled;not null;default:true;index" json:"is_enabled"`
	TrendEnabled   bool      `gorm:"column:trend_enabled;not null;default:false" json:"trend_enabled"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Alert
func (*Alert) TableName() string {
	return "alerts"
}

// AlertEvent records one breach of an alert threshold (GORM model)
type AlertEvent struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AlertID         int64      `gorm:"column:alert_id;not null;index:idx_event_open,priority:1" json:"alert_id"`
	Alert           *Alert     `gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE" json:"-"`
	DeviceID        int64      `gorm:"column:device_id;not null;index" json:"device_id"`
	TriggeredAt     time.Time  `gorm:"column:triggered_at;not null;index:idx_event_time,sort:desc" json:"triggered_at"`
	CurrentValue    float64    `gorm:"column:current_value;not null" json:"current_value"`
	ThresholdValue  float64    `gorm:"column:threshold_value;not null" json:"threshold_value"`
	Operator        string     `gorm:"column:operator;size:2;not null" json:"operator"`
	Metric          string     `gorm:"column:metric;size:64;not null" json:"metric"`
	IsResolved      bool       `gorm:"column:is_resolved;not null;default:false;index:idx_event_open,priority:2" json:"is_resolved"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolutionValue *float64   `gorm:"column:resolution_value" json:"resolution_value,omitempty"`
	Metadata        string     `gorm:"column:metadata;type:text" json:"-"`
}

// TableName specifies the table name for AlertEvent
func (*AlertEvent) TableName() string {
	return "alert_events"
}

// GetMetadata returns the event metadata bag
func (e *AlertEvent) GetMetadata() map[string]any {
	return decodeBag(e.Metadata)
}

// SetMetadata sets the event metadata bag
func (e *AlertEvent) SetMetadata(m map[string]any) {
	e.Metadata = encodeBag(m)
}

func decodeBag(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var bag map[string]any
	if err := json.Unmarshal([]byte(raw), &bag); err != nil {
		return nil
	}
	return bag
}

func encodeBag(bag map[string]any) string {
	if len(bag) == 0 {
		return ""
	}
	b, _ := json.Marshal(bag)
	return string(b)
}
