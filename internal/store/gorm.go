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
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite" // Pure Go SQLite driver (no CGO required)
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore implements Store using GORM
type GormStore struct {
	db      *gorm.DB
	dialect string
}

// ConnectionPoolConfig holds connection pool settings
type ConnectionPoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewGormStore creates a new GORM-based store
func NewGormStore(dialect string, dsn string) (*GormStore, error) {
	return NewGormStoreWithPool(dialect, dsn, ConnectionPoolConfig{})
}

// NewGormStoreWithPool creates a new GORM-based store with connection pool settings
func NewGormStoreWithPool(dialect string, dsn string, pool ConnectionPoolConfig) (*GormStore, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for non-SQLite databases
	if dialect != "sqlite" && (pool.MaxIdleConns > 0 || pool.MaxOpenConns > 0 || pool.ConnMaxLifetime > 0 || pool.ConnMaxIdleTime > 0) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB for pool config: %w", err)
		}

		if pool.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
		}
		if pool.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
		}
		if pool.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
		}
		if pool.ConnMaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
		}
	}

	return &GormStore{db: db, dialect: dialect}, nil
}

// Init initializes the store (creates tables via auto-migration)
func (s *GormStore) Init() error {
	return s.db.AutoMigrate(
		&Device{},
		&Schedule{},
		&DeviceAction{},
		&Reading{},
		&Alert{},
		&AlertEvent{},
	)
}

// Close closes the store and releases resources
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the store is healthy
func (s *GormStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// =============================================================================
// Schedules
// =============================================================================

// CreateSchedule stores a new schedule
func (s *GormStore) CreateSchedule(ctx context.Context, sched *Schedule) error {
	return s.db.WithContext(ctx).Create(sched).Error
}

// GetSchedule returns a schedule by id
func (s *GormStore) GetSchedule(ctx context.Context, id int64) (*Schedule, error) {
	var sched Schedule
	err := s.db.WithContext(ctx).First(&sched, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sched, nil
}

// ListSchedules returns schedules matching the filter with a total count
func (s *GormStore) ListSchedules(ctx context.Context, f ScheduleFilter) ([]Schedule, int64, error) {
	var scheds []Schedule
	var total int64

	query := s.db.WithContext(ctx).Model(&Schedule{})
	if f.ScheduleType != "" {
		query = query.Where("schedule_type = ?", f.ScheduleType)
	}
	if f.IsEnabled != nil {
		query = query.Where("is_enabled = ?", *f.IsEnabled)
	}
	if f.DeviceID != nil {
		// device_ids is a JSON array of integers; match on the serialized form
		id := fmt.Sprintf("%d", *f.DeviceID)
		query = query.Where(
			"device_ids LIKE ? OR device_ids LIKE ? OR device_ids LIKE ? OR device_ids = ?",
			"["+id+",%", "%,"+id+",%", "%,"+id+"]", "["+id+"]",
		)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("id").
		Offset(f.Skip).
		Limit(listLimit(f.Limit)).
		Find(&scheds).Error
	return scheds, total, err
}

// UpdateSchedule persists all fields of a schedule
func (s *GormStore) UpdateSchedule(ctx context.Context, sched *Schedule) error {
	result := s.db.WithContext(ctx).Save(sched)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule by id
func (s *GormStore) DeleteSchedule(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&Schedule{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueSchedules returns enabled schedules due for recomputation
func (s *GormStore) ListDueSchedules(ctx context.Context, now time.Time, slack time.Duration) ([]Schedule, error) {
	var scheds []Schedule
	err := s.db.WithContext(ctx).
		Where("is_enabled = ?", true).
		Where("next_run IS NULL OR next_run <= ?", now.Add(slack)).
		Order("next_run, id").
		Find(&scheds).Error
	return scheds, err
}

// SetScheduleEnabled flips the enabled flag
func (s *GormStore) SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error {
	updates := map[string]any{"is_enabled": enabled}
	if !enabled {
		updates["next_run"] = nil
	}
	result := s.db.WithContext(ctx).Model(&Schedule{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetNextRun updates the computed next firing instant
func (s *GormStore) SetNextRun(ctx context.Context, id int64, next *time.Time) error {
	return s.db.WithContext(ctx).Model(&Schedule{}).
		Where("id = ?", id).
		Update("next_run", next).Error
}

// MarkScheduleRun records the observed outcome of the latest firing
func (s *GormStore) MarkScheduleRun(ctx context.Context, id int64, at time.Time, status, errMsg string) error {
	return s.db.WithContext(ctx).Model(&Schedule{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_run":        at,
			"last_run_status": status,
			"last_run_error":  errMsg,
		}).Error
}

// GetScheduleStats returns aggregate counts over schedules and pending actions
func (s *GormStore) GetScheduleStats(ctx context.Context) (*ScheduleStats, error) {
	stats := &ScheduleStats{ByType: make(map[string]int64)}

	if err := s.db.WithContext(ctx).Model(&Schedule{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&Schedule{}).
		Where("is_enabled = ?", true).Count(&stats.Enabled).Error; err != nil {
		return nil, err
	}
	stats.Disabled = stats.Total - stats.Enabled

	type typeCount struct {
		ScheduleType string
		N            int64
	}
	var counts []typeCount
	if err := s.db.WithContext(ctx).Model(&Schedule{}).
		Select("schedule_type, COUNT(*) as n").
		Group("schedule_type").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.ByType[c.ScheduleType] = c.N
	}

	if err := s.db.WithContext(ctx).Model(&DeviceAction{}).
		Where("status = ?", ActionPending).
		Count(&stats.PendingActions).Error; err != nil {
		return nil, err
	}

	var next Schedule
	err := s.db.WithContext(ctx).
		Where("is_enabled = ? AND next_run IS NOT NULL", true).
		Order("next_run").
		First(&next).Error
	if err == nil {
		stats.NextRun = next.NextRun
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return stats, nil
}

// CountSchedules returns the total number of schedules
func (s *GormStore) CountSchedules(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Schedule{}).Count(&count).Error
	return count, err
}

// =============================================================================
// Device actions
// =============================================================================

// CreateAction materializes one action row; a duplicate
// (schedule, instant, device) insert reports ErrDuplicateAction
func (s *GormStore) CreateAction(ctx context.Context, a *DeviceAction) error {
	err := s.db.WithContext(ctx).Create(a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateAction
	}
	return err
}

// GetAction returns an action by id
func (s *GormStore) GetAction(ctx context.Context, id int64) (*DeviceAction, error) {
	var a DeviceAction
	err := s.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActions returns actions matching the filter with a total count
func (s *GormStore) ListActions(ctx context.Context, f ActionFilter) ([]DeviceAction, int64, error) {
	var actions []DeviceAction
	var total int64

	query := s.db.WithContext(ctx).Model(&DeviceAction{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.DeviceID != nil {
		query = query.Where("device_id = ?", *f.DeviceID)
	}
	if f.ScheduleID != nil {
		query = query.Where("schedule_id = ?", *f.ScheduleID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("scheduled_time DESC, id DESC").
		Offset(f.Skip).
		Limit(listLimit(f.Limit)).
		Find(&actions).Error
	return actions, total, err
}

// ListDispatchableActions returns due pending actions in dispatch order
func (s *GormStore) ListDispatchableActions(ctx context.Context, now time.Time, limit int) ([]DeviceAction, error) {
	var actions []DeviceAction
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_time <= ?", ActionPending, now).
		Order("scheduled_time, id").
		Limit(listLimit(limit)).
		Find(&actions).Error
	return actions, err
}

// ClaimAction atomically transitions pending -> in_progress
func (s *GormStore) ClaimAction(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Model(&DeviceAction{}).
		Where("id = ? AND status = ?", id, ActionPending).
		Update("status", ActionInProgress)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// CompleteAction records the terminal status; conditional on in_progress so a
// finished row is never overwritten
func (s *GormStore) CompleteAction(ctx context.Context, id int64, status string, executedAt time.Time, result, errMsg string) error {
	if status != ActionSuccess && status != ActionFailed {
		return fmt.Errorf("non-terminal status: %s", status)
	}
	res := s.db.WithContext(ctx).Model(&DeviceAction{}).
		Where("id = ? AND status = ?", id, ActionInProgress).
		Updates(map[string]any{
			"status":        status,
			"executed_time": executedAt,
			"result":        result,
			"error_message": errMsg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// DeleteAction removes an action by id
func (s *GormStore) DeleteAction(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&DeviceAction{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanupActions deletes terminal actions older than the cutoff
func (s *GormStore) CleanupActions(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ? AND scheduled_time < ?", []string{ActionSuccess, ActionFailed}, olderThan).
		Delete(&DeviceAction{})
	return result.RowsAffected, result.Error
}

// =============================================================================
// Devices
// =============================================================================

// CreateDevice stores a new device
func (s *GormStore) CreateDevice(ctx context.Context, d *Device) error {
	return s.db.WithContext(ctx).Create(d).Error
}

// GetDevice returns a device by id
func (s *GormStore) GetDevice(ctx context.Context, id int64) (*Device, error) {
	var d Device
	err := s.db.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDevices returns devices with a total count
func (s *GormStore) ListDevices(ctx context.Context, skip, limit int) ([]Device, int64, error) {
	var devices []Device
	var total int64

	query := s.db.WithContext(ctx).Model(&Device{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("id").
		Offset(skip).
		Limit(listLimit(limit)).
		Find(&devices).Error
	return devices, total, err
}

// UpdateDevice persists all fields of a device
func (s *GormStore) UpdateDevice(ctx context.Context, d *Device) error {
	result := s.db.WithContext(ctx).Save(d)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDevice removes a device; alerts and their events cascade
func (s *GormStore) DeleteDevice(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Emulate FK cascades for dialects where AutoMigrate did not
		// install them (historic SQLite files)
		var alertIDs []int64
		if err := tx.Model(&Alert{}).Where("device_id = ?", id).
			Pluck("id", &alertIDs).Error; err != nil {
			return err
		}
		if len(alertIDs) > 0 {
			if err := tx.Where("alert_id IN ?", alertIDs).Delete(&AlertEvent{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", alertIDs).Delete(&Alert{}).Error; err != nil {
				return err
			}
		}
		result := tx.Delete(&Device{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListPollableDevices returns devices the poller should track
func (s *GormStore) ListPollableDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := s.db.WithContext(ctx).
		Where("poll_enabled = ? AND is_active = ?", true, true).
		Order("id").
		Find(&devices).Error
	return devices, err
}

// RecordPollSuccess stamps last_polled and clears last_error
func (s *GormStore) RecordPollSuccess(ctx context.Context, id int64, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Device{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_polled": at, "last_error": ""}).Error
}

// RecordPollFailure stamps last_polled and records the failure message
func (s *GormStore) RecordPollFailure(ctx context.Context, id int64, at time.Time, msg string) error {
	return s.db.WithContext(ctx).Model(&Device{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_polled": at, "last_error": msg}).Error
}

// =============================================================================
// Readings
// =============================================================================

// InsertReading stores one observation
func (s *GormStore) InsertReading(ctx context.Context, r *Reading) error {
	return s.db.WithContext(ctx).Create(r).Error
}

// LatestReading returns the most recent reading for a device, or (nil, nil)
func (s *GormStore) LatestReading(ctx context.Context, deviceID int64) (*Reading, error) {
	var r Reading
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC").
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LastReadingTimestamp returns the newest timestamp for a device, or nil
func (s *GormStore) LastReadingTimestamp(ctx context.Context, deviceID int64) (*time.Time, error) {
	r, err := s.LatestReading(ctx, deviceID)
	if err != nil || r == nil {
		return nil, err
	}
	return &r.Timestamp, nil
}

// ReadingHistory returns readings for a device in a time window, newest first
func (s *GormStore) ReadingHistory(ctx context.Context, deviceID int64, start, end *time.Time, limit int) ([]Reading, error) {
	query := s.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if start != nil {
		query = query.Where("timestamp >= ?", *start)
	}
	if end != nil {
		query = query.Where("timestamp <= ?", *end)
	}

	var readings []Reading
	err := query.Order("timestamp DESC").
		Limit(listLimit(limit)).
		Find(&readings).Error
	return readings, err
}

// PruneReadings deletes readings older than the cutoff
func (s *GormStore) PruneReadings(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("timestamp < ?", olderThan).
		Delete(&Reading{})
	return result.RowsAffected, result.Error
}

// =============================================================================
// Alerts
// =============================================================================

// CreateAlert stores a new alert rule
func (s *GormStore) CreateAlert(ctx context.Context, a *Alert) error {
	return s.db.WithContext(ctx).Create(a).Error
}

// GetAlert returns an alert by id
func (s *GormStore) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	var a Alert
	err := s.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAlerts returns alerts with a total count
func (s *GormStore) ListAlerts(ctx context.Context, skip, limit int) ([]Alert, int64, error) {
	var alerts []Alert
	var total int64

	query := s.db.WithContext(ctx).Model(&Alert{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("id").
		Offset(skip).
		Limit(listLimit(limit)).
		Find(&alerts).Error
	return alerts, total, err
}

// ListEnabledAlerts returns every enabled alert rule
func (s *GormStore) ListEnabledAlerts(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	err := s.db.WithContext(ctx).
		Where("is_enabled = ?", true).
		Order("id").
		Find(&alerts).Error
	return alerts, err
}

// UpdateAlert persists all fields of an alert
func (s *GormStore) UpdateAlert(ctx context.Context, a *Alert) error {
	result := s.db.WithContext(ctx).Save(a)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAlert removes an alert; its events cascade
func (s *GormStore) DeleteAlert(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("alert_id = ?", id).Delete(&AlertEvent{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&Alert{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SetAlertEnabled flips the enabled flag
func (s *GormStore) SetAlertEnabled(ctx context.Context, id int64, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&Alert{}).
		Where("id = ?", id).
		Update("is_enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// Alert events
// =============================================================================

// OpenAlertEvent stores a new unresolved event
func (s *GormStore) OpenAlertEvent(ctx context.Context, e *AlertEvent) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// GetAlertEvent returns an event by id
func (s *GormStore) GetAlertEvent(ctx context.Context, id int64) (*AlertEvent, error) {
	var e AlertEvent
	err := s.db.WithContext(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindOpenAlertEvent returns the unresolved event for an alert, or (nil, nil)
func (s *GormStore) FindOpenAlertEvent(ctx context.Context, alertID int64) (*AlertEvent, error) {
	var e AlertEvent
	err := s.db.WithContext(ctx).
		Where("alert_id = ? AND is_resolved = ?", alertID, false).
		Order("triggered_at DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ResolveAlertEvent marks an open event resolved
func (s *GormStore) ResolveAlertEvent(ctx context.Context, id int64, value float64, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&AlertEvent{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]any{
			"is_resolved":      true,
			"resolved_at":      at,
			"resolution_value": value,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAlertEvents returns events matching the filter with a total count
func (s *GormStore) ListAlertEvents(ctx context.Context, f EventFilter) ([]AlertEvent, int64, error) {
	var events []AlertEvent
	var total int64

	query := s.db.WithContext(ctx).Model(&AlertEvent{})
	if f.AlertID != nil {
		query = query.Where("alert_id = ?", *f.AlertID)
	}
	if f.DeviceID != nil {
		query = query.Where("device_id = ?", *f.DeviceID)
	}
	if f.IsResolved != nil {
		query = query.Where("is_resolved = ?", *f.IsResolved)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("triggered_at DESC, id DESC").
		Offset(f.Skip).
		Limit(listLimit(f.Limit)).
		Find(&events).Error
	return events, total, err
}

// listLimit clamps a requested page size to the API bounds
func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
