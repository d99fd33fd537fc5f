package api

import (
	"errors"
	"net/http"

	"github.com/reeflab/reefcore/internal/schedule"
	"github.com/reeflab/reefcore/internal/store"
)

// ListSchedules handles GET /api/v1/schedules
func (h *Handlers) ListSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	skip, limit, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	isEnabled, err := queryBool(r, "is_enabled")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deviceID, err := queryInt64(r, "device_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scheds, total, err := h.store.ListSchedules(ctx, store.ScheduleFilter{
		ScheduleType: r.URL.Query().Get("schedule_type"),
		IsEnabled:    isEnabled,
		DeviceID:     deviceID,
		Skip:         skip,
		Limit:        limit,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	items := make([]ScheduleResponse, 0, len(scheds))
	for i := range scheds {
		items = append(items, toScheduleResponse(&scheds[i]))
	}
	writeJSON(w, http.StatusOK, ListResponse[ScheduleResponse]{
		Items: items, Total: total, Skip: skip, Limit: limit,
	})
}

// GetSchedule handles GET /api/v1/schedules/{id}
func (h *Handlers) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule id")
		return
	}

	s, err := h.store.GetSchedule(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}

// CreateSchedule handles POST /api/v1/schedules
func (h *Handlers) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	s := &store.Schedule{
		Name:            req.Name,
		ScheduleType:    req.ScheduleType,
		CronExpression:  req.CronExpression,
		IntervalSeconds: req.IntervalSeconds,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Timezone:        req.Timezone,
		ActionType:      req.ActionType,
		IsEnabled:       true,
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if req.IsEnabled != nil {
		s.IsEnabled = *req.IsEnabled
	}
	s.SetDeviceIDs(req.DeviceIDs)
	s.SetActionParams(req.ActionParams)

	if s.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	if len(req.DeviceIDs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "device_ids must not be empty")
		return
	}
	if err := schedule.Validate(s); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	for _, deviceID := range req.DeviceIDs {
		if _, err := h.store.GetDevice(ctx, deviceID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnprocessableEntity, "unknown device in device_ids")
				return
			}
			writeStoreError(w, err)
			return
		}
	}

	if err := h.store.CreateSchedule(ctx, s); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleResponse(s))
}

// UpdateSchedule handles PUT/PATCH /api/v1/schedules/{id}
func (h *Handlers) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule id")
		return
	}

	s, err := h.store.GetSchedule(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req ScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name != "" {
		s.Name = req.Name
	}
	if req.ScheduleType != "" {
		s.ScheduleType = req.ScheduleType
	}
	if req.CronExpression != "" {
		s.CronExpression = req.CronExpression
	}
	if req.IntervalSeconds != nil {
		s.IntervalSeconds = req.IntervalSeconds
	}
	if req.StartTime != nil {
		s.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		s.EndTime = req.EndTime
	}
	if req.Timezone != "" {
		s.Timezone = req.Timezone
	}
	if req.DeviceIDs != nil {
		s.SetDeviceIDs(req.DeviceIDs)
	}
	if req.ActionType != "" {
		s.ActionType = req.ActionType
	}
	if req.ActionParams != nil {
		s.SetActionParams(req.ActionParams)
	}
	if req.IsEnabled != nil {
		s.IsEnabled = *req.IsEnabled
	}

	if err := schedule.Validate(s); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// Definition changed; the scheduler recomputes the next instant
	s.NextRun = nil

	if err := h.store.UpdateSchedule(ctx, s); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}

// DeleteSchedule handles DELETE /api/v1/schedules/{id}
func (h *Handlers) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule id")
		return
	}

	if err := h.store.DeleteSchedule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnableSchedule handles POST /api/v1/schedules/{id}/enable
func (h *Handlers) EnableSchedule(w http.ResponseWriter, r *http.Request) {
	h.setScheduleEnabled(w, r, true, "Schedule is already enabled")
}

// DisableSchedule handles POST /api/v1/schedules/{id}/disable
func (h *Handlers) DisableSchedule(w http.ResponseWriter, r *http.Request) {
	h.setScheduleEnabled(w, r, false, "Schedule is already disabled")
}

func (h *Handlers) setScheduleEnabled(w http.ResponseWriter, r *http.Request, enabled bool, conflictDetail string) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule id")
		return
	}

	s, err := h.store.GetSchedule(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if s.IsEnabled == enabled {
		writeError(w, http.StatusBadRequest, conflictDetail)
		return
	}

	if err := h.store.SetScheduleEnabled(ctx, id, enabled); err != nil {
		writeStoreError(w, err)
		return
	}

	s, err = h.store.GetSchedule(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}

// GetScheduleStats handles GET /api/v1/schedules/stats
func (h *Handlers) GetScheduleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetScheduleStats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
