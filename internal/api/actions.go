package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/reeflab/reefcore/internal/store"
)

// ListActions handles GET /api/v1/schedules/device-actions
func (h *Handlers) ListActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	skip, limit, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deviceID, err := queryInt64(r, "device_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scheduleID, err := queryInt64(r, "schedule_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actions, total, err := h.store.ListActions(ctx, store.ActionFilter{
		Status:     r.URL.Query().Get("status"),
		DeviceID:   deviceID,
		ScheduleID: scheduleID,
		Skip:       skip,
		Limit:      limit,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	items := make([]ActionResponse, 0, len(actions))
	for i := range actions {
		items = append(items, toActionResponse(&actions[i]))
	}
	writeJSON(w, http.StatusOK, ListResponse[ActionResponse]{
		Items: items, Total: total, Skip: skip, Limit: limit,
	})
}

// GetAction handles GET /api/v1/schedules/device-actions/{id}
func (h *Handlers) GetAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action id")
		return
	}

	a, err := h.store.GetAction(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActionResponse(a))
}

// CreateAction handles POST /api/v1/schedules/device-actions (manual action)
func (h *Handlers) CreateAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ActionType == "" {
		writeError(w, http.StatusUnprocessableEntity, "action_type is required")
		return
	}

	if _, err := h.store.GetDevice(ctx, req.DeviceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "unknown device_id")
			return
		}
		writeStoreError(w, err)
		return
	}

	scheduledTime := h.clock.Now()
	if req.ScheduledTime != nil {
		scheduledTime = req.ScheduledTime.UTC()
	}

	action := &store.DeviceAction{
		DeviceID:      req.DeviceID,
		ActionType:    req.ActionType,
		Status:        store.ActionPending,
		ScheduledTime: scheduledTime,
	}
	action.SetParameters(req.Parameters)

	if err := h.store.CreateAction(ctx, action); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActionResponse(action))
}

// ExecuteAction handles POST /api/v1/schedules/device-actions/{id}/execute
func (h *Handlers) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action id")
		return
	}

	action, err := h.store.GetAction(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if action.Status != store.ActionPending {
		writeError(w, http.StatusBadRequest, "Action is not pending")
		return
	}

	if err := h.store.ClaimAction(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotClaimed) {
			writeError(w, http.StatusBadRequest, "Action is not pending")
			return
		}
		writeStoreError(w, err)
		return
	}

	device, err := h.store.GetDevice(ctx, action.DeviceID)
	if err != nil {
		_ = h.store.CompleteAction(ctx, id, store.ActionFailed, h.clock.Now(), "", "device not found")
		writeStoreError(w, err)
		return
	}

	result, execErr := h.executor.Execute(ctx, action, device)
	executedAt := h.clock.Now()

	status := store.ActionSuccess
	errMsg := ""
	resultJSON := ""
	if execErr != nil {
		status = store.ActionFailed
		errMsg = execErr.Error()
	} else if len(result) > 0 {
		if b, err := json.Marshal(result); err == nil {
			resultJSON = string(b)
		}
	}

	if err := h.store.CompleteAction(ctx, id, status, executedAt, resultJSON, errMsg); err != nil {
		writeStoreError(w, err)
		return
	}

	action, err = h.store.GetAction(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActionResponse(action))
}

// DeleteAction handles DELETE /api/v1/schedules/device-actions/{id}
func (h *Handlers) DeleteAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action id")
		return
	}

	if err := h.store.DeleteAction(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CleanupActions handles POST /api/v1/schedules/device-actions/cleanup
func (h *Handlers) CleanupActions(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		var err error
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
	}

	cutoff := h.clock.Now().AddDate(0, 0, -days)
	deleted, err := h.store.CleanupActions(r.Context(), cutoff)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "days": days})
}
