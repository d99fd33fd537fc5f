package api

import (
	"errors"
	"net/http"

	"github.com/reeflab/reefcore/internal/alerting"
	"github.com/reeflab/reefcore/internal/store"
)

// ListAlerts handles GET /api/v1/alerts
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, total, err := h.store.ListAlerts(r.Context(), skip, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[store.Alert]{
		Items: alerts, Total: total, Skip: skip, Limit: limit,
	})
}

// GetAlert handles GET /api/v1/alerts/{id}
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	a, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CreateAlert handles POST /api/v1/alerts
func (h *Handlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AlertRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validateAlertRequest(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	device, err := h.store.GetDevice(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "unknown device_id")
			return
		}
		writeStoreError(w, err)
		return
	}
	if !device.IsActive {
		writeError(w, http.StatusUnprocessableEntity, "device is not active")
		return
	}

	a := &store.Alert{
		Name:           req.Name,
		DeviceID:       req.DeviceID,
		Metric:         req.Metric,
		Operator:       req.Operator,
		ThresholdValue: *req.ThresholdValue,
		IsEnabled:      true,
	}
	if req.IsEnabled != nil {
		a.IsEnabled = *req.IsEnabled
	}
	if req.TrendEnabled != nil {
		a.TrendEnabled = *req.TrendEnabled
	}
	if a.TrendEnabled && !device.PollEnabled {
		writeError(w, http.StatusUnprocessableEntity, "trend analysis requires a polled device")
		return
	}

	if err := h.store.CreateAlert(ctx, a); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAlert handles PUT/PATCH /api/v1/alerts/{id}
func (h *Handlers) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	a, err := h.store.GetAlert(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req AlertRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name != "" {
		a.Name = req.Name
	}
	if req.Metric != "" {
		a.Metric = req.Metric
	}
	if req.Operator != "" {
		if !alerting.ValidOperator(req.Operator) {
			writeError(w, http.StatusUnprocessableEntity, "unknown operator")
			return
		}
		a.Operator = req.Operator
	}
	if req.ThresholdValue != nil {
		a.ThresholdValue = *req.ThresholdValue
	}
	if req.IsEnabled != nil {
		a.IsEnabled = *req.IsEnabled
	}
	if req.TrendEnabled != nil {
		a.TrendEnabled = *req.TrendEnabled
	}

	if err := h.store.UpdateAlert(ctx, a); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAlert handles DELETE /api/v1/alerts/{id}
func (h *Handlers) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	if err := h.store.DeleteAlert(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnableAlert handles POST /api/v1/alerts/{id}/enable
func (h *Handlers) EnableAlert(w http.ResponseWriter, r *http.Request) {
	h.setAlertEnabled(w, r, true, "Alert is already enabled")
}

// DisableAlert handles POST /api/v1/alerts/{id}/disable
func (h *Handlers) DisableAlert(w http.ResponseWriter, r *http.Request) {
	h.setAlertEnabled(w, r, false, "Alert is already disabled")
}

func (h *Handlers) setAlertEnabled(w http.ResponseWriter, r *http.Request, enabled bool, conflictDetail string) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	a, err := h.store.GetAlert(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if a.IsEnabled == enabled {
		writeError(w, http.StatusBadRequest, conflictDetail)
		return
	}

	if err := h.store.SetAlertEnabled(ctx, id, enabled); err != nil {
		writeStoreError(w, err)
		return
	}

	a.IsEnabled = enabled
	writeJSON(w, http.StatusOK, a)
}

// ListAlertEvents handles GET /api/v1/alerts/events
func (h *Handlers) ListAlertEvents(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alertID, err := queryInt64(r, "alert_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deviceID, err := queryInt64(r, "device_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	isResolved, err := queryBool(r, "is_resolved")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, total, err := h.store.ListAlertEvents(r.Context(), store.EventFilter{
		AlertID:    alertID,
		DeviceID:   deviceID,
		IsResolved: isResolved,
		Skip:       skip,
		Limit:      limit,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	items := make([]AlertEventResponse, 0, len(events))
	for i := range events {
		items = append(items, toAlertEventResponse(&events[i]))
	}
	writeJSON(w, http.StatusOK, ListResponse[AlertEventResponse]{
		Items: items, Total: total, Skip: skip, Limit: limit,
	})
}

// GetAlertEvent handles GET /api/v1/alerts/events/{id}
func (h *Handlers) GetAlertEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event id")
		return
	}

	e, err := h.store.GetAlertEvent(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertEventResponse(e))
}

func validateAlertRequest(req *AlertRequest) error {
	if req.Name == "" {
		return errors.New("name is required")
	}
	if req.Metric == "" {
		return errors.New("metric is required")
	}
	if !alerting.ValidOperator(req.Operator) {
		return errors.New("unknown operator")
	}
	if req.ThresholdValue == nil {
		return errors.New("threshold_value is required")
	}
	return nil
}
