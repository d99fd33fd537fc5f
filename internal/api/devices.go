package api

import (
	"net/http"
	"strconv"

	"github.com/reeflab/reefcore/internal/store"
)

// ListDevices handles GET /api/v1/devices
func (h *Handlers) ListDevices(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	devices, total, err := h.store.ListDevices(r.Context(), skip, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	items := make([]DeviceResponse, 0, len(devices))
	for i := range devices {
		items = append(items, toDeviceResponse(&devices[i]))
	}
	writeJSON(w, http.StatusOK, ListResponse[DeviceResponse]{
		Items: items, Total: total, Skip: skip, Limit: limit,
	})
}

// GetDevice handles GET /api/v1/devices/{id}
func (h *Handlers) GetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device id")
		return
	}

	d, err := h.store.GetDevice(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(d))
}

// CreateDevice handles POST /api/v1/devices
func (h *Handlers) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	if req.DeviceType == "" {
		writeError(w, http.StatusUnprocessableEntity, "device_type is required")
		return
	}

	d := &store.Device{
		Name:         req.Name,
		DeviceType:   req.DeviceType,
		Address:      req.Address,
		PollInterval: 60,
		IsActive:     true,
	}
	if req.PollEnabled != nil {
		d.PollEnabled = *req.PollEnabled
	}
	if req.PollInterval != nil {
		d.PollInterval = *req.PollInterval
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	d.SetConfig(req.Config)

	if d.PollInterval < 1 {
		writeError(w, http.StatusUnprocessableEntity, "poll_interval must be at least 1 second")
		return
	}

	if err := h.store.CreateDevice(r.Context(), d); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeviceResponse(d))
}

// UpdateDevice handles PUT/PATCH /api/v1/devices/{id}
func (h *Handlers) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device id")
		return
	}

	d, err := h.store.GetDevice(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req DeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name != "" {
		d.Name = req.Name
	}
	if req.DeviceType != "" {
		d.DeviceType = req.DeviceType
	}
	if req.Address != "" {
		d.Address = req.Address
	}
	if req.PollEnabled != nil {
		d.PollEnabled = *req.PollEnabled
	}
	if req.PollInterval != nil {
		d.PollInterval = *req.PollInterval
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if req.Config != nil {
		d.SetConfig(req.Config)
	}

	if d.PollInterval < 1 {
		writeError(w, http.StatusUnprocessableEntity, "poll_interval must be at least 1 second")
		return
	}

	if err := h.store.UpdateDevice(ctx, d); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(d))
}

// DeleteDevice handles DELETE /api/v1/devices/{id}
func (h *Handlers) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device id")
		return
	}

	if err := h.store.DeleteDevice(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDeviceHistory handles GET /api/v1/devices/{id}/history
func (h *Handlers) GetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device id")
		return
	}
	if _, err := h.store.GetDevice(ctx, id); err != nil {
		writeStoreError(w, err)
		return
	}

	start, err := queryTime(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
	}

	readings, err := h.store.ReadingHistory(ctx, id, start, end, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	items := make([]ReadingResponse, 0, len(readings))
	for i := range readings {
		items = append(items, toReadingResponse(&readings[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "device_id": id})
}

// GetLatestReading handles GET /api/v1/devices/{id}/readings/latest
func (h *Handlers) GetLatestReading(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device id")
		return
	}
	if _, err := h.store.GetDevice(ctx, id); err != nil {
		writeStoreError(w, err)
		return
	}

	reading, err := h.store.LatestReading(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if reading == nil {
		writeError(w, http.StatusNotFound, "No readings for device")
		return
	}
	writeJSON(w, http.StatusOK, toReadingResponse(reading))
}
