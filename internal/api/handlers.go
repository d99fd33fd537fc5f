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
	"net/http"
	"time"

	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/config"
	"github.com/reeflab/reefcore/internal/scheduler"
	"github.com/reeflab/reefcore/internal/store"
)

// Handlers contains all API handlers
type Handlers struct {
	store     store.Store
	config    *config.Config
	executor  scheduler.Executor
	clock     clock.Clock
	startTime time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(st store.Store, cfg *config.Config, ex scheduler.Executor, cl clock.Clock, startTime time.Time) *Handlers {
	return &Handlers{
		store:     st,
		config:    cfg,
		executor:  ex,
		clock:     cl,
		startTime: startTime,
	}
}

// GetHealth handles GET /api/v1/health
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storageStatus := "connected"
	status := "healthy"
	if err := h.store.Health(ctx); err != nil {
		storageStatus = "error: " + err.Error()
		status = "degraded"
	}

	uptime := h.clock.Now().Sub(h.startTime)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Storage: storageStatus,
		Version: Version,
		Uptime:  uptime.Round(time.Second).String(),
	})
}

// GetStats handles GET /api/v1/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scheduleStats, err := h.store.GetScheduleStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_, totalDevices, err := h.store.ListDevices(ctx, 0, 1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_, totalAlerts, err := h.store.ListAlerts(ctx, 0, 1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	unresolved := false
	_, openEvents, err := h.store.ListAlertEvents(ctx, store.EventFilter{IsResolved: &unresolved, Limit: 1})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalSchedules:  scheduleStats.Total,
		TotalDevices:    totalDevices,
		TotalAlerts:     totalAlerts,
		PendingActions:  scheduleStats.PendingActions,
		OpenAlertEvents: openEvents,
	})
}

// GetScheduleHealth handles GET /api/v1/schedules/health
func (h *Handlers) GetScheduleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.store.CountSchedules(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	stats, err := h.store.GetScheduleStats(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ScheduleHealthResponse{
		Status:         "healthy",
		UptimeSeconds:  h.clock.Now().Sub(h.startTime).Seconds(),
		TotalSchedules: total,
		NextCheck:      stats.NextRun,
	})
}
