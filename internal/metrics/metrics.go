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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MaterializationsTotal counts device actions materialized from schedule firings
	MaterializationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reefcore_materializations_total",
			Help: "Total number of device actions materialized from schedules",
		},
		[]string{"schedule_type"},
	)

	// DispatchesTotal counts executed device actions by outcome
	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reefcore_dispatches_total",
			Help: "Total number of device actions dispatched",
		},
		[]string{"action_type", "status"},
	)

	// PollsTotal counts device polls by outcome
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reefcore_polls_total",
			Help: "Total number of device polls",
		},
		[]string{"device_type", "status"},
	)

	// PollDurationSeconds observes device poll latency
	PollDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reefcore_poll_duration_seconds",
			Help:    "Device poll latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"device_type"},
	)

	// RegisteredDevices tracks devices currently held by the poller
	RegisteredDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reefcore_registered_devices",
			Help: "Number of devices registered with the poller",
		},
	)

	// AlertEventsTotal counts alert event transitions
	AlertEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reefcore_alert_events_total",
			Help: "Total number of alert events opened and resolved",
		},
		[]string{"transition"},
	)

	// OpenAlertEvents tracks currently unresolved alert events
	OpenAlertEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reefcore_open_alert_events",
			Help: "Number of currently unresolved alert events",
		},
	)

	// NotificationsTotal counts outbound notifications by outcome
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reefcore_notifications_total",
			Help: "Total number of alert notifications sent",
		},
		[]string{"channel", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		MaterializationsTotal,
		DispatchesTotal,
		PollsTotal,
		PollDurationSeconds,
		RegisteredDevices,
		AlertEventsTotal,
		OpenAlertEvents,
		NotificationsTotal,
	)
}

// RecordMaterialization records one device action materialized from a firing
func RecordMaterialization(scheduleType string) {
	MaterializationsTotal.WithLabelValues(scheduleType).Inc()
}

// RecordDispatch records an executed action
func RecordDispatch(actionType, status string) {
	DispatchesTotal.WithLabelValues(actionType, status).Inc()
}

// RecordPoll records a device poll outcome
func RecordPoll(deviceType, status string, seconds float64) {
	PollsTotal.WithLabelValues(deviceType, status).Inc()
	PollDurationSeconds.WithLabelValues(deviceType).Observe(seconds)
}

// RecordAlertTransition records an opened or resolved alert event
func RecordAlertTransition(transition string) {
	AlertEventsTotal.WithLabelValues(transition).Inc()
}

// RecordNotification records an outbound notification attempt
func RecordNotification(channel, status string) {
	NotificationsTotal.WithLabelValues(channel, status).Inc()
}
