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

// Package notify delivers alert event transitions to external channels.
// Delivery is best-effort: failures are logged and counted, never retried.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"github.com/reeflab/reefcore/internal/metrics"
	"github.com/reeflab/reefcore/internal/store"
)

// Notification is the payload delivered to channels
type Notification struct {
	Kind            string     `json:"kind"` // triggered or resolved
	AlertID         int64      `json:"alert_id"`
	AlertName       string     `json:"alert_name"`
	DeviceID        int64      `json:"device_id"`
	Metric          string     `json:"metric"`
	Operator        string     `json:"operator"`
	ThresholdValue  float64    `json:"threshold_value"`
	CurrentValue    float64    `json:"current_value"`
	ResolutionValue *float64   `json:"resolution_value,omitempty"`
	TriggeredAt     time.Time  `json:"triggered_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// Channel delivers one notification
type Channel interface {
	// Name returns the channel name
	Name() string

	// Send delivers a notification
	Send(ctx context.Context, n Notification) error
}

// Dispatcher fans notifications out to registered channels under a global
// rate limit
type Dispatcher struct {
	logger   logr.Logger
	limiter  *rate.Limiter
	channels []Channel
	mu       sync.RWMutex
}

// NewDispatcher creates a dispatcher limited to maxPerMinute notifications
// across all channels
func NewDispatcher(logger logr.Logger, maxPerMinute int) *Dispatcher {
	if maxPerMinute <= 0 {
		maxPerMinute = 50
	}
	return &Dispatcher{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60), maxPerMinute),
	}
}

// RegisterChannel adds a delivery channel
func (d *Dispatcher) RegisterChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}

// NotifyTriggered delivers a triggered transition
func (d *Dispatcher) NotifyTriggered(ctx context.Context, alert *store.Alert, event *store.AlertEvent) {
	d.send(ctx, buildNotification("triggered", alert, event))
}

// NotifyResolved delivers a resolved transition
func (d *Dispatcher) NotifyResolved(ctx context.Context, alert *store.Alert, event *store.AlertEvent) {
	d.send(ctx, buildNotification("resolved", alert, event))
}

func (d *Dispatcher) send(ctx context.Context, n Notification) {
	d.mu.RLock()
	channels := make([]Channel, len(d.channels))
	copy(channels, d.channels)
	d.mu.RUnlock()

	for _, ch := range channels {
		if !d.limiter.Allow() {
			d.logger.Info("notification rate limit exceeded, dropping",
				"channel", ch.Name(), "alert", n.AlertID, "kind", n.Kind)
			metrics.RecordNotification(ch.Name(), "dropped")
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			d.logger.Error(err, "notification delivery failed",
				"channel", ch.Name(), "alert", n.AlertID, "kind", n.Kind)
			metrics.RecordNotification(ch.Name(), "failed")
			continue
		}
		metrics.RecordNotification(ch.Name(), "sent")
	}
}

func buildNotification(kind string, alert *store.Alert, event *store.AlertEvent) Notification {
	return Notification{
		Kind:            kind,
		AlertID:         alert.ID,
		AlertName:       alert.Name,
		DeviceID:        event.DeviceID,
		Metric:          event.Metric,
		Operator:        event.Operator,
		ThresholdValue:  event.ThresholdValue,
		CurrentValue:    event.CurrentValue,
		ResolutionValue: event.ResolutionValue,
		TriggeredAt:     event.TriggeredAt,
		ResolvedAt:      event.ResolvedAt,
	}
}
