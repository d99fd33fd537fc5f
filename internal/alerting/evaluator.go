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

package alerting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/metrics"
	"github.com/reeflab/reefcore/internal/store"
)

// minFreshness is the floor of the reading freshness window
const minFreshness = 300 * time.Second

// CycleStats summarizes one evaluation cycle
type CycleStats struct {
	Evaluated int `json:"evaluated"`
	Triggered int `json:"triggered"`
	Resolved  int `json:"resolved"`
	Errors    int `json:"errors"`
	Skipped   int `json:"skipped"`
}

// Notifier receives alert event transitions; delivery is best-effort
type Notifier interface {
	NotifyTriggered(ctx context.Context, alert *store.Alert, event *store.AlertEvent)
	NotifyResolved(ctx context.Context, alert *store.Alert, event *store.AlertEvent)
}

// Evaluator compares the latest reading of each enabled alert's device
// against its threshold and opens or resolves alert events
type Evaluator struct {
	store    store.Store
	clock    clock.Clock
	logger   logr.Logger
	notifier Notifier
	interval time.Duration

	stopCh  chan struct{}
	running bool
	mu      sync.Mutex
}

// NewEvaluator creates an alert evaluator; notifier may be nil
func NewEvaluator(st store.Store, cl clock.Clock, logger logr.Logger, notifier Notifier, interval time.Duration) *Evaluator {
	return &Evaluator{
		store:    st,
		clock:    cl,
		logger:   logger,
		notifier: notifier,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the evaluation loop
func (e *Evaluator) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("starting alert evaluator", "interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case <-ticker.C:
			stats, err := e.RunCycle(ctx)
			if err != nil {
				e.logger.Error(err, "evaluation cycle failed")
				continue
			}
			if stats.Triggered > 0 || stats.Resolved > 0 || stats.Errors > 0 {
				e.logger.Info("evaluation cycle complete",
					"evaluated", stats.Evaluated, "triggered", stats.Triggered,
					"resolved", stats.Resolved, "errors", stats.Errors, "skipped", stats.Skipped)
			}
		}
	}
}

// Stop halts the evaluator
func (e *Evaluator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		close(e.stopCh)
		e.running = false
	}
}

// RunCycle evaluates every enabled alert once
func (e *Evaluator) RunCycle(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{}

	alerts, err := e.store.ListEnabledAlerts(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing alerts: %w", err)
	}

	for i := range alerts {
		alert := &alerts[i]
		outcome, err := e.evaluateOne(ctx, alert)
		if err != nil {
			stats.Errors++
			e.logger.Error(err, "alert evaluation failed", "alert", alert.ID)
			continue
		}
		stats.Evaluated++
		switch outcome {
		case outcomeTriggered:
			stats.Triggered++
		case outcomeResolved:
			stats.Resolved++
		case outcomeSkipped:
			stats.Skipped++
		}
	}

	e.updateOpenGauge(ctx)
	return stats, nil
}

type outcome int

const (
	outcomeNoop outcome = iota
	outcomeTriggered
	outcomeResolved
	outcomeSkipped
)

func (e *Evaluator) evaluateOne(ctx context.Context, alert *store.Alert) (outcome, error) {
	now := e.clock.Now()

	device, err := e.store.GetDevice(ctx, alert.DeviceID)
	if errors.Is(err, store.ErrNotFound) {
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeNoop, err
	}
	if !device.IsActive {
		return outcomeSkipped, nil
	}

	reading, err := e.store.LatestReading(ctx, device.ID)
	if err != nil {
		return outcomeNoop, err
	}
	if reading == nil {
		return outcomeSkipped, nil
	}

	// A stale reading neither opens nor closes events
	if device.PollEnabled {
		freshness := 5 * time.Duration(device.PollInterval) * time.Second
		if freshness < minFreshness {
			freshness = minFreshness
		}
		if now.Sub(reading.Timestamp) > freshness {
			return outcomeSkipped, nil
		}
	}

	value, ok := extractMetric(reading, alert.Metric)
	if !ok || math.IsNaN(value) {
		return outcomeSkipped, nil
	}

	breached := Compare(value, alert.Operator, alert.ThresholdValue)

	open, err := e.store.FindOpenAlertEvent(ctx, alert.ID)
	if err != nil {
		return outcomeNoop, err
	}

	switch {
	case breached && open == nil:
		event := &store.AlertEvent{
			AlertID:        alert.ID,
			DeviceID:       alert.DeviceID,
			TriggeredAt:    now,
			CurrentValue:   value,
			ThresholdValue: alert.ThresholdValue,
			Operator:       alert.Operator,
			Metric:         alert.Metric,
		}
		if err := e.store.OpenAlertEvent(ctx, event); err != nil {
			return outcomeNoop, err
		}
		metrics.RecordAlertTransition("triggered")
		e.logger.Info("alert triggered",
			"alert", alert.ID, "device", alert.DeviceID,
			"metric", alert.Metric, "value", value, "threshold", alert.ThresholdValue)
		if e.notifier != nil {
			e.notifier.NotifyTriggered(ctx, alert, event)
		}
		return outcomeTriggered, nil

	case !breached && open != nil:
		if err := e.store.ResolveAlertEvent(ctx, open.ID, value, now); err != nil {
			return outcomeNoop, err
		}
		metrics.RecordAlertTransition("resolved")
		e.logger.Info("alert resolved",
			"alert", alert.ID, "device", alert.DeviceID,
			"metric", alert.Metric, "value", value)
		if e.notifier != nil {
			open.IsResolved = true
			open.ResolvedAt = &now
			open.ResolutionValue = &value
			e.notifier.NotifyResolved(ctx, alert, open)
		}
		return outcomeResolved, nil
	}

	return outcomeNoop, nil
}

func (e *Evaluator) updateOpenGauge(ctx context.Context) {
	unresolved := false
	_, total, err := e.store.ListAlertEvents(ctx, store.EventFilter{IsResolved: &unresolved, Limit: 1})
	if err != nil {
		return
	}
	metrics.OpenAlertEvents.Set(float64(total))
}

// extractMetric pulls the metric value out of a reading. The scalar value
// column answers the "value" metric; structured readings are searched in
// json_value first, then metadata.
func extractMetric(r *store.Reading, metric string) (float64, bool) {
	if metric == "value" && r.Value != nil {
		return *r.Value, true
	}
	if v, ok := numericField(r.GetJSONValue(), metric); ok {
		return v, true
	}
	return numericField(r.GetMetadata(), metric)
}

func numericField(bag map[string]any, key string) (float64, bool) {
	raw, ok := bag[key]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Compare applies a threshold operator with IEEE semantics
func Compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "==":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "!=":
		return value != threshold
	}
	return false
}

// ValidOperator reports whether the operator is recognized
func ValidOperator(op string) bool {
	switch op {
	case ">", "<", "==", ">=", "<=", "!=":
		return true
	}
	return false
}
