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

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeflab/reefcore/internal/store"
)

func testAlertAndEvent() (*store.Alert, *store.AlertEvent) {
	alert := &store.Alert{
		ID:             7,
		Name:           "temp-high",
		DeviceID:       3,
		Metric:         "value",
		Operator:       ">",
		ThresholdValue: 82,
	}
	event := &store.AlertEvent{
		ID:             11,
		AlertID:        7,
		DeviceID:       3,
		TriggeredAt:    time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		CurrentValue:   83.2,
		ThresholdValue: 82,
		Operator:       ">",
		Metric:         "value",
	}
	return alert, event
}

func TestWebhookChannel_Send(t *testing.T) {
	var received Notification
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	d := NewDispatcher(logr.Discard(), 50)
	d.RegisterChannel(NewWebhookChannel(ts.URL))

	alert, event := testAlertAndEvent()
	d.NotifyTriggered(context.Background(), alert, event)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "triggered", received.Kind)
	assert.Equal(t, int64(7), received.AlertID)
	assert.Equal(t, 83.2, received.CurrentValue)
}

func TestWebhookChannel_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	ch := NewWebhookChannel(ts.URL)
	_, event := testAlertAndEvent()
	err := ch.Send(context.Background(), Notification{Kind: "triggered", AlertID: event.AlertID})
	assert.Error(t, err)
}

func TestDispatcher_RateLimit(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	// Burst of one: the second notification in the same instant drops
	d := NewDispatcher(logr.Discard(), 1)
	d.RegisterChannel(NewWebhookChannel(ts.URL))

	alert, event := testAlertAndEvent()
	d.NotifyTriggered(context.Background(), alert, event)
	d.NotifyResolved(context.Background(), alert, event)

	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_NoChannels(t *testing.T) {
	d := NewDispatcher(logr.Discard(), 50)
	alert, event := testAlertAndEvent()

	// Nothing to deliver to; must not panic
	d.NotifyTriggered(context.Background(), alert, event)
	d.NotifyResolved(context.Background(), alert, event)
}
