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

// Package testutil provides shared fixtures for worker and handler tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reeflab/reefcore/internal/drivers"
	"github.com/reeflab/reefcore/internal/store"
)

// NewMemoryStore opens an initialized in-memory SQLite store that is closed
// when the test finishes
func NewMemoryStore(t *testing.T) *store.GormStore {
	t.Helper()

	st, err := store.NewGormStore("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	require.NoError(t, st.Init())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// ExecutedAction records one executor invocation
type ExecutedAction struct {
	ActionID   int64
	DeviceID   int64
	ActionType string
	Params     map[string]any
}

// FakeExecutor records executions and returns a scripted result
type FakeExecutor struct {
	mu       sync.Mutex
	Executed []ExecutedAction

	// Err is returned from every execution when set
	Err error
	// Result is echoed back on success
	Result map[string]any
}

// Execute records the call and returns the scripted outcome
func (f *FakeExecutor) Execute(ctx context.Context, action *store.DeviceAction, device *store.Device) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Executed = append(f.Executed, ExecutedAction{
		ActionID:   action.ID,
		DeviceID:   device.ID,
		ActionType: action.ActionType,
		Params:     action.GetParameters(),
	})
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result != nil {
		return f.Result, nil
	}
	return map[string]any{"state": "ok"}, nil
}

// Count returns the number of recorded executions
func (f *FakeExecutor) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Executed)
}

// FakeDriver returns a scripted sample or error from every poll
type FakeDriver struct {
	mu    sync.Mutex
	polls int

	Sample *drivers.Sample
	Err    error
}

// Poll returns the scripted outcome
func (f *FakeDriver) Poll(ctx context.Context, device *store.Device) (*drivers.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Sample, nil
}

// Polls returns the number of recorded polls
func (f *FakeDriver) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}
