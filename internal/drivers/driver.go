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

// Package drivers defines the seam between the automation core and the
// hardware integrations. Concrete bus and vendor drivers register
// themselves by device type; the core only sees Poll and Apply.
package drivers

import (
	"context"
	"fmt"
	"sync"

	"github.com/reeflab/reefcore/internal/store"
)

// Sample is one observation produced by a driver poll
type Sample struct {
	// Value is the primary scalar reading, when the device has one
	Value *float64
	// Fields carries structured multi-metric readings
	Fields map[string]any
	// Metadata carries driver diagnostics (bus address, raw payload, etc.)
	Metadata map[string]any
}

// Driver reads a sensor-class device
type Driver interface {
	// Poll reads the device once; the context carries the deadline
	Poll(ctx context.Context, device *store.Device) (*Sample, error)
}

// Actuator changes the state of an actuator-class device
type Actuator interface {
	// Apply performs one action against the device and returns the
	// resulting device state
	Apply(ctx context.Context, device *store.Device, actionType string, params map[string]any) (map[string]any, error)
}

// Registry resolves drivers and actuators by device type
type Registry struct {
	mu        sync.RWMutex
	drivers   map[string]Driver
	actuators map[string]Actuator
}

// NewRegistry creates an empty driver registry
func NewRegistry() *Registry {
	return &Registry{
		drivers:   make(map[string]Driver),
		actuators: make(map[string]Actuator),
	}
}

// RegisterDriver installs a sensor driver for a device type
func (r *Registry) RegisterDriver(deviceType string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[deviceType] = d
}

// RegisterActuator installs an actuator for a device type
func (r *Registry) RegisterActuator(deviceType string, a Actuator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actuators[deviceType] = a
}

// Driver returns the sensor driver for a device type
func (r *Registry) Driver(deviceType string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[deviceType]
	if !ok {
		return nil, fmt.Errorf("no driver registered for device type %q", deviceType)
	}
	return d, nil
}

// Actuator returns the actuator for a device type
func (r *Registry) Actuator(deviceType string) (Actuator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actuators[deviceType]
	if !ok {
		return nil, fmt.Errorf("no actuator registered for device type %q", deviceType)
	}
	return a, nil
}
