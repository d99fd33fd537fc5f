package scheduler

import (
	"context"
	"time"

	"github.com/reeflab/reefcore/internal/drivers"
	"github.com/reeflab/reefcore/internal/store"
)

// Executor resolves a device action to a physical call
type Executor interface {
	// Execute performs the action against the device and returns the
	// resulting device state
	Execute(ctx context.Context, action *store.DeviceAction, device *store.Device) (map[string]any, error)
}

// executeTimeout bounds a single actuator call
const executeTimeout = 30 * time.Second

// DriverExecutor executes actions through the driver registry
type DriverExecutor struct {
	registry *drivers.Registry
}

// NewDriverExecutor creates an executor backed by the driver registry
func NewDriverExecutor(registry *drivers.Registry) *DriverExecutor {
	return &DriverExecutor{registry: registry}
}

// Execute resolves the device's actuator and applies the action
func (e *DriverExecutor) Execute(ctx context.Context, action *store.DeviceAction, device *store.Device) (map[string]any, error) {
	actuator, err := e.registry.Actuator(device.DeviceType)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()
	return actuator.Apply(ctx, device, action.ActionType, action.GetParameters())
}
