package drivers

import (
	"context"
	"fmt"
	"sync"

	"github.com/reeflab/reefcore/internal/store"
)

// Simulated is a software device used in development deployments and
// tests. Polls return the value configured on the device; Apply records
// the requested state in memory.
type Simulated struct {
	mu    sync.Mutex
	state map[int64]map[string]any
}

// NewSimulated creates a simulated driver
func NewSimulated() *Simulated {
	return &Simulated{state: make(map[int64]map[string]any)}
}

// Poll returns the value configured on the device under "simulated_value",
// falling back to the last applied state
func (s *Simulated) Poll(ctx context.Context, device *store.Device) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := device.GetConfig()
	if raw, ok := cfg["simulated_value"]; ok {
		if v, ok := raw.(float64); ok {
			return &Sample{
				Value:    &v,
				Metadata: map[string]any{"source": "simulated"},
			}, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state[device.ID]; ok {
		return &Sample{
			Fields:   st,
			Metadata: map[string]any{"source": "simulated"},
		}, nil
	}
	return nil, fmt.Errorf("device %d has no simulated_value configured", device.ID)
}

// Apply records the requested state and echoes it back
func (s *Simulated) Apply(ctx context.Context, device *store.Device, actionType string, params map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := map[string]any{"action": actionType}
	switch actionType {
	case store.ActionOn:
		result["state"] = "on"
	case store.ActionOff:
		result["state"] = "off"
	case store.ActionToggle:
		s.mu.Lock()
		prev, _ := s.state[device.ID]["state"].(string)
		s.mu.Unlock()
		if prev == "on" {
			result["state"] = "off"
		} else {
			result["state"] = "on"
		}
	case store.ActionSetPWM, store.ActionSetLevel, store.ActionRamp:
		result["state"] = "on"
		if target, ok := params["target"]; ok {
			result["level"] = target
		}
	case store.ActionCustom:
		for k, v := range params {
			result[k] = v
		}
	default:
		return nil, fmt.Errorf("unsupported action type %q", actionType)
	}

	s.mu.Lock()
	s.state[device.ID] = result
	s.mu.Unlock()
	return result, nil
}
