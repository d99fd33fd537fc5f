package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/reeflab/reefcore/internal/store"
)

// Validate checks a schedule definition for evaluability. It covers the
// per-type required fields, cron grammar, zone names, time ranges, and
// action parameter ranges.
func Validate(s *store.Schedule) error {
	switch s.ScheduleType {
	case store.ScheduleOneOff:
		if s.StartTime == nil {
			return fmt.Errorf("one_off schedule requires start_time")
		}
	case store.ScheduleInterval:
		if s.StartTime == nil {
			return fmt.Errorf("interval schedule requires start_time")
		}
		if s.IntervalSeconds == nil || *s.IntervalSeconds < 1 {
			return fmt.Errorf("interval schedule requires interval_seconds >= 1")
		}
	case store.ScheduleCron:
		if s.CronExpression == "" {
			return fmt.Errorf("cron schedule requires cron_expression")
		}
		if _, err := cronParser.Parse(s.CronExpression); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.CronExpression, err)
		}
	case store.ScheduleRecurring:
		pattern, ok := recurringPattern(s)
		if !ok {
			return fmt.Errorf("recurring schedule requires action_params.recurring_pattern")
		}
		if _, err := pattern.CronExpression(); err != nil {
			return err
		}
	case store.ScheduleStatic:
		if _, ok := recurringPattern(s); !ok && s.StartTime == nil {
			return fmt.Errorf("static schedule requires start_time or a recurring pattern")
		}
	default:
		return fmt.Errorf("unknown schedule type %q", s.ScheduleType)
	}

	if s.StartTime != nil && s.EndTime != nil && !s.EndTime.After(*s.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q", s.Timezone)
		}
	}

	return validateActionParams(s.ActionType, s.GetActionParams())
}

// validateActionParams checks parameter ranges per action type. Custom
// actions carry a verbatim bag for the driver and are not validated here.
func validateActionParams(actionType string, params map[string]any) error {
	switch actionType {
	case store.ActionSetPWM, store.ActionSetLevel:
		target, ok := numericParam(params, "target")
		if !ok {
			return fmt.Errorf("%s requires a numeric target", actionType)
		}
		if target < 0 || target > 100 {
			return fmt.Errorf("%s target %v outside [0, 100]", actionType, target)
		}
	case store.ActionRamp:
		if duration, ok := numericParam(params, "duration_ms"); ok && duration < 0 {
			return fmt.Errorf("ramp duration_ms must not be negative")
		}
		if target, ok := numericParam(params, "target"); ok && (target < 0 || target > 100) {
			return fmt.Errorf("ramp target %v outside [0, 100]", target)
		}
	case store.ActionOn, store.ActionOff, store.ActionToggle, store.ActionCustom:
		// No core-level parameter constraints
	case "":
		return fmt.Errorf("action_type is required")
	default:
		return fmt.Errorf("unknown action type %q", actionType)
	}
	return nil
}

func numericParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
