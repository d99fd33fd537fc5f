package schedule

import (
	"fmt"
	"strings"

	"github.com/reeflab/reefcore/internal/store"
)

// Pattern describes a human-friendly recurrence carried in a schedule's
// action parameter bag under the "recurring_pattern" key
type Pattern struct {
	// Frequency is "daily" or "weekly"
	Frequency string
	// At is the local firing time, "HH:MM"
	At string
	// Days names the weekdays for weekly patterns (mon..sun)
	Days []string
}

var weekdayNames = map[string]string{
	"mon": "1", "monday": "1",
	"tue": "2", "tuesday": "2",
	"wed": "3", "wednesday": "3",
	"thu": "4", "thursday": "4",
	"fri": "5", "friday": "5",
	"sat": "6", "saturday": "6",
	"sun": "0", "sunday": "0",
}

// CronExpression compiles the pattern to a standard 5-field expression
func (p Pattern) CronExpression() (string, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(p.At, "%d:%d", &hh, &mm); err != nil {
		return "", fmt.Errorf("invalid time of day %q: %w", p.At, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return "", fmt.Errorf("time of day %q out of range", p.At)
	}

	switch p.Frequency {
	case "daily":
		return fmt.Sprintf("%d %d * * *", mm, hh), nil
	case "weekly":
		if len(p.Days) == 0 {
			return "", fmt.Errorf("weekly pattern requires days")
		}
		dows := make([]string, 0, len(p.Days))
		for _, d := range p.Days {
			dow, ok := weekdayNames[strings.ToLower(d)]
			if !ok {
				return "", fmt.Errorf("unknown weekday %q", d)
			}
			dows = append(dows, dow)
		}
		return fmt.Sprintf("%d %d * * %s", mm, hh, strings.Join(dows, ",")), nil
	default:
		return "", fmt.Errorf("unknown frequency %q", p.Frequency)
	}
}

// HasRecurringPattern reports whether the schedule carries a recurrence
// in its parameter bag; static seeds without one fire exactly once
func HasRecurringPattern(s *store.Schedule) bool {
	_, ok := recurringPattern(s)
	return ok
}

// recurringPattern extracts the pattern from a schedule's parameter bag
func recurringPattern(s *store.Schedule) (Pattern, bool) {
	params := s.GetActionParams()
	raw, ok := params["recurring_pattern"].(map[string]any)
	if !ok {
		return Pattern{}, false
	}

	p := Pattern{}
	if freq, ok := raw["frequency"].(string); ok {
		p.Frequency = freq
	}
	if at, ok := raw["at"].(string); ok {
		p.At = at
	}
	if days, ok := raw["days"].([]any); ok {
		for _, d := range days {
			if name, ok := d.(string); ok {
				p.Days = append(p.Days, name)
			}
		}
	}
	return p, p.Frequency != ""
}
