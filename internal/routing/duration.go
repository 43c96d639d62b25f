package routing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned when the backend sends a duration that is not
// a valid ISO-8601 time duration.
var ErrInvalidDuration = errors.New("invalid ISO-8601 duration")

// parseISODuration parses an ISO-8601 time duration with hour, minute and
// second components, e.g. "PT1H30M", "PT45M", "PT90S". Date components are not
// supported since trip durations never span days.
func parseISODuration(s string) (time.Duration, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidDuration)
	}

	rest, ok := strings.CutPrefix(raw, "PT")
	if !ok {
		rest, ok = strings.CutPrefix(raw, "P")
		if !ok || !strings.HasPrefix(rest, "T") {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		rest = strings.TrimPrefix(rest, "T")
	}
	if rest == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	var total time.Duration
	num := strings.Builder{}
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			num.WriteRune(r)
		case r == 'H' || r == 'M' || r == 'S':
			value, err := strconv.ParseFloat(num.String(), 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
			}
			num.Reset()
			switch r {
			case 'H':
				total += time.Duration(value * float64(time.Hour))
			case 'M':
				total += time.Duration(value * float64(time.Minute))
			case 'S':
				total += time.Duration(value * float64(time.Second))
			}
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
	}
	if num.Len() != 0 {
		return 0, fmt.Errorf("%w: trailing number in %q", ErrInvalidDuration, s)
	}

	return total, nil
}

// durationMinutes converts a duration to whole minutes, rounding up so a
// 61-second trip is never reported as one minute.
func durationMinutes(d time.Duration) int {
	minutes := int(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	return minutes
}
