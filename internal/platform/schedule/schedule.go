// Package schedule parses daily run slots and answers which slots passed
// between two moments.
package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	// Embed tzdata for environments without zoneinfo.
	_ "time/tzdata"
)

const (
	minutesPerHour = 60
	maxHour        = 23
	slotSeparator  = ","
)

// Static errors for schedule validation.
var (
	ErrTimeFormat     = errors.New("time must be HH:MM")
	ErrInvalidHour    = errors.New("invalid hour")
	ErrInvalidMinute  = errors.New("invalid minute")
	ErrHourOutOfRange = errors.New("hour out of range")
)

var timezoneAliases = map[string]string{
	"Asia/Nicosia": "Europe/Nicosia",
}

// Daily is a set of wall-clock slots repeated every day in one timezone.
// The zero value has no slots.
type Daily struct {
	minutes []int
	loc     *time.Location
}

// Parse reads a comma-separated HH:MM list such as "02:00,14:30".
// An empty list yields an empty schedule.
func Parse(slots, timezone string) (Daily, error) {
	loc, err := location(timezone)
	if err != nil {
		return Daily{}, err
	}

	d := Daily{loc: loc}

	for _, raw := range strings.Split(slots, slotSeparator) {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		m, err := parseTimeHM(raw)
		if err != nil {
			return Daily{}, fmt.Errorf("slot %q: %w", strings.TrimSpace(raw), err)
		}

		if !slices.Contains(d.minutes, m) {
			d.minutes = append(d.minutes, m)
		}
	}

	slices.Sort(d.minutes)

	return d, nil
}

// IsEmpty reports whether the schedule has no slots.
func (d Daily) IsEmpty() bool {
	return len(d.minutes) == 0
}

// Slots renders the slots as HH:MM strings.
func (d Daily) Slots() []string {
	out := make([]string, 0, len(d.minutes))
	for _, m := range d.minutes {
		out = append(out, fmt.Sprintf("%02d:%02d", m/minutesPerHour, m%minutesPerHour))
	}

	return out
}

// Between returns the slot times in (after, until], oldest first.
func (d Daily) Between(after, until time.Time) []time.Time {
	if d.IsEmpty() || !until.After(after) {
		return nil
	}

	loc := d.loc
	if loc == nil {
		loc = time.UTC
	}

	afterLocal, untilLocal := after.In(loc), until.In(loc)

	var results []time.Time

	for day := dateOnly(afterLocal); !day.After(untilLocal); day = day.AddDate(0, 0, 1) {
		for _, m := range d.minutes {
			t := time.Date(day.Year(), day.Month(), day.Day(), m/minutesPerHour, m%minutesPerHour, 0, 0, loc)
			if t.After(afterLocal) && !t.After(untilLocal) {
				results = append(results, t)
			}
		}
	}

	return results
}

// NormalizeTimezone maps deprecated zone names onto current ones.
func NormalizeTimezone(value string) string {
	value = strings.TrimSpace(value)
	if alias, ok := timezoneAliases[value]; ok {
		return alias
	}

	return value
}

func location(timezone string) (*time.Location, error) {
	if strings.TrimSpace(timezone) == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(NormalizeTimezone(timezone))
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	return loc, nil
}

func parseTimeHM(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return 0, ErrTimeFormat
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, ErrInvalidHour
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, ErrInvalidMinute
	}

	if hour < 0 || hour > maxHour {
		return 0, ErrHourOutOfRange
	}

	if minute < 0 || minute >= minutesPerHour {
		return 0, ErrInvalidMinute
	}

	return hour*minutesPerHour + minute, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
