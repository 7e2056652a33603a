package fleet

import (
	"fmt"
	"math"
	"time"
)

// Layouts of the ledger's date and clock fields.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// SumHours totals entry durations rounded to two decimals.
func SumHours(entries []HoursEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Hours
	}
	return Round2(total)
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ParseDate validates a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return t, nil
}

// ParseClock accepts HH:MM or HH:MM:SS and returns minutes since midnight.
func ParseClock(s string) (int, error) {
	for _, layout := range []string{ClockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrValidation, s)
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// EntryEnd is the wall-clock instant an entry ended, in loc.
func EntryEnd(e HoursEntry, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(e.Date)
	if err != nil {
		return time.Time{}, err
	}
	mins, err := ParseClock(e.End)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), mins/60, mins%60, 0, 0, loc), nil
}
