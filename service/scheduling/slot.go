package scheduling

import (
	"fmt"
	"time"

	"github.com/klinikgo/clinic-server/cmd/models"
	"github.com/klinikgo/clinic-server/pkg/apperrors"
)

// SlotDuration is the fixed length of every appointment. Slot starts are
// aligned to the hour, so the slot grid and the appointment length coincide.
const SlotDuration = 60 * time.Minute

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04"
	timeLayoutLong  = "15:04:05"
	morningOpenHour = 7
	morningEndHour  = 18
	nightOpenHour   = 19
	nightEndHour    = 7
)

// HourInShift reports whether an appointment may start at the given
// hour-of-day for a doctor working the given shift. The night shift wraps
// past midnight: 19:00-23:00 and 00:00-06:00 starts are both valid.
func HourInShift(shift string, hour int) bool {
	switch shift {
	case models.ShiftMorning:
		return hour >= morningOpenHour && hour < morningEndHour
	case models.ShiftNight:
		return hour >= nightOpenHour || hour < nightEndHour
	default:
		return false
	}
}

// ShiftSlots returns the canonical list of slot start times ("HH:00") for a
// shift, in schedule order. Night slots run 19:00 through 06:00.
func ShiftSlots(shift string) []string {
	var hours []int
	switch shift {
	case models.ShiftMorning:
		for h := morningOpenHour; h < morningEndHour; h++ {
			hours = append(hours, h)
		}
	case models.ShiftNight:
		for h := nightOpenHour; h < 24; h++ {
			hours = append(hours, h)
		}
		for h := 0; h < nightEndHour; h++ {
			hours = append(hours, h)
		}
	default:
		return nil
	}

	slots := make([]string, 0, len(hours))
	for _, h := range hours {
		slots = append(slots, fmt.Sprintf("%02d:00", h))
	}
	return slots
}

// Overlap implements the half-open interval test [s1,e1) vs [s2,e2).
// Back-to-back slots (e1 == s2) do not overlap.
func Overlap(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && e1.After(s2)
}

// ParseDate parses a "YYYY-MM-DD" calendar date into a UTC midnight instant.
func ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, apperrors.Validation("invalid date, expected YYYY-MM-DD")
	}
	return d, nil
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" into hour and minute.
func ParseTimeOfDay(value string) (hour, minute int, err error) {
	t, perr := time.Parse(timeLayout, value)
	if perr != nil {
		t, perr = time.Parse(timeLayoutLong, value)
	}
	if perr != nil {
		return 0, 0, apperrors.Validation("invalid time, expected HH:MM")
	}
	return t.Hour(), t.Minute(), nil
}

// SlotBounds resolves a date plus a start-of-slot time into concrete start
// and end instants. A slot starting at 23:00 ends at midnight on the next
// calendar day; it still belongs to the date it starts on.
func SlotBounds(date time.Time, start string) (time.Time, time.Time, error) {
	hour, minute, err := ParseTimeOfDay(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	startAt := date.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	return startAt, startAt.Add(SlotDuration), nil
}

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatSlot renders a start instant back into the "HH:MM" slot label.
func FormatSlot(t time.Time) string {
	return t.Format(timeLayout)
}
