package scheduling_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klinikgo/clinic-server/cmd/models"
	"github.com/klinikgo/clinic-server/service/scheduling"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 12, 1, hour, minute, 0, 0, time.UTC)
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"identical intervals", at(9, 0), at(10, 0), at(9, 0), at(10, 0), true},
		{"half hour shift", at(9, 0), at(10, 0), at(9, 30), at(10, 30), true},
		{"contained", at(9, 0), at(12, 0), at(10, 0), at(11, 0), true},
		{"touching at end", at(9, 0), at(10, 0), at(10, 0), at(11, 0), false},
		{"touching at start", at(10, 0), at(11, 0), at(9, 0), at(10, 0), false},
		{"disjoint", at(9, 0), at(10, 0), at(14, 0), at(15, 0), false},
		{"one minute overlap", at(9, 0), at(10, 1), at(10, 0), at(11, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scheduling.Overlap(tt.s1, tt.e1, tt.s2, tt.e2))
			// the predicate is symmetric
			assert.Equal(t, tt.want, scheduling.Overlap(tt.s2, tt.e2, tt.s1, tt.e1))
		})
	}
}

func TestHourInShift(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		wantMorning := hour >= 7 && hour < 18
		wantNight := hour >= 19 || hour < 7

		assert.Equal(t, wantMorning, scheduling.HourInShift(models.ShiftMorning, hour),
			fmt.Sprintf("morning hour %d", hour))
		assert.Equal(t, wantNight, scheduling.HourInShift(models.ShiftNight, hour),
			fmt.Sprintf("night hour %d", hour))
	}

	assert.False(t, scheduling.HourInShift("weekend", 9))
}

func TestShiftSlots(t *testing.T) {
	morning := scheduling.ShiftSlots(models.ShiftMorning)
	require.Len(t, morning, 11)
	assert.Equal(t, "07:00", morning[0])
	assert.Equal(t, "17:00", morning[len(morning)-1])

	night := scheduling.ShiftSlots(models.ShiftNight)
	require.Len(t, night, 12)
	assert.Equal(t, "19:00", night[0])
	assert.Equal(t, "23:00", night[4])
	// the night shift wraps past midnight
	assert.Equal(t, "00:00", night[5])
	assert.Equal(t, "06:00", night[len(night)-1])

	assert.Nil(t, scheduling.ShiftSlots("weekend"))
}

func TestSlotBounds(t *testing.T) {
	date, err := scheduling.ParseDate("2025-12-01")
	require.NoError(t, err)

	start, end, err := scheduling.SlotBounds(date, "09:00")
	require.NoError(t, err)
	assert.Equal(t, at(9, 0), start)
	assert.Equal(t, at(10, 0), end)

	// a slot starting at 23:00 ends at midnight the next day
	start, end, err = scheduling.SlotBounds(date, "23:00")
	require.NoError(t, err)
	assert.Equal(t, at(23, 0), start)
	assert.Equal(t, time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC), end)

	_, _, err = scheduling.SlotBounds(date, "quarter past nine")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	date, err := scheduling.ParseDate("2025-12-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), date)

	_, err = scheduling.ParseDate("01-12-2025")
	assert.Error(t, err)
}

func TestParseTimeOfDay(t *testing.T) {
	hour, minute, err := scheduling.ParseTimeOfDay("14:30")
	require.NoError(t, err)
	assert.Equal(t, 14, hour)
	assert.Equal(t, 30, minute)

	hour, minute, err = scheduling.ParseTimeOfDay("07:00:00")
	require.NoError(t, err)
	assert.Equal(t, 7, hour)
	assert.Equal(t, 0, minute)

	_, _, err = scheduling.ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestDateOf(t *testing.T) {
	instant := time.Date(2025, 12, 1, 18, 42, 7, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), scheduling.DateOf(instant))
}
