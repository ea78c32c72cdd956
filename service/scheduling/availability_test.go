package scheduling_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klinikgo/clinic-server/cmd/models"
	"github.com/klinikgo/clinic-server/pkg/apperrors"
)

func TestComputeAvailabilityEmpty(t *testing.T) {
	s, db := newTestScheduler(t)
	_, doctor := seedDoctor(t, db, "Doc Morning", models.ShiftMorning)

	availability, err := s.ComputeAvailability(doctor.ID)
	require.NoError(t, err)

	assert.Equal(t, doctor.ID, availability.DoctorID)
	assert.Equal(t, "Doc Morning", availability.DoctorName)
	assert.Equal(t, models.ShiftMorning, availability.Shift)
	require.Len(t, availability.Schedule, 7)

	// the window starts today (testNow is 2025-11-20, a Thursday)
	assert.Equal(t, "2025-11-20", availability.Schedule[0].Date)
	assert.Equal(t, "Thursday", availability.Schedule[0].Day)
	assert.Equal(t, "2025-11-26", availability.Schedule[6].Date)

	for _, day := range availability.Schedule {
		assert.Empty(t, day.OccupiedStarts)
		assert.Len(t, day.AvailableStarts, 11)
		assert.Equal(t, "no bookings yet", day.Note)
	}
	assert.Equal(t, "07:00", availability.Schedule[0].AvailableStarts[0])
	assert.Equal(t, "17:00", availability.Schedule[0].AvailableStarts[10])
}

func TestComputeAvailabilityWithBookings(t *testing.T) {
	s, db := newTestScheduler(t)
	_, doctor := seedDoctor(t, db, "Doc Morning", models.ShiftMorning)
	patientUser, _ := seedPatient(t, db, "Pat One")
	actor := asActor(patientUser)

	mustBook(t, s, actor, doctor.ID, "2025-11-21", "09:00")
	mustBook(t, s, actor, doctor.ID, "2025-11-21", "11:00")
	cancelled := mustBook(t, s, actor, doctor.ID, "2025-11-21", "13:00")
	_, err := s.Cancel(actor, cancelled.ID)
	require.NoError(t, err)

	availability, err := s.ComputeAvailability(doctor.ID)
	require.NoError(t, err)

	tomorrow := availability.Schedule[1]
	require.Equal(t, "2025-11-21", tomorrow.Date)
	assert.Equal(t, []string{"09:00", "11:00"}, tomorrow.OccupiedStarts)
	assert.Len(t, tomorrow.AvailableStarts, 9)
	assert.NotContains(t, tomorrow.AvailableStarts, "09:00")
	assert.NotContains(t, tomorrow.AvailableStarts, "11:00")
	// the cancelled slot is free again
	assert.Contains(t, tomorrow.AvailableStarts, "13:00")
	assert.Empty(t, tomorrow.Note)

	// days without bookings are untouched
	assert.Equal(t, "no bookings yet", availability.Schedule[2].Note)
}

func TestComputeAvailabilityOffGridBooking(t *testing.T) {
	s, db := newTestScheduler(t)
	_, doctor := seedDoctor(t, db, "Doc Morning", models.ShiftMorning)
	patientUser, _ := seedPatient(t, db, "Pat One")

	// a 09:30 start straddles two canonical slots
	mustBook(t, s, asActor(patientUser), doctor.ID, "2025-11-21", "09:30")

	availability, err := s.ComputeAvailability(doctor.ID)
	require.NoError(t, err)

	tomorrow := availability.Schedule[1]
	require.Equal(t, "2025-11-21", tomorrow.Date)
	assert.Equal(t, []string{"09:30"}, tomorrow.OccupiedStarts)
	assert.NotContains(t, tomorrow.AvailableStarts, "09:00")
	assert.NotContains(t, tomorrow.AvailableStarts, "10:00")
	assert.Contains(t, tomorrow.AvailableStarts, "08:00")
	assert.Contains(t, tomorrow.AvailableStarts, "11:00")
	assert.Len(t, tomorrow.AvailableStarts, 9)
}

func TestComputeAvailabilityNightShift(t *testing.T) {
	s, db := newTestScheduler(t)
	_, doctor := seedDoctor(t, db, "Doc Night", models.ShiftNight)
	patientUser, _ := seedPatient(t, db, "Pat One")

	mustBook(t, s, asActor(patientUser), doctor.ID, "2025-11-21", "23:00")
	mustBook(t, s, asActor(patientUser), doctor.ID, "2025-11-21", "02:00")

	availability, err := s.ComputeAvailability(doctor.ID)
	require.NoError(t, err)

	tomorrow := availability.Schedule[1]
	// occupied starts follow clock order, not schedule order
	assert.Equal(t, []string{"02:00", "23:00"}, tomorrow.OccupiedStarts)
	assert.Len(t, tomorrow.AvailableStarts, 10)
	assert.Contains(t, tomorrow.AvailableStarts, "19:00")
	assert.Contains(t, tomorrow.AvailableStarts, "00:00")
}

func TestComputeAvailabilityUnknownDoctor(t *testing.T) {
	s, _ := newTestScheduler(t)

	_, err := s.ComputeAvailability(404)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestComputeAllAvailability(t *testing.T) {
	s, db := newTestScheduler(t)
	seedDoctor(t, db, "Doc One", models.ShiftMorning)
	seedDoctor(t, db, "Doc Two", models.ShiftNight)

	all, err := s.ComputeAllAvailability()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Doc One", all[0].DoctorName)
	assert.Equal(t, "Doc Two", all[1].DoctorName)
}
