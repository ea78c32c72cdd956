package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/klinikgo/clinic-server/cmd/models"
)

// The unique partial index is the storage-level backstop for two
// transactions that both pass the conflict scan: only one can commit the
// slot, and the resulting driver error must be recognized so the loser is
// reported as a conflict rather than an internal failure.

func TestSlotIndexHoldsSlotOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:slotindex?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Appointment{}))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_slot
		 ON appointments (doctor_id, date, start_time)
		 WHERE status = 'scheduled' AND deleted_at IS NULL`,
	).Error)

	date := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	first := models.Appointment{
		PatientID: 1,
		DoctorID:  1,
		Date:      date,
		StartTime: date.Add(9 * time.Hour),
		EndTime:   date.Add(10 * time.Hour),
		Status:    models.StatusScheduled,
	}
	require.NoError(t, db.Create(&first).Error)

	duplicate := first
	duplicate.ID = 0
	duplicate.PatientID = 2
	err = db.Create(&duplicate).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	// the index only guards scheduled rows; a cancelled twin may coexist
	cancelled := first
	cancelled.ID = 0
	cancelled.PatientID = 3
	cancelled.Status = models.StatusCancelled
	require.NoError(t, db.Create(&cancelled).Error)

	// another doctor holds the same slot independently
	other := first
	other.ID = 0
	other.DoctorID = 2
	require.NoError(t, db.Create(&other).Error)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(
		errors.New(`pq: duplicate key value violates unique constraint "idx_appointments_slot"`)))
	assert.True(t, isUniqueViolation(
		errors.New("UNIQUE constraint failed: appointments.doctor_id, appointments.date, appointments.start_time")))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}
