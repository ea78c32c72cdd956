package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	gorm.Model
	PatientID uint      `gorm:"column:patient_id;not null;index" json:"patient_id"`
	DoctorID  uint      `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	Date      time.Time `gorm:"column:date;not null" json:"date"`
	StartTime time.Time `gorm:"column:start_time;not null" json:"start_time"`
	EndTime   time.Time `gorm:"column:end_time;not null" json:"end_time"`
	Status    string    `gorm:"column:status;size:20;not null;default:scheduled" json:"status"`
	Complaint string    `gorm:"column:complaint;type:text" json:"complaint,omitempty"`

	Patient *Patient `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  *Doctor  `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}

// Active reports whether the appointment still counts toward a doctor's
// schedule, i.e. it has not been completed or cancelled.
func (a *Appointment) Active() bool {
	return a.Status != StatusCompleted && a.Status != StatusCancelled
}
