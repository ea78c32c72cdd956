package models

import (
	"time"

	"gorm.io/gorm"
)

type MedicalRecord struct {
	gorm.Model
	RecordNo      string    `gorm:"column:record_no;size:64;not null;uniqueIndex" json:"record_no"`
	PatientID     uint      `gorm:"column:patient_id;not null;index" json:"patient_id"`
	DoctorID      uint      `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	AppointmentID *uint     `gorm:"column:appointment_id;index" json:"appointment_id,omitempty"`
	VisitDate     time.Time `gorm:"column:visit_date;not null" json:"visit_date"`
	Diagnosis     string    `gorm:"column:diagnosis;type:text" json:"diagnosis,omitempty"`
	Treatment     string    `gorm:"column:treatment;type:text" json:"treatment,omitempty"`
	Notes         string    `gorm:"column:notes;type:text" json:"notes,omitempty"`

	Patient     *Patient     `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor      *Doctor      `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
	Appointment *Appointment `gorm:"foreignKey:AppointmentID" json:"appointment,omitempty"`
}

func (MedicalRecord) TableName() string {
	return "medical_records"
}
