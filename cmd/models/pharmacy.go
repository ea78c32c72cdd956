package models

import (
	"gorm.io/gorm"
)

type Medication struct {
	gorm.Model
	Name      string  `gorm:"column:name;size:255;not null;uniqueIndex" json:"name"`
	Unit      string  `gorm:"column:unit;size:50" json:"unit"`
	Stock     int     `gorm:"column:stock;not null;default:0" json:"stock"`
	UnitPrice float64 `gorm:"column:unit_price;not null" json:"unit_price"`
}

type Prescription struct {
	gorm.Model
	MedicalRecordID uint   `gorm:"column:medical_record_id;not null;index" json:"medical_record_id"`
	DoctorID        uint   `gorm:"column:doctor_id;not null" json:"doctor_id"`
	Notes           string `gorm:"column:notes;type:text" json:"notes,omitempty"`

	MedicalRecord *MedicalRecord     `gorm:"foreignKey:MedicalRecordID" json:"medical_record,omitempty"`
	Doctor        *Doctor            `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
	Items         []PrescriptionItem `gorm:"foreignKey:PrescriptionID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

type PrescriptionItem struct {
	gorm.Model
	PrescriptionID uint   `gorm:"column:prescription_id;not null;index" json:"prescription_id"`
	MedicationID   uint   `gorm:"column:medication_id;not null" json:"medication_id"`
	Dosage         string `gorm:"column:dosage;size:255" json:"dosage"`
	Quantity       int    `gorm:"column:quantity;not null" json:"quantity"`

	Medication *Medication `gorm:"foreignKey:MedicationID" json:"medication,omitempty"`
}

type PharmacyTransaction struct {
	gorm.Model
	PrescriptionID uint    `gorm:"column:prescription_id;not null;index" json:"prescription_id"`
	ReceiptNo      string  `gorm:"column:receipt_no;size:64;not null;uniqueIndex" json:"receipt_no"`
	Total          float64 `gorm:"column:total;not null" json:"total"`
	DispensedBy    uint    `gorm:"column:dispensed_by;not null" json:"dispensed_by"`

	Prescription *Prescription `gorm:"foreignKey:PrescriptionID" json:"prescription,omitempty"`
}

func (PharmacyTransaction) TableName() string {
	return "pharmacy_transactions"
}
