package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	RolePatient    = "patient"
	RoleDoctor     = "doctor"
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
)

const (
	ShiftMorning = "morning"
	ShiftNight   = "night"
)

// Actor is the authenticated identity and role attached to a request by the
// auth middleware. Services never trust role strings from request bodies.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsPatient() bool { return a.Role == RolePatient }
func (a Actor) IsDoctor() bool  { return a.Role == RoleDoctor }
func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }

type User struct {
	gorm.Model
	FullName              string    `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email                 string    `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash          string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role                  string    `gorm:"column:role;size:50;not null" json:"role"`
	Phone                 string    `gorm:"column:phone;size:20" json:"phone"`
	Refresh               string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`

	Doctor  *Doctor  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"doctor,omitempty"`
	Patient *Patient `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"patient,omitempty"`
}

type Doctor struct {
	gorm.Model
	UserID          uint    `gorm:"column:user_id;not null" json:"user_id"`
	Specialization  string  `gorm:"column:specialization;size:100;not null" json:"specialization"`
	LicenseNo       string  `gorm:"column:license_no;size:100;not null;uniqueIndex" json:"license_no"`
	ConsultationFee float64 `gorm:"column:consultation_fee" json:"consultation_fee"`
	Shift           string  `gorm:"column:shift;size:20;not null;default:morning" json:"shift"`

	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Appointments []Appointment `gorm:"foreignKey:DoctorID" json:"appointments,omitempty"`
}

type Patient struct {
	gorm.Model
	UserID    uint           `gorm:"column:user_id;not null" json:"user_id"`
	BirthDate time.Time      `gorm:"column:birth_date" json:"birth_date"`
	BloodType string         `gorm:"column:blood_type;size:5" json:"blood_type"`
	Address   string         `gorm:"column:address;type:text" json:"address"`
	Allergies pq.StringArray `gorm:"column:allergies;type:text[]" json:"allergies"`

	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Appointments []Appointment `gorm:"foreignKey:PatientID" json:"appointments,omitempty"`
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (Doctor) TableName() string {
	return "doctors"
}

func (Patient) TableName() string {
	return "patients"
}
