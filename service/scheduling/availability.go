package scheduling

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/klinikgo/clinic-server/cmd/models"
	"github.com/klinikgo/clinic-server/pkg/apperrors"
)

// availabilityWindowDays is how far ahead the availability view looks,
// starting today inclusive.
const availabilityWindowDays = 7

const noBookingsMarker = "no bookings yet"

type DayAvailability struct {
	Date            string   `json:"date"`
	Day             string   `json:"day"`
	OccupiedStarts  []string `json:"occupied_starts"`
	AvailableStarts []string `json:"available_starts"`
	Note            string   `json:"note,omitempty"`
}

type DoctorAvailability struct {
	DoctorID        uint              `json:"doctor_id"`
	DoctorName      string            `json:"doctor_name"`
	Specialization  string            `json:"specialization"`
	ConsultationFee float64           `json:"consultation_fee"`
	Shift           string            `json:"shift"`
	Schedule        []DayAvailability `json:"schedule"`
}

// ComputeAvailability derives, for each day of the forward window, the
// occupied slot starts (non-cancelled appointments) and the remaining free
// starts of the doctor's shift. It is a pure read.
func (s *Scheduler) ComputeAvailability(doctorID uint) (*DoctorAvailability, error) {
	var doctor models.Doctor
	if err := s.db.Preload("User").First(&doctor, doctorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("doctor not found")
		}
		return nil, apperrors.Internal("loading doctor", err)
	}
	return s.availabilityFor(&doctor)
}

// ComputeAllAvailability builds the availability view for every doctor.
func (s *Scheduler) ComputeAllAvailability() ([]DoctorAvailability, error) {
	var doctors []models.Doctor
	if err := s.db.Preload("User").Find(&doctors).Error; err != nil {
		return nil, apperrors.Internal("loading doctors", err)
	}

	result := make([]DoctorAvailability, 0, len(doctors))
	for i := range doctors {
		availability, err := s.availabilityFor(&doctors[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *availability)
	}
	return result, nil
}

func (s *Scheduler) availabilityFor(doctor *models.Doctor) (*DoctorAvailability, error) {
	today := DateOf(s.clock.Now())
	shiftSlots := ShiftSlots(doctor.Shift)

	schedule := make([]DayAvailability, 0, availabilityWindowDays)
	for i := 0; i < availabilityWindowDays; i++ {
		date := today.Add(time.Duration(i) * 24 * time.Hour)

		booked, err := s.bookedAppointments(doctor.ID, date)
		if err != nil {
			return nil, err
		}

		occupied := make([]string, 0, len(booked))
		for _, appt := range booked {
			occupied = append(occupied, FormatSlot(appt.StartTime))
		}

		// a slot is free only when no booking overlaps its hour: an
		// off-grid 09:30 booking blocks both 09:00 and 10:00
		available := make([]string, 0, len(shiftSlots))
		for _, slot := range shiftSlots {
			slotStart, slotEnd, err := SlotBounds(date, slot)
			if err != nil {
				return nil, err
			}
			free := true
			for _, appt := range booked {
				if Overlap(slotStart, slotEnd, appt.StartTime, appt.EndTime) {
					free = false
					break
				}
			}
			if free {
				available = append(available, slot)
			}
		}

		day := DayAvailability{
			Date:            date.Format(dateLayout),
			Day:             date.Weekday().String(),
			OccupiedStarts:  occupied,
			AvailableStarts: available,
		}
		if len(occupied) == 0 {
			day.Note = noBookingsMarker
		}
		schedule = append(schedule, day)
	}

	name := ""
	if doctor.User != nil {
		name = doctor.User.FullName
	}
	return &DoctorAvailability{
		DoctorID:        doctor.ID,
		DoctorName:      name,
		Specialization:  doctor.Specialization,
		ConsultationFee: doctor.ConsultationFee,
		Shift:           doctor.Shift,
		Schedule:        schedule,
	}, nil
}

func (s *Scheduler) bookedAppointments(doctorID uint, date time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	if err := s.db.
		Where("doctor_id = ? AND date = ? AND status != ?", doctorID, date, models.StatusCancelled).
		Order("start_time asc").
		Find(&appts).Error; err != nil {
		return nil, apperrors.Internal("loading booked slots", err)
	}
	return appts, nil
}
