package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/klinikgo/clinic-server/cmd/models"
	"github.com/klinikgo/clinic-server/pkg/apperrors"
)

// Clock supplies the current time to every past-time and auto-cancel check.
// Tests freeze it; production wires SystemClock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Scheduler owns the appointment lifecycle: booking, updates, cancellation,
// conflict detection and the role-scoped query surface. All writes that
// depend on a conflict check run inside a single database transaction; a
// unique partial index on (doctor_id, date, start_time) backstops races the
// check itself cannot see.
type Scheduler struct {
	db    *gorm.DB
	clock Clock
}

func NewScheduler(db *gorm.DB, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{db: db, clock: clock}
}

type BookingInput struct {
	DoctorID  uint   `json:"doctor_id"`
	PatientID uint   `json:"patient_id,omitempty"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Complaint string `json:"complaint,omitempty"`
}

type UpdatePatch struct {
	DoctorID  *uint   `json:"doctor_id,omitempty"`
	Date      *string `json:"date,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	Status    *string `json:"status,omitempty"`
	Complaint *string `json:"complaint,omitempty"`
}

type ListFilter struct {
	Status string
	Date   string
}

type SearchFilter struct {
	Date        string
	DoctorName  string
	PatientName string
}

type Stats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// Book creates a scheduled appointment for the acting patient, or for an
// explicit patient when an admin books on their behalf. Validation order:
// doctor exists, start is inside the doctor's shift, start is not in the
// past, the slot is free, the patient profile exists.
func (s *Scheduler) Book(actor models.Actor, in BookingInput) (*models.Appointment, error) {
	if !actor.IsPatient() && !actor.IsAdmin() {
		return nil, apperrors.Authorization("only patients can book appointments")
	}
	if in.DoctorID == 0 || in.Date == "" || in.StartTime == "" {
		return nil, apperrors.Validation("doctor_id, date and start_time are required")
	}

	date, err := ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	startAt, endAt, err := SlotBounds(date, in.StartTime)
	if err != nil {
		return nil, err
	}

	var created models.Appointment
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var doctor models.Doctor
		if err := tx.First(&doctor, in.DoctorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("doctor not found")
			}
			return apperrors.Internal("loading doctor", err)
		}

		if !HourInShift(doctor.Shift, startAt.Hour()) {
			return shiftError(doctor.Shift)
		}
		if startAt.Before(s.clock.Now().UTC()) {
			return apperrors.Validation("appointment time is in the past")
		}

		conflict, err := hasConflict(tx, doctor.ID, date, startAt, endAt, 0)
		if err != nil {
			return err
		}
		if conflict {
			return apperrors.Conflict("this time slot collides with an existing appointment")
		}

		patient, err := s.bookingPatient(tx, actor, in.PatientID)
		if err != nil {
			return err
		}

		created = models.Appointment{
			PatientID: patient.ID,
			DoctorID:  doctor.ID,
			Date:      date,
			StartTime: startAt,
			EndTime:   endAt,
			Status:    models.StatusScheduled,
			Complaint: in.Complaint,
		}
		if err := tx.Create(&created).Error; err != nil {
			if isUniqueViolation(err) {
				return apperrors.Conflict("this time slot collides with an existing appointment")
			}
			return apperrors.Internal("creating appointment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	appt, err := s.loadAppointment(s.db, created.ID)
	if err != nil {
		return nil, err
	}
	s.notifyBooked(appt)
	return appt, nil
}

// bookingPatient resolves which patient the appointment belongs to. Patients
// always book for themselves; admins must name a patient.
func (s *Scheduler) bookingPatient(tx *gorm.DB, actor models.Actor, patientID uint) (*models.Patient, error) {
	if actor.IsPatient() {
		return patientProfile(tx, actor.UserID)
	}
	if patientID == 0 {
		return nil, apperrors.Validation("patient_id is required when booking on a patient's behalf")
	}
	var patient models.Patient
	if err := tx.First(&patient, patientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("patient not found")
		}
		return nil, apperrors.Internal("loading patient", err)
	}
	return &patient, nil
}

// Get returns one appointment, reconciling a stale scheduled status first.
func (s *Scheduler) Get(actor models.Actor, id uint) (*models.Appointment, error) {
	appt, err := s.loadAppointment(s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(actor, appt); err != nil {
		return nil, err
	}
	if err := s.reconcilePast(s.db, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// List returns appointments visible to the actor: patients and doctors see
// their own, every other role sees all. Sort tokens "earliest"/"asc"/
// "terdekat" and "latest"/"desc"/"terjauh" select the (date, start) order.
func (s *Scheduler) List(actor models.Actor, filter ListFilter, sort string) ([]models.Appointment, error) {
	query, err := s.scopedQuery(actor)
	if err != nil {
		return nil, err
	}

	if filter.Status != "" {
		query = query.Where("appointments.status = ?", filter.Status)
	}
	if filter.Date != "" {
		date, err := ParseDate(filter.Date)
		if err != nil {
			return nil, err
		}
		query = query.Where("appointments.date = ?", date)
	}

	order := "asc"
	if normalizeSort(sort) == sortDescending {
		order = "desc"
	}

	var appts []models.Appointment
	if err := query.
		Order("appointments.date " + order + ", appointments.start_time " + order).
		Find(&appts).Error; err != nil {
		return nil, apperrors.Internal("listing appointments", err)
	}
	if err := s.reconcilePastAll(s.db, appts); err != nil {
		return nil, err
	}
	return appts, nil
}

// Search filters by exact date and partial doctor or patient name, on top of
// the same role scoping List applies.
func (s *Scheduler) Search(actor models.Actor, filter SearchFilter) ([]models.Appointment, error) {
	query, err := s.scopedQuery(actor)
	if err != nil {
		return nil, err
	}

	if filter.Date != "" {
		date, err := ParseDate(filter.Date)
		if err != nil {
			return nil, err
		}
		query = query.Where("appointments.date = ?", date)
	}
	if filter.DoctorName != "" {
		query = query.
			Joins("JOIN doctors ON doctors.id = appointments.doctor_id").
			Joins("JOIN users AS doctor_users ON doctor_users.id = doctors.user_id").
			Where("LOWER(doctor_users.full_name) LIKE ?", "%"+strings.ToLower(filter.DoctorName)+"%")
	}
	if filter.PatientName != "" {
		query = query.
			Joins("JOIN patients ON patients.id = appointments.patient_id").
			Joins("JOIN users AS patient_users ON patient_users.id = patients.user_id").
			Where("LOWER(patient_users.full_name) LIKE ?", "%"+strings.ToLower(filter.PatientName)+"%")
	}

	var appts []models.Appointment
	if err := query.
		Order("appointments.date asc, appointments.start_time asc").
		Find(&appts).Error; err != nil {
		return nil, apperrors.Internal("searching appointments", err)
	}
	if err := s.reconcilePastAll(s.db, appts); err != nil {
		return nil, err
	}
	return appts, nil
}

// GetStats counts appointments visible to the actor. Active excludes
// completed and cancelled.
func (s *Scheduler) GetStats(actor models.Actor) (*Stats, error) {
	query, err := s.scopedQuery(actor)
	if err != nil {
		return nil, err
	}

	var stats Stats
	if err := query.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, apperrors.Internal("counting appointments", err)
	}
	if err := query.Session(&gorm.Session{}).
		Where("appointments.status NOT IN ?", []string{models.StatusCompleted, models.StatusCancelled}).
		Count(&stats.Active).Error; err != nil {
		return nil, apperrors.Internal("counting active appointments", err)
	}
	return &stats, nil
}

// Update applies a role-gated patch. Patients may move or re-describe their
// own scheduled appointment (never its status, other than cancelling);
// doctors may complete their own appointment or hand it to a colleague on
// the same shift. Any change to the slot or the doctor re-runs shift,
// past-time and conflict validation, excluding the appointment itself.
func (s *Scheduler) Update(actor models.Actor, id uint, patch UpdatePatch) (*models.Appointment, error) {
	if patch.DoctorID == nil && patch.Date == nil && patch.StartTime == nil &&
		patch.Status == nil && patch.Complaint == nil {
		return nil, apperrors.Validation("no fields to update")
	}
	if err := authorizePatch(actor, patch); err != nil {
		return nil, err
	}
	if patch.Status != nil && *patch.Status == models.StatusCancelled {
		// a cancellation stands alone; silently dropping the other fields
		// would hide a caller bug
		if patch.DoctorID != nil || patch.Date != nil || patch.StartTime != nil || patch.Complaint != nil {
			return nil, apperrors.Validation("a cancellation cannot be combined with other changes")
		}
		return s.Cancel(actor, id)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		appt, err := s.loadAppointment(tx, id)
		if err != nil {
			return err
		}
		if err := s.authorizeOwnership(tx, actor, appt); err != nil {
			return err
		}

		switch appt.Status {
		case models.StatusCancelled:
			return apperrors.DomainRule("a cancelled appointment can no longer be modified")
		case models.StatusCompleted:
			if !actor.IsAdmin() {
				return apperrors.DomainRule("a completed appointment can no longer be modified")
			}
		}

		updates := map[string]interface{}{}

		if patch.Status != nil && *patch.Status == models.StatusCompleted {
			if !actor.IsDoctor() {
				return apperrors.Authorization("only the assigned doctor can complete an appointment")
			}
			ok, err := recordExists(tx, appt)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.DomainRule("a medical record is required before completing the appointment")
			}
			updates["status"] = models.StatusCompleted
		}

		doctorID := appt.DoctorID
		date := appt.Date
		startAt := appt.StartTime
		endAt := appt.EndTime
		moved := false

		if patch.DoctorID != nil && *patch.DoctorID != appt.DoctorID {
			newDoctor, err := s.reassignTarget(tx, actor, appt, *patch.DoctorID)
			if err != nil {
				return err
			}
			doctorID = newDoctor.ID
			updates["doctor_id"] = doctorID
			moved = true
		}
		if patch.Date != nil {
			date, err = ParseDate(*patch.Date)
			if err != nil {
				return err
			}
			moved = true
		}
		if patch.StartTime != nil || patch.Date != nil {
			start := FormatSlot(appt.StartTime)
			if patch.StartTime != nil {
				start = *patch.StartTime
			}
			startAt, endAt, err = SlotBounds(date, start)
			if err != nil {
				return err
			}
			moved = true
		}

		if moved {
			var doctor models.Doctor
			if err := tx.First(&doctor, doctorID).Error; err != nil {
				return apperrors.Internal("loading doctor", err)
			}
			if !HourInShift(doctor.Shift, startAt.Hour()) {
				return shiftError(doctor.Shift)
			}
			if startAt.Before(s.clock.Now().UTC()) {
				return apperrors.Validation("appointment time is in the past")
			}
			conflict, err := hasConflict(tx, doctorID, date, startAt, endAt, appt.ID)
			if err != nil {
				return err
			}
			if conflict {
				return apperrors.Conflict("this time slot collides with an existing appointment")
			}
			updates["date"] = date
			updates["start_time"] = startAt
			updates["end_time"] = endAt
		}

		if patch.Complaint != nil {
			updates["complaint"] = *patch.Complaint
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Appointment{}).Where("id = ?", appt.ID).
			Updates(updates).Error; err != nil {
			if isUniqueViolation(err) {
				return apperrors.Conflict("this time slot collides with an existing appointment")
			}
			return apperrors.Internal("updating appointment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadAppointment(s.db, id)
}

// reassignTarget validates a change of doctor. When the assigned doctor hands
// over the appointment the replacement must work an identical shift; patients
// and admins may move to any doctor, subject to the usual slot re-validation.
func (s *Scheduler) reassignTarget(tx *gorm.DB, actor models.Actor, appt *models.Appointment, newDoctorID uint) (*models.Doctor, error) {
	var newDoctor models.Doctor
	if err := tx.First(&newDoctor, newDoctorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("doctor not found")
		}
		return nil, apperrors.Internal("loading doctor", err)
	}
	if actor.IsDoctor() {
		var current models.Doctor
		if err := tx.First(&current, appt.DoctorID).Error; err != nil {
			return nil, apperrors.Internal("loading doctor", err)
		}
		if newDoctor.Shift != current.Shift {
			return nil, apperrors.DomainRule("the replacement doctor must work the same shift")
		}
	}
	return &newDoctor, nil
}

// Cancel transitions a scheduled appointment to cancelled. Only the owning
// patient or an admin may cancel; re-cancelling is a no-op success.
func (s *Scheduler) Cancel(actor models.Actor, id uint) (*models.Appointment, error) {
	appt, err := s.loadAppointment(s.db, id)
	if err != nil {
		return nil, err
	}
	if actor.IsDoctor() {
		return nil, apperrors.Authorization("doctors cannot cancel appointments")
	}
	if err := s.authorizeOwnership(s.db, actor, appt); err != nil {
		return nil, err
	}
	switch appt.Status {
	case models.StatusCancelled:
		return appt, nil
	case models.StatusCompleted:
		return nil, apperrors.DomainRule("a completed appointment cannot be cancelled")
	}
	if err := s.db.Model(appt).Update("status", models.StatusCancelled).Error; err != nil {
		return nil, apperrors.Internal("cancelling appointment", err)
	}
	return appt, nil
}

// CheckConflict exposes the overlap scan for callers outside the booking
// path. excludeID is ignored when zero.
func (s *Scheduler) CheckConflict(doctorID uint, dateStr, start, end string, excludeID uint) (bool, error) {
	date, err := ParseDate(dateStr)
	if err != nil {
		return false, err
	}
	startAt, _, err := SlotBounds(date, start)
	if err != nil {
		return false, err
	}
	endAt, _, err := SlotBounds(date, end)
	if err != nil {
		return false, err
	}
	if !endAt.After(startAt) {
		endAt = endAt.Add(24 * time.Hour)
	}
	return hasConflict(s.db, doctorID, date, startAt, endAt, excludeID)
}

// hasConflict scans all non-cancelled appointments of the doctor on the date
// and applies the half-open overlap predicate. It runs on the caller's
// transaction handle so check and write share one consistency boundary.
func hasConflict(tx *gorm.DB, doctorID uint, date time.Time, startAt, endAt time.Time, excludeID uint) (bool, error) {
	query := tx.Model(&models.Appointment{}).
		Where("doctor_id = ? AND date = ? AND status != ?", doctorID, date, models.StatusCancelled)
	if excludeID != 0 {
		query = query.Where("id != ?", excludeID)
	}

	var existing []models.Appointment
	if err := query.Find(&existing).Error; err != nil {
		return false, apperrors.Internal("scanning for conflicts", err)
	}
	for _, other := range existing {
		if Overlap(startAt, endAt, other.StartTime, other.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

// recordExists checks the completion precondition: a medical record tied to
// this appointment, consistent with its doctor and patient.
func recordExists(tx *gorm.DB, appt *models.Appointment) (bool, error) {
	var count int64
	if err := tx.Model(&models.MedicalRecord{}).
		Where("appointment_id = ? AND doctor_id = ? AND patient_id = ?",
			appt.ID, appt.DoctorID, appt.PatientID).
		Count(&count).Error; err != nil {
		return false, apperrors.Internal("checking medical record", err)
	}
	return count > 0, nil
}

// reconcilePast is the read-triggered auto-cancel: a scheduled appointment
// whose date is strictly before today flips to cancelled and is persisted
// before it is returned. There is no background sweep; reads are the sweep.
func (s *Scheduler) reconcilePast(db *gorm.DB, appt *models.Appointment) error {
	if appt.Status != models.StatusScheduled {
		return nil
	}
	today := DateOf(s.clock.Now())
	if !appt.Date.Before(today) {
		return nil
	}
	if err := db.Model(&models.Appointment{}).Where("id = ?", appt.ID).
		Update("status", models.StatusCancelled).Error; err != nil {
		return apperrors.Internal("auto-cancelling stale appointment", err)
	}
	appt.Status = models.StatusCancelled
	return nil
}

func (s *Scheduler) reconcilePastAll(db *gorm.DB, appts []models.Appointment) error {
	for i := range appts {
		if err := s.reconcilePast(db, &appts[i]); err != nil {
			return err
		}
	}
	return nil
}

// scopedQuery narrows the appointment table to what the actor may see.
func (s *Scheduler) scopedQuery(actor models.Actor) (*gorm.DB, error) {
	query := s.db.Model(&models.Appointment{}).
		Preload("Patient.User").Preload("Doctor.User")

	switch {
	case actor.IsPatient():
		patient, err := patientProfile(s.db, actor.UserID)
		if err != nil {
			return nil, err
		}
		query = query.Where("appointments.patient_id = ?", patient.ID)
	case actor.IsDoctor():
		doctor, err := doctorProfile(s.db, actor.UserID)
		if err != nil {
			return nil, err
		}
		query = query.Where("appointments.doctor_id = ?", doctor.ID)
	}
	return query, nil
}

func (s *Scheduler) authorizeView(actor models.Actor, appt *models.Appointment) error {
	switch {
	case actor.IsPatient():
		patient, err := patientProfile(s.db, actor.UserID)
		if err != nil {
			return err
		}
		if appt.PatientID != patient.ID {
			return apperrors.Authorization("you do not have access to this appointment")
		}
	case actor.IsDoctor():
		doctor, err := doctorProfile(s.db, actor.UserID)
		if err != nil {
			return err
		}
		if appt.DoctorID != doctor.ID {
			return apperrors.Authorization("you do not have access to this appointment")
		}
	}
	return nil
}

// authorizeOwnership enforces mutation ownership: the owning patient or the
// assigned doctor; admins pass.
func (s *Scheduler) authorizeOwnership(db *gorm.DB, actor models.Actor, appt *models.Appointment) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsPatient():
		patient, err := patientProfile(db, actor.UserID)
		if err != nil {
			return err
		}
		if appt.PatientID != patient.ID {
			return apperrors.Authorization("you do not have access to this appointment")
		}
		return nil
	case actor.IsDoctor():
		doctor, err := doctorProfile(db, actor.UserID)
		if err != nil {
			return err
		}
		if appt.DoctorID != doctor.ID {
			return apperrors.Authorization("you can only modify your own appointments")
		}
		return nil
	default:
		return apperrors.Authorization("this role cannot modify appointments")
	}
}

// authorizePatch is the closed, per-role field allow-list.
func authorizePatch(actor models.Actor, patch UpdatePatch) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RolePatient:
		if patch.Status != nil && *patch.Status != models.StatusCancelled {
			return apperrors.Authorization("patients may only cancel appointments")
		}
		return nil
	case models.RoleDoctor:
		if patch.Date != nil || patch.StartTime != nil || patch.Complaint != nil {
			return apperrors.Authorization("doctors may only complete or reassign appointments")
		}
		if patch.Status != nil && *patch.Status != models.StatusCompleted {
			return apperrors.Authorization("doctors may only mark appointments as completed")
		}
		return nil
	default:
		return apperrors.Authorization("this role cannot modify appointments")
	}
}

func (s *Scheduler) loadAppointment(db *gorm.DB, id uint) (*models.Appointment, error) {
	var appt models.Appointment
	if err := db.Preload("Patient.User").Preload("Doctor.User").First(&appt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("appointment not found")
		}
		return nil, apperrors.Internal("loading appointment", err)
	}
	return &appt, nil
}

func patientProfile(db *gorm.DB, userID uint) (*models.Patient, error) {
	var patient models.Patient
	if err := db.Where("user_id = ?", userID).First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("patient profile not found")
		}
		return nil, apperrors.Internal("loading patient profile", err)
	}
	return &patient, nil
}

func doctorProfile(db *gorm.DB, userID uint) (*models.Doctor, error) {
	var doctor models.Doctor
	if err := db.Where("user_id = ?", userID).First(&doctor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("doctor profile not found")
		}
		return nil, apperrors.Internal("loading doctor profile", err)
	}
	return &doctor, nil
}

const (
	sortAscending  = "asc"
	sortDescending = "desc"
)

// normalizeSort folds the bilingual sort tokens into asc/desc. Unknown or
// empty tokens default to ascending.
func normalizeSort(token string) string {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "latest", "desc", "terjauh":
		return sortDescending
	default:
		return sortAscending
	}
}

func shiftError(shift string) error {
	if shift == models.ShiftNight {
		return apperrors.Validation("this doctor is only available on the night shift (19:00 - 07:00)")
	}
	return apperrors.Validation("this doctor is only available on the morning shift (07:00 - 18:00)")
}

func isUniqueViolation(err error) bool {
	return err != nil &&
		(strings.Contains(err.Error(), "duplicate key") ||
			strings.Contains(err.Error(), "UNIQUE constraint"))
}

// notifyBooked emails the patient a confirmation. Delivery is best effort
// and never blocks or fails the booking.
func (s *Scheduler) notifyBooked(appt *models.Appointment) {
	if appt.Patient == nil || appt.Patient.User == nil {
		return
	}
	email := appt.Patient.User.Email
	go func() {
		if err := sendBookingEmail(email, appt); err != nil {
			log.Warn().Err(err).Uint("appointment_id", appt.ID).
				Msg("could not send booking confirmation email")
		}
	}()
}

func bookingSummary(appt *models.Appointment) string {
	return fmt.Sprintf("Your appointment on %s at %s has been scheduled.",
		appt.Date.Format("2006-01-02"), FormatSlot(appt.StartTime))
}
