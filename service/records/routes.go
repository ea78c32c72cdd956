package records

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/klinikgo/clinic-server/cmd/models"
	"github.com/klinikgo/clinic-server/cmd/utils"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/medical-records", h.CreateRecord).Methods("POST")
	router.HandleFunc("/medical-records", h.ListRecords).Methods("GET")
	router.HandleFunc("/medical-records/{id}", h.GetRecord).Methods("GET")
	router.HandleFunc("/medical-records/{id}", h.UpdateRecord).Methods("PUT")
	router.HandleFunc("/medical-records/{id}", h.DeleteRecord).Methods("DELETE")
}

// CreateRecord writes the outcome of a visit. Doctors write their own
// records; admins may write on any doctor's behalf. When the record is tied
// to an appointment it must agree with that appointment's doctor and
// patient, because completing the appointment later depends on it.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !actor.IsDoctor() && !actor.IsAdmin() {
		http.Error(w, "Only doctors can write medical records", http.StatusForbidden)
		return
	}

	var request struct {
		PatientID     uint   `json:"patient_id"`
		DoctorID      uint   `json:"doctor_id"`
		AppointmentID *uint  `json:"appointment_id"`
		VisitDate     string `json:"visit_date"`
		Diagnosis     string `json:"diagnosis"`
		Treatment     string `json:"treatment"`
		Notes         string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.PatientID == 0 || request.VisitDate == "" {
		http.Error(w, "patient_id and visit_date are required", http.StatusBadRequest)
		return
	}

	visitDate, err := time.ParseInLocation("2006-01-02", request.VisitDate, time.UTC)
	if err != nil {
		http.Error(w, "Invalid visit_date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	doctorID := request.DoctorID
	if actor.IsDoctor() {
		var doctor models.Doctor
		if err := h.db.Where("user_id = ?", actor.UserID).First(&doctor).Error; err != nil {
			http.Error(w, "Doctor profile not found", http.StatusNotFound)
			return
		}
		doctorID = doctor.ID
	}
	if doctorID == 0 {
		http.Error(w, "doctor_id is required", http.StatusBadRequest)
		return
	}

	if request.AppointmentID != nil {
		var appt models.Appointment
		if err := h.db.First(&appt, *request.AppointmentID).Error; err != nil {
			http.Error(w, "Appointment not found", http.StatusNotFound)
			return
		}
		if appt.DoctorID != doctorID || appt.PatientID != request.PatientID {
			http.Error(w, "Record does not match the appointment's doctor and patient", http.StatusUnprocessableEntity)
			return
		}
	}

	record := models.MedicalRecord{
		RecordNo:      uuid.NewString(),
		PatientID:     request.PatientID,
		DoctorID:      doctorID,
		AppointmentID: request.AppointmentID,
		VisitDate:     visitDate,
		Diagnosis:     request.Diagnosis,
		Treatment:     request.Treatment,
		Notes:         request.Notes,
	}
	if err := h.db.Create(&record).Error; err != nil {
		http.Error(w, "Error creating medical record", http.StatusInternalServerError)
		return
	}

	h.db.Preload("Patient.User").Preload("Doctor.User").First(&record, record.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

// ListRecords is role-scoped the same way appointments are: patients see
// their own history, doctors the records they wrote, everyone else all.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Model(&models.MedicalRecord{}).Preload("Patient.User").Preload("Doctor.User")

	switch {
	case actor.IsPatient():
		var patient models.Patient
		if err := h.db.Where("user_id = ?", actor.UserID).First(&patient).Error; err != nil {
			http.Error(w, "Patient profile not found", http.StatusNotFound)
			return
		}
		query = query.Where("patient_id = ?", patient.ID)
	case actor.IsDoctor():
		var doctor models.Doctor
		if err := h.db.Where("user_id = ?", actor.UserID).First(&doctor).Error; err != nil {
			http.Error(w, "Doctor profile not found", http.StatusNotFound)
			return
		}
		query = query.Where("doctor_id = ?", doctor.ID)
	}

	if patientID := r.URL.Query().Get("patient_id"); patientID != "" {
		query = query.Where("patient_id = ?", patientID)
	}

	var recordList []models.MedicalRecord
	if err := query.Order("visit_date desc").Find(&recordList).Error; err != nil {
		http.Error(w, "Error retrieving medical records", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recordList)
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	record, status := h.loadAuthorized(actor, r)
	if record == nil {
		http.Error(w, statusMessage(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !actor.IsDoctor() && !actor.IsAdmin() {
		http.Error(w, "Only doctors can modify medical records", http.StatusForbidden)
		return
	}

	record, status := h.loadAuthorized(actor, r)
	if record == nil {
		http.Error(w, statusMessage(status), status)
		return
	}

	var request struct {
		Diagnosis *string `json:"diagnosis"`
		Treatment *string `json:"treatment"`
		Notes     *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updates := map[string]interface{}{}
	if request.Diagnosis != nil {
		updates["diagnosis"] = *request.Diagnosis
	}
	if request.Treatment != nil {
		updates["treatment"] = *request.Treatment
	}
	if request.Notes != nil {
		updates["notes"] = *request.Notes
	}
	if len(updates) == 0 {
		http.Error(w, "No fields to update", http.StatusBadRequest)
		return
	}

	if err := h.db.Model(record).Updates(updates).Error; err != nil {
		http.Error(w, "Error updating medical record", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !actor.IsAdmin() {
		http.Error(w, "Only admins can delete medical records", http.StatusForbidden)
		return
	}

	vars := mux.Vars(r)
	recordID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return
	}

	if err := h.db.Delete(&models.MedicalRecord{}, recordID).Error; err != nil {
		http.Error(w, "Error deleting medical record", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Medical record deleted"})
}

// loadAuthorized fetches the record in the path and checks the actor may
// see it. It returns nil plus an HTTP status on failure.
func (h *Handler) loadAuthorized(actor models.Actor, r *http.Request) (*models.MedicalRecord, int) {
	vars := mux.Vars(r)
	recordID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		return nil, http.StatusBadRequest
	}

	var record models.MedicalRecord
	if err := h.db.Preload("Patient.User").Preload("Doctor.User").First(&record, recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, http.StatusNotFound
		}
		return nil, http.StatusInternalServerError
	}

	switch {
	case actor.IsPatient():
		var patient models.Patient
		if err := h.db.Where("user_id = ?", actor.UserID).First(&patient).Error; err != nil {
			return nil, http.StatusNotFound
		}
		if record.PatientID != patient.ID {
			return nil, http.StatusForbidden
		}
	case actor.IsDoctor():
		var doctor models.Doctor
		if err := h.db.Where("user_id = ?", actor.UserID).First(&doctor).Error; err != nil {
			return nil, http.StatusNotFound
		}
		if record.DoctorID != doctor.ID {
			return nil, http.StatusForbidden
		}
	}
	return &record, http.StatusOK
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Invalid record ID"
	case http.StatusNotFound:
		return "Medical record not found"
	case http.StatusForbidden:
		return "You do not have access to this medical record"
	default:
		return "Internal server error"
	}
}
