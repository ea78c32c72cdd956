package pharmacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

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
	router.HandleFunc("/medications", h.CreateMedication).Methods("POST")
	router.HandleFunc("/medications", h.ListMedications).Methods("GET")
	router.HandleFunc("/medications/{id}", h.UpdateMedication).Methods("PUT")
	router.HandleFunc("/prescriptions", h.CreatePrescription).Methods("POST")
	router.HandleFunc("/prescriptions", h.ListPrescriptions).Methods("GET")
	router.HandleFunc("/prescriptions/{id}", h.GetPrescription).Methods("GET")
	router.HandleFunc("/prescriptions/{id}/dispense", h.DispensePrescription).Methods("POST")
}

func (h *Handler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !actor.IsAdmin() && actor.Role != models.RolePharmacist {
		http.Error(w, "Only pharmacy staff can manage medications", http.StatusForbidden)
		return
	}

	var medication models.Medication
	if err := json.NewDecoder(r.Body).Decode(&medication); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if medication.Name == "" {
		http.Error(w, "Medication name is required", http.StatusBadRequest)
		return
	}

	if err := h.db.Create(&medication).Error; err != nil {
		http.Error(w, "Error creating medication", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(medication)
}

func (h *Handler) ListMedications(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&models.Medication{})
	if name := r.URL.Query().Get("name"); name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+name+"%")
	}

	var medications []models.Medication
	if err := query.Order("name asc").Find(&medications).Error; err != nil {
		http.Error(w, "Error retrieving medications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(medications)
}

func (h *Handler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !actor.IsAdmin() && actor.Role != models.RolePharmacist {
		http.Error(w, "Only pharmacy staff can manage medications", http.StatusForbidden)
		return
	}

	vars := mux.Vars(r)
	medicationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid medication ID", http.StatusBadRequest)
		return
	}

	var medication models.Medication
	if err := h.db.First(&medication, medicationID).Error; err != nil {
		http.Error(w, "Medication not found", http.StatusNotFound)
		return
	}

	var request struct {
		Name      *string  `json:"name"`
		Unit      *string  `json:"unit"`
		Stock     *int     `json:"stock"`
		UnitPrice *float64 `json:"unit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updates := map[string]interface{}{}
	if request.Name != nil {
		updates["name"] = *request.Name
	}
	if request.Unit != nil {
		updates["unit"] = *request.Unit
	}
	if request.Stock != nil {
		updates["stock"] = *request.Stock
	}
	if request.UnitPrice != nil {
		updates["unit_price"] = *request.UnitPrice
	}
	if len(updates) == 0 {
		http.Error(w, "No fields to update", http.StatusBadRequest)
		return
	}

	if err := h.db.Model(&medication).Updates(updates).Error; err != nil {
		http.Error(w, "Error updating medication", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(medication)
}

// CreatePrescription attaches a prescription to a medical record the acting
// doctor wrote.
func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !actor.IsDoctor() && !actor.IsAdmin() {
		http.Error(w, "Only doctors can write prescriptions", http.StatusForbidden)
		return
	}

	var request struct {
		MedicalRecordID uint   `json:"medical_record_id"`
		Notes           string `json:"notes"`
		Items           []struct {
			MedicationID uint   `json:"medication_id"`
			Dosage       string `json:"dosage"`
			Quantity     int    `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.MedicalRecordID == 0 || len(request.Items) == 0 {
		http.Error(w, "medical_record_id and at least one item are required", http.StatusBadRequest)
		return
	}

	var record models.MedicalRecord
	if err := h.db.First(&record, request.MedicalRecordID).Error; err != nil {
		http.Error(w, "Medical record not found", http.StatusNotFound)
		return
	}

	doctorID := record.DoctorID
	if actor.IsDoctor() {
		var doctor models.Doctor
		if err := h.db.Where("user_id = ?", actor.UserID).First(&doctor).Error; err != nil {
			http.Error(w, "Doctor profile not found", http.StatusNotFound)
			return
		}
		if record.DoctorID != doctor.ID {
			http.Error(w, "You can only prescribe against your own medical records", http.StatusForbidden)
			return
		}
		doctorID = doctor.ID
	}

	var prescription models.Prescription
	err = h.db.Transaction(func(tx *gorm.DB) error {
		prescription = models.Prescription{
			MedicalRecordID: record.ID,
			DoctorID:        doctorID,
			Notes:           request.Notes,
		}
		if err := tx.Create(&prescription).Error; err != nil {
			return err
		}
		for _, item := range request.Items {
			var medication models.Medication
			if err := tx.First(&medication, item.MedicationID).Error; err != nil {
				return fmt.Errorf("medication %d not found", item.MedicationID)
			}
			if item.Quantity <= 0 {
				return fmt.Errorf("quantity for medication %d must be positive", item.MedicationID)
			}
			line := models.PrescriptionItem{
				PrescriptionID: prescription.ID,
				MedicationID:   medication.ID,
				Dosage:         item.Dosage,
				Quantity:       item.Quantity,
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, "Error creating prescription: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	h.db.Preload("Items.Medication").Preload("MedicalRecord").First(&prescription, prescription.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(prescription)
}

func (h *Handler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Model(&models.Prescription{}).Preload("Items.Medication").Preload("MedicalRecord")

	switch {
	case actor.IsDoctor():
		var doctor models.Doctor
		if err := h.db.Where("user_id = ?", actor.UserID).First(&doctor).Error; err != nil {
			http.Error(w, "Doctor profile not found", http.StatusNotFound)
			return
		}
		query = query.Where("doctor_id = ?", doctor.ID)
	case actor.IsPatient():
		var patient models.Patient
		if err := h.db.Where("user_id = ?", actor.UserID).First(&patient).Error; err != nil {
			http.Error(w, "Patient profile not found", http.StatusNotFound)
			return
		}
		query = query.Joins("JOIN medical_records ON medical_records.id = prescriptions.medical_record_id").
			Where("medical_records.patient_id = ?", patient.ID)
	}

	var prescriptions []models.Prescription
	if err := query.Find(&prescriptions).Error; err != nil {
		http.Error(w, "Error retrieving prescriptions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prescriptions)
}

func (h *Handler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	prescriptionID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid prescription ID", http.StatusBadRequest)
		return
	}

	var prescription models.Prescription
	if err := h.db.Preload("Items.Medication").Preload("MedicalRecord.Patient.User").
		First(&prescription, prescriptionID).Error; err != nil {
		http.Error(w, "Prescription not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prescription)
}

// DispensePrescription hands the medication over the counter: stock is
// decremented and a receipt is issued, all inside one transaction so a
// stock-out rolls everything back.
func (h *Handler) DispensePrescription(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !actor.IsAdmin() && actor.Role != models.RolePharmacist {
		http.Error(w, "Only pharmacy staff can dispense prescriptions", http.StatusForbidden)
		return
	}

	vars := mux.Vars(r)
	prescriptionID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid prescription ID", http.StatusBadRequest)
		return
	}

	var transaction models.PharmacyTransaction
	err = h.db.Transaction(func(tx *gorm.DB) error {
		var prescription models.Prescription
		if err := tx.Preload("Items.Medication").First(&prescription, prescriptionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("prescription not found")
			}
			return err
		}

		var existing models.PharmacyTransaction
		if err := tx.Where("prescription_id = ?", prescription.ID).First(&existing).Error; err == nil {
			return errors.New("prescription has already been dispensed")
		}

		var total float64
		for _, item := range prescription.Items {
			if item.Medication == nil {
				return fmt.Errorf("medication %d not found", item.MedicationID)
			}
			if item.Medication.Stock < item.Quantity {
				return fmt.Errorf("insufficient stock for %s", item.Medication.Name)
			}
			if err := tx.Model(&models.Medication{}).Where("id = ?", item.MedicationID).
				Update("stock", gorm.Expr("stock - ?", item.Quantity)).Error; err != nil {
				return err
			}
			total += float64(item.Quantity) * item.Medication.UnitPrice
		}

		transaction = models.PharmacyTransaction{
			PrescriptionID: prescription.ID,
			ReceiptNo:      uuid.NewString(),
			Total:          total,
			DispensedBy:    actor.UserID,
		}
		return tx.Create(&transaction).Error
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transaction)
}
