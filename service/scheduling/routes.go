package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/klinikgo/clinic-server/cmd/utils"
	"github.com/klinikgo/clinic-server/pkg/apperrors"
)

type Handler struct {
	scheduler *Scheduler
}

func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// RegisterRoutes wires the authenticated appointment endpoints; every
// handler here resolves the Actor placed on the context by the auth
// middleware.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/appointments/search", h.SearchAppointments).Methods("GET")
	router.HandleFunc("/appointments/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/appointments", h.BookAppointment).Methods("POST")
	router.HandleFunc("/appointments", h.ListAppointments).Methods("GET")
	router.HandleFunc("/appointments/{id}", h.GetAppointment).Methods("GET")
	router.HandleFunc("/appointments/{id}", h.UpdateAppointment).Methods("PUT")
	router.HandleFunc("/appointments/{id}/cancel", h.CancelAppointment).Methods("PATCH")
}

// RegisterPublicRoutes wires the availability views, which prospective
// patients browse before they have an account.
func (h *Handler) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/availability", h.GetAllAvailability).Methods("GET")
	router.HandleFunc("/availability/{doctorId}", h.GetAvailability).Methods("GET")
}

func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var in BookingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	appt, err := h.scheduler.Book(actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	filter := ListFilter{
		Status: r.URL.Query().Get("status"),
		Date:   r.URL.Query().Get("date"),
	}
	appts, err := h.scheduler.List(actor, filter, r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appts,
		"total":        len(appts),
	})
}

func (h *Handler) SearchAppointments(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	filter := SearchFilter{
		Date:        r.URL.Query().Get("date"),
		DoctorName:  r.URL.Query().Get("doctor_name"),
		PatientName: r.URL.Query().Get("patient_name"),
	}
	appts, err := h.scheduler.Search(actor, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appts,
		"total":        len(appts),
	})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.scheduler.GetStats(actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	appt, err := h.scheduler.Get(actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var patch UpdatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	appt, err := h.scheduler.Update(actor, id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := utils.GetActorFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	appt, err := h.scheduler.Cancel(actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) GetAllAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := h.scheduler.ComputeAllAvailability()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "doctorId")
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	availability, err := h.scheduler.ComputeAvailability(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func parseID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var status int
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindDomainRule:
		status = http.StatusUnprocessableEntity
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindAuthorization:
		status = http.StatusForbidden
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		log.Error().Err(err).Msg("scheduling request failed")
	}

	message := "Internal server error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		message = appErr.Message
	}
	writeJSON(w, status, map[string]string{"message": message})
}
