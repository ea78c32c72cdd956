package user

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/gomail.v2"
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
	router.HandleFunc("/login", h.handleLogin).Methods("POST")
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/refresh", h.handleRefreshToken).Methods("POST")
	router.HandleFunc("/reset-password", h.handlePasswordResetRequest).Methods("POST")
	router.HandleFunc("/reset-password/{userId}/confirm", h.handlePasswordReset).Methods("POST")
	router.HandleFunc("/doctors", h.GetDoctors).Methods("GET")
	router.HandleFunc("/doctors/schedules", h.GetDoctorSchedules).Methods("GET")
	router.HandleFunc("/doctors/{id}", h.GetDoctor).Methods("GET")
	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Where("email = ?", loginRequest.Email).First(&user)
	if result.Error != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := generateJWT(user.ID, user.Role, 24*time.Hour)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := generateRefreshToken(user.ID)
	if err != nil {
		http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
		return
	}

	if err := saveRefreshToken(h.db, user.ID, refreshToken); err != nil {
		http.Error(w, "Error saving refresh token", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"message":       "Login successful",
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user_id":       user.ID,
		"role":          user.Role,
	}

	switch user.Role {
	case models.RoleDoctor:
		var doctor models.Doctor
		if err := h.db.Where("user_id = ?", user.ID).First(&doctor).Error; err == nil {
			response["doctor_id"] = doctor.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Error fetching doctor profile", http.StatusInternalServerError)
			return
		}
	case models.RolePatient:
		var patient models.Patient
		if err := h.db.Where("user_id = ?", user.ID).First(&patient).Error; err == nil {
			response["patient_id"] = patient.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Error fetching patient profile", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var registerRequest struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Phone    string `json:"phone"`
		Role     string `json:"role"`

		// doctor profile
		Specialization  string  `json:"specialization"`
		LicenseNo       string  `json:"license_no"`
		ConsultationFee float64 `json:"consultation_fee"`
		Shift           string  `json:"shift"`

		// patient profile
		BirthDate string   `json:"birth_date"`
		BloodType string   `json:"blood_type"`
		Address   string   `json:"address"`
		Allergies []string `json:"allergies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&registerRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}

	if registerRequest.FullName == "" || registerRequest.Email == "" || registerRequest.Password == "" || registerRequest.Role == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	switch registerRequest.Role {
	case models.RolePatient, models.RoleDoctor, models.RoleAdmin, models.RolePharmacist:
	default:
		http.Error(w, "Unknown role", http.StatusBadRequest)
		return
	}
	if registerRequest.Role == models.RoleDoctor {
		if registerRequest.Shift != models.ShiftMorning && registerRequest.Shift != models.ShiftNight {
			http.Error(w, "Doctor shift must be morning or night", http.StatusBadRequest)
			return
		}
		if registerRequest.LicenseNo == "" {
			http.Error(w, "Doctor license number is required", http.StatusBadRequest)
			return
		}
	}

	var existingUser models.User
	if result := h.db.Where("email = ?", registerRequest.Email).First(&existingUser); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		http.Error(w, "Email is already in use", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(registerRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	tx := h.db.Begin()

	user := models.User{
		FullName:     registerRequest.FullName,
		Email:        registerRequest.Email,
		PasswordHash: string(passwordHash),
		Phone:        registerRequest.Phone,
		Role:         registerRequest.Role,
	}
	if err := tx.Create(&user).Error; err != nil {
		tx.Rollback()
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "Email is already in use", http.StatusConflict)
			return
		}
		http.Error(w, "Error registering user", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"message": "User registered successfully",
		"user_id": user.ID,
	}

	switch registerRequest.Role {
	case models.RoleDoctor:
		doctor := models.Doctor{
			UserID:          user.ID,
			Specialization:  registerRequest.Specialization,
			LicenseNo:       registerRequest.LicenseNo,
			ConsultationFee: registerRequest.ConsultationFee,
			Shift:           registerRequest.Shift,
		}
		if err := tx.Create(&doctor).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error creating doctor profile", http.StatusInternalServerError)
			return
		}
		response["doctor_id"] = doctor.ID
	case models.RolePatient:
		patient := models.Patient{
			UserID:    user.ID,
			BloodType: registerRequest.BloodType,
			Address:   registerRequest.Address,
			Allergies: pq.StringArray(registerRequest.Allergies),
		}
		if registerRequest.BirthDate != "" {
			birthDate, err := time.ParseInLocation("2006-01-02", registerRequest.BirthDate, time.UTC)
			if err != nil {
				tx.Rollback()
				http.Error(w, "Invalid birth_date, expected YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			patient.BirthDate = birthDate
		}
		if err := tx.Create(&patient).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error creating patient profile", http.StatusInternalServerError)
			return
		}
		response["patient_id"] = patient.ID
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error committing transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// GetDoctors lists the doctor directory, optionally filtered by
// specialization and shift.
func (h *Handler) GetDoctors(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&models.Doctor{}).Preload("User")

	if specialization := r.URL.Query().Get("specialization"); specialization != "" {
		query = query.Where("specialization = ?", specialization)
	}
	if shift := r.URL.Query().Get("shift"); shift != "" {
		query = query.Where("shift = ?", shift)
	}

	var doctors []models.Doctor
	if err := query.Find(&doctors).Error; err != nil {
		http.Error(w, "Error retrieving doctors", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doctors)
}

// GetDoctorSchedules returns the trimmed-down listing the booking frontend
// renders: who works when and at what fee.
func (h *Handler) GetDoctorSchedules(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&models.Doctor{}).Preload("User")

	if specialization := r.URL.Query().Get("specialization"); specialization != "" {
		query = query.Where("specialization = ?", specialization)
	}

	var doctors []models.Doctor
	if err := query.Find(&doctors).Error; err != nil {
		http.Error(w, "Error retrieving doctor schedules", http.StatusInternalServerError)
		return
	}

	schedules := make([]map[string]interface{}, 0, len(doctors))
	for _, doctor := range doctors {
		name := ""
		if doctor.User != nil {
			name = doctor.User.FullName
		}
		schedules = append(schedules, map[string]interface{}{
			"doctor_id":        doctor.ID,
			"full_name":        name,
			"specialization":   doctor.Specialization,
			"shift":            doctor.Shift,
			"consultation_fee": doctor.ConsultationFee,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedules)
}

func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doctorID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	var doctor models.Doctor
	if err := h.db.Preload("User").First(&doctor, doctorID).Error; err != nil {
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doctor)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Preload("Doctor").Preload("Patient").First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&refreshRequest); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var user models.User
	if err := tx.Where("refresh_token = ?", refreshRequest.RefreshToken).First(&user).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	if user.RefreshTokenExpiredAt.Before(time.Now()) {
		tx.Rollback()
		http.Error(w, "Refresh token expired", http.StatusUnauthorized)
		return
	}

	newAccessToken, err := generateJWT(user.ID, user.Role, 24*time.Hour)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Error generating new token", http.StatusInternalServerError)
		return
	}

	newRefreshToken, err := generateRefreshToken(user.ID)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
		return
	}

	updateResult := tx.Model(&user).Updates(models.User{
		Refresh:               newRefreshToken,
		RefreshTokenExpiredAt: time.Now().Add(30 * 24 * time.Hour),
	})
	if updateResult.Error != nil {
		tx.Rollback()
		http.Error(w, "Error updating refresh token", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Info().Uint("user_id", user.ID).Msg("refresh token rotated")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  newAccessToken,
		"refresh_token": newRefreshToken,
	})
}

func (h *Handler) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", request.Email).First(&user).Error; err != nil {
		// Do not reveal whether the address is registered.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "If the email is registered, a reset token has been sent",
		})
		return
	}

	token, err := generateRefreshToken(user.ID)
	if err != nil {
		http.Error(w, "Error generating reset token", http.StatusInternalServerError)
		return
	}

	resetToken := models.PasswordResetToken{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	if err := h.db.Create(&resetToken).Error; err != nil {
		http.Error(w, "Error saving reset token", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := sendPasswordResetEmail(user.Email, token); err != nil {
			log.Warn().Err(err).Uint("user_id", user.ID).Msg("could not send password reset email")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "If the email is registered, a reset token has been sent",
		"user_id": fmt.Sprint(user.ID),
	})
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var request struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.NewPassword == "" {
		http.Error(w, "New password is required", http.StatusBadRequest)
		return
	}

	var resetToken models.PasswordResetToken
	if err := h.db.Where("user_id = ? AND token = ?", userID, request.Token).First(&resetToken).Error; err != nil {
		http.Error(w, "Invalid reset token", http.StatusUnauthorized)
		return
	}
	if resetToken.ExpiresAt.Before(time.Now()) {
		http.Error(w, "Reset token expired", http.StatusUnauthorized)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(request.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	tx := h.db.Begin()
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("password_hash", string(passwordHash)).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating password", http.StatusInternalServerError)
		return
	}
	if err := tx.Delete(&models.PasswordResetToken{}, resetToken.ID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error clearing reset token", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Password updated successfully",
	})
}

func sendPasswordResetEmail(email, token string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	if smtpHost == "" {
		return nil
	}
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Password Reset")
	m.SetBody("text/plain", fmt.Sprintf("Your password reset token is: %s. Ignore this email if you did not request a reset.", token))

	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)
	return d.DialAndSend(m)
}

func generateJWT(userID uint, role string, ttl time.Duration) (string, error) {
	claims := &utils.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}

func generateRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(os.Getenv("SECRET_KEY")))
	mac.Write([]byte(fmt.Sprintf("%d", userID)))
	mac.Write(b)

	signature := mac.Sum(nil)
	return fmt.Sprintf("%d_%x_%x", userID, b, signature), nil
}

func saveRefreshToken(db *gorm.DB, userID uint, refreshToken string) error {
	return db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"refresh_token":            refreshToken,
		"refresh_token_expired_at": time.Now().Add(30 * 24 * time.Hour),
	}).Error
}
