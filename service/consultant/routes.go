package consultant

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type ConsultantHandler struct {
	db *gorm.DB
}

func NewConsultantHandler(db *gorm.DB) *ConsultantHandler {
	return &ConsultantHandler{db: db}
}

func (h *ConsultantHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/consultants", h.ListConsultants).Methods("GET")
	router.HandleFunc("/consultants/profile", utils.AuthMiddleware(h.UpdateProfile)).Methods("PUT")
	router.HandleFunc("/consultants/certifications", utils.AuthMiddleware(h.AddCertification)).Methods("POST")
	router.HandleFunc("/consultants/certifications/{id}", utils.AuthMiddleware(h.DeleteCertification)).Methods("DELETE")
	router.HandleFunc("/consultants/{id}", h.GetConsultant).Methods("GET")
}

// ListConsultants is the public directory. Only approved consultants are
// listed; search matches name, designation, company and industry.
func (h *ConsultantHandler) ListConsultants(w http.ResponseWriter, r *http.Request) {
	page := 1
	limit := 10
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	dbQuery := h.db.Model(&models.Consultant{}).
		Joins("JOIN users ON users.id = consultants.user_id").
		Where("consultants.status = ?", models.ConsultantApproved)

	if search := r.URL.Query().Get("search"); search != "" {
		pattern := "%" + search + "%"
		dbQuery = dbQuery.Where(
			"users.name ILIKE ? OR consultants.designation ILIKE ? OR consultants.company ILIKE ? OR consultants.industry ILIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}
	if industry := r.URL.Query().Get("industry"); industry != "" {
		dbQuery = dbQuery.Where("consultants.industry = ?", industry)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		http.Error(w, "Error counting consultants", http.StatusInternalServerError)
		return
	}

	var consultants []models.Consultant
	if err := dbQuery.Preload("User").Preload("Certifications").
		Order("consultants.rating DESC, consultants.created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&consultants).Error; err != nil {
		http.Error(w, "Error retrieving consultants", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"consultants": consultants,
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

// GetConsultant returns one approved consultant's public profile.
func (h *ConsultantHandler) GetConsultant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	consultantID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid consultant ID", http.StatusBadRequest)
		return
	}

	var consultant models.Consultant
	if err := h.db.Preload("User").Preload("Certifications").
		Where("id = ? AND status = ?", consultantID, models.ConsultantApproved).
		First(&consultant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Error retrieving consultant", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(consultant)
}

func (h *ConsultantHandler) consultantForRequest(r *http.Request) (*models.Consultant, error) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	var consultant models.Consultant
	if err := h.db.First(&consultant, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &consultant, nil
}

// UpdateProfile lets a consultant edit their own professional profile.
// Moderation fields are untouchable from here.
func (h *ConsultantHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	consultant, err := h.consultantForRequest(r)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var updateRequest struct {
		Designation       string   `json:"designation"`
		Company           string   `json:"company"`
		Industry          string   `json:"industry"`
		Skills            []string `json:"skills"`
		YearsOfExperience *int     `json:"years_of_experience"`
		About             string   `json:"about"`
		Languages         []string `json:"languages"`
		ExpectedFee       *float64 `json:"expected_fee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if updateRequest.Designation != "" {
		consultant.Designation = updateRequest.Designation
	}
	if updateRequest.Company != "" {
		consultant.Company = updateRequest.Company
	}
	if updateRequest.Industry != "" {
		consultant.Industry = updateRequest.Industry
	}
	if updateRequest.Skills != nil {
		consultant.Skills = updateRequest.Skills
	}
	if updateRequest.YearsOfExperience != nil {
		consultant.YearsOfExperience = *updateRequest.YearsOfExperience
	}
	if updateRequest.About != "" {
		consultant.About = updateRequest.About
	}
	if updateRequest.Languages != nil {
		consultant.Languages = updateRequest.Languages
	}
	if updateRequest.ExpectedFee != nil {
		consultant.ExpectedFee = *updateRequest.ExpectedFee
	}

	if err := h.db.Save(consultant).Error; err != nil {
		http.Error(w, "Error updating profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(consultant)
}

// AddCertification uploads a certification document and attaches it to the
// consultant's profile.
func (h *ConsultantHandler) AddCertification(w http.ResponseWriter, r *http.Request) {
	consultant, err := h.consultantForRequest(r)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(utils.MaxUploadSize); err != nil {
		http.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("certification")
	if err != nil {
		http.Error(w, "Certification file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	url, err := utils.SaveUpload(file, header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	certification := models.Certification{
		ConsultantID: consultant.ID,
		Name:         name,
		URL:          url,
	}
	if err := h.db.Create(&certification).Error; err != nil {
		http.Error(w, "Error saving certification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(certification)
}

// DeleteCertification removes one of the consultant's own certifications and
// its stored file.
func (h *ConsultantHandler) DeleteCertification(w http.ResponseWriter, r *http.Request) {
	consultant, err := h.consultantForRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	certificationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid certification ID", http.StatusBadRequest)
		return
	}

	var certification models.Certification
	if err := h.db.Where("id = ? AND consultant_id = ?", certificationID, consultant.ID).
		First(&certification).Error; err != nil {
		http.Error(w, "Certification not found", http.StatusNotFound)
		return
	}

	if err := h.db.Delete(&certification).Error; err != nil {
		http.Error(w, "Error deleting certification", http.StatusInternalServerError)
		return
	}
	if err := utils.DeleteUpload(certification.URL); err != nil {
		log.Printf("Error removing certification file %s: %v", certification.URL, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Certification deleted",
	})
}
