package subadmin

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	"github.com/advizo/advizo-server/service/moderation"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// SubAdminHandler is the restricted moderation tier. Sub-admins review
// consultants and verifications but can never suspend, manage accounts or
// touch payments.
type SubAdminHandler struct {
	db *gorm.DB
}

func NewSubAdminHandler(db *gorm.DB) *SubAdminHandler {
	return &SubAdminHandler{db: db}
}

func (h *SubAdminHandler) RegisterRoutes(router *mux.Router) {
	subadmin := func(next http.HandlerFunc) http.HandlerFunc {
		return utils.RequireRole(h.db, next, models.RoleSubAdmin)
	}

	router.HandleFunc("/subadmin/consultants", subadmin(h.ListConsultants)).Methods("GET")
	router.HandleFunc("/subadmin/consultants/{id}/status", subadmin(h.ReviewConsultant)).Methods("PATCH")
	router.HandleFunc("/subadmin/verifications", subadmin(h.ListVerifications)).Methods("GET")
	router.HandleFunc("/subadmin/verifications/{id}/status", subadmin(h.ReviewVerification)).Methods("PATCH")
	router.HandleFunc("/subadmin/moderation-queue", subadmin(h.GetModerationQueue)).Methods("GET")
	router.HandleFunc("/subadmin/analytics", subadmin(h.GetAnalytics)).Methods("GET")
}

// ListConsultants returns consultants for review, filterable by status.
func (h *SubAdminHandler) ListConsultants(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	dbQuery := h.db.Model(&models.Consultant{})
	if status := r.URL.Query().Get("status"); status != "" {
		dbQuery = dbQuery.Where("status = ?", status)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		http.Error(w, "Error counting consultants", http.StatusInternalServerError)
		return
	}

	var consultants []models.Consultant
	if err := dbQuery.Preload("User").Preload("Verification.Documents").Preload("Certifications").
		Order("created_at ASC").
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

type reviewPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// ReviewConsultant applies a review with the restricted status set. A status
// outside it, suspension included, is rejected without changing anything.
func (h *SubAdminHandler) ReviewConsultant(w http.ResponseWriter, r *http.Request) {
	reviewerID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	consultantID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid consultant ID", http.StatusBadRequest)
		return
	}

	var payload reviewPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	consultant, err := moderation.ReviewConsultant(h.db, uint(consultantID), payload.Status, payload.Reason, reviewerID, moderation.SubAdminStatuses)
	if err != nil {
		writeReviewError(w, err, "Consultant")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(consultant)
}

// ReviewVerification applies a verification review with the restricted
// status set.
func (h *SubAdminHandler) ReviewVerification(w http.ResponseWriter, r *http.Request) {
	reviewerID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	verificationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid verification ID", http.StatusBadRequest)
		return
	}

	var payload reviewPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	verification, err := moderation.ReviewVerification(h.db, uint(verificationID), payload.Status, payload.Reason, reviewerID, moderation.SubAdminStatuses)
	if err != nil {
		writeReviewError(w, err, "Verification")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verification)
}

func writeReviewError(w http.ResponseWriter, err error, subject string) {
	switch {
	case errors.Is(err, moderation.ErrInvalidStatus):
		http.Error(w, "Invalid status value", http.StatusBadRequest)
	case errors.Is(err, gorm.ErrRecordNotFound):
		http.Error(w, subject+" not found", http.StatusNotFound)
	default:
		http.Error(w, "Error processing review", http.StatusInternalServerError)
	}
}

// GetModerationQueue returns everything still waiting for a decision, oldest
// first.
func (h *SubAdminHandler) GetModerationQueue(w http.ResponseWriter, r *http.Request) {
	var pendingConsultants []models.Consultant
	if err := h.db.Where("status = ?", models.ConsultantPending).
		Preload("User").Preload("Verification.Documents").
		Order("created_at ASC").
		Find(&pendingConsultants).Error; err != nil {
		http.Error(w, "Error retrieving moderation queue", http.StatusInternalServerError)
		return
	}

	var pendingVerifications []models.Verification
	if err := h.db.Where("status = ?", models.VerificationPending).
		Preload("User").Preload("Documents").
		Order("created_at ASC").
		Find(&pendingVerifications).Error; err != nil {
		http.Error(w, "Error retrieving moderation queue", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pending_consultants":   pendingConsultants,
		"pending_verifications": pendingVerifications,
		"totals": map[string]int{
			"consultants":   len(pendingConsultants),
			"verifications": len(pendingVerifications),
		},
	})
}

// GetAnalytics returns the moderation counters a sub-admin dashboard shows.
// Platform revenue is admin-only.
func (h *SubAdminHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int64{}
	for _, status := range []string{models.ConsultantPending, models.ConsultantApproved, models.ConsultantRejected} {
		var count int64
		if err := h.db.Model(&models.Consultant{}).Where("status = ?", status).Count(&count).Error; err != nil {
			http.Error(w, "Error retrieving analytics", http.StatusInternalServerError)
			return
		}
		counts[status] = count
	}

	var pendingVerifications int64
	h.db.Model(&models.Verification{}).Where("status = ?", models.VerificationPending).Count(&pendingVerifications)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"consultants":           counts,
		"pending_verifications": pendingVerifications,
	})
}

func parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = 10
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
	return page, limit
}
