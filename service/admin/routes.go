package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	"github.com/advizo/advizo-server/service/moderation"
	notification "github.com/advizo/advizo-server/service/notifications"
	"github.com/gorilla/mux"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// AdminHandler exposes the unrestricted moderation tier plus user,
// transaction and analytics management.
type AdminHandler struct {
	db       *gorm.DB
	notifier *notification.Notifier
}

func NewAdminHandler(db *gorm.DB, notifier *notification.Notifier) *AdminHandler {
	return &AdminHandler{
		db:       db,
		notifier: notifier,
	}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return utils.RequireRole(h.db, next, models.RoleAdmin)
	}

	router.HandleFunc("/admin/consultants", admin(h.ListConsultants)).Methods("GET")
	router.HandleFunc("/admin/consultants/{id}/status", admin(h.ReviewConsultant)).Methods("PATCH")
	router.HandleFunc("/admin/consultants/{id}", admin(h.DeleteConsultant)).Methods("DELETE")
	router.HandleFunc("/admin/customers", admin(h.ListCustomers)).Methods("GET")
	router.HandleFunc("/admin/customers/{id}", admin(h.DeleteCustomer)).Methods("DELETE")
	router.HandleFunc("/admin/verifications", admin(h.ListVerifications)).Methods("GET")
	router.HandleFunc("/admin/verifications/{id}/status", admin(h.ReviewVerification)).Methods("PATCH")
	router.HandleFunc("/admin/transactions", admin(h.ListTransactions)).Methods("GET")
	router.HandleFunc("/admin/analytics", admin(h.GetAnalytics)).Methods("GET")
	router.HandleFunc("/admin/analytics/refresh", admin(h.RefreshAnalytics)).Methods("POST")
}

// ListConsultants returns every consultant, filterable by status and search
// term.
func (h *AdminHandler) ListConsultants(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	dbQuery := h.db.Model(&models.Consultant{}).
		Joins("JOIN users ON users.id = consultants.user_id")
	if status := r.URL.Query().Get("status"); status != "" {
		dbQuery = dbQuery.Where("consultants.status = ?", status)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		pattern := "%" + search + "%"
		dbQuery = dbQuery.Where("users.name ILIKE ? OR users.email ILIKE ? OR consultants.company ILIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		http.Error(w, "Error counting consultants", http.StatusInternalServerError)
		return
	}

	var consultants []models.Consultant
	if err := dbQuery.Preload("User").Preload("Verification.Documents").Preload("Certifications").
		Order("consultants.created_at DESC").
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

// ReviewConsultant sets a consultant's status with the unrestricted admin
// status set and notifies the consultant of the outcome.
func (h *AdminHandler) ReviewConsultant(w http.ResponseWriter, r *http.Request) {
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

	consultant, err := moderation.ReviewConsultant(h.db, uint(consultantID), payload.Status, payload.Reason, reviewerID, moderation.AdminStatuses)
	if err != nil {
		writeReviewError(w, err, "Consultant")
		return
	}

	h.notifyConsultantOutcome(consultant, payload.Status, payload.Reason)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(consultant)
}

// ReviewVerification sets a verification's status with the unrestricted
// admin status set.
func (h *AdminHandler) ReviewVerification(w http.ResponseWriter, r *http.Request) {
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

	verification, err := moderation.ReviewVerification(h.db, uint(verificationID), payload.Status, payload.Reason, reviewerID, moderation.AdminStatuses)
	if err != nil {
		writeReviewError(w, err, "Verification")
		return
	}

	var consultant models.Consultant
	if err := h.db.Preload("User").First(&consultant, "user_id = ?", verification.UserID).Error; err == nil {
		h.notifyConsultantOutcome(&consultant, payload.Status, payload.Reason)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verification)
}

func writeReviewError(w http.ResponseWriter, err error, subject string) {
	if errors.Is(err, moderation.ErrInvalidStatus) {
		http.Error(w, "Invalid status value", http.StatusBadRequest)
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, subject+" not found", http.StatusNotFound)
		return
	}
	log.Printf("Error reviewing %s: %v", subject, err)
	http.Error(w, "Error processing review", http.StatusInternalServerError)
}

// notifyConsultantOutcome tells the consultant about a review decision over
// every channel we have: email, push and the in-app feed.
func (h *AdminHandler) notifyConsultantOutcome(consultant *models.Consultant, status, reason string) {
	title := "Profile " + status
	message := fmt.Sprintf("Your consultant profile has been %s.", status)
	if status == models.ConsultantRejected && reason != "" {
		message = fmt.Sprintf("Your consultant profile has been rejected: %s", reason)
	}

	h.notifier.NotifyConsultant(consultant.ID, models.NotificationVerification, title, message)
	go h.notifier.PushToUser(consultant.UserID, title, message, map[string]interface{}{
		"consultant_id": consultant.ID,
		"status":        status,
	})

	if consultant.User != nil {
		email := consultant.User.Email
		go func() {
			if err := sendStatusEmail(email, title, message); err != nil {
				log.Printf("Error sending review outcome email: %v", err)
			}
		}()
	}
}

func sendStatusEmail(email, subject, body string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}

	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)
	return d.DialAndSend(m)
}

// DeleteConsultant removes a consultant profile and its user account.
func (h *AdminHandler) DeleteConsultant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	consultantID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid consultant ID", http.StatusBadRequest)
		return
	}

	var consultant models.Consultant
	if err := h.db.First(&consultant, consultantID).Error; err != nil {
		http.Error(w, "Consultant not found", http.StatusNotFound)
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", consultant.UserID).Delete(&models.Verification{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&consultant).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, consultant.UserID).Error
	})
	if err != nil {
		log.Printf("Error deleting consultant %d: %v", consultantID, err)
		http.Error(w, "Error deleting consultant", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Consultant deleted successfully",
	})
}

// ListCustomers returns customer accounts with optional search.
func (h *AdminHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	dbQuery := h.db.Model(&models.User{}).Where("role = ?", models.RoleUser)
	if search := r.URL.Query().Get("search"); search != "" {
		pattern := "%" + search + "%"
		dbQuery = dbQuery.Where("name ILIKE ? OR email ILIKE ?", pattern, pattern)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		dbQuery = dbQuery.Where("status = ?", status)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		http.Error(w, "Error counting customers", http.StatusInternalServerError)
		return
	}

	var customers []models.User
	if err := dbQuery.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&customers).Error; err != nil {
		http.Error(w, "Error retrieving customers", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"customers":   customers,
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

// DeleteCustomer removes a customer account.
func (h *AdminHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	customerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}

	result := h.db.Where("role = ?", models.RoleUser).Delete(&models.User{}, customerID)
	if result.Error != nil {
		http.Error(w, "Error deleting customer", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Customer not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Customer deleted successfully",
	})
}

// ListVerifications returns verification requests with their documents.
func (h *AdminHandler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	dbQuery := h.db.Model(&models.Verification{})
	if status := r.URL.Query().Get("status"); status != "" {
		dbQuery = dbQuery.Where("status = ?", status)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		http.Error(w, "Error counting verifications", http.StatusInternalServerError)
		return
	}

	var verifications []models.Verification
	if err := dbQuery.Preload("User").Preload("Documents").Preload("ReviewedBy").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&verifications).Error; err != nil {
		http.Error(w, "Error retrieving verifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"verifications": verifications,
		"page":          page,
		"limit":         limit,
		"total":         total,
		"total_pages":   int(math.Ceil(float64(total) / float64(limit))),
	})
}

// ListTransactions returns payment records, filterable by status.
func (h *AdminHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	dbQuery := h.db.Model(&models.Transaction{})
	if status := r.URL.Query().Get("status"); status != "" {
		dbQuery = dbQuery.Where("status = ?", status)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		http.Error(w, "Error counting transactions", http.StatusInternalServerError)
		return
	}

	var transactions []models.Transaction
	if err := dbQuery.Preload("Customer").Preload("Consultant").Preload("Session").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&transactions).Error; err != nil {
		http.Error(w, "Error retrieving transactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"page":         page,
		"limit":        limit,
		"total":        total,
		"total_pages":  int(math.Ceil(float64(total) / float64(limit))),
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
