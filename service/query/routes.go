package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	notification "github.com/advizo/advizo-server/service/notifications"
	"github.com/advizo/advizo-server/service/ws"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// QueryHandler handles the query lifecycle: submission, the consultant's
// decision, and the listings both sides read.
type QueryHandler struct {
	db       *gorm.DB
	hub      *ws.Hub
	notifier *notification.Notifier
}

func NewQueryHandler(db *gorm.DB, hub *ws.Hub, notifier *notification.Notifier) *QueryHandler {
	return &QueryHandler{
		db:       db,
		hub:      hub,
		notifier: notifier,
	}
}

func (h *QueryHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/queries", utils.AuthMiddleware(h.SubmitQuery)).Methods("POST")
	router.HandleFunc("/queries", utils.AuthMiddleware(h.ListConsultantQueries)).Methods("GET")
	router.HandleFunc("/queries/mine", utils.AuthMiddleware(h.ListCustomerQueries)).Methods("GET")
	router.HandleFunc("/queries/{id}", utils.AuthMiddleware(h.GetQuery)).Methods("GET")
	router.HandleFunc("/queries/{id}/status", utils.AuthMiddleware(h.DecideQuery)).Methods("PATCH")
}

type submitQueryPayload struct {
	ConsultantID    uint   `json:"consultant_id"`
	Subject         string `json:"subject"`
	Text            string `json:"text"`
	SessionDateTime string `json:"session_date_time"`
	Duration        string `json:"duration"`
	SessionLink     string `json:"session_link"`
	Files           []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"files"`
}

// SubmitQuery creates a new query addressed to a consultant. The fee is
// copied from the consultant's current rate at this moment and stays fixed
// for the life of the query.
func (h *QueryHandler) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload submitQueryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if payload.ConsultantID == 0 || payload.Subject == "" || payload.Text == "" {
		http.Error(w, "Consultant, subject and text are required", http.StatusBadRequest)
		return
	}

	var consultant models.Consultant
	if err := h.db.First(&consultant, payload.ConsultantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Error retrieving consultant", http.StatusInternalServerError)
		return
	}

	if consultant.Status != models.ConsultantApproved {
		http.Error(w, "Consultant is not available for queries", http.StatusBadRequest)
		return
	}

	query := models.Query{
		UserID:          userID,
		ConsultantID:    consultant.ID,
		Subject:         payload.Subject,
		Text:            payload.Text,
		SessionDateTime: payload.SessionDateTime,
		Duration:        payload.Duration,
		SessionLink:     payload.SessionLink,
		Fee:             consultant.ExpectedFee,
		Status:          models.QueryPending,
	}
	for _, f := range payload.Files {
		query.Files = append(query.Files, models.QueryFile{Name: f.Name, URL: f.URL})
	}

	payment := models.Transaction{
		CustomerID:   userID,
		ConsultantID: consultant.UserID,
		Amount:       consultant.ExpectedFee,
		Reference:    uuid.New().String(),
		Status:       models.TransactionPending,
	}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&query).Error; err != nil {
			return err
		}
		payment.QueryID = &query.ID
		return tx.Create(&payment).Error
	})
	if err != nil {
		log.Printf("Error creating query: %v", err)
		http.Error(w, "Error creating query", http.StatusInternalServerError)
		return
	}

	if err := h.db.Preload("User").Preload("Files").First(&query, query.ID).Error; err != nil {
		log.Printf("Error reloading query %d: %v", query.ID, err)
	}

	h.hub.EmitToConsultant(consultant.ID, "new-query", query)
	go h.notifier.PushToUser(consultant.UserID, "New query received", payload.Subject, map[string]interface{}{
		"query_id": query.ID,
	})
	h.notifier.NotifyConsultant(consultant.ID, models.NotificationSession, "New query", payload.Subject)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"query_id":          query.ID,
		"payment_required":  true,
		"amount":            query.Fee,
		"payment_reference": payment.Reference,
	})
}

type decideQueryPayload struct {
	Status      string `json:"status"`
	Date        string `json:"date"`
	Duration    int    `json:"duration"`
	Type        string `json:"type"`
	MeetingLink string `json:"meeting_link"`
}

// validTransition reports whether a query may move from one status to
// another. Terminal statuses never change.
func validTransition(from, to string) bool {
	switch from {
	case models.QueryPending:
		return to == models.QueryAccepted || to == models.QueryRejected
	case models.QueryAccepted:
		return to == models.QueryCompleted
	default:
		return false
	}
}

// DecideQuery lets the owning consultant accept, reject or complete a query.
// Acceptance creates the scheduled session and links it to the query in a
// single transaction, so no accepted query can exist without its session.
func (h *QueryHandler) DecideQuery(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	queryID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid query ID", http.StatusBadRequest)
		return
	}

	var payload decideQueryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var query models.Query
	if err := h.db.First(&query, queryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Query not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Error retrieving query", http.StatusInternalServerError)
		return
	}

	var consultant models.Consultant
	if err := h.db.First(&consultant, query.ConsultantID).Error; err != nil {
		http.Error(w, "Error retrieving consultant", http.StatusInternalServerError)
		return
	}
	if consultant.UserID != userID {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	if !validTransition(query.Status, payload.Status) {
		http.Error(w, fmt.Sprintf("Cannot change query status from %s to %s", query.Status, payload.Status), http.StatusBadRequest)
		return
	}

	switch payload.Status {
	case models.QueryAccepted:
		sessionDate, err := parseSessionDate(payload.Date, query.SessionDateTime)
		if err != nil {
			http.Error(w, "A valid session date is required to accept a query", http.StatusBadRequest)
			return
		}

		duration := payload.Duration
		if duration == 0 {
			if parsed, err := strconv.Atoi(query.Duration); err == nil {
				duration = parsed
			} else {
				duration = 60
			}
		}
		sessionType := payload.Type
		if sessionType == "" {
			sessionType = models.SessionTypeVideo
		}

		err = h.db.Transaction(func(tx *gorm.DB) error {
			session := models.Session{
				ConsultantID: query.ConsultantID,
				CustomerID:   query.UserID,
				QueryID:      &query.ID,
				Date:         sessionDate,
				Duration:     duration,
				Type:         sessionType,
				Fee:          query.Fee,
				Status:       models.SessionScheduled,
				MeetingLink:  payload.MeetingLink,
			}
			if err := tx.Create(&session).Error; err != nil {
				return err
			}

			query.Status = models.QueryAccepted
			query.SessionID = &session.ID
			query.SessionDateTime = sessionDate.Format(time.RFC3339)
			if err := tx.Save(&query).Error; err != nil {
				return err
			}

			// Settle the payment this query opened at submission. Other
			// pending payments for the same pair stay untouched.
			return tx.Model(&models.Transaction{}).
				Where("query_id = ? AND status = ?", query.ID, models.TransactionPending).
				Updates(map[string]interface{}{
					"session_id": session.ID,
					"status":     models.TransactionCompleted,
				}).Error
		})
		if err != nil {
			log.Printf("Error accepting query %d: %v", query.ID, err)
			http.Error(w, "Error accepting query", http.StatusInternalServerError)
			return
		}

	default:
		query.Status = payload.Status
		if err := h.db.Save(&query).Error; err != nil {
			log.Printf("Error updating query %d: %v", query.ID, err)
			http.Error(w, "Error updating query", http.StatusInternalServerError)
			return
		}
	}

	if err := h.db.Preload("User").Preload("Files").Preload("Session").First(&query, query.ID).Error; err != nil {
		log.Printf("Error reloading query %d: %v", query.ID, err)
	}

	h.hub.EmitToConsultant(query.ConsultantID, "update-query", query)
	h.hub.SendToUser(query.UserID, "update-query", query)
	go h.notifier.PushToUser(query.UserID, "Query "+query.Status, query.Subject, map[string]interface{}{
		"query_id": query.ID,
		"status":   query.Status,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(query)
}

func parseSessionDate(requested, fallback string) (time.Time, error) {
	for _, candidate := range []string{requested, fallback} {
		if candidate == "" {
			continue
		}
		if t, err := utils.ParseDate(candidate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no parseable session date")
}

// ListConsultantQueries returns the authenticated consultant's queries,
// newest first, optionally filtered by status.
func (h *QueryHandler) ListConsultantQueries(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var consultant models.Consultant
	if err := h.db.First(&consultant, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Error retrieving consultant", http.StatusInternalServerError)
		return
	}

	page, limit := parsePagination(r)
	dbQuery := h.db.Model(&models.Query{}).Where("consultant_id = ?", consultant.ID)
	if status := r.URL.Query().Get("status"); status != "" {
		dbQuery = dbQuery.Where("status = ?", status)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		http.Error(w, "Error counting queries", http.StatusInternalServerError)
		return
	}

	var queries []models.Query
	if err := dbQuery.Preload("User").Preload("Files").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&queries).Error; err != nil {
		http.Error(w, "Error retrieving queries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"queries":     queries,
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

// ListCustomerQueries returns the queries the authenticated customer has
// submitted.
func (h *QueryHandler) ListCustomerQueries(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, limit := parsePagination(r)
	dbQuery := h.db.Model(&models.Query{}).Where("user_id = ?", userID)
	if status := r.URL.Query().Get("status"); status != "" {
		dbQuery = dbQuery.Where("status = ?", status)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		http.Error(w, "Error counting queries", http.StatusInternalServerError)
		return
	}

	var queries []models.Query
	if err := dbQuery.Preload("Consultant.User").Preload("Files").Preload("Session").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&queries).Error; err != nil {
		http.Error(w, "Error retrieving queries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"queries":     queries,
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

// GetQuery returns one query with its files and session. Only the customer
// who submitted it or the consultant it is addressed to may read it.
func (h *QueryHandler) GetQuery(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	queryID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid query ID", http.StatusBadRequest)
		return
	}

	var query models.Query
	if err := h.db.Preload("User").Preload("Consultant.User").Preload("Files").Preload("Session").
		First(&query, queryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Query not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Error retrieving query", http.StatusInternalServerError)
		return
	}

	isCustomer := query.UserID == userID
	isConsultant := query.Consultant != nil && query.Consultant.UserID == userID
	if !isCustomer && !isConsultant {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(query)
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
