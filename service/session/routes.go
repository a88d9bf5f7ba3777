package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type SessionHandler struct {
	db *gorm.DB
}

func NewSessionHandler(db *gorm.DB) *SessionHandler {
	return &SessionHandler{db: db}
}

func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions/consultant", utils.AuthMiddleware(h.ListConsultantSessions)).Methods("GET")
	router.HandleFunc("/sessions/follow-up", utils.AuthMiddleware(h.CreateFollowUpSession)).Methods("POST")
	router.HandleFunc("/sessions/{id}", utils.AuthMiddleware(h.GetSessionDetails)).Methods("GET")
	router.HandleFunc("/sessions/{id}/documents", utils.AuthMiddleware(h.AddSessionDocument)).Methods("POST")
	router.HandleFunc("/sessions/{id}/status", utils.AuthMiddleware(h.UpdateSessionStatus)).Methods("PATCH")
}

func (h *SessionHandler) consultantForRequest(r *http.Request) (*models.Consultant, error) {
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

// CategorizeSessions partitions sessions into today, upcoming and missed
// buckets relative to now. The buckets are derived from calendar-day
// boundaries, not stored, so a session migrates between them as time passes.
func CategorizeSessions(sessions []models.Session, now time.Time) (today, upcoming, missed []models.Session) {
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfTomorrow := startOfToday.AddDate(0, 0, 1)

	for _, s := range sessions {
		switch {
		case s.Date.Before(startOfToday):
			missed = append(missed, s)
		case s.Date.Before(startOfTomorrow):
			today = append(today, s)
		default:
			upcoming = append(upcoming, s)
		}
	}
	return today, upcoming, missed
}

// ListConsultantSessions returns the authenticated consultant's sessions
// bucketed for the dashboard.
func (h *SessionHandler) ListConsultantSessions(w http.ResponseWriter, r *http.Request) {
	consultant, err := h.consultantForRequest(r)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var sessions []models.Session
	if err := h.db.Where("consultant_id = ?", consultant.ID).
		Preload("Customer").
		Preload("Query.Files").
		Preload("FollowUpSessions").
		Order("date ASC").
		Find(&sessions).Error; err != nil {
		http.Error(w, "Error retrieving sessions", http.StatusInternalServerError)
		return
	}

	today, upcoming, missed := CategorizeSessions(sessions, time.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"today":    today,
		"upcoming": upcoming,
		"missed":   missed,
		"totals": map[string]int{
			"today":    len(today),
			"upcoming": len(upcoming),
			"missed":   len(missed),
			"all":      len(sessions),
		},
	})
}

// GetSessionDetails returns one session with its customer, query and
// documents. The session must belong to the requesting consultant and its
// linked query, if any, must have been accepted; any failed precondition
// reads as not found so callers cannot probe for other consultants'
// sessions.
func (h *SessionHandler) GetSessionDetails(w http.ResponseWriter, r *http.Request) {
	consultant, err := h.consultantForRequest(r)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	sessionID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	var session models.Session
	if err := h.db.Where("id = ? AND consultant_id = ?", sessionID, consultant.ID).
		Preload("Customer").
		Preload("Query.Files").
		Preload("Query.User").
		Preload("Documents").
		Preload("FollowUpSessions").
		First(&session).Error; err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if session.Query != nil && session.Query.Status != models.QueryAccepted {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

type followUpPayload struct {
	ParentSessionID uint    `json:"parent_session_id"`
	Date            string  `json:"date"`
	Duration        int     `json:"duration"`
	Type            string  `json:"type"`
	Fee             float64 `json:"fee"`
	MeetingLink     string  `json:"meeting_link"`
	Notes           string  `json:"notes"`
}

// CreateFollowUpSession schedules a follow-up to an existing session. The
// child copies the parent's consultant and customer and records the parent
// link; creation happens in one transaction.
func (h *SessionHandler) CreateFollowUpSession(w http.ResponseWriter, r *http.Request) {
	consultant, err := h.consultantForRequest(r)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload followUpPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if payload.ParentSessionID == 0 {
		http.Error(w, "Parent session ID is required", http.StatusBadRequest)
		return
	}

	date, err := utils.ParseDate(payload.Date)
	if err != nil {
		http.Error(w, "A valid date is required", http.StatusBadRequest)
		return
	}

	var parent models.Session
	if err := h.db.Where("id = ? AND consultant_id = ?", payload.ParentSessionID, consultant.ID).
		First(&parent).Error; err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	duration := payload.Duration
	if duration == 0 {
		duration = parent.Duration
	}
	sessionType := payload.Type
	if sessionType == "" {
		sessionType = parent.Type
	}

	var followUp models.Session
	err = h.db.Transaction(func(tx *gorm.DB) error {
		followUp = models.Session{
			ConsultantID:    parent.ConsultantID,
			CustomerID:      parent.CustomerID,
			Date:            date,
			Duration:        duration,
			Type:            sessionType,
			Fee:             payload.Fee,
			Status:          models.SessionScheduled,
			MeetingLink:     payload.MeetingLink,
			Notes:           payload.Notes,
			ParentSessionID: &parent.ID,
		}
		return tx.Create(&followUp).Error
	})
	if err != nil {
		log.Printf("Error creating follow-up for session %d: %v", parent.ID, err)
		http.Error(w, "Error creating follow-up session", http.StatusInternalServerError)
		return
	}

	if err := h.db.Preload("Customer").First(&followUp, followUp.ID).Error; err != nil {
		log.Printf("Error reloading follow-up session %d: %v", followUp.ID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(followUp)
}

// AddSessionDocument attaches an uploaded document to a session.
func (h *SessionHandler) AddSessionDocument(w http.ResponseWriter, r *http.Request) {
	consultant, err := h.consultantForRequest(r)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	sessionID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	var session models.Session
	if err := h.db.Where("id = ? AND consultant_id = ?", sessionID, consultant.ID).
		First(&session).Error; err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(utils.MaxUploadSize); err != nil {
		http.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		http.Error(w, "Document file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	url, err := utils.SaveUpload(file, header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	document := models.SessionDocument{
		SessionID: session.ID,
		Name:      header.Filename,
		URL:       url,
	}
	if err := h.db.Create(&document).Error; err != nil {
		http.Error(w, "Error saving document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(document)
}

// UpdateSessionStatus lets the consultant move a session through its
// lifecycle (active, completed, cancelled).
func (h *SessionHandler) UpdateSessionStatus(w http.ResponseWriter, r *http.Request) {
	consultant, err := h.consultantForRequest(r)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultant profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	sessionID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	var payload struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	valid := map[string]bool{
		models.SessionActive:    true,
		models.SessionCompleted: true,
		models.SessionCancelled: true,
	}
	if !valid[payload.Status] {
		http.Error(w, "Invalid status value", http.StatusBadRequest)
		return
	}

	var session models.Session
	if err := h.db.Where("id = ? AND consultant_id = ?", sessionID, consultant.ID).
		First(&session).Error; err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	session.Status = payload.Status
	if payload.Notes != "" {
		session.Notes = payload.Notes
	}
	if err := h.db.Save(&session).Error; err != nil {
		http.Error(w, "Error updating session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}
