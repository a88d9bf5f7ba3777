package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestHandler(t *testing.T) (*SessionHandler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:session_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Consultant{}, &models.Query{}, &models.QueryFile{},
		&models.Session{}, &models.SessionDocument{},
	); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return NewSessionHandler(db), db
}

func seedConsultant(t *testing.T, db *gorm.DB, email string) models.Consultant {
	t.Helper()
	user := models.User{Name: "Consultant " + email, Email: email, PasswordHash: "x", Role: models.RoleConsultant}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create consultant user: %v", err)
	}
	consultant := models.Consultant{
		UserID:      user.ID,
		Designation: "Advisor",
		Company:     "Acme",
		Industry:    "Tech",
		Status:      models.ConsultantApproved,
	}
	if err := db.Create(&consultant).Error; err != nil {
		t.Fatalf("failed to create consultant: %v", err)
	}
	return consultant
}

func seedCustomer(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Name: "Customer " + email, Email: email, PasswordHash: "x", Role: models.RoleUser}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create customer: %v", err)
	}
	return user
}

func authedRequest(t *testing.T, method, target string, userID uint, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	ctx := context.WithValue(r.Context(), utils.UserIDKey, userID)
	return r.WithContext(ctx)
}

func TestCategorizeSessions(t *testing.T) {
	now := time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC)

	sessions := []models.Session{
		{Date: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)},  // first second of today
		{Date: time.Date(2026, 8, 15, 23, 59, 0, 0, time.UTC)}, // late today
		{Date: time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC)},  // first second of tomorrow
		{Date: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)},
		{Date: time.Date(2026, 8, 14, 23, 59, 0, 0, time.UTC)}, // just before midnight
		{Date: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)},
	}

	today, upcoming, missed := CategorizeSessions(sessions, now)

	if len(today) != 2 {
		t.Fatalf("expected 2 sessions today, got %d", len(today))
	}
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 upcoming sessions, got %d", len(upcoming))
	}
	if len(missed) != 2 {
		t.Fatalf("expected 2 missed sessions, got %d", len(missed))
	}
}

func TestCreateFollowUpLinksParent(t *testing.T) {
	h, db := setupTestHandler(t)
	consultant := seedConsultant(t, db, "c1@example.com")
	customer := seedCustomer(t, db, "u1@example.com")

	parent := models.Session{
		ConsultantID: consultant.ID,
		CustomerID:   customer.ID,
		Date:         time.Now().Add(-24 * time.Hour),
		Duration:     60,
		Type:         models.SessionTypeVideo,
		Fee:          100,
		Status:       models.SessionCompleted,
	}
	if err := db.Create(&parent).Error; err != nil {
		t.Fatalf("failed to create parent session: %v", err)
	}

	r := authedRequest(t, http.MethodPost, "/sessions/follow-up", consultant.UserID, map[string]interface{}{
		"parent_session_id": parent.ID,
		"date":              time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"fee":               50,
	})
	w := httptest.NewRecorder()
	h.CreateFollowUpSession(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var child models.Session
	if err := db.Where("parent_session_id = ?", parent.ID).First(&child).Error; err != nil {
		t.Fatalf("failed to load follow-up: %v", err)
	}
	if child.ConsultantID != parent.ConsultantID || child.CustomerID != parent.CustomerID {
		t.Fatalf("expected follow-up to copy parent parties, got %+v", child)
	}
	if child.Duration != parent.Duration || child.Type != parent.Type {
		t.Fatalf("expected follow-up to inherit duration and type, got %+v", child)
	}

	var reloaded models.Session
	if err := db.Preload("FollowUpSessions").First(&reloaded, parent.ID).Error; err != nil {
		t.Fatalf("failed to reload parent: %v", err)
	}
	if len(reloaded.FollowUpSessions) != 1 || reloaded.FollowUpSessions[0].ID != child.ID {
		t.Fatal("expected parent to list the follow-up")
	}
}

func TestCreateFollowUpAcceptsCommonDateLayouts(t *testing.T) {
	h, db := setupTestHandler(t)
	consultant := seedConsultant(t, db, "c5@example.com")
	customer := seedCustomer(t, db, "u6@example.com")

	parent := models.Session{
		ConsultantID: consultant.ID,
		CustomerID:   customer.ID,
		Date:         time.Now().Add(-24 * time.Hour),
		Duration:     60,
		Type:         models.SessionTypeVideo,
		Status:       models.SessionCompleted,
	}
	if err := db.Create(&parent).Error; err != nil {
		t.Fatalf("failed to create parent session: %v", err)
	}

	// The same layouts query acceptance takes must work here.
	r := authedRequest(t, http.MethodPost, "/sessions/follow-up", consultant.UserID, map[string]interface{}{
		"parent_session_id": parent.ID,
		"date":              "2026-09-10 09:00",
	})
	w := httptest.NewRecorder()
	h.CreateFollowUpSession(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var child models.Session
	if err := db.Where("parent_session_id = ?", parent.ID).First(&child).Error; err != nil {
		t.Fatalf("failed to load follow-up: %v", err)
	}
	if child.Date.Year() != 2026 || child.Date.Month() != time.September || child.Date.Day() != 10 {
		t.Fatalf("unexpected parsed date: %v", child.Date)
	}
}

func TestFollowUpRequiresOwnedParent(t *testing.T) {
	h, db := setupTestHandler(t)
	owner := seedConsultant(t, db, "owner@example.com")
	intruder := seedConsultant(t, db, "intruder@example.com")
	customer := seedCustomer(t, db, "u2@example.com")

	parent := models.Session{
		ConsultantID: owner.ID,
		CustomerID:   customer.ID,
		Date:         time.Now(),
		Duration:     30,
		Type:         models.SessionTypeAudio,
		Status:       models.SessionCompleted,
	}
	if err := db.Create(&parent).Error; err != nil {
		t.Fatalf("failed to create parent session: %v", err)
	}

	r := authedRequest(t, http.MethodPost, "/sessions/follow-up", intruder.UserID, map[string]interface{}{
		"parent_session_id": parent.ID,
		"date":              time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	})
	w := httptest.NewRecorder()
	h.CreateFollowUpSession(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetSessionDetailsMasksForeignSessions(t *testing.T) {
	h, db := setupTestHandler(t)
	owner := seedConsultant(t, db, "owner2@example.com")
	other := seedConsultant(t, db, "other2@example.com")
	customer := seedCustomer(t, db, "u3@example.com")

	session := models.Session{
		ConsultantID: owner.ID,
		CustomerID:   customer.ID,
		Date:         time.Now(),
		Duration:     60,
		Type:         models.SessionTypeVideo,
		Status:       models.SessionScheduled,
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	r := authedRequest(t, http.MethodGet, fmt.Sprintf("/sessions/%d", session.ID), other.UserID, nil)
	r = mux.SetURLVars(r, map[string]string{"id": fmt.Sprint(session.ID)})
	w := httptest.NewRecorder()
	h.GetSessionDetails(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session, got %d", w.Code)
	}
}

func TestGetSessionDetailsMasksUnacceptedQuery(t *testing.T) {
	h, db := setupTestHandler(t)
	consultant := seedConsultant(t, db, "c3@example.com")
	customer := seedCustomer(t, db, "u4@example.com")

	query := models.Query{
		UserID:       customer.ID,
		ConsultantID: consultant.ID,
		Subject:      "s",
		Text:         "t",
		Status:       models.QueryPending,
	}
	if err := db.Create(&query).Error; err != nil {
		t.Fatalf("failed to create query: %v", err)
	}

	session := models.Session{
		ConsultantID: consultant.ID,
		CustomerID:   customer.ID,
		QueryID:      &query.ID,
		Date:         time.Now(),
		Duration:     60,
		Type:         models.SessionTypeVideo,
		Status:       models.SessionScheduled,
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	r := authedRequest(t, http.MethodGet, fmt.Sprintf("/sessions/%d", session.ID), consultant.UserID, nil)
	r = mux.SetURLVars(r, map[string]string{"id": fmt.Sprint(session.ID)})
	w := httptest.NewRecorder()
	h.GetSessionDetails(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for session with unaccepted query, got %d", w.Code)
	}
	if w.Body.String() == "" {
		t.Fatal("expected a body")
	}

	// Accepting the query makes the same session readable.
	db.Model(&query).Update("status", models.QueryAccepted)

	r = authedRequest(t, http.MethodGet, fmt.Sprintf("/sessions/%d", session.ID), consultant.UserID, nil)
	r = mux.SetURLVars(r, map[string]string{"id": fmt.Sprint(session.ID)})
	w = httptest.NewRecorder()
	h.GetSessionDetails(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after acceptance, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListConsultantSessionsBuckets(t *testing.T) {
	h, db := setupTestHandler(t)
	consultant := seedConsultant(t, db, "c4@example.com")
	customer := seedCustomer(t, db, "u5@example.com")

	now := time.Now()
	for _, date := range []time.Time{
		now.Add(-48 * time.Hour),
		now,
		now.Add(72 * time.Hour),
	} {
		session := models.Session{
			ConsultantID: consultant.ID,
			CustomerID:   customer.ID,
			Date:         date,
			Duration:     60,
			Type:         models.SessionTypeVideo,
			Status:       models.SessionScheduled,
		}
		if err := db.Create(&session).Error; err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
	}

	r := authedRequest(t, http.MethodGet, "/sessions/consultant", consultant.UserID, nil)
	w := httptest.NewRecorder()
	h.ListConsultantSessions(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Today    []models.Session `json:"today"`
		Upcoming []models.Session `json:"upcoming"`
		Missed   []models.Session `json:"missed"`
		Totals   map[string]int   `json:"totals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Today) != 1 || len(response.Upcoming) != 1 || len(response.Missed) != 1 {
		t.Fatalf("unexpected buckets: today=%d upcoming=%d missed=%d",
			len(response.Today), len(response.Upcoming), len(response.Missed))
	}
	if response.Totals["all"] != 3 {
		t.Fatalf("expected total 3, got %d", response.Totals["all"])
	}
}
