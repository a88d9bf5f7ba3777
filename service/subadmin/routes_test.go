package subadmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestHandler(t *testing.T) (*SubAdminHandler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:subadmin_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Consultant{}, &models.Verification{}, &models.VerificationDocument{}); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return NewSubAdminHandler(db), db
}

func seedPendingConsultant(t *testing.T, db *gorm.DB) models.Consultant {
	t.Helper()
	user := models.User{Name: "Akosua Boadi", Email: "akosua@example.com", PasswordHash: "x", Role: models.RoleConsultant}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	consultant := models.Consultant{
		UserID:      user.ID,
		Designation: "HR Consultant",
		Company:     "Peoplefirst",
		Industry:    "HR",
		Status:      models.ConsultantPending,
	}
	if err := db.Create(&consultant).Error; err != nil {
		t.Fatalf("failed to create consultant: %v", err)
	}
	verification := models.Verification{UserID: user.ID, Status: models.VerificationPending}
	if err := db.Create(&verification).Error; err != nil {
		t.Fatalf("failed to create verification: %v", err)
	}
	return consultant
}

func reviewRequest(t *testing.T, consultantID uint, reviewerID uint, status string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]string{"status": status}); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	r := httptest.NewRequest(http.MethodPatch, fmt.Sprintf("/subadmin/consultants/%d/status", consultantID), &buf)
	ctx := context.WithValue(r.Context(), utils.UserIDKey, reviewerID)
	r = r.WithContext(ctx)
	return mux.SetURLVars(r, map[string]string{"id": fmt.Sprint(consultantID)})
}

func TestSubAdminApprovesConsultant(t *testing.T) {
	h, db := setupTestHandler(t)
	consultant := seedPendingConsultant(t, db)

	w := httptest.NewRecorder()
	h.ReviewConsultant(w, reviewRequest(t, consultant.ID, 42, models.ConsultantApproved))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var approved models.Consultant
	if err := db.First(&approved, consultant.ID).Error; err != nil {
		t.Fatalf("failed to reload consultant: %v", err)
	}
	if approved.Status != models.ConsultantApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	var verification models.Verification
	if err := db.First(&verification, "user_id = ?", consultant.UserID).Error; err != nil {
		t.Fatalf("failed to load verification: %v", err)
	}
	if verification.Status != models.VerificationApproved {
		t.Fatalf("expected synced verification, got %s", verification.Status)
	}
}

func TestSubAdminCannotSuspend(t *testing.T) {
	h, db := setupTestHandler(t)
	consultant := seedPendingConsultant(t, db)

	w := httptest.NewRecorder()
	h.ReviewConsultant(w, reviewRequest(t, consultant.ID, 42, models.ConsultantSuspended))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	var unchanged models.Consultant
	if err := db.First(&unchanged, consultant.ID).Error; err != nil {
		t.Fatalf("failed to reload consultant: %v", err)
	}
	if unchanged.Status != models.ConsultantPending {
		t.Fatalf("expected status unchanged, got %s", unchanged.Status)
	}
}

func TestModerationQueueListsPendingOnly(t *testing.T) {
	h, db := setupTestHandler(t)
	pending := seedPendingConsultant(t, db)
	db.Model(&models.Consultant{}).Where("id = ?", pending.ID).Update("status", models.ConsultantPending)

	approvedUser := models.User{Name: "Done", Email: "done@example.com", PasswordHash: "x", Role: models.RoleConsultant}
	if err := db.Create(&approvedUser).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	approved := models.Consultant{
		UserID: approvedUser.ID, Designation: "d", Company: "c", Industry: "i",
		Status: models.ConsultantApproved,
	}
	if err := db.Create(&approved).Error; err != nil {
		t.Fatalf("failed to create consultant: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/subadmin/moderation-queue", nil)
	r = r.WithContext(context.WithValue(r.Context(), utils.UserIDKey, uint(42)))
	w := httptest.NewRecorder()
	h.GetModerationQueue(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var response struct {
		PendingConsultants []models.Consultant `json:"pending_consultants"`
		Totals             map[string]int      `json:"totals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.PendingConsultants) != 1 || response.PendingConsultants[0].ID != pending.ID {
		t.Fatalf("unexpected queue: %+v", response.PendingConsultants)
	}
	if response.Totals["consultants"] != 1 {
		t.Fatalf("expected 1 pending consultant, got %d", response.Totals["consultants"])
	}
}
