package moderation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/advizo/advizo-server/cmd/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:moderation_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Consultant{}, &models.Verification{}, &models.VerificationDocument{}); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return db
}

func seedConsultant(t *testing.T, db *gorm.DB) (*models.Consultant, *models.Verification) {
	t.Helper()
	user := models.User{Name: "Ama Mensah", Email: "ama@example.com", PasswordHash: "x", Role: models.RoleConsultant}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	consultant := models.Consultant{
		UserID:      user.ID,
		Designation: "Strategy Lead",
		Company:     "Northline",
		Industry:    "Finance",
		ExpectedFee: 120,
		Status:      models.ConsultantPending,
	}
	if err := db.Create(&consultant).Error; err != nil {
		t.Fatalf("failed to create consultant: %v", err)
	}
	verification := models.Verification{UserID: user.ID, Status: models.VerificationPending}
	if err := db.Create(&verification).Error; err != nil {
		t.Fatalf("failed to create verification: %v", err)
	}
	return &consultant, &verification
}

func TestReviewVerificationApprovalApprovesConsultant(t *testing.T) {
	db := setupTestDB(t)
	consultant, verification := seedConsultant(t, db)

	reviewed, err := ReviewVerification(db, verification.ID, models.VerificationApproved, "", 99, AdminStatuses)
	if err != nil {
		t.Fatalf("ReviewVerification returned error: %v", err)
	}
	if reviewed.Status != models.VerificationApproved {
		t.Fatalf("expected verification approved, got %s", reviewed.Status)
	}
	if reviewed.ReviewedByID == nil || *reviewed.ReviewedByID != 99 {
		t.Fatalf("expected reviewer 99, got %v", reviewed.ReviewedByID)
	}
	if reviewed.ReviewDate == nil {
		t.Fatal("expected review date to be set")
	}

	var synced models.Consultant
	if err := db.First(&synced, consultant.ID).Error; err != nil {
		t.Fatalf("failed to reload consultant: %v", err)
	}
	if synced.Status != models.ConsultantApproved {
		t.Fatalf("expected consultant approved, got %s", synced.Status)
	}
}

func TestReviewConsultantRejectionSyncsVerification(t *testing.T) {
	db := setupTestDB(t)
	consultant, verification := seedConsultant(t, db)

	reviewed, err := ReviewConsultant(db, consultant.ID, models.ConsultantRejected, "incomplete documents", 7, AdminStatuses)
	if err != nil {
		t.Fatalf("ReviewConsultant returned error: %v", err)
	}
	if reviewed.Status != models.ConsultantRejected {
		t.Fatalf("expected consultant rejected, got %s", reviewed.Status)
	}
	if reviewed.RejectionReason != "incomplete documents" {
		t.Fatalf("expected rejection reason on consultant, got %q", reviewed.RejectionReason)
	}

	var synced models.Verification
	if err := db.First(&synced, verification.ID).Error; err != nil {
		t.Fatalf("failed to reload verification: %v", err)
	}
	if synced.Status != models.VerificationRejected {
		t.Fatalf("expected verification rejected, got %s", synced.Status)
	}
	if synced.RejectionReason != "incomplete documents" {
		t.Fatalf("expected rejection reason on verification, got %q", synced.RejectionReason)
	}
}

func TestRestrictedTierCannotSuspend(t *testing.T) {
	db := setupTestDB(t)
	consultant, _ := seedConsultant(t, db)

	_, err := ReviewConsultant(db, consultant.ID, models.ConsultantSuspended, "", 7, SubAdminStatuses)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	var unchanged models.Consultant
	if err := db.First(&unchanged, consultant.ID).Error; err != nil {
		t.Fatalf("failed to reload consultant: %v", err)
	}
	if unchanged.Status != models.ConsultantPending {
		t.Fatalf("expected status unchanged, got %s", unchanged.Status)
	}
	if unchanged.ReviewedByID != nil {
		t.Fatal("expected no reviewer recorded after rejected request")
	}
}

func TestAdminSuspensionKeepsVerificationOutcome(t *testing.T) {
	db := setupTestDB(t)
	consultant, verification := seedConsultant(t, db)

	if _, err := ReviewConsultant(db, consultant.ID, models.ConsultantApproved, "", 7, AdminStatuses); err != nil {
		t.Fatalf("approval returned error: %v", err)
	}
	if _, err := ReviewConsultant(db, consultant.ID, models.ConsultantSuspended, "", 7, AdminStatuses); err != nil {
		t.Fatalf("suspension returned error: %v", err)
	}

	var suspended models.Consultant
	if err := db.First(&suspended, consultant.ID).Error; err != nil {
		t.Fatalf("failed to reload consultant: %v", err)
	}
	if suspended.Status != models.ConsultantSuspended {
		t.Fatalf("expected consultant suspended, got %s", suspended.Status)
	}

	var synced models.Verification
	if err := db.First(&synced, verification.ID).Error; err != nil {
		t.Fatalf("failed to reload verification: %v", err)
	}
	if synced.Status != models.VerificationApproved {
		t.Fatalf("expected verification to keep its approved outcome, got %s", synced.Status)
	}
}

func TestReviewUnknownVerification(t *testing.T) {
	db := setupTestDB(t)

	_, err := ReviewVerification(db, 12345, models.VerificationApproved, "", 1, AdminStatuses)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}
