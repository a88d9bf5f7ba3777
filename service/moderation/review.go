package moderation

import (
	"errors"
	"time"

	"github.com/advizo/advizo-server/cmd/models"
	"gorm.io/gorm"
)

// ErrInvalidStatus is returned when a reviewer requests a status outside the
// set their tier is allowed to assign. No state is changed in that case.
var ErrInvalidStatus = errors.New("invalid status value")

// AdminStatuses is the full set of statuses an admin may assign.
var AdminStatuses = map[string]bool{
	models.ConsultantPending:   true,
	models.ConsultantApproved:  true,
	models.ConsultantRejected:  true,
	models.ConsultantSuspended: true,
}

// SubAdminStatuses is the restricted set a sub-admin may assign. Suspension
// is reserved for admins.
var SubAdminStatuses = map[string]bool{
	models.ConsultantPending:  true,
	models.ConsultantApproved: true,
	models.ConsultantRejected: true,
}

// ReviewVerification sets a verification's status and synchronizes the linked
// consultant profile in the same transaction. Approving a verification
// approves the consultant; rejecting it rejects the consultant with the same
// reason.
func ReviewVerification(db *gorm.DB, verificationID uint, status, reason string, reviewerID uint, allowed map[string]bool) (*models.Verification, error) {
	if !allowed[status] {
		return nil, ErrInvalidStatus
	}

	var verification models.Verification
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Documents").First(&verification, verificationID).Error; err != nil {
			return err
		}

		now := time.Now()
		verification.Status = status
		verification.ReviewedByID = &reviewerID
		verification.ReviewDate = &now
		if status == models.VerificationRejected {
			verification.RejectionReason = reason
		} else {
			verification.RejectionReason = ""
		}
		if err := tx.Save(&verification).Error; err != nil {
			return err
		}

		var consultant models.Consultant
		if err := tx.First(&consultant, "user_id = ?", verification.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		switch status {
		case models.VerificationApproved:
			consultant.Status = models.ConsultantApproved
			consultant.RejectionReason = ""
		case models.VerificationRejected:
			consultant.Status = models.ConsultantRejected
			consultant.RejectionReason = reason
		default:
			consultant.Status = models.ConsultantPending
		}
		consultant.ReviewedByID = &reviewerID
		consultant.ReviewDate = &now
		return tx.Save(&consultant).Error
	})
	if err != nil {
		return nil, err
	}
	return &verification, nil
}

// ReviewConsultant sets a consultant profile's status and synchronizes the
// linked verification in the same transaction, mirroring ReviewVerification
// from the other direction.
func ReviewConsultant(db *gorm.DB, consultantID uint, status, reason string, reviewerID uint, allowed map[string]bool) (*models.Consultant, error) {
	if !allowed[status] {
		return nil, ErrInvalidStatus
	}

	var consultant models.Consultant
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("User").First(&consultant, consultantID).Error; err != nil {
			return err
		}

		now := time.Now()
		consultant.Status = status
		consultant.ReviewedByID = &reviewerID
		consultant.ReviewDate = &now
		if status == models.ConsultantRejected {
			consultant.RejectionReason = reason
		} else {
			consultant.RejectionReason = ""
		}
		if err := tx.Save(&consultant).Error; err != nil {
			return err
		}

		var verification models.Verification
		if err := tx.First(&verification, "user_id = ?", consultant.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		switch status {
		case models.ConsultantApproved:
			verification.Status = models.VerificationApproved
			verification.RejectionReason = ""
		case models.ConsultantRejected:
			verification.Status = models.VerificationRejected
			verification.RejectionReason = reason
		case models.ConsultantPending:
			verification.Status = models.VerificationPending
		default:
			// Suspension does not change the verification outcome.
			return nil
		}
		verification.ReviewedByID = &reviewerID
		verification.ReviewDate = &now
		return tx.Save(&verification).Error
	})
	if err != nil {
		return nil, err
	}
	return &consultant, nil
}
