package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	ConsultantPending   = "pending"
	ConsultantApproved  = "approved"
	ConsultantRejected  = "rejected"
	ConsultantSuspended = "suspended"
)

const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

type Consultant struct {
	gorm.Model
	UserID            uint           `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Designation       string         `gorm:"column:designation;size:255;not null" json:"designation"`
	Company           string         `gorm:"column:company;size:255;not null" json:"company"`
	Industry          string         `gorm:"column:industry;size:255;not null" json:"industry"`
	Skills            pq.StringArray `gorm:"column:skills;type:text[]" json:"skills"`
	YearsOfExperience int            `gorm:"column:years_of_experience;not null" json:"years_of_experience"`
	About             string         `gorm:"column:about;type:text" json:"about"`
	Languages         pq.StringArray `gorm:"column:languages;type:text[]" json:"languages"`
	ExpectedFee       float64        `gorm:"column:expected_fee;not null" json:"expected_fee"`
	ResumePath        string         `gorm:"column:resume_path;size:500" json:"resume_path"`
	Status            string         `gorm:"column:status;size:50;not null;default:pending" json:"status"`
	RejectionReason   string         `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`
	ReviewedByID      *uint          `gorm:"column:reviewed_by_id" json:"reviewed_by_id,omitempty"`
	ReviewDate        *time.Time     `gorm:"column:review_date" json:"review_date,omitempty"`
	Rating            float64        `gorm:"column:rating;default:0" json:"rating"`
	VerificationID    *uint          `gorm:"column:verification_id" json:"verification_id,omitempty"`

	User           *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Verification   *Verification   `gorm:"foreignKey:VerificationID" json:"verification,omitempty"`
	Certifications []Certification `gorm:"foreignKey:ConsultantID;constraint:OnDelete:CASCADE" json:"certifications"`
}

func (Consultant) TableName() string {
	return "consultants"
}

type Certification struct {
	gorm.Model
	ConsultantID uint   `gorm:"column:consultant_id;not null" json:"consultant_id"`
	Name         string `gorm:"column:name;size:255;not null" json:"name"`
	URL          string `gorm:"column:url;size:500;not null" json:"url"`
}

// Verification is the document-review record gating a consultant's approval.
// Exactly one exists per consultant user (unique user reference).
type Verification struct {
	gorm.Model
	UserID          uint       `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Status          string     `gorm:"column:status;size:50;not null;default:pending" json:"status"`
	ReviewedByID    *uint      `gorm:"column:reviewed_by_id" json:"reviewed_by_id,omitempty"`
	ReviewDate      *time.Time `gorm:"column:review_date" json:"review_date,omitempty"`
	RejectionReason string     `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`

	User       *User                  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ReviewedBy *User                  `gorm:"foreignKey:ReviewedByID" json:"reviewed_by,omitempty"`
	Documents  []VerificationDocument `gorm:"foreignKey:VerificationID;constraint:OnDelete:CASCADE" json:"documents"`
}

type VerificationDocument struct {
	gorm.Model
	VerificationID uint   `gorm:"column:verification_id;not null" json:"verification_id"`
	Name           string `gorm:"column:name;size:255;not null" json:"name"`
	URL            string `gorm:"column:url;size:500;not null" json:"url"`
}
