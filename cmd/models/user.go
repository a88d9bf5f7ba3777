package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser       = "user"
	RoleConsultant = "consultant"
	RoleAdmin      = "admin"
	RoleSubAdmin   = "sub-admin"
)

const (
	UserActive    = "active"
	UserInactive  = "inactive"
	UserSuspended = "suspended"
)

type User struct {
	gorm.Model
	Name             string    `gorm:"column:name;size:255;not null" json:"name"`
	Email            string    `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash     string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role             string    `gorm:"column:role;size:50;not null;default:user" json:"role"`
	ContactNumber    string    `gorm:"column:contact_number;size:20" json:"contact_number"`
	Location         string    `gorm:"column:location;size:255" json:"location"`
	LinkedInProfile  string    `gorm:"column:linkedin_profile;size:255" json:"linkedin_profile"`
	ProfilePhotoPath string    `gorm:"column:profile_photo_path;size:500" json:"profile_photo_path"`
	Status           string    `gorm:"column:status;size:50;not null;default:active" json:"status"`
	Refresh          string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`

	Consultant *Consultant `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"consultant,omitempty"`
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
