package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NotificationSystem       = "system"
	NotificationSession      = "session"
	NotificationPayment      = "payment"
	NotificationVerification = "verification"
	NotificationGeneral      = "general"
)

type Device struct {
	gorm.Model
	Token      string `gorm:"not null;uniqueIndex:idx_token_user" json:"token"`
	UserID     uint   `gorm:"not null;index;uniqueIndex:idx_token_user" json:"user_id"`
	DeviceType string `gorm:"type:varchar(50)" json:"device_type"`
	DeviceName string `gorm:"type:varchar(100)" json:"device_name,omitempty"`
}

// NotificationRequest represents a request to send a push notification
type NotificationRequest struct {
	Token string                 `json:"token"`
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// BroadcastRequest represents a push notification targeted at several users,
// or at every registered device when UserIDs is empty.
type BroadcastRequest struct {
	UserIDs []uint                 `json:"user_ids,omitempty"`
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type NotificationHistory struct {
	gorm.Model
	UserID uint      `gorm:"index" json:"user_id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Data   string    `gorm:"type:text" json:"data,omitempty"` // JSON string of additional data
	Status string    `gorm:"type:varchar(20)" json:"status"`  // sent, delivered, failed
	SentAt time.Time `json:"sent_at"`
}

// Notification is the in-app feed entry shown on a consultant's dashboard.
type Notification struct {
	gorm.Model
	ConsultantID uint   `gorm:"column:consultant_id;not null;index" json:"consultant_id"`
	Type         string `gorm:"column:type;size:50;not null;default:general" json:"type"`
	Title        string `gorm:"column:title;size:255" json:"title"`
	Message      string `gorm:"column:message;type:text" json:"message"`
	Read         bool   `gorm:"column:read;default:false" json:"read"`
}
