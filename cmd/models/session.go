package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SessionScheduled = "scheduled"
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

const (
	SessionTypeVideo    = "video"
	SessionTypeAudio    = "audio"
	SessionTypeInPerson = "in-person"
)

const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// Session is a scheduled engagement between one consultant and one customer,
// created either from an accepted Query or as a follow-up to another Session.
// A follow-up carries ParentSessionID; the parent's FollowUpSessions list is
// the set of rows pointing back at it, so the two sides cannot drift apart.
type Session struct {
	gorm.Model
	ConsultantID    uint      `gorm:"column:consultant_id;not null" json:"consultant_id"`
	CustomerID      uint      `gorm:"column:customer_id;not null" json:"customer_id"`
	QueryID         *uint     `gorm:"column:query_id" json:"query_id,omitempty"`
	Date            time.Time `gorm:"column:date;not null" json:"date"`
	Duration        int       `gorm:"column:duration;not null" json:"duration"`
	Type            string    `gorm:"column:type;size:50;not null" json:"type"`
	Fee             float64   `gorm:"column:fee;not null" json:"fee"`
	Status          string    `gorm:"column:status;size:50;not null;default:scheduled" json:"status"`
	PaymentStatus   string    `gorm:"column:payment_status;size:50;not null;default:pending" json:"payment_status"`
	MeetingLink     string    `gorm:"column:meeting_link;size:500" json:"meeting_link"`
	Notes           string    `gorm:"column:notes;type:text" json:"notes"`
	ParentSessionID *uint     `gorm:"column:parent_session_id" json:"parent_session_id,omitempty"`

	Consultant       *Consultant       `gorm:"foreignKey:ConsultantID" json:"consultant,omitempty"`
	Customer         *User             `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Query            *Query            `gorm:"foreignKey:QueryID" json:"query,omitempty"`
	Documents        []SessionDocument `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"documents"`
	FollowUpSessions []Session         `gorm:"foreignKey:ParentSessionID" json:"follow_up_sessions,omitempty"`
}

type SessionDocument struct {
	gorm.Model
	SessionID uint   `gorm:"column:session_id;not null" json:"session_id"`
	Name      string `gorm:"column:name;size:255;not null" json:"name"`
	URL       string `gorm:"column:url;size:500;not null" json:"url"`
}
