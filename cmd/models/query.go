package models

import "gorm.io/gorm"

const (
	QueryPending   = "pending"
	QueryAccepted  = "accepted"
	QueryRejected  = "rejected"
	QueryCompleted = "completed"
)

// Query is a customer's request for a consultant's paid time, prior to
// scheduling. The fee is copied from the consultant's rate when the query is
// created and never recomputed afterwards.
type Query struct {
	gorm.Model
	UserID          uint    `gorm:"column:user_id;not null" json:"user_id"`
	ConsultantID    uint    `gorm:"column:consultant_id;not null" json:"consultant_id"`
	Subject         string  `gorm:"column:subject;size:255;not null" json:"subject"`
	Text            string  `gorm:"column:text;type:text;not null" json:"text"`
	SessionDateTime string  `gorm:"column:session_date_time;size:100" json:"session_date_time"`
	Duration        string  `gorm:"column:duration;size:50" json:"duration"`
	SessionLink     string  `gorm:"column:session_link;size:500" json:"session_link"`
	Fee             float64 `gorm:"column:fee;not null" json:"fee"`
	Status          string  `gorm:"column:status;size:50;not null;default:pending" json:"status"`
	SessionID       *uint   `gorm:"column:session_id" json:"session_id,omitempty"`

	User       *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Consultant *Consultant `gorm:"foreignKey:ConsultantID" json:"consultant,omitempty"`
	Session    *Session    `gorm:"foreignKey:SessionID" json:"session,omitempty"`
	Files      []QueryFile `gorm:"foreignKey:QueryID;constraint:OnDelete:CASCADE" json:"files"`
}

func (Query) TableName() string {
	return "queries"
}

type QueryFile struct {
	gorm.Model
	QueryID uint   `gorm:"column:query_id;not null" json:"query_id"`
	Name    string `gorm:"column:name;size:255;not null" json:"name"`
	URL     string `gorm:"column:url;size:500;not null" json:"url"`
}
