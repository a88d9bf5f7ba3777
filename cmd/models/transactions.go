package models

import "gorm.io/gorm"

const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
	TransactionRefunded  = "refunded"
)

// Transaction is the payment record for one query. QueryID ties it to the
// query that opened it, so settlement touches exactly that payment even when
// the same pair has several queries in flight.
type Transaction struct {
	gorm.Model
	CustomerID   uint    `gorm:"column:customer_id;not null" json:"customer_id"`
	ConsultantID uint    `gorm:"column:consultant_id;not null" json:"consultant_id"`
	QueryID      *uint   `gorm:"column:query_id;index" json:"query_id,omitempty"`
	SessionID    *uint   `gorm:"column:session_id" json:"session_id,omitempty"`
	Amount       float64 `gorm:"column:amount;not null" json:"amount"`
	Method       string  `gorm:"column:method;size:50" json:"method"`
	Reference    string  `gorm:"column:reference;size:100;uniqueIndex" json:"reference"`
	Status       string  `gorm:"column:status;size:50;not null;default:pending" json:"status"`

	Customer   *User    `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Consultant *User    `gorm:"foreignKey:ConsultantID" json:"consultant,omitempty"`
	Query      *Query   `gorm:"foreignKey:QueryID" json:"query,omitempty"`
	Session    *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}
