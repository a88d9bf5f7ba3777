package models

import (
	"time"

	"gorm.io/gorm"
)

// AnalyticsSnapshot captures one day's platform totals. Rows are upserted by
// date so there is at most one snapshot per day.
type AnalyticsSnapshot struct {
	gorm.Model
	Date             time.Time `gorm:"column:date;not null;uniqueIndex" json:"date"`
	TotalUsers       int64     `gorm:"column:total_users" json:"total_users"`
	TotalConsultants int64     `gorm:"column:total_consultants" json:"total_consultants"`
	TotalCustomers   int64     `gorm:"column:total_customers" json:"total_customers"`
	TotalAdmins      int64     `gorm:"column:total_admins" json:"total_admins"`
	ActiveSessions   int64     `gorm:"column:active_sessions" json:"active_sessions"`
	Revenue          float64   `gorm:"column:revenue" json:"revenue"`
	Transactions     int64     `gorm:"column:transactions" json:"transactions"`
}
