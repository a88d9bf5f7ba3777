package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/advizo/advizo-server/cmd/models"
	"gorm.io/gorm"
)

// UpdateDailySnapshot recomputes today's platform totals and upserts the
// snapshot row for the current date. It runs at startup and once a day from
// the server loop, and on demand from the refresh endpoint.
func UpdateDailySnapshot(db *gorm.DB) error {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	snapshot := models.AnalyticsSnapshot{Date: today}

	db.Model(&models.User{}).Count(&snapshot.TotalUsers)
	db.Model(&models.Consultant{}).Where("status = ?", models.ConsultantApproved).Count(&snapshot.TotalConsultants)
	db.Model(&models.User{}).Where("role = ?", models.RoleUser).Count(&snapshot.TotalCustomers)
	db.Model(&models.User{}).Where("role IN ?", []string{models.RoleAdmin, models.RoleSubAdmin}).Count(&snapshot.TotalAdmins)
	db.Model(&models.Session{}).Where("status IN ?", []string{models.SessionScheduled, models.SessionActive}).Count(&snapshot.ActiveSessions)
	db.Model(&models.Transaction{}).Where("status = ?", models.TransactionCompleted).Count(&snapshot.Transactions)
	db.Model(&models.Transaction{}).
		Where("status = ?", models.TransactionCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&snapshot.Revenue)

	var existing models.AnalyticsSnapshot
	err := db.Where("date = ?", today).First(&existing).Error
	if err == nil {
		snapshot.ID = existing.ID
		snapshot.CreatedAt = existing.CreatedAt
		return db.Save(&snapshot).Error
	}
	return db.Create(&snapshot).Error
}

// StartDailySnapshots refreshes the snapshot now and then once per day until
// the server stops.
func StartDailySnapshots(db *gorm.DB, stop <-chan struct{}) {
	if err := UpdateDailySnapshot(db); err != nil {
		log.Printf("Error updating analytics snapshot: %v", err)
	}

	ticker := time.NewTicker(24 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := UpdateDailySnapshot(db); err != nil {
					log.Printf("Error updating analytics snapshot: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// GetAnalytics returns the snapshot series for the requested range (7d, 30d
// or 90d, defaulting to 30d).
func (h *AdminHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	days := 30
	switch r.URL.Query().Get("range") {
	case "7d":
		days = 7
	case "30d", "":
		days = 30
	case "90d":
		days = 90
	default:
		http.Error(w, "Invalid range, expected 7d, 30d or 90d", http.StatusBadRequest)
		return
	}

	since := time.Now().AddDate(0, 0, -days)

	var snapshots []models.AnalyticsSnapshot
	if err := h.db.Where("date >= ?", since).
		Order("date ASC").
		Find(&snapshots).Error; err != nil {
		http.Error(w, "Error retrieving analytics", http.StatusInternalServerError)
		return
	}

	var latest models.AnalyticsSnapshot
	if len(snapshots) > 0 {
		latest = snapshots[len(snapshots)-1]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"range":     days,
		"snapshots": snapshots,
		"current":   latest,
	})
}

// RefreshAnalytics recomputes today's snapshot immediately.
func (h *AdminHandler) RefreshAnalytics(w http.ResponseWriter, r *http.Request) {
	if err := UpdateDailySnapshot(h.db); err != nil {
		log.Printf("Error refreshing analytics snapshot: %v", err)
		http.Error(w, "Error refreshing analytics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Analytics snapshot refreshed",
	})
}
