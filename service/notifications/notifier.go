package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/advizo/advizo-server/cmd/models"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gorm.io/gorm"
)

// Notifier sends Expo push notifications to a user's registered devices and
// records the outcome in the notification history. It is shared by the HTTP
// handler and by services that notify as a side effect (query submission,
// verification reviews).
type Notifier struct {
	db         *gorm.DB
	expoClient *expo.PushClient
}

func NewNotifier(db *gorm.DB) *Notifier {
	return &Notifier{
		db:         db,
		expoClient: expo.NewPushClient(nil),
	}
}

// PushToUser sends a push notification to every device the user has
// registered. Failures are logged, never surfaced: a dead push channel must
// not fail the operation that triggered it.
func (n *Notifier) PushToUser(userID uint, title, body string, data map[string]interface{}) {
	var devices []models.Device
	if err := n.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		log.Printf("Error retrieving devices for user %d: %v", userID, err)
		return
	}
	if len(devices) == 0 {
		return
	}

	var tokens []string
	for _, device := range devices {
		tokens = append(tokens, device.Token)
	}

	success, err := n.sendExpo(tokens, title, body, data)
	status := "sent"
	if !success || err != nil {
		status = "failed"
		log.Printf("Error sending push to user %d: %v", userID, err)
	}

	dataJSON, _ := json.Marshal(data)
	history := models.NotificationHistory{
		UserID: userID,
		Title:  title,
		Body:   body,
		Data:   string(dataJSON),
		Status: status,
		SentAt: time.Now(),
	}
	if dbErr := n.db.Create(&history).Error; dbErr != nil {
		log.Printf("Error creating notification history: %v", dbErr)
	}
}

// NotifyConsultant writes an entry to a consultant's in-app feed.
func (n *Notifier) NotifyConsultant(consultantID uint, notifType, title, message string) {
	entry := models.Notification{
		ConsultantID: consultantID,
		Type:         notifType,
		Title:        title,
		Message:      message,
	}
	if err := n.db.Create(&entry).Error; err != nil {
		log.Printf("Error creating notification for consultant %d: %v", consultantID, err)
	}
}

// sendExpo pushes a message to the given tokens through the Expo SDK.
func (n *Notifier) sendExpo(tokenStrings []string, title, body string, data map[string]interface{}) (bool, error) {
	var validTokens []expo.ExponentPushToken
	var invalidTokens []string

	for _, tokenString := range tokenStrings {
		pushToken, err := expo.NewExponentPushToken(tokenString)
		if err != nil {
			log.Printf("Invalid push token format %s: %v", tokenString, err)
			invalidTokens = append(invalidTokens, tokenString)
			continue
		}
		validTokens = append(validTokens, pushToken)
	}

	if len(validTokens) == 0 {
		return false, fmt.Errorf("no valid push tokens found")
	}

	var stringData map[string]string
	if data != nil {
		stringData = make(map[string]string)
		for key, value := range data {
			stringData[key] = fmt.Sprintf("%v", value)
		}
	}

	pushMessage := &expo.PushMessage{
		To:       validTokens,
		Body:     body,
		Title:    title,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     stringData,
	}

	response, err := n.expoClient.Publish(pushMessage)
	if err != nil {
		return false, fmt.Errorf("failed to publish notification: %v", err)
	}

	if validationErr := response.ValidateResponse(); validationErr != nil {
		log.Printf("Push notification validation error: %v", validationErr)
		n.cleanupInvalidTokens(invalidTokens)
		return false, fmt.Errorf("notification validation failed: %v", validationErr)
	}

	if len(invalidTokens) > 0 {
		n.cleanupInvalidTokens(invalidTokens)
	}

	return true, nil
}

func (n *Notifier) cleanupInvalidTokens(tokens []string) {
	for _, token := range tokens {
		if err := n.db.Where("token = ?", token).Delete(&models.Device{}).Error; err != nil {
			log.Printf("Error cleaning up invalid token %s: %v", token, err)
		} else {
			log.Printf("Cleaned up invalid token: %s", token)
		}
	}
}
