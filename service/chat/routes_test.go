package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	notification "github.com/advizo/advizo-server/service/notifications"
	"github.com/advizo/advizo-server/service/ws"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestHandler(t *testing.T) (*ChatHandler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:chat_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Chat{}, &models.ChatMessage{},
		&models.Device{}, &models.NotificationHistory{},
	); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return NewChatHandler(db, ws.NewHub(), notification.NewNotifier(db)), db
}

func seedUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Name: "User " + email, Email: email, PasswordHash: "x", Role: models.RoleUser}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func authedRequest(t *testing.T, method, target string, userID uint) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(r.Context(), utils.UserIDKey, userID)
	return r.WithContext(ctx)
}

func TestSaveMessageCreatesNormalizedChat(t *testing.T) {
	h, db := setupTestHandler(t)
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")

	// Send in the order that needs normalizing.
	message, err := h.saveMessage(bob.ID, alice.ID, "hello")
	if err != nil {
		t.Fatalf("saveMessage returned error: %v", err)
	}

	var chat models.Chat
	if err := db.First(&chat, message.ChatID).Error; err != nil {
		t.Fatalf("failed to load chat: %v", err)
	}
	wantA, wantB := models.NormalizeChatPair(bob.ID, alice.ID)
	if chat.ParticipantAID != wantA || chat.ParticipantBID != wantB {
		t.Fatalf("expected normalized pair (%d, %d), got (%d, %d)",
			wantA, wantB, chat.ParticipantAID, chat.ParticipantBID)
	}
	if chat.LastMessageText != "hello" {
		t.Fatalf("expected last message cache, got %q", chat.LastMessageText)
	}

	// The reply lands in the same chat regardless of direction.
	reply, err := h.saveMessage(alice.ID, bob.ID, "hi back")
	if err != nil {
		t.Fatalf("saveMessage returned error: %v", err)
	}
	if reply.ChatID != chat.ID {
		t.Fatalf("expected reply in chat %d, got %d", chat.ID, reply.ChatID)
	}

	var chatCount int64
	db.Model(&models.Chat{}).Count(&chatCount)
	if chatCount != 1 {
		t.Fatalf("expected one chat for the pair, got %d", chatCount)
	}

	if err := db.First(&chat, chat.ID).Error; err != nil {
		t.Fatalf("failed to reload chat: %v", err)
	}
	if chat.LastMessageText != "hi back" {
		t.Fatalf("expected refreshed last message, got %q", chat.LastMessageText)
	}
}

func TestGetUserChatsUnreadCount(t *testing.T) {
	h, db := setupTestHandler(t)
	alice := seedUser(t, db, "alice2@example.com")
	bob := seedUser(t, db, "bob2@example.com")

	if _, err := h.saveMessage(bob.ID, alice.ID, "one"); err != nil {
		t.Fatalf("saveMessage returned error: %v", err)
	}
	if _, err := h.saveMessage(bob.ID, alice.ID, "two"); err != nil {
		t.Fatalf("saveMessage returned error: %v", err)
	}

	r := authedRequest(t, http.MethodGet, "/chats", alice.ID)
	w := httptest.NewRecorder()
	h.GetUserChats(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Chats []struct {
			PeerID      uint  `json:"peer_id"`
			UnreadCount int64 `json:"unread_count"`
		} `json:"chats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(response.Chats))
	}
	if response.Chats[0].PeerID != bob.ID {
		t.Fatalf("expected peer %d, got %d", bob.ID, response.Chats[0].PeerID)
	}
	if response.Chats[0].UnreadCount != 2 {
		t.Fatalf("expected 2 unread, got %d", response.Chats[0].UnreadCount)
	}
}

func TestMarkChatReadClearsUnread(t *testing.T) {
	h, db := setupTestHandler(t)
	alice := seedUser(t, db, "alice3@example.com")
	bob := seedUser(t, db, "bob3@example.com")

	message, err := h.saveMessage(bob.ID, alice.ID, "ping")
	if err != nil {
		t.Fatalf("saveMessage returned error: %v", err)
	}

	r := authedRequest(t, http.MethodPatch, fmt.Sprintf("/chats/%d/read", message.ChatID), alice.ID)
	r = mux.SetURLVars(r, map[string]string{"id": fmt.Sprint(message.ChatID)})
	w := httptest.NewRecorder()
	h.MarkChatRead(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var unread int64
	db.Model(&models.ChatMessage{}).
		Where("chat_id = ? AND receiver_id = ? AND read = ?", message.ChatID, alice.ID, false).
		Count(&unread)
	if unread != 0 {
		t.Fatalf("expected 0 unread after marking, got %d", unread)
	}
}

func wsTestToken(t *testing.T, userID uint) string {
	t.Helper()
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(userID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func dialWS(t *testing.T, serverURL string, userID uint) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws?token=" + wsTestToken(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	return conn
}

func expectEvent(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var event ws.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if event.Event != want {
		t.Fatalf("expected %s event, got %s", want, event.Event)
	}
}

func TestReconnectDoesNotRebroadcastPresence(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	h, db := setupTestHandler(t)
	alice := seedUser(t, db, "alice5@example.com")
	watcher := seedUser(t, db, "watcher5@example.com")

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	watcherConn := dialWS(t, server.URL, watcher.ID)
	defer watcherConn.Close()
	expectEvent(t, watcherConn, "userOnline")

	aliceConn := dialWS(t, server.URL, alice.ID)
	defer aliceConn.Close()
	expectEvent(t, watcherConn, "userOnline")

	// A second connection for the same user replaces the first without a
	// presence change.
	reconn := dialWS(t, server.URL, alice.ID)
	defer reconn.Close()

	watcherConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := watcherConn.ReadMessage(); err == nil {
		t.Fatalf("expected no presence event on reconnect, got %s", raw)
	}
}

func TestChatHistoryScopedToParticipants(t *testing.T) {
	h, db := setupTestHandler(t)
	alice := seedUser(t, db, "alice4@example.com")
	bob := seedUser(t, db, "bob4@example.com")
	eve := seedUser(t, db, "eve4@example.com")

	message, err := h.saveMessage(alice.ID, bob.ID, "secret")
	if err != nil {
		t.Fatalf("saveMessage returned error: %v", err)
	}

	r := authedRequest(t, http.MethodGet, fmt.Sprintf("/chats/%d/messages", message.ChatID), eve.ID)
	r = mux.SetURLVars(r, map[string]string{"id": fmt.Sprint(message.ChatID)})
	w := httptest.NewRecorder()
	h.GetChatHistory(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-participant, got %d", w.Code)
	}

	r = authedRequest(t, http.MethodGet, fmt.Sprintf("/chats/%d/messages", message.ChatID), bob.ID)
	r = mux.SetURLVars(r, map[string]string{"id": fmt.Sprint(message.ChatID)})
	w = httptest.NewRecorder()
	h.GetChatHistory(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for participant, got %d", w.Code)
	}

	var response struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Messages) != 1 || response.Messages[0].Text != "secret" {
		t.Fatalf("unexpected history: %+v", response.Messages)
	}
}
