package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/cmd/utils"
	notification "github.com/advizo/advizo-server/service/notifications"
	"github.com/advizo/advizo-server/service/ws"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatHandler owns the websocket endpoint and the chat REST surface. Every
// message is persisted before any delivery attempt, so an offline recipient
// finds it in the transcript later.
type ChatHandler struct {
	db       *gorm.DB
	hub      *ws.Hub
	notifier *notification.Notifier
}

func NewChatHandler(db *gorm.DB, hub *ws.Hub, notifier *notification.Notifier) *ChatHandler {
	return &ChatHandler{
		db:       db,
		hub:      hub,
		notifier: notifier,
	}
}

func (h *ChatHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")
	router.HandleFunc("/chats", utils.AuthMiddleware(h.GetUserChats)).Methods("GET")
	router.HandleFunc("/chats/{id}/messages", utils.AuthMiddleware(h.GetChatHistory)).Methods("GET")
	router.HandleFunc("/chats/{id}/read", utils.AuthMiddleware(h.MarkChatRead)).Methods("PATCH")
}

// wsUserID authenticates the upgrade request. Browser clients cannot set
// headers on a websocket handshake, so the token may also arrive as a query
// parameter.
func wsUserID(r *http.Request) (uint, error) {
	tokenString := strings.Replace(r.Header.Get("Authorization"), "Bearer ", "", 1)
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return 0, errors.New("missing token")
	}
	return utils.UserIDFromToken(tokenString)
}

// HandleWebSocket upgrades the connection and runs the read loop. The
// connection's identity comes from the verified token, never from anything
// the client sends after connecting.
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := wsUserID(r)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}

	client := &ws.Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}
	// A reconnect replaces the old connection without a presence change, so
	// watchers only see userOnline on an actual offline-to-online edge.
	if replaced := h.hub.Register(client); !replaced {
		h.hub.Broadcast("userOnline", map[string]interface{}{"user_id": userID})
	}

	go client.WritePump()
	h.readLoop(client)
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (h *ChatHandler) readLoop(client *ws.Client) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn.Close()
		if !h.hub.IsOnline(client.UserID) {
			h.hub.Broadcast("userOffline", map[string]interface{}{"user_id": client.UserID})
		}
	}()

	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(70 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(70 * time.Second))
		return nil
	})

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Websocket error for user %d: %v", client.UserID, err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(client, "Invalid message format")
			continue
		}

		switch frame.Event {
		case "sendMessage":
			h.handleSendMessage(client, frame.Data)
		case "join-consultant":
			h.handleJoinConsultant(client, frame.Data)
		default:
			h.sendError(client, "Unknown event: "+frame.Event)
		}
	}
}

func (h *ChatHandler) sendError(client *ws.Client, message string) {
	h.hub.SendToUser(client.UserID, "error", map[string]string{"message": message})
}

func (h *ChatHandler) handleSendMessage(client *ws.Client, data json.RawMessage) {
	var payload struct {
		ReceiverID uint   `json:"receiver_id"`
		Text       string `json:"text"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ReceiverID == 0 || payload.Text == "" {
		h.sendError(client, "Receiver and text are required")
		return
	}
	if payload.ReceiverID == client.UserID {
		h.sendError(client, "Cannot message yourself")
		return
	}

	var receiver models.User
	if err := h.db.First(&receiver, payload.ReceiverID).Error; err != nil {
		h.sendError(client, "Recipient not found")
		return
	}

	message, err := h.saveMessage(client.UserID, payload.ReceiverID, payload.Text)
	if err != nil {
		log.Printf("Error saving message from %d to %d: %v", client.UserID, payload.ReceiverID, err)
		h.sendError(client, "Error saving message")
		return
	}

	delivered := h.hub.SendToUser(payload.ReceiverID, "newMessage", message)
	if !delivered {
		var sender models.User
		if err := h.db.First(&sender, client.UserID).Error; err == nil {
			go h.notifier.PushToUser(payload.ReceiverID, sender.Name, payload.Text, map[string]interface{}{
				"chat_id": message.ChatID,
			})
		}
	}

	h.hub.SendToUser(client.UserID, "messageSent", map[string]interface{}{
		"message":   message,
		"delivered": delivered,
	})
}

func (h *ChatHandler) handleJoinConsultant(client *ws.Client, data json.RawMessage) {
	var payload struct {
		ConsultantID uint `json:"consultant_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConsultantID == 0 {
		h.sendError(client, "Consultant ID is required")
		return
	}

	var consultant models.Consultant
	if err := h.db.First(&consultant, payload.ConsultantID).Error; err != nil {
		h.sendError(client, "Consultant not found")
		return
	}
	if consultant.UserID != client.UserID {
		h.sendError(client, "Cannot join another consultant's room")
		return
	}

	h.hub.JoinConsultantRoom(consultant.ID, client)
}

// saveMessage persists a message, creating the chat for the pair on first
// contact and refreshing its last-message cache, all in one transaction.
func (h *ChatHandler) saveMessage(senderID, receiverID uint, text string) (*models.ChatMessage, error) {
	a, b := models.NormalizeChatPair(senderID, receiverID)

	var message models.ChatMessage
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		err := tx.Where("participant_a_id = ? AND participant_b_id = ?", a, b).First(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			chat = models.Chat{ParticipantAID: a, ParticipantBID: b}
			if err := tx.Create(&chat).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		message = models.ChatMessage{
			ChatID:     chat.ID,
			SenderID:   senderID,
			ReceiverID: receiverID,
			Text:       text,
		}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		chat.LastMessageText = text
		chat.LastMessageAt = message.CreatedAt
		return tx.Save(&chat).Error
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// GetUserChats lists the authenticated user's chats, most recent activity
// first, with the peer's presence and unread count attached.
func (h *ChatHandler) GetUserChats(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var chats []models.Chat
	if err := h.db.Where("participant_a_id = ? OR participant_b_id = ?", userID, userID).
		Preload("ParticipantA").
		Preload("ParticipantB").
		Order("last_message_at DESC").
		Find(&chats).Error; err != nil {
		http.Error(w, "Error retrieving chats", http.StatusInternalServerError)
		return
	}

	type chatListItem struct {
		models.Chat
		PeerID      uint   `json:"peer_id"`
		PeerName    string `json:"peer_name"`
		PeerOnline  bool   `json:"peer_online"`
		UnreadCount int64  `json:"unread_count"`
	}

	items := make([]chatListItem, 0, len(chats))
	for _, chat := range chats {
		item := chatListItem{Chat: chat}
		peer := chat.ParticipantB
		if chat.ParticipantBID == userID {
			peer = chat.ParticipantA
		}
		if peer != nil {
			item.PeerID = peer.ID
			item.PeerName = peer.Name
			item.PeerOnline = h.hub.IsOnline(peer.ID)
		}
		h.db.Model(&models.ChatMessage{}).
			Where("chat_id = ? AND receiver_id = ? AND read = ?", chat.ID, userID, false).
			Count(&item.UnreadCount)
		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"chats": items,
	})
}

// chatForParticipant loads a chat only if the user is one of its two
// participants.
func (h *ChatHandler) chatForParticipant(chatID uint64, userID uint) (*models.Chat, error) {
	var chat models.Chat
	err := h.db.Where("id = ? AND (participant_a_id = ? OR participant_b_id = ?)", chatID, userID, userID).
		First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChatHistory returns a chat's messages in chronological order.
func (h *ChatHandler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	chatID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}

	chat, err := h.chatForParticipant(chatID, userID)
	if err != nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}

	limit := 50
	page := 1
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	var total int64
	h.db.Model(&models.ChatMessage{}).Where("chat_id = ?", chat.ID).Count(&total)

	var messages []models.ChatMessage
	if err := h.db.Where("chat_id = ?", chat.ID).
		Order("created_at ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&messages).Error; err != nil {
		http.Error(w, "Error retrieving messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"chat":     chat,
		"messages": messages,
		"page":     page,
		"limit":    limit,
		"total":    total,
	})
}

// MarkChatRead marks every message addressed to the requester in this chat
// as read.
func (h *ChatHandler) MarkChatRead(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	chatID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}

	chat, err := h.chatForParticipant(chatID, userID)
	if err != nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}

	if err := h.db.Model(&models.ChatMessage{}).
		Where("chat_id = ? AND receiver_id = ? AND read = ?", chat.ID, userID, false).
		Update("read", true).Error; err != nil {
		http.Error(w, "Error updating messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Chat marked as read",
	})
}
