package models

import (
	"time"

	"gorm.io/gorm"
)

// Chat is the transcript between exactly two participants. The pair is
// normalized so ParticipantAID < ParticipantBID, which keeps the unordered
// pair unique.
type Chat struct {
	gorm.Model
	ParticipantAID  uint      `gorm:"column:participant_a_id;not null;uniqueIndex:idx_chat_pair" json:"participant_a_id"`
	ParticipantBID  uint      `gorm:"column:participant_b_id;not null;uniqueIndex:idx_chat_pair" json:"participant_b_id"`
	LastMessageText string    `gorm:"column:last_message_text;type:text" json:"last_message_text"`
	LastMessageAt   time.Time `gorm:"column:last_message_at" json:"last_message_at"`

	ParticipantA *User         `gorm:"foreignKey:ParticipantAID" json:"participant_a,omitempty"`
	ParticipantB *User         `gorm:"foreignKey:ParticipantBID" json:"participant_b,omitempty"`
	Messages     []ChatMessage `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

type ChatMessage struct {
	gorm.Model
	ChatID     uint   `gorm:"column:chat_id;not null;index" json:"chat_id"`
	SenderID   uint   `gorm:"column:sender_id;not null" json:"sender_id"`
	ReceiverID uint   `gorm:"column:receiver_id;not null" json:"receiver_id"`
	Text       string `gorm:"column:text;type:text;not null" json:"text"`
	Read       bool   `gorm:"column:read;default:false" json:"read"`

	Sender   *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Receiver *User `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// NormalizeChatPair orders two user IDs so the smaller one always lands in
// ParticipantAID.
func NormalizeChatPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}
