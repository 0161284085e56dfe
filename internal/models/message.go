package models

import (
	"fmt"
	"time"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// ParseSender validates a raw sender string.
func ParseSender(s string) (Sender, error) {
	snd := Sender(s)
	if !snd.Valid() {
		return "", fmt.Errorf("models: unknown sender %q", s)
	}
	return snd, nil
}

// Message is a single chat turn. Messages are immutable once created.
type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID *string   `gorm:"size:36;index:idx_messages_conversation_ts" json:"conversationId"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Sender         Sender    `gorm:"size:8;not null" json:"sender"`
	Timestamp      time.Time `gorm:"not null;index:idx_messages_conversation_ts" json:"timestamp"`
	// Seq is the insertion position within the conversation. It orders
	// messages that share a timestamp.
	Seq int64 `gorm:"not null;default:0;index:idx_messages_conversation_ts" json:"-"`
}

// NewMessage holds the caller-supplied fields for CreateMessage.
type NewMessage struct {
	ConversationID *string
	Content        string
	Sender         Sender
}
