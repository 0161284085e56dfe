package models

import (
	"fmt"
	"time"
)

// ConversationStatus mirrors the live session state reported by the agent SDK.
type ConversationStatus string

const (
	StatusDisconnected ConversationStatus = "disconnected"
	StatusConnecting   ConversationStatus = "connecting"
	StatusConnected    ConversationStatus = "connected"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected:
		return true
	}
	return false
}

// ParseConversationStatus validates a raw status string.
func ParseConversationStatus(s string) (ConversationStatus, error) {
	st := ConversationStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("models: unknown conversation status %q", s)
	}
	return st, nil
}

// ConnectionType is the transport the client SDK uses for the live session.
type ConnectionType string

const (
	ConnectionWebRTC    ConnectionType = "webrtc"
	ConnectionWebSocket ConnectionType = "websocket"
)

// Valid reports whether c is a known connection type.
func (c ConnectionType) Valid() bool {
	return c == ConnectionWebRTC || c == ConnectionWebSocket
}

// Conversation is one voice or chat session with an agent.
//
// EndedAt is set exactly once, by the first end, and only while Status is
// disconnected.
type Conversation struct {
	ID             string             `gorm:"primaryKey;size:36" json:"id"`
	UserID         *string            `gorm:"size:36;index" json:"userId"`
	AgentID        string             `gorm:"size:128;not null;index" json:"agentId"`
	ConnectionType ConnectionType     `gorm:"size:16;not null;default:webrtc" json:"connectionType"`
	Status         ConversationStatus `gorm:"size:16;not null;default:disconnected;index" json:"status"`
	StartedAt      time.Time          `gorm:"not null;index" json:"startedAt"`
	EndedAt        *time.Time         `json:"endedAt"`
}

// Ended reports whether the conversation has been ended.
func (c *Conversation) Ended() bool {
	return c.EndedAt != nil
}

// NewConversation holds the caller-supplied fields for CreateConversation.
type NewConversation struct {
	UserID         *string
	AgentID        string
	ConnectionType ConnectionType // defaults to webrtc
}
