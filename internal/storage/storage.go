// Package storage persists users, conversations and messages behind a single
// interface with in-memory and relational backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/voicedesk/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrConversationNotFound is returned by CreateMessage when the message
	// references a conversation that does not exist.
	ErrConversationNotFound = errors.New("storage: conversation not found")

	// ErrConversationEnded is returned when a status change would reopen an
	// ended conversation.
	ErrConversationEnded = errors.New("storage: conversation already ended")

	// ErrDuplicateUsername is returned when a username is already taken.
	ErrDuplicateUsername = errors.New("storage: username already exists")

	// ErrInvalidInput is returned when a record would violate a model invariant.
	ErrInvalidInput = errors.New("storage: invalid input")
)

// Storage is the persistence contract shared by every backend. Returned
// records are copies; mutating them does not affect stored state.
type Storage interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, in models.NewUser) (*models.User, error)

	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, in models.NewConversation) (*models.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, status models.ConversationStatus) error
	// EndConversation marks the conversation disconnected and stamps EndedAt.
	// Repeated calls keep the first EndedAt. ended is true only for the call
	// that stamped it.
	EndConversation(ctx context.Context, id string) (ended bool, err error)

	// GetMessages returns the conversation's messages oldest first. Messages
	// sharing a timestamp keep insertion order.
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	CreateMessage(ctx context.Context, in models.NewMessage) (*models.Message, error)

	// Backend names the implementation, e.g. "memory" or "sqlite".
	Backend() string
	Close() error
}

// ConversationFilter narrows ListConversations. Zero fields match everything.
type ConversationFilter struct {
	Status        models.ConversationStatus
	AgentID       string
	Active        bool      // only conversations not yet ended
	StartedBefore time.Time // exclusive
	Limit         int
}

func (f ConversationFilter) match(c *models.Conversation) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.AgentID != "" && c.AgentID != f.AgentID {
		return false
	}
	if f.Active && c.EndedAt != nil {
		return false
	}
	if !f.StartedBefore.IsZero() && !c.StartedAt.Before(f.StartedBefore) {
		return false
	}
	return true
}

// Clock returns the current time. Backends take one so tests can pin it.
type Clock func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }

// conversationDefaults applies the creation rules shared by all backends.
func conversationDefaults(id string, in models.NewConversation, now time.Time) models.Conversation {
	ct := in.ConnectionType
	if ct == "" {
		ct = models.ConnectionWebRTC
	}
	var userID *string
	if in.UserID != nil {
		u := *in.UserID
		userID = &u
	}
	return models.Conversation{
		ID:             id,
		UserID:         userID,
		AgentID:        in.AgentID,
		ConnectionType: ct,
		Status:         models.StatusDisconnected,
		StartedAt:      now,
	}
}

func validateUser(in models.NewUser) error {
	if in.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if in.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return nil
}

func validateConversation(in models.NewConversation) error {
	if in.AgentID == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	if in.ConnectionType != "" && !in.ConnectionType.Valid() {
		return fmt.Errorf("%w: connection type %q", ErrInvalidInput, in.ConnectionType)
	}
	return nil
}

func validateStatus(status models.ConversationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	return nil
}

func validateMessage(in models.NewMessage) error {
	if in.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if !in.Sender.Valid() {
		return fmt.Errorf("%w: sender %q", ErrInvalidInput, in.Sender)
	}
	return nil
}
