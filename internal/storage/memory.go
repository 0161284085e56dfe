package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/zulandar/voicedesk/internal/models"
)

// Memory is a process-local Storage. State lives for the lifetime of the
// process.
type Memory struct {
	mu            sync.RWMutex
	now           Clock
	users         map[string]*models.User         // keyed by user ID
	conversations map[string]*models.Conversation // keyed by conversation ID
	messages      map[string][]*models.Message    // keyed by conversation ID, insertion order
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the time source used for StartedAt, EndedAt and
// message timestamps.
func WithMemoryClock(c Clock) MemoryOption {
	return func(m *Memory) { m.now = c }
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:           defaultClock,
		users:         make(map[string]*models.User),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Backend implements Storage.
func (m *Memory) Backend() string { return "memory" }

// Close implements Storage. The memory store holds no external resources.
func (m *Memory) Close() error { return nil }

// GetUser retrieves a user by ID.
func (m *Memory) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByUsername scans for a user with the given username.
func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			result := *u
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// CreateUser stores a new user under a fresh ID.
func (m *Memory) CreateUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	if err := validateUser(in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == in.Username {
			return nil, ErrDuplicateUsername
		}
	}
	u := &models.User{
		ID:       uuid.NewString(),
		Username: in.Username,
		Password: in.Password,
	}
	m.users[u.ID] = u

	result := *u
	return &result, nil
}

// GetConversation retrieves a conversation by ID.
func (m *Memory) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(c), nil
}

// ListConversations returns matching conversations, newest first.
func (m *Memory) ListConversations(ctx context.Context, filter ConversationFilter) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Conversation, 0)
	for _, c := range m.conversations {
		if filter.match(c) {
			out = append(out, *copyConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CreateConversation stores a new disconnected conversation.
func (m *Memory) CreateConversation(ctx context.Context, in models.NewConversation) (*models.Conversation, error) {
	if err := validateConversation(in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := conversationDefaults(uuid.NewString(), in, m.now())
	m.conversations[c.ID] = &c
	return copyConversation(&c), nil
}

// UpdateConversationStatus sets the live status of a conversation.
func (m *Memory) UpdateConversationStatus(ctx context.Context, id string, status models.ConversationStatus) error {
	if err := validateStatus(status); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	if c.EndedAt != nil && status != models.StatusDisconnected {
		return ErrConversationEnded
	}
	c.Status = status
	return nil
}

// EndConversation disconnects the conversation; the first EndedAt wins and
// only that call reports ended.
func (m *Memory) EndConversation(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return false, ErrNotFound
	}
	c.Status = models.StatusDisconnected
	if c.EndedAt != nil {
		return false, nil
	}
	now := m.now()
	c.EndedAt = &now
	return true, nil
}

// GetMessages returns a conversation's messages ordered by timestamp.
func (m *Memory) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.messages[conversationID]
	out := make([]models.Message, 0, len(src))
	for _, msg := range src {
		out = append(out, *copyMessage(msg))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// CreateMessage stores a message. A referenced conversation must exist.
// Messages without a conversation are returned but not retained, since no
// read path can reach them.
func (m *Memory) CreateMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	if err := validateMessage(in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg := &models.Message{
		ID:        uuid.NewString(),
		Content:   in.Content,
		Sender:    in.Sender,
		Timestamp: m.now(),
	}
	if in.ConversationID != nil {
		if _, ok := m.conversations[*in.ConversationID]; !ok {
			return nil, ErrConversationNotFound
		}
		cid := *in.ConversationID
		msg.ConversationID = &cid
		msg.Seq = int64(len(m.messages[cid])) + 1
		m.messages[cid] = append(m.messages[cid], msg)
	}
	return copyMessage(msg), nil
}

func copyConversation(c *models.Conversation) *models.Conversation {
	out := *c
	if c.UserID != nil {
		u := *c.UserID
		out.UserID = &u
	}
	if c.EndedAt != nil {
		e := *c.EndedAt
		out.EndedAt = &e
	}
	return &out
}

func copyMessage(msg *models.Message) *models.Message {
	out := *msg
	if msg.ConversationID != nil {
		cid := *msg.ConversationID
		out.ConversationID = &cid
	}
	return &out
}
