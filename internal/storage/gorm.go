package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/voicedesk/internal/db"
	"github.com/zulandar/voicedesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm is a Storage backed by a relational database through GORM.
type Gorm struct {
	db      *gorm.DB
	backend string
	now     Clock
}

// GormOption configures a Gorm store.
type GormOption func(*Gorm)

// WithGormClock overrides the time source used for StartedAt, EndedAt and
// message timestamps.
func WithGormClock(c Clock) GormOption {
	return func(g *Gorm) { g.now = c }
}

// NewGorm wraps an open, migrated GORM handle. backend names the dialect for
// diagnostics.
func NewGorm(gdb *gorm.DB, backend string, opts ...GormOption) (*Gorm, error) {
	if gdb == nil {
		return nil, fmt.Errorf("storage: db is required")
	}
	g := &Gorm{db: gdb, backend: backend, now: defaultClock}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Backend implements Storage.
func (g *Gorm) Backend() string { return g.backend }

// Close releases the underlying connection pool.
func (g *Gorm) Close() error {
	return db.Close(g.db)
}

// stamp returns the current time at the precision MySQL DATETIME(3) keeps,
// so created records read back unchanged.
func (g *Gorm) stamp() time.Time {
	return g.now().Truncate(time.Millisecond)
}

// GetUser retrieves a user by ID.
func (g *Gorm) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err, "get user %s", id)
	}
	return &u, nil
}

// GetUserByUsername looks a user up through the unique username index.
func (g *Gorm) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := g.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, "get user by username %q", username)
	}
	return &u, nil
}

// CreateUser inserts a new user under a fresh ID.
func (g *Gorm) CreateUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	if err := validateUser(in); err != nil {
		return nil, err
	}

	u := models.User{
		ID:       uuid.NewString(),
		Username: in.Username,
		Password: in.Password,
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("username = ?", in.Username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateUsername
		}
		return tx.Create(&u).Error
	})
	if errors.Is(err, ErrDuplicateUsername) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrDuplicateUsername
	}
	if err != nil {
		return nil, fmt.Errorf("storage: create user: %w", err)
	}
	return &u, nil
}

// GetConversation retrieves a conversation by ID.
func (g *Gorm) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, "get conversation %s", id)
	}
	return &c, nil
}

// ListConversations returns matching conversations, newest first.
func (g *Gorm) ListConversations(ctx context.Context, filter ConversationFilter) ([]models.Conversation, error) {
	q := g.db.WithContext(ctx).Model(&models.Conversation{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AgentID != "" {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Active {
		q = q.Where("ended_at IS NULL")
	}
	if !filter.StartedBefore.IsZero() {
		q = q.Where("started_at < ?", filter.StartedBefore)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	out := make([]models.Conversation, 0)
	if err := q.Order("started_at DESC").Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("storage: list conversations: %w", err)
	}
	return out, nil
}

// CreateConversation inserts a new disconnected conversation.
func (g *Gorm) CreateConversation(ctx context.Context, in models.NewConversation) (*models.Conversation, error) {
	if err := validateConversation(in); err != nil {
		return nil, err
	}

	c := conversationDefaults(uuid.NewString(), in, g.stamp())
	if err := g.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("storage: create conversation: %w", err)
	}
	return &c, nil
}

// UpdateConversationStatus sets the live status of a conversation.
func (g *Gorm) UpdateConversationStatus(ctx context.Context, id string, status models.ConversationStatus) error {
	if err := validateStatus(status); err != nil {
		return err
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Conversation
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		if c.EndedAt != nil && status != models.StatusDisconnected {
			return ErrConversationEnded
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", id).Update("status", status).Error
	})
	if errors.Is(err, ErrConversationEnded) {
		return err
	}
	if err != nil {
		return notFound(err, "update conversation %s status", id)
	}
	return nil
}

// EndConversation disconnects the conversation. Only the first call stamps
// ended_at and reports ended; later calls find no row with ended_at IS NULL.
func (g *Gorm) EndConversation(ctx context.Context, id string) (bool, error) {
	tx := g.db.WithContext(ctx)
	res := tx.Model(&models.Conversation{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]interface{}{
			"status":   models.StatusDisconnected,
			"ended_at": g.stamp(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("storage: end conversation %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var n int64
	if err := tx.Model(&models.Conversation{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("storage: end conversation %s: %w", id, err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

// GetMessages returns a conversation's messages ordered by timestamp, then
// insertion sequence.
func (g *Gorm) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	out := make([]models.Message, 0)
	err := g.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "seq"}}).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("storage: get messages for %s: %w", conversationID, err)
	}
	return out, nil
}

// CreateMessage inserts a message. A referenced conversation must exist.
// The conversation row is locked while the next seq is allocated, so
// concurrent inserts into one conversation get distinct sequence numbers.
func (g *Gorm) CreateMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	if err := validateMessage(in); err != nil {
		return nil, err
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Content:   in.Content,
		Sender:    in.Sender,
		Timestamp: g.stamp(),
	}
	if in.ConversationID != nil {
		cid := *in.ConversationID
		msg.ConversationID = &cid
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if msg.ConversationID != nil {
			var conv models.Conversation
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id").
				Where("id = ?", *msg.ConversationID).
				First(&conv).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			if err != nil {
				return err
			}

			var last int64
			err = tx.Model(&models.Message{}).
				Where("conversation_id = ?", *msg.ConversationID).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&last).Error
			if err != nil {
				return err
			}
			msg.Seq = last + 1
		}
		return tx.Create(&msg).Error
	})
	if errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("storage: create message: %w", err)
	}
	return &msg, nil
}

// notFound maps gorm.ErrRecordNotFound to ErrNotFound and wraps anything else.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("storage: "+format+": %w", append(args, err)...)
}
