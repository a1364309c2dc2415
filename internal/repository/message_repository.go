package repository

import (
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"gorm.io/gorm"
)

// MessageRepository defines persistence operations for chat turns. Messages
// are append-only; nothing here mutates an existing record.
type MessageRepository interface {
	Append(message *model.Message) error
	FindByID(id uint) (*model.Message, error)
	// ListBySessionBefore returns up to limit messages of the session strictly
	// older than the seam message, newest first. Context-injection turns are
	// skipped unless includeContext is set.
	ListBySessionBefore(sessionID string, before *model.Message, limit int, includeContext bool) ([]model.Message, error)
	// RecentChat returns the last n ordinary chat turns of the session in
	// chronological (oldest first) order, ready for prompt assembly.
	RecentChat(sessionID string, n int) ([]model.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository instance.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Append inserts a new immutable message record.
func (r *messageRepository) Append(message *model.Message) error {
	return r.db.Create(message).Error
}

// FindByID looks a message up by primary key.
func (r *messageRepository) FindByID(id uint) (*model.Message, error) {
	var message model.Message
	err := r.db.First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListBySessionBefore pages messages newest-first relative to a seam record,
// ordering on (sent_at, id) so ties fall back to insertion order.
func (r *messageRepository) ListBySessionBefore(sessionID string, before *model.Message, limit int, includeContext bool) ([]model.Message, error) {
	var messages []model.Message
	q := r.db.Where("session_id = ?", sessionID)
	if !includeContext {
		q = q.Where("kind <> ?", model.KindContext)
	}
	if before != nil {
		q = q.Where("sent_at < ? OR (sent_at = ? AND id < ?)", before.SentAt, before.SentAt, before.ID)
	}
	err := q.Order("sent_at DESC, id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// RecentChat loads the trailing window of ordinary turns, oldest first.
func (r *messageRepository) RecentChat(sessionID string, n int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Where("session_id = ? AND kind = ?", sessionID, model.KindChat).
		Order("sent_at DESC, id DESC").Limit(n).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
