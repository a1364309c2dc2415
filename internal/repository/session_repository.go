package repository

import (
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"gorm.io/gorm"
)

// SessionRepository defines persistence operations for consultation sessions.
type SessionRepository interface {
	Create(session *model.Session) error
	FindByID(id string) (*model.Session, error)
	// ListByUserBefore returns up to limit sessions of the user strictly older
	// than the given seam session (newest first). A nil seam starts from the
	// newest session.
	ListByUserBefore(userID uint, before *model.Session, limit int) ([]model.Session, error)
	UpdateTitle(id, title string) error
	// Delete removes the session and all of its messages in one transaction.
	Delete(id string) error
	// LatestByUser returns the user's most recently created session, or
	// gorm.ErrRecordNotFound when the user has none.
	LatestByUser(userID uint) (*model.Session, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create inserts a new session record.
func (r *sessionRepository) Create(session *model.Session) error {
	return r.db.Create(session).Error
}

// FindByID looks a session up by its identifier.
func (r *sessionRepository) FindByID(id string) (*model.Session, error) {
	var session model.Session
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByUserBefore pages sessions newest-first relative to a seam record.
// Comparing on (created_at, id) keeps the cursor stable under concurrent
// inserts: a cursor names a specific record, not an offset.
func (r *sessionRepository) ListByUserBefore(userID uint, before *model.Session, limit int) ([]model.Session, error) {
	var sessions []model.Session
	q := r.db.Where("user_id = ?", userID)
	if before != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", before.CreatedAt, before.CreatedAt, before.ID)
	}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

// UpdateTitle sets the session title.
func (r *sessionRepository) UpdateTitle(id, title string) error {
	return r.db.Model(&model.Session{}).Where("id = ?", id).Update("title", title).Error
}

// Delete removes the session and cascades to its messages.
func (r *sessionRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Session{}).Error
	})
}

// LatestByUser returns the newest session owned by the user.
func (r *sessionRepository) LatestByUser(userID uint) (*model.Session, error) {
	var session model.Session
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}
