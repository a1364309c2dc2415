package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/prompt"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/repository"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/llm"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxPageSize caps the page size of both session and history listings.
const maxPageSize = 100

// titleTimeout bounds the background titling call.
const titleTimeout = 15 * time.Second

// SessionService manages consultation sessions and their history. All lookups
// are scoped to the owning user; a session of another user behaves exactly
// like a missing one.
type SessionService interface {
	Create(ctx context.Context, userID uint, firstPrompt string) (*model.Session, error)
	Get(userID uint, sessionID string) (*model.Session, error)
	// GetOrCreate resolves an existing session or, given an empty id, creates a
	// fresh one titled from the first prompt.
	GetOrCreate(ctx context.Context, userID uint, sessionID, firstPrompt string) (*model.Session, error)
	// List pages the user's sessions newest first. nextCursor is "" once the
	// final page has been returned.
	List(userID uint, cursor string, limit int) (sessions []model.Session, nextCursor string, err error)
	Rename(userID uint, sessionID, title string) error
	Delete(userID uint, sessionID string) error
	// History pages the session's messages newest first. Context-injection
	// turns are omitted unless includeContext is set.
	History(userID uint, sessionID, cursor string, limit int, includeContext bool) (messages []model.Message, nextCursor string, err error)
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	messageRepo repository.MessageRepository
	llmClient   llm.Client
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(sessionRepo repository.SessionRepository, messageRepo repository.MessageRepository, llmClient llm.Client) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		llmClient:   llmClient,
	}
}

// Create inserts a new session with a placeholder title and kicks off a
// background call that titles it from the first prompt.
func (s *sessionService) Create(ctx context.Context, userID uint, firstPrompt string) (*model.Session, error) {
	session := &model.Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  model.DefaultSessionTitle,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if strings.TrimSpace(firstPrompt) != "" {
		go s.generateTitle(session.ID, firstPrompt)
	}
	return session, nil
}

// generateTitle asks the model for a short title and stores it. Any failure
// leaves the placeholder in place; the session itself is already durable.
func (s *sessionService) generateTitle(sessionID, firstPrompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	title, err := s.llmClient.Complete(ctx, prompt.BuildTitle(firstPrompt), nil)
	if err != nil {
		log.Warnf("[SessionService] title generation failed for session %s: %v", sessionID, err)
		return
	}
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if title == "" {
		return
	}
	if runes := []rune(title); len(runes) > 80 {
		title = string(runes[:80])
	}
	if err := s.sessionRepo.UpdateTitle(sessionID, title); err != nil {
		log.Warnf("[SessionService] failed to store title for session %s: %v", sessionID, err)
	}
}

// Get returns the session if it exists and belongs to the user.
func (s *sessionService) Get(userID uint, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetOrCreate resolves the target session for a chat turn.
func (s *sessionService) GetOrCreate(ctx context.Context, userID uint, sessionID, firstPrompt string) (*model.Session, error) {
	if sessionID == "" {
		return s.Create(ctx, userID, firstPrompt)
	}
	return s.Get(userID, sessionID)
}

// List pages the user's sessions. The cursor names the last session of the
// previous page; results resume strictly after it, so a walk sees every
// session exactly once even while new ones are being created.
func (s *sessionService) List(userID uint, cursor string, limit int) ([]model.Session, string, error) {
	if limit <= 0 || limit > maxPageSize {
		return nil, "", ErrInvalidPagination
	}

	var before *model.Session
	if cursor != "" {
		seam, err := s.sessionRepo.FindByID(cursor)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, "", ErrInvalidPagination
			}
			return nil, "", err
		}
		if seam.UserID != userID {
			return nil, "", ErrInvalidPagination
		}
		before = seam
	}

	sessions, err := s.sessionRepo.ListByUserBefore(userID, before, limit)
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(sessions) == limit {
		nextCursor = sessions[len(sessions)-1].ID
	}
	return sessions, nextCursor, nil
}

// Rename sets a user-chosen session title.
func (s *sessionService) Rename(userID uint, sessionID, title string) error {
	if _, err := s.Get(userID, sessionID); err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title must not be empty")
	}
	return s.sessionRepo.UpdateTitle(sessionID, title)
}

// Delete removes the session together with its messages.
func (s *sessionService) Delete(userID uint, sessionID string) error {
	if _, err := s.Get(userID, sessionID); err != nil {
		return err
	}
	return s.sessionRepo.Delete(sessionID)
}

// History pages the session's messages newest first with a message-id cursor.
func (s *sessionService) History(userID uint, sessionID, cursor string, limit int, includeContext bool) ([]model.Message, string, error) {
	if limit <= 0 || limit > maxPageSize {
		return nil, "", ErrInvalidPagination
	}
	if _, err := s.Get(userID, sessionID); err != nil {
		return nil, "", err
	}

	var before *model.Message
	if cursor != "" {
		id, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", ErrInvalidPagination
		}
		seam, err := s.messageRepo.FindByID(uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, "", ErrInvalidPagination
			}
			return nil, "", err
		}
		// A cursor from another session must not leak rows across sessions.
		if seam.SessionID != sessionID {
			return nil, "", ErrInvalidPagination
		}
		before = seam
	}

	messages, err := s.messageRepo.ListBySessionBefore(sessionID, before, limit, includeContext)
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(messages) == limit {
		nextCursor = strconv.FormatUint(uint64(messages[len(messages)-1].ID), 10)
	}
	return messages, nextCursor, nil
}
