package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/service"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/gin-gonic/gin"
)

// defaultPageSize is used when the client omits the limit parameter.
const defaultPageSize = 20

// SessionHandler serves the session and history endpoints.
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler creates a new SessionHandler instance.
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// CreateSessionRequest is the request body of the session creation endpoint.
// firstPrompt seeds the background titling call and may be empty.
type CreateSessionRequest struct {
	FirstPrompt string `json:"firstPrompt"`
}

// Create starts a new consultation session.
func (h *SessionHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user"})
		return
	}

	var req CreateSessionRequest
	// Body is optional; an empty request creates an untitled session.
	_ = c.ShouldBindJSON(&req)

	session, err := h.sessionService.Create(c.Request.Context(), user.ID, req.FirstPrompt)
	if err != nil {
		log.Errorf("Create session failed for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to create session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": session})
}

// List pages the user's sessions newest first. nextCursor is null once the
// last page has been served.
func (h *SessionHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user"})
		return
	}

	cursor := c.Query("cursor")
	limit, err := parseLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "invalid limit parameter"})
		return
	}

	sessions, nextCursor, err := h.sessionService.List(user.ID, cursor, limit)
	if err != nil {
		h.respondError(c, err, "failed to list sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"sessions":   sessions,
			"nextCursor": nullableCursor(nextCursor),
		},
	})
}

// Get returns one session.
func (h *SessionHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user"})
		return
	}

	session, err := h.sessionService.Get(user.ID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to load session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": session})
}

// RenameSessionRequest is the request body of the rename endpoint.
type RenameSessionRequest struct {
	Title string `json:"title" binding:"required"`
}

// Rename sets a user-chosen title on the session.
func (h *SessionHandler) Rename(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user"})
		return
	}

	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "title is required"})
		return
	}

	if err := h.sessionService.Rename(user.ID, c.Param("id"), req.Title); err != nil {
		h.respondError(c, err, "failed to rename session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// Delete removes the session and its full history.
func (h *SessionHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user"})
		return
	}

	if err := h.sessionService.Delete(user.ID, c.Param("id")); err != nil {
		h.respondError(c, err, "failed to delete session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// History pages the session's messages newest first. Context-injection turns
// are hidden unless includeContext=true is passed (an audit view).
func (h *SessionHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user"})
		return
	}

	cursor := c.Query("cursor")
	limit, err := parseLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "invalid limit parameter"})
		return
	}
	includeContext := c.Query("includeContext") == "true"

	messages, nextCursor, err := h.sessionService.History(user.ID, c.Param("id"), cursor, limit, includeContext)
	if err != nil {
		h.respondError(c, err, "failed to load history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"messages":   messages,
			"nextCursor": nullableCursor(nextCursor),
		},
	})
}

func (h *SessionHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error()})
	case errors.Is(err, service.ErrInvalidPagination):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
	default:
		log.Errorf("%s: %v", fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": fallback})
	}
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultPageSize))
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return limit, nil
}

// nullableCursor maps the empty terminator cursor to JSON null so clients can
// distinguish "no more pages" from a valid cursor value.
func nullableCursor(cursor string) interface{} {
	if cursor == "" {
		return nil
	}
	return cursor
}
