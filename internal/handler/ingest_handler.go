package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/service"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/gin-gonic/gin"
)

// IngestHandler serves the admin endpoints for feeding law documents into
// the index.
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler creates a new IngestHandler instance.
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// Upload accepts a multipart law document and queues it for ingestion.
func (h *IngestHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "file is required"})
		return
	}
	title := c.PostForm("title")
	category := c.PostForm("category")
	if title == "" {
		title = fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to open upload"})
		return
	}
	defer file.Close()

	doc, err := h.ingestService.Upload(c.Request.Context(), fileHeader.Filename, title, category, file, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateDocument) {
			c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": err.Error(), "data": doc})
			return
		}
		log.Errorf("Upload: failed to queue document '%s': %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to queue document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "document queued for ingestion", "data": doc})
}

// List returns recently uploaded documents and their ingestion status.
func (h *IngestHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	docs, err := h.ingestService.ListDocuments(limit)
	if err != nil {
		log.Errorf("List documents failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": docs})
}
