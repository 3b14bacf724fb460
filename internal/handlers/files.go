package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"conversa-backend/internal/models"
	"conversa-backend/internal/services"

	"github.com/gin-gonic/gin"
)

const fileTextCacheTTL = 5 * time.Minute

type FilesHandler struct {
	store ConversationStore
	cache Cache
}

func NewFilesHandler(store ConversationStore, cache Cache) *FilesHandler {
	return &FilesHandler{store: store, cache: cache}
}

// Get handles GET /api/files/:id, returning metadata without the payload.
func (h *FilesHandler) Get(c *gin.Context) {
	file, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, file.InfoResponse())
}

// Download handles GET /api/files/:id/download, serving the raw bytes as an
// attachment.
func (h *FilesHandler) Download(c *gin.Context) {
	file, ok := h.lookup(c)
	if !ok {
		return
	}
	if len(file.FileData) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "File data not available"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.FileData)
}

// GetText handles GET /api/files/:id/text. Responses are served through the
// Redis cache since extracted text never changes after storage.
func (h *FilesHandler) GetText(c *gin.Context) {
	id := c.Param("id")
	cacheKey := "filetext:" + id

	if cached, ok := h.cache.CacheGet(c.Request.Context(), cacheKey); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
		return
	}

	file, ok := h.lookup(c)
	if !ok {
		return
	}

	var text string
	if file.ExtractedText != nil {
		text = *file.ExtractedText
	}
	resp := models.FileTextResponse{
		Filename:      file.Filename,
		ExtractedText: text,
	}

	if body, err := json.Marshal(resp); err == nil {
		h.cache.CacheSet(c.Request.Context(), cacheKey, string(body), fileTextCacheTTL)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FilesHandler) lookup(c *gin.Context) (*models.File, bool) {
	file, err := h.store.GetFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		} else {
			serverError(c, "Failed to load file", err)
		}
		return nil, false
	}
	return file, true
}
