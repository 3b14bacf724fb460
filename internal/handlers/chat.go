package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"conversa-backend/internal/logger"
	"conversa-backend/internal/models"
	"conversa-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ChatHandler struct {
	store         ConversationStore
	limiter       RateLimiter
	completions   Completions
	maxFileSizeMB int
}

func NewChatHandler(store ConversationStore, limiter RateLimiter, completions Completions, maxFileSizeMB int) *ChatHandler {
	return &ChatHandler{
		store:         store,
		limiter:       limiter,
		completions:   completions,
		maxFileSizeMB: maxFileSizeMB,
	}
}

// uploadResult carries everything produced from the request's file uploads.
type uploadResult struct {
	fileTexts []models.FileText
	images    []models.ImageData
	metadata  []models.FileMetadata
}

// SendMessage handles POST /api/chat/send: multipart message plus optional
// files, answered as an SSE stream of token events terminated by done or
// error.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	message := c.PostForm("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	clientIP := c.ClientIP()
	if !h.limiter.Allow(ctx, clientIP) {
		logger.WithFields(logrus.Fields{"clientIp": clientIP}).Warn("Rate limit exceeded")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again in a minute."})
		return
	}

	conversationID, ok := h.resolveConversation(c)
	if !ok {
		return
	}

	uploads, ok := h.processUploads(c, conversationID)
	if !ok {
		return
	}

	if _, err := h.store.AddMessage(ctx, conversationID, models.RoleUser, message, uploads.metadata, 0); err != nil {
		serverError(c, "Failed to store message", err)
		return
	}

	history, err := h.store.GetMessages(ctx, conversationID, 0)
	if err != nil {
		serverError(c, "Failed to load history", err)
		return
	}

	if len(history) == 1 {
		if !h.generateTitle(c, conversationID, message) {
			return
		}
	}

	// Prompt history excludes the message just stored; it is passed
	// separately as the new user turn.
	h.streamResponse(c, conversationID, history[:len(history)-1], message, uploads)
}

// SendSimple handles POST /api/chat/send-simple: same resolution and storage
// steps but a one-shot completion and a single JSON response.
func (h *ChatHandler) SendSimple(c *gin.Context) {
	ctx := c.Request.Context()

	message := c.PostForm("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	clientIP := c.ClientIP()
	if !h.limiter.Allow(ctx, clientIP) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded."})
		return
	}

	conversationID, ok := h.resolveConversation(c)
	if !ok {
		return
	}

	if _, err := h.store.AddMessage(ctx, conversationID, models.RoleUser, message, nil, 0); err != nil {
		serverError(c, "Failed to store message", err)
		return
	}

	history, err := h.store.GetMessages(ctx, conversationID, 0)
	if err != nil {
		serverError(c, "Failed to load history", err)
		return
	}

	if len(history) == 1 {
		if !h.generateTitle(c, conversationID, message) {
			return
		}
	}

	content, tokens, err := h.completions.ChatComplete(ctx, history[:len(history)-1], message, nil, nil)
	if err != nil {
		serverError(c, "Completion failed", err)
		return
	}

	if _, err := h.store.AddMessage(ctx, conversationID, models.RoleAssistant, content, nil, tokens); err != nil {
		serverError(c, "Failed to store response", err)
		return
	}

	c.JSON(http.StatusOK, models.ChatSimpleResponse{
		ConversationID: conversationID,
		Content:        content,
		Tokens:         tokens,
	})
}

// resolveConversation creates a conversation when none was supplied and
// verifies a supplied id resolves. Writes the error response itself.
func (h *ChatHandler) resolveConversation(c *gin.Context) (string, bool) {
	ctx := c.Request.Context()

	conversationID := c.PostForm("conversation_id")
	if conversationID == "" {
		convo, err := h.store.CreateConversation(ctx, "")
		if err != nil {
			serverError(c, "Failed to create conversation", err)
			return "", false
		}
		return convo.ID.Hex(), true
	}

	if _, err := h.store.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		} else {
			serverError(c, "Failed to load conversation", err)
		}
		return "", false
	}
	return conversationID, true
}

// processUploads validates sizes up front so an oversized upload rejects the
// request before anything is written, then classifies, extracts and persists
// each file. Writes the error response itself on failure.
func (h *ChatHandler) processUploads(c *gin.Context, conversationID string) (*uploadResult, bool) {
	ctx := c.Request.Context()
	result := &uploadResult{}

	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return result, true
	}
	files := form.File["files"]

	maxBytes := int64(h.maxFileSizeMB) * 1024 * 1024
	for _, fh := range files {
		if fh.Size > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("File %s exceeds %dMB limit", fh.Filename, h.maxFileSizeMB),
			})
			return nil, false
		}
	}

	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}

		data, err := readUpload(fh)
		if err != nil {
			serverError(c, "Failed to read upload", err)
			return nil, false
		}

		contentType := fh.Header.Get("Content-Type")
		fileType := services.DetectFileType(fh.Filename, contentType)

		var extracted *string
		if fileType == models.FileTypeImage {
			encodeType := contentType
			if encodeType == "" {
				encodeType = "image/png"
			}
			dataURL, err := services.ImageToBase64(data, encodeType)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": fmt.Sprintf("File %s is not a valid image", fh.Filename),
				})
				return nil, false
			}
			result.images = append(result.images, models.ImageData{
				Filename: fh.Filename,
				DataURL:  dataURL,
			})
		} else {
			extracted = services.ExtractText(data, fileType)
			if extracted != nil && *extracted != "" {
				result.fileTexts = append(result.fileTexts, models.FileText{
					Filename: fh.Filename,
					Text:     *extracted,
				})
			}
		}

		fileID, err := h.store.StoreFile(ctx, &models.File{
			ConversationID: conversationID,
			Filename:       fh.Filename,
			ContentType:    contentType,
			Size:           fh.Size,
			FileType:       fileType,
			ExtractedText:  extracted,
			FileData:       data,
		})
		if err != nil {
			serverError(c, "Failed to store file", err)
			return nil, false
		}

		result.metadata = append(result.metadata, models.FileMetadata{
			Filename:    fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			FileType:    fileType,
			FileID:      fileID,
		})

		logger.WithFields(logrus.Fields{
			"fileId":   fileID,
			"filename": fh.Filename,
			"fileType": fileType,
			"size":     fh.Size,
		}).Info("Stored uploaded file")
	}

	return result, true
}

// generateTitle runs on the conversation's first message. A provider failure
// fails the request like any other completion error. Writes the error
// response itself.
func (h *ChatHandler) generateTitle(c *gin.Context, conversationID, message string) bool {
	ctx := c.Request.Context()

	title, err := h.completions.GenerateTitle(ctx, message)
	if err != nil {
		serverError(c, "Failed to generate title", err)
		return false
	}
	if err := h.store.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		serverError(c, "Failed to persist generated title", err)
		return false
	}
	return true
}

// streamResponse relays completion fragments as SSE token events. On any
// relay error a terminal error event is emitted and the partial reply is
// discarded; on success the concatenated reply is persisted before done.
func (h *ChatHandler) streamResponse(c *gin.Context, conversationID string, history []models.Message, message string, uploads *uploadResult) {
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	stream, err := h.completions.ChatStream(ctx, history, message, uploads.fileTexts, uploads.images)
	if err != nil {
		sseError(c, err)
		return
	}
	defer stream.Close()

	var full strings.Builder
	for {
		token, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.WithFields(logrus.Fields{
				"conversationId": conversationID,
				"error":          err.Error(),
			}).Error("Stream relay failed")
			sseError(c, err)
			return
		}
		full.WriteString(token)
		c.SSEvent("token", gin.H{"token": token})
		c.Writer.Flush()
	}

	if _, err := h.store.AddMessage(ctx, conversationID, models.RoleAssistant, full.String(), nil, 0); err != nil {
		sseError(c, err)
		return
	}

	c.SSEvent("done", gin.H{"conversation_id": conversationID})
	c.Writer.Flush()
}

func sseError(c *gin.Context, err error) {
	c.SSEvent("error", gin.H{"error": err.Error()})
	c.Writer.Flush()
}

func serverError(c *gin.Context, msg string, err error) {
	logger.WithFields(logrus.Fields{"error": err.Error()}).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
