package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"conversa-backend/internal/models"
	"conversa-backend/internal/services"

	"github.com/gin-gonic/gin"
)

type ConversationsHandler struct {
	store ConversationStore
}

func NewConversationsHandler(store ConversationStore) *ConversationsHandler {
	return &ConversationsHandler{store: store}
}

// List handles GET /api/conversations?skip&limit, ordered by updated_at
// descending.
func (h *ConversationsHandler) List(c *gin.Context) {
	skip := queryInt64(c, "skip", 0)
	limit := queryInt64(c, "limit", 50)

	convos, total, err := h.store.ListConversations(c.Request.Context(), skip, limit)
	if err != nil {
		serverError(c, "Failed to list conversations", err)
		return
	}

	out := make([]models.ConversationResponse, 0, len(convos))
	for i := range convos {
		out = append(out, convos[i].Response())
	}
	c.JSON(http.StatusOK, models.ConversationListResponse{
		Conversations: out,
		Total:         total,
	})
}

// Get handles GET /api/conversations/:id.
func (h *ConversationsHandler) Get(c *gin.Context) {
	convo, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, convo.Response())
}

// GetMessages handles GET /api/conversations/:id/messages?limit, ascending
// by created_at.
func (h *ConversationsHandler) GetMessages(c *gin.Context) {
	convo, ok := h.lookup(c)
	if !ok {
		return
	}

	limit := queryInt64(c, "limit", 50)
	msgs, err := h.store.GetMessages(c.Request.Context(), convo.ID.Hex(), limit)
	if err != nil {
		serverError(c, "Failed to load messages", err)
		return
	}

	out := make([]models.MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, msgs[i].Response())
	}
	c.JSON(http.StatusOK, out)
}

// UpdateTitle handles PATCH /api/conversations/:id?title=.
func (h *ConversationsHandler) UpdateTitle(c *gin.Context) {
	title := c.Query("title")
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}

	convo, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := h.store.UpdateConversationTitle(c.Request.Context(), convo.ID.Hex(), title); err != nil {
		serverError(c, "Failed to update title", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Delete handles DELETE /api/conversations/:id, cascading to messages.
func (h *ConversationsHandler) Delete(c *gin.Context) {
	convo, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(c.Request.Context(), convo.ID.Hex()); err != nil {
		serverError(c, "Failed to delete conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *ConversationsHandler) lookup(c *gin.Context) (*models.Conversation, bool) {
	convo, err := h.store.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		} else {
			serverError(c, "Failed to load conversation", err)
		}
		return nil, false
	}
	return convo, true
}

func queryInt64(c *gin.Context, key string, defaultValue int64) int64 {
	if value := c.Query(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}
