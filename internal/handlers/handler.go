package handlers

import (
	"context"
	"time"

	"conversa-backend/internal/models"
	"conversa-backend/internal/services"
)

// ConversationStore is the persistence surface the handlers depend on,
// implemented by services.MongoService.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, skip, limit int64) ([]models.Conversation, int64, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id string) error
	AddMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, files []models.FileMetadata, tokenCount int) (*models.Message, error)
	GetMessages(ctx context.Context, conversationID string, limit int64) ([]models.Message, error)
	StoreFile(ctx context.Context, file *models.File) (string, error)
	GetFile(ctx context.Context, id string) (*models.File, error)
}

// RateLimiter gates requests per client key.
type RateLimiter interface {
	Allow(ctx context.Context, clientKey string) bool
}

// Cache is a best-effort string cache.
type Cache interface {
	CacheGet(ctx context.Context, key string) (string, bool)
	CacheSet(ctx context.Context, key, value string, ttl time.Duration)
}

// Completions is the LLM surface, implemented by services.OpenAIService.
type Completions interface {
	ChatStream(ctx context.Context, history []models.Message, userMessage string, fileTexts []models.FileText, images []models.ImageData) (services.TokenStream, error)
	ChatComplete(ctx context.Context, history []models.Message, userMessage string, fileTexts []models.FileText, images []models.ImageData) (string, int, error)
	GenerateTitle(ctx context.Context, firstMessage string) (string, error)
}
