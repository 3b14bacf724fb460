package handlers

import (
	"context"
	"io"
	"sort"
	"time"

	"conversa-backend/internal/models"
	"conversa-backend/internal/services"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStore struct {
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
	files         map[string]*models.File
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		files:         make(map[string]*models.File),
	}
}

func (s *fakeStore) CreateConversation(_ context.Context, title string) (*models.Conversation, error) {
	if title == "" {
		title = models.DefaultTitle
	}
	now := time.Now().UTC()
	convo := &models.Conversation{
		ID:        primitive.NewObjectID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[convo.ID.Hex()] = convo
	return convo, nil
}

func (s *fakeStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	convo, ok := s.conversations[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return convo, nil
}

func (s *fakeStore) ListConversations(_ context.Context, skip, limit int64) ([]models.Conversation, int64, error) {
	all := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	total := int64(len(all))
	if skip >= total {
		return nil, total, nil
	}
	all = all[skip:]
	if int64(len(all)) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *fakeStore) UpdateConversationTitle(_ context.Context, id, title string) error {
	if convo, ok := s.conversations[id]; ok {
		convo.Title = title
		convo.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *fakeStore) DeleteConversation(_ context.Context, id string) error {
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *fakeStore) AddMessage(_ context.Context, conversationID string, role models.MessageRole, content string, files []models.FileMetadata, tokenCount int) (*models.Message, error) {
	if files == nil {
		files = []models.FileMetadata{}
	}
	now := time.Now().UTC()
	msg := models.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Files:          files,
		TokenCount:     tokenCount,
		CreatedAt:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	if convo, ok := s.conversations[conversationID]; ok {
		convo.MessageCount++
		convo.UpdatedAt = now
	}
	return &msg, nil
}

func (s *fakeStore) GetMessages(_ context.Context, conversationID string, limit int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs := s.messages[conversationID]
	if int64(len(msgs)) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *fakeStore) StoreFile(_ context.Context, file *models.File) (string, error) {
	file.ID = primitive.NewObjectID()
	file.CreatedAt = time.Now().UTC()
	s.files[file.ID.Hex()] = file
	return file.ID.Hex(), nil
}

func (s *fakeStore) GetFile(_ context.Context, id string) (*models.File, error) {
	file, ok := s.files[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return file, nil
}

type fakeLimiter struct {
	allow bool
}

func (l *fakeLimiter) Allow(context.Context, string) bool { return l.allow }

type fakeCache struct {
	values map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (c *fakeCache) CacheGet(_ context.Context, key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *fakeCache) CacheSet(_ context.Context, key, value string, _ time.Duration) {
	c.values[key] = value
}

// fakeTokenStream yields the configured tokens, then err (io.EOF by default).
type fakeTokenStream struct {
	tokens []string
	err    error
	pos    int
}

func (s *fakeTokenStream) Recv() (string, error) {
	if s.pos >= len(s.tokens) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, nil
}

func (s *fakeTokenStream) Close() error { return nil }

type fakeCompletions struct {
	streamTokens []string
	streamErr    error
	openErr      error

	completeContent string
	completeTokens  int
	completeErr     error

	title    string
	titleErr error

	// captured inputs
	lastHistory   []models.Message
	lastFileTexts []models.FileText
	lastImages    []models.ImageData
	titleCalls    int
}

func (f *fakeCompletions) ChatStream(_ context.Context, history []models.Message, _ string, fileTexts []models.FileText, images []models.ImageData) (services.TokenStream, error) {
	f.lastHistory = history
	f.lastFileTexts = fileTexts
	f.lastImages = images
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeTokenStream{tokens: f.streamTokens, err: f.streamErr}, nil
}

func (f *fakeCompletions) ChatComplete(_ context.Context, history []models.Message, _ string, fileTexts []models.FileText, images []models.ImageData) (string, int, error) {
	f.lastHistory = history
	f.lastFileTexts = fileTexts
	f.lastImages = images
	return f.completeContent, f.completeTokens, f.completeErr
}

func (f *fakeCompletions) GenerateTitle(context.Context, string) (string, error) {
	f.titleCalls++
	if f.titleErr != nil {
		return "", f.titleErr
	}
	if f.title == "" {
		return models.DefaultTitle, nil
	}
	return f.title, nil
}
