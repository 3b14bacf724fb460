package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conversa-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned for lookups whose identifier is malformed or does
// not resolve to a stored document.
var ErrNotFound = errors.New("not found")

const defaultMessageLimit = 50

// MongoService owns the database handle and exposes CRUD over the
// conversations, messages and files collections.
type MongoService struct {
	client        *mongo.Client
	conversations *mongo.Collection
	messages      *mongo.Collection
	files         *mongo.Collection
}

func NewMongoService(ctx context.Context, uri, dbName string) (*MongoService, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoService{
		client:        client,
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		files:         db.Collection("files"),
	}

	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("failed to create conversations index: %w", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("failed to create messages index: %w", err)
	}
	return s, nil
}

func (s *MongoService) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoService) Ping(ctx context.Context) bool {
	return s.client.Ping(ctx, nil) == nil
}

func (s *MongoService) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	if title == "" {
		title = models.DefaultTitle
	}
	now := time.Now().UTC()
	convo := &models.Conversation{
		Title:        title,
		MessageCount: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := s.conversations.InsertOne(ctx, convo)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	convo.ID = result.InsertedID.(primitive.ObjectID)
	return convo, nil
}

func (s *MongoService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var convo models.Conversation
	err = s.conversations.FindOne(ctx, bson.M{"_id": oid}).Decode(&convo)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &convo, nil
}

// ListConversations returns a page ordered by updated_at descending plus the
// total conversation count.
func (s *MongoService) ListConversations(ctx context.Context, skip, limit int64) ([]models.Conversation, int64, error) {
	total, err := s.conversations.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cursor, err := s.conversations.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var convos []models.Conversation
	if err := cursor.All(ctx, &convos); err != nil {
		return nil, 0, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return convos, total, nil
}

func (s *MongoService) UpdateConversationTitle(ctx context.Context, id, title string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	_, err = s.conversations.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"title": title, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation and all of its messages. File
// records are intentionally left in place.
func (s *MongoService) DeleteConversation(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	if _, err := s.messages.DeleteMany(ctx, bson.M{"conversation_id": oid.Hex()}); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := s.conversations.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// AddMessage appends a message and, as a side effect, increments the parent
// conversation's message_count and refreshes updated_at.
func (s *MongoService) AddMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, files []models.FileMetadata, tokenCount int) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, ErrNotFound
	}

	if files == nil {
		files = []models.FileMetadata{}
	}
	now := time.Now().UTC()
	msg := &models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Files:          files,
		TokenCount:     tokenCount,
		CreatedAt:      now,
	}

	result, err := s.messages.InsertOne(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	msg.ID = result.InsertedID.(primitive.ObjectID)

	_, err = s.conversations.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$inc": bson.M{"message_count": 1},
		"$set": bson.M{"updated_at": now},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation counters: %w", err)
	}
	return msg, nil
}

// GetMessages returns up to limit messages ascending by created_at. A limit
// of zero or less falls back to the default cap of 50.
func (s *MongoService) GetMessages(ctx context.Context, conversationID string, limit int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(limit)
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer cursor.Close(ctx)

	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return msgs, nil
}

func (s *MongoService) StoreFile(ctx context.Context, file *models.File) (string, error) {
	file.CreatedAt = time.Now().UTC()
	result, err := s.files.InsertOne(ctx, file)
	if err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	oid := result.InsertedID.(primitive.ObjectID)
	file.ID = oid
	return oid.Hex(), nil
}

func (s *MongoService) GetFile(ctx context.Context, id string) (*models.File, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var file models.File
	err = s.files.FindOne(ctx, bson.M{"_id": oid}).Decode(&file)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}
