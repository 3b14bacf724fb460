package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeDocx  FileType = "docx"
	FileTypeXlsx  FileType = "xlsx"
	FileTypeImage FileType = "image"
)

// DefaultTitle is used until a real title is generated from the first message.
const DefaultTitle = "New Chat"

type Conversation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Title        string             `bson:"title" json:"title"`
	MessageCount int                `bson:"message_count" json:"message_count"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// FileMetadata is the file-reference summary embedded in a Message. The raw
// payload lives in the files collection, addressed by FileID.
type FileMetadata struct {
	Filename    string   `bson:"filename" json:"filename"`
	ContentType string   `bson:"content_type" json:"content_type"`
	Size        int64    `bson:"size" json:"size"`
	FileType    FileType `bson:"file_type" json:"file_type"`
	FileID      string   `bson:"file_id" json:"file_id"`
}

type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Role           MessageRole        `bson:"role" json:"role"`
	Content        string             `bson:"content" json:"content"`
	Files          []FileMetadata     `bson:"files" json:"files"`
	TokenCount     int                `bson:"token_count" json:"token_count"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// File is the stored upload: metadata, extracted text when the type yields
// any, and the raw bytes. ExtractedText is nil for images; extraction
// failures leave a placeholder string instead.
type File struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ConversationID string             `bson:"conversation_id"`
	Filename       string             `bson:"filename"`
	ContentType    string             `bson:"content_type"`
	Size           int64              `bson:"size"`
	FileType       FileType           `bson:"file_type"`
	ExtractedText  *string            `bson:"extracted_text"`
	FileData       []byte             `bson:"file_data,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
}

// FileText pairs a filename with its extracted text for prompt building.
type FileText struct {
	Filename string
	Text     string
}

// ImageData pairs a filename with a data-URI encoded image.
type ImageData struct {
	Filename string
	DataURL  string
}

type ConversationResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	Total         int64                  `json:"total"`
}

type MessageResponse struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           MessageRole    `json:"role"`
	Content        string         `json:"content"`
	Files          []FileMetadata `json:"files"`
	TokenCount     int            `json:"token_count"`
	CreatedAt      time.Time      `json:"created_at"`
}

type ChatSimpleResponse struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Tokens         int    `json:"tokens"`
}

type FileInfoResponse struct {
	ID               string   `json:"id"`
	Filename         string   `json:"filename"`
	ContentType      string   `json:"content_type"`
	Size             int64    `json:"size"`
	FileType         FileType `json:"file_type"`
	HasExtractedText bool     `json:"has_extracted_text"`
}

type FileTextResponse struct {
	Filename      string `json:"filename"`
	ExtractedText string `json:"extracted_text"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	MongoDB string `json:"mongodb"`
	Redis   string `json:"redis"`
}

func (c *Conversation) Response() ConversationResponse {
	return ConversationResponse{
		ID:           c.ID.Hex(),
		Title:        c.Title,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (m *Message) Response() MessageResponse {
	files := m.Files
	if files == nil {
		files = []FileMetadata{}
	}
	return MessageResponse{
		ID:             m.ID.Hex(),
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		Files:          files,
		TokenCount:     m.TokenCount,
		CreatedAt:      m.CreatedAt,
	}
}

func (f *File) InfoResponse() FileInfoResponse {
	return FileInfoResponse{
		ID:               f.ID.Hex(),
		Filename:         f.Filename,
		ContentType:      f.ContentType,
		Size:             f.Size,
		FileType:         f.FileType,
		HasExtractedText: f.ExtractedText != nil && *f.ExtractedText != "",
	}
}
