package services

import (
	"context"
	"fmt"
	"strings"

	"conversa-backend/internal/models"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a helpful AI assistant. You can discuss text, analyze documents, " +
	"describe images, and answer questions about uploaded files. Be concise, accurate, and helpful. " +
	"When analyzing files, reference specific content from them."

const titlePrompt = "Generate a short title (max 6 words) for a conversation that starts with " +
	"the following message. Reply with only the title, no quotes."

const (
	// Only the most recent history entries go into the prompt.
	maxHistoryMessages  = 20
	maxCompletionTokens = 4096
	maxTitleInputChars  = 500
)

// TokenStream yields completion text fragments until io.EOF.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

type OpenAIService struct {
	client     *openai.Client
	model      string
	titleModel string
}

func NewOpenAIService(apiKey, model, titleModel string) *OpenAIService {
	return &OpenAIService{
		client:     openai.NewClient(apiKey),
		model:      model,
		titleModel: titleModel,
	}
}

// BuildMessages assembles the completion prompt: the fixed system
// instruction, the last 20 history entries (role and content only), then one
// user turn holding extracted file texts, inline images and the new message.
func (s *OpenAIService) BuildMessages(history []models.Message, userMessage string, fileTexts []models.FileText, images []models.ImageData) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}

	start := 0
	if len(history) > maxHistoryMessages {
		start = len(history) - maxHistoryMessages
	}
	for _, msg := range history[start:] {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	return append(messages, buildUserMessage(userMessage, fileTexts, images))
}

func buildUserMessage(userMessage string, fileTexts []models.FileText, images []models.ImageData) openai.ChatCompletionMessage {
	if len(fileTexts) == 0 && len(images) == 0 {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		}
	}

	var parts []openai.ChatMessagePart
	for _, ft := range fileTexts {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: fmt.Sprintf("[File: %s]\n%s", ft.Filename, ft.Text),
		})
	}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: userMessage,
	})

	return openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}
}

// ChatStream opens a streaming completion. Provider errors propagate to the
// caller untouched.
func (s *OpenAIService) ChatStream(ctx context.Context, history []models.Message, userMessage string, fileTexts []models.FileText, images []models.ImageData) (TokenStream, error) {
	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    s.BuildMessages(history, userMessage, fileTexts, images),
		MaxTokens:   maxCompletionTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}
	return &openaiTokenStream{stream: stream}, nil
}

type openaiTokenStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next non-empty text fragment, io.EOF at end of stream.
func (t *openaiTokenStream) Recv() (string, error) {
	for {
		resp, err := t.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (t *openaiTokenStream) Close() error {
	t.stream.Close()
	return nil
}

// ChatComplete is the one-shot variant. The token count is zero when the
// provider omits usage reporting.
func (s *OpenAIService) ChatComplete(ctx context.Context, history []models.Message, userMessage string, fileTexts []models.FileText, images []models.ImageData) (string, int, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    s.BuildMessages(history, userMessage, fileTexts, images),
		MaxTokens:   maxCompletionTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage.TotalTokens, nil
	}
	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}

// GenerateTitle asks the cheaper title model for a short conversation title
// based on the first user message.
func (s *OpenAIService) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	firstMessage = truncateRunes(firstMessage, maxTitleInputChars)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.titleModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titlePrompt},
			{Role: openai.ChatMessageRoleUser, Content: firstMessage},
		},
		MaxTokens:   20,
		Temperature: 0.5,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return models.DefaultTitle, nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
