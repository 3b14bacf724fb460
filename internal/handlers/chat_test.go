package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"conversa-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testFile struct {
	name        string
	contentType string
	data        []byte
}

func newChatRouter(h *ChatHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/chat/send", h.SendMessage)
	r.POST("/api/chat/send-simple", h.SendSimple)
	return r
}

func multipartBody(t *testing.T, message, conversationID string, files []testFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("message", message))
	if conversationID != "" {
		require.NoError(t, w.WriteField("conversation_id", conversationID))
	}
	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		if f.contentType != "" {
			header.Set("Content-Type", f.contentType)
		}
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func sendRequest(t *testing.T, router *gin.Engine, path, message, conversationID string, files []testFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, message, conversationID, files)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSendMessageRateLimited(t *testing.T) {
	h := NewChatHandler(newFakeStore(), &fakeLimiter{allow: false}, &fakeCompletions{}, 10)
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "Hello", "", nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSendMessageMissingMessage(t *testing.T) {
	h := NewChatHandler(newFakeStore(), &fakeLimiter{allow: true}, &fakeCompletions{}, 10)
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageConversationNotFound(t *testing.T) {
	h := NewChatHandler(newFakeStore(), &fakeLimiter{allow: true}, &fakeCompletions{}, 10)
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "Hello", "65a000000000000000000000", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageStreamsTokensAndPersists(t *testing.T) {
	store := newFakeStore()
	completions := &fakeCompletions{
		streamTokens: []string{"Hello", " there"},
		title:        "Friendly Greeting",
	}
	h := NewChatHandler(store, &fakeLimiter{allow: true}, completions, 10)
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "Hello", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "event:token")
	assert.Contains(t, body, `data:{"token":"Hello"}`)
	assert.Contains(t, body, `data:{"token":" there"}`)
	assert.Contains(t, body, "event:done")

	require.Len(t, store.conversations, 1)
	var convoID string
	for id, convo := range store.conversations {
		convoID = id
		// First message triggered title generation.
		assert.Equal(t, "Friendly Greeting", convo.Title)
		assert.Equal(t, 2, convo.MessageCount)
	}
	assert.Contains(t, body, convoID)

	msgs := store.messages[convoID]
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello there", msgs[1].Content)
	assert.Equal(t, 1, completions.titleCalls)

	// The just-stored user message is excluded from prompt history.
	assert.Empty(t, completions.lastHistory)
}

func TestSendMessageTitleOnlyOnFirstMessage(t *testing.T) {
	store := newFakeStore()
	convo, err := store.CreateConversation(context.Background(), "")
	require.NoError(t, err)
	_, err = store.AddMessage(context.Background(), convo.ID.Hex(), models.RoleUser, "earlier", nil, 0)
	require.NoError(t, err)

	completions := &fakeCompletions{streamTokens: []string{"ok"}}
	h := NewChatHandler(store, &fakeLimiter{allow: true}, completions, 10)
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "again", convo.ID.Hex(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, completions.titleCalls)
	// History passed to the prompt holds the prior message only.
	require.Len(t, completions.lastHistory, 1)
	assert.Equal(t, "earlier", completions.lastHistory[0].Content)
}

func TestSendMessageStreamErrorDiscardsPartialReply(t *testing.T) {
	store := newFakeStore()
	completions := &fakeCompletions{
		streamTokens: []string{"partial"},
		streamErr:    errors.New("provider exploded"),
	}
	h := NewChatHandler(store, &fakeLimiter{allow: true}, completions, 10)
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "Hello", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data:{"token":"partial"}`)
	assert.Contains(t, body, "event:error")
	assert.Contains(t, body, "provider exploded")
	assert.NotContains(t, body, "event:done")

	// Only the user message was persisted.
	for id := range store.conversations {
		msgs := store.messages[id]
		require.Len(t, msgs, 1)
		assert.Equal(t, models.RoleUser, msgs[0].Role)
	}
}

func TestSendMessageOversizedFileRejectedBeforeWrites(t *testing.T) {
	store := newFakeStore()
	convo, err := store.CreateConversation(context.Background(), "")
	require.NoError(t, err)

	h := NewChatHandler(store, &fakeLimiter{allow: true}, &fakeCompletions{}, 1)
	big := testFile{name: "big.pdf", contentType: "application/pdf", data: make([]byte, 2<<20)}
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "Hello", convo.ID.Hex(), []testFile{big})

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, store.messages[convo.ID.Hex()])
	assert.Empty(t, store.files)
	assert.Equal(t, 0, store.conversations[convo.ID.Hex()].MessageCount)
}

func TestSendMessageWithImageUpload(t *testing.T) {
	store := newFakeStore()
	completions := &fakeCompletions{streamTokens: []string{"A tiny image."}, title: "Image Chat"}
	h := NewChatHandler(store, &fakeLimiter{allow: true}, completions, 10)

	img := testFile{name: "pixel.png", contentType: "image/png", data: pngBytes(t)}
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "What is this?", "", []testFile{img})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, completions.lastImages, 1)
	assert.Contains(t, completions.lastImages[0].DataURL, "data:image/png;base64,")

	require.Len(t, store.files, 1)
	for _, f := range store.files {
		assert.Equal(t, models.FileTypeImage, f.FileType)
		assert.Nil(t, f.ExtractedText)
		assert.Equal(t, img.data, f.FileData)
	}

	// The stored user message carries the file summary, round-trippable
	// through GetMessages.
	for id := range store.conversations {
		msgs, err := store.GetMessages(context.Background(), id, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		require.Len(t, msgs[0].Files, 1)
		assert.Equal(t, "pixel.png", msgs[0].Files[0].Filename)
		assert.Equal(t, models.FileTypeImage, msgs[0].Files[0].FileType)
		assert.NotEmpty(t, msgs[0].Files[0].FileID)
	}
}

func TestSendMessageImageWithoutContentType(t *testing.T) {
	store := newFakeStore()
	completions := &fakeCompletions{streamTokens: []string{"ok"}, title: "Image Chat"}
	h := NewChatHandler(store, &fakeLimiter{allow: true}, completions, 10)

	// No Content-Type on the part: encoding falls back to image/png.
	img := testFile{name: "pixel.png", data: pngBytes(t)}
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "What is this?", "", []testFile{img})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, completions.lastImages, 1)
	assert.True(t, strings.HasPrefix(completions.lastImages[0].DataURL, "data:image/png;base64,"),
		"got %q", completions.lastImages[0].DataURL)
}

func TestSendMessageInvalidImageRejected(t *testing.T) {
	store := newFakeStore()
	h := NewChatHandler(store, &fakeLimiter{allow: true}, &fakeCompletions{}, 10)

	bad := testFile{name: "photo.png", contentType: "image/png", data: []byte("not an image")}
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send", "Hello", "", []testFile{bad})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendSimple(t *testing.T) {
	store := newFakeStore()
	completions := &fakeCompletions{
		completeContent: "Hi!",
		completeTokens:  42,
		title:           "Quick Chat",
	}
	h := NewChatHandler(store, &fakeLimiter{allow: true}, completions, 10)
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send-simple", "Hello", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ChatSimpleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hi!", resp.Content)
	assert.Equal(t, 42, resp.Tokens)
	assert.NotEmpty(t, resp.ConversationID)

	msgs := store.messages[resp.ConversationID]
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, 42, msgs[1].TokenCount)
	assert.Equal(t, "Quick Chat", store.conversations[resp.ConversationID].Title)
}

func TestSendSimpleCompletionFailure(t *testing.T) {
	store := newFakeStore()
	convo, err := store.CreateConversation(context.Background(), "Existing")
	require.NoError(t, err)
	_, err = store.AddMessage(context.Background(), convo.ID.Hex(), models.RoleUser, "earlier", nil, 0)
	require.NoError(t, err)

	completions := &fakeCompletions{completeErr: errors.New("provider down")}
	h := NewChatHandler(store, &fakeLimiter{allow: true}, completions, 10)
	rec := sendRequest(t, newChatRouter(h), "/api/chat/send-simple", "Hello", convo.ID.Hex(), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// User message stored, no assistant reply.
	require.Len(t, store.messages[convo.ID.Hex()], 2)
	assert.Equal(t, models.RoleUser, store.messages[convo.ID.Hex()][1].Role)
}
