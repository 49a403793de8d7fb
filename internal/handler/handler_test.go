package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatrelay-backend/internal/browser"
	"chatrelay-backend/internal/config"
	"chatrelay-backend/internal/credential"
	"chatrelay-backend/internal/model"
	"chatrelay-backend/internal/usage"
	"chatrelay-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	content   string
	fragments []string
	err       error

	gotMessages  []model.ChatMessage
	gotModel     string
	gotRequestID string
}

func (f *fakeExecutor) Execute(ctx context.Context, messages []model.ChatMessage, modelName, requestID string) (string, error) {
	f.gotMessages, f.gotModel, f.gotRequestID = messages, modelName, requestID
	return f.content, f.err
}

func (f *fakeExecutor) ExecuteStreaming(ctx context.Context, messages []model.ChatMessage, modelName, requestID string) (<-chan string, <-chan error) {
	f.gotMessages, f.gotModel, f.gotRequestID = messages, modelName, requestID
	out := make(chan string, len(f.fragments))
	errc := make(chan error, 1)
	for _, fr := range f.fragments {
		out <- fr
	}
	if f.err != nil {
		errc <- f.err
	}
	close(out)
	close(errc)
	return out, errc
}

func setupRouter(exec Executor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)

	router := gin.New()
	h := NewChatHandler(exec, usage.EstimateCounter{}, "anthropic/claude-4.5-sonnet")
	router.POST("/v1/chat/completions", h.ChatCompletions)
	return router
}

func post(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// sseEvents returns the payload of every data line.
func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestChatCompletionsRejectsMissingMessages(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"messages":[]}`,
		`{"messages":"hello"}`,
		`{"messages":null}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			exec := &fakeExecutor{}
			w := post(setupRouter(exec), body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":{"message":"messages field is required and must be a non-empty array","type":"invalid_request_error"}}`, w.Body.String())
			assert.Nil(t, exec.gotMessages)
		})
	}
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	exec := &fakeExecutor{content: "Hi there"}
	w := post(setupRouter(exec), `{"messages":[{"role":"user","content":"Hello"}],"conversation_id":"conv-1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anthropic/claude-4.5-sonnet", exec.gotModel)
	assert.Equal(t, "conv-1", exec.gotRequestID)
	require.Len(t, exec.gotMessages, 1)

	var resp openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "anthropic/claude-4.5-sonnet", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "Hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, openai.FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, openai.Usage{PromptTokens: 2, CompletionTokens: 2, TotalTokens: 4}, resp.Usage)
}

func TestChatCompletionsNonStreamingError(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("API call exception: HTTP 500")}
	w := post(setupRouter(exec), `{"model":"openai/gpt-5","messages":[{"role":"user","content":"Hello"}]}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "openai/gpt-5", exec.gotModel)
	assert.JSONEq(t, `{"error":{"message":"API call exception: HTTP 500","type":"api_error"}}`, w.Body.String())
}

func TestChatCompletionsStreaming(t *testing.T) {
	exec := &fakeExecutor{fragments: []string{"Hi", " there"}}
	w := post(setupRouter(exec), `{"stream":true,"messages":[{"role":"user","content":[{"type":"text","text":"Hello"}]}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, "[DONE]", events[3])

	var contents []string
	for _, ev := range events[:2] {
		var chunk openai.ChatCompletionStreamResponse
		require.NoError(t, json.Unmarshal([]byte(ev), &chunk))
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		assert.Nil(t, chunk.Usage)
		contents = append(contents, chunk.Choices[0].Delta.Content)
	}
	assert.Equal(t, []string{"Hi", " there"}, contents)
	assert.Contains(t, events[0], `"finish_reason":null`)

	var final openai.ChatCompletionStreamResponse
	require.NoError(t, json.Unmarshal([]byte(events[2]), &final))
	assert.Equal(t, openai.FinishReasonStop, final.Choices[0].FinishReason)
	assert.Empty(t, final.Choices[0].Delta.Content)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 4, final.Usage.TotalTokens)
}

func TestChatCompletionsStreamingError(t *testing.T) {
	exec := &fakeExecutor{fragments: []string{"partial"}, err: errors.New("API call exception: network error")}
	w := post(setupRouter(exec), `{"stream":true,"messages":[{"role":"user","content":"Hello"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 2)
	assert.Contains(t, events[0], `"content":"partial"`)
	assert.JSONEq(t, `{"error":{"message":"API call exception: network error","type":"api_error"}}`, events[1])
	assert.NotContains(t, w.Body.String(), "[DONE]")
}

func TestListModels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/models", NewModelHandler([]config.ModelConfig{
		{ID: "openai/gpt-5", OwnedBy: "cursor"},
		{ID: "xai/grok-4", OwnedBy: "cursor"},
	}).ListModels)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list model.ModelList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "openai/gpt-5", list.Data[0].ID)
	assert.Equal(t, "model", list.Data[0].Object)
	assert.Equal(t, "cursor", list.Data[0].OwnedBy)
	assert.NotZero(t, list.Data[0].CreatedAt)
}

type fakePool struct{}

func (fakePool) Initialized() bool { return true }
func (fakePool) Stats() browser.Stats {
	return browser.Stats{ActiveContexts: 2, TotalCreated: 7, Mode: "unlimited"}
}

type fakeCredentials struct{}

func (fakeCredentials) Status() credential.Status {
	return credential.Status{URL: "https://example.com/c.js", HasLatestE: false}
}

func TestHealthAndRoot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHealthHandler(fakePool{}, fakeCredentials{})
	router.GET("/health", h.Health)
	router.GET("/", h.Root)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, true, health["initialized"])
	assert.NotEmpty(t, health["timestamp"])
	assert.Equal(t, map[string]interface{}{
		"activeContexts": float64(2),
		"totalCreated":   float64(7),
		"mode":           "unlimited",
		"maxSessions":    float64(0),
	}, health["concurrency"])
	assert.Equal(t, false, health["xIsHumanData"].(map[string]interface{})["hasLatestE"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var root model.RootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))
	assert.Equal(t, "/v1/chat/completions", root.Endpoints.Chat)
	assert.Equal(t, "/v1/models", root.Endpoints.Models)
	assert.Equal(t, "/health", root.Endpoints.Health)
}
