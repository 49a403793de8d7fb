package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatrelay-backend/internal/model"
	"chatrelay-backend/internal/usage"
	"chatrelay-backend/internal/utils"
	"chatrelay-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const messagesRequired = "messages field is required and must be a non-empty array"

// Executor runs a chat against the upstream. It is implemented by
// service.ChatService.
type Executor interface {
	Execute(ctx context.Context, messages []model.ChatMessage, modelName, requestID string) (string, error)
	ExecuteStreaming(ctx context.Context, messages []model.ChatMessage, modelName, requestID string) (<-chan string, <-chan error)
}

type ChatHandler struct {
	executor     Executor
	counter      usage.Counter
	defaultModel string
	log          *logrus.Entry
}

func NewChatHandler(executor Executor, counter usage.Counter, defaultModel string) *ChatHandler {
	if counter == nil {
		counter = usage.EstimateCounter{}
	}
	return &ChatHandler{
		executor:     executor,
		counter:      counter,
		defaultModel: defaultModel,
		log:          logger.WithComponent("chat-handler"),
	}
}

// ChatCompletions serves POST /v1/chat/completions.
func (h *ChatHandler) ChatCompletions(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(err.Error(), model.ErrorTypeInvalidRequest))
		return
	}

	messages := gjson.GetBytes(raw, "messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(messagesRequired, model.ErrorTypeInvalidRequest))
		return
	}

	var req model.ChatCompletionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(err.Error(), model.ErrorTypeInvalidRequest))
		return
	}
	if req.Model == "" {
		req.Model = h.defaultModel
	}

	h.log.WithFields(logrus.Fields{
		"model":    req.Model,
		"messages": len(req.Messages),
		"stream":   req.Stream,
	}).Info("chat completion requested")

	id := fmt.Sprintf("chatcmpl-%d", time.Now().UnixMilli())
	created := time.Now().Unix()

	if req.Stream {
		h.stream(c, &req, id, created)
		return
	}
	h.complete(c, &req, id, created)
}

func (h *ChatHandler) complete(c *gin.Context, req *model.ChatCompletionRequest, id string, created int64) {
	content, err := h.executor.Execute(c.Request.Context(), req.Messages, req.Model, req.ConversationID)
	if err != nil {
		h.log.Errorf("API call failed: %v", err)
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(err.Error(), model.ErrorTypeAPI))
		return
	}

	c.JSON(http.StatusOK, openai.ChatCompletionResponse{
		ID:      id,
		Object:  model.ObjectChatCompletion,
		Created: created,
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    model.RoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: usage.Compute(h.counter, req.Messages, content),
	})
}

func (h *ChatHandler) stream(c *gin.Context, req *model.ChatCompletionRequest, id string, created int64) {
	chunks := utils.NewChunkStream(c.Writer, id, req.Model, created)
	c.Status(http.StatusOK)

	fragments, errc := h.executor.ExecuteStreaming(c.Request.Context(), req.Messages, req.Model, req.ConversationID)

	var full strings.Builder
	for fragment := range fragments {
		full.WriteString(fragment)
		_ = chunks.Delta(fragment)
	}
	if err := chunks.Err(); err != nil {
		h.log.Warnf("client went away during stream: %v", err)
	}

	if err := <-errc; err != nil {
		h.log.Errorf("Streaming API call failed: %v", err)
		_ = chunks.Fail(err.Error(), model.ErrorTypeAPI)
		return
	}

	_ = chunks.Finish(usage.Compute(h.counter, req.Messages, full.String()))

	h.log.Infof("Streaming response completed, content length: %d", full.Len())
}
