package handler

import (
	"net/http"
	"time"

	"chatrelay-backend/internal/browser"
	"chatrelay-backend/internal/credential"
	"chatrelay-backend/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	serviceName = "chatrelay"
	version     = "1.0.0"
)

type PoolInspector interface {
	Initialized() bool
	Stats() browser.Stats
}

type CredentialInspector interface {
	Status() credential.Status
}

type HealthHandler struct {
	pool        PoolInspector
	credentials CredentialInspector
}

func NewHealthHandler(pool PoolInspector, credentials CredentialInspector) *HealthHandler {
	return &HealthHandler{pool: pool, credentials: credentials}
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Timestamp    string            `json:"timestamp"`
	Initialized  bool              `json:"initialized"`
	Concurrency  browser.Stats     `json:"concurrency"`
	XIsHumanData credential.Status `json:"xIsHumanData"`
}

// Health serves GET /health. It never touches the browser.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		Service:      serviceName,
		Timestamp:    time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Initialized:  h.pool.Initialized(),
		Concurrency:  h.pool.Stats(),
		XIsHumanData: h.credentials.Status(),
	})
}

func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, model.RootResponse{
		Message:     "ChatRelay - OpenAI-compatible chat API relay",
		Version:     version,
		Description: "Relays OpenAI chat completion requests through a headless browser session",
		Endpoints: model.EndpointMap{
			Chat:   "/v1/chat/completions",
			Models: "/v1/models",
			Health: "/health",
		},
	})
}
