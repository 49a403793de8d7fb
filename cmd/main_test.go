package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatrelay-backend/internal/browser"
	"chatrelay-backend/internal/config"
	"chatrelay-backend/internal/credential"
	"chatrelay-backend/internal/handler"
	"chatrelay-backend/internal/model"
	"chatrelay-backend/internal/storage"
	"chatrelay-backend/internal/usage"
	"chatrelay-backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, messages []model.ChatMessage, modelName, requestID string) (string, error) {
	return "ok", nil
}

func (stubExecutor) ExecuteStreaming(ctx context.Context, messages []model.ChatMessage, modelName, requestID string) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error)
	close(out)
	close(errc)
	return out, errc
}

type stubPool struct{}

func (stubPool) Initialized() bool    { return false }
func (stubPool) Stats() browser.Stats { return browser.Stats{Mode: "unlimited"} }

type stubCredentials struct{}

func (stubCredentials) Status() credential.Status { return credential.Status{} }

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	logger.SetOutput(io.Discard)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Auth.APIKey = apiKey

	return setupRouter(cfg,
		handler.NewChatHandler(stubExecutor{}, usage.EstimateCounter{}, cfg.API.DefaultModel),
		handler.NewModelHandler(cfg.API.Models),
		handler.NewHealthHandler(stubPool{}, stubCredentials{}),
	)
}

func TestRoutes(t *testing.T) {
	router := newTestRouter(t, "secret")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		auth       string
		wantStatus int
	}{
		{name: "root", method: http.MethodGet, path: "/", wantStatus: http.StatusOK},
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "models without auth", method: http.MethodGet, path: "/v1/models", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "chat without auth", method: http.MethodPost, path: "/v1/chat/completions", body: `{"messages":[{"role":"user","content":"hi"}]}`, wantStatus: http.StatusUnauthorized},
		{name: "chat with auth", method: http.MethodPost, path: "/v1/chat/completions", body: `{"messages":[{"role":"user","content":"hi"}]}`, auth: "Bearer secret", wantStatus: http.StatusOK},
		{name: "unknown", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewTokenStore(t *testing.T) {
	store, err := newTokenStore(config.CredentialConfig{Store: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStorage{}, store)

	store, err = newTokenStore(config.CredentialConfig{Store: "disk", DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &storage.DiskStorage{}, store)

	_, err = newTokenStore(config.CredentialConfig{Store: "redis"})
	assert.Error(t, err)
}
