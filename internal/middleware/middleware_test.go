package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatrelay-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)

	router := gin.New()
	router.Use(handlers...)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (message, errType string) {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Message, body.Error.Type
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		header      string
		wantStatus  int
		wantMessage string
	}{
		{name: "disabled", apiKey: "", header: "", wantStatus: http.StatusOK},
		{name: "valid token", apiKey: "secret", header: "Bearer secret", wantStatus: http.StatusOK},
		{name: "missing header", apiKey: "secret", header: "", wantStatus: http.StatusUnauthorized, wantMessage: "Missing Authorization header"},
		{name: "wrong scheme", apiKey: "secret", header: "Basic secret", wantStatus: http.StatusUnauthorized, wantMessage: "Invalid Authorization header format. Expected: Bearer <token>"},
		{name: "extra parts", apiKey: "secret", header: "Bearer secret extra", wantStatus: http.StatusUnauthorized, wantMessage: "Invalid Authorization header format. Expected: Bearer <token>"},
		{name: "wrong key", apiKey: "secret", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantMessage: "Invalid API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(Auth(tt.apiKey))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantMessage != "" {
				message, errType := decodeError(t, w)
				assert.Equal(t, tt.wantMessage, message)
				assert.Equal(t, "authentication_error", errType)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerMinute: 1, Burst: 2}))

	serve := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, serve("192.168.1.1").Code)
	assert.Equal(t, http.StatusOK, serve("192.168.1.1").Code)

	limited := serve("192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	_, errType := decodeError(t, limited)
	assert.Equal(t, "rate_limit_error", errType)

	assert.Equal(t, http.StatusOK, serve("192.168.1.2").Code)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	router := setupTestRouter(RequestLogger())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	gin.DefaultErrorWriter = io.Discard
	router := setupTestRouter(Recovery())

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	message, errType := decodeError(t, w)
	assert.Equal(t, "Internal server error", message)
	assert.Equal(t, "internal_error", errType)
}
