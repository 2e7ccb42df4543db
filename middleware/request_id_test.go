package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AnTengye/dealflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

func TestRequestIDMiddleware(t *testing.T) {
	var ctxID string
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		ctxID, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	responseID := w.Header().Get("X-Request-ID")
	if responseID == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
	if ctxID != responseID {
		t.Errorf("Expected request context id %q, got %q", responseID, ctxID)
	}
}

func TestRequestIDMiddlewareWithExistingID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})

	tests := []struct {
		name    string
		header  string
		keepsID bool
	}{
		{"plain id", "existing-request-id-123", true},
		{"too long", strings.Repeat("x", maxRequestIDLength+1), false},
		{"contains space", "abc def", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("X-Request-ID", tt.header)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			responseID := w.Header().Get("X-Request-ID")
			if (responseID == tt.header) != tt.keepsID {
				t.Errorf("Header %q: unexpected response id %q", tt.header, responseID)
			}
			if responseID == "" {
				t.Error("Expected a request id")
			}
		})
	}
}

func TestGetRequestIDEmpty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if requestID := GetRequestID(c); requestID != "" {
		t.Errorf("Expected empty string, got '%s'", requestID)
	}
}
