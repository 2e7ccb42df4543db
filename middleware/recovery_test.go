package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery())
	router.GET("/panic", func(c *gin.Context) {
		panic("nil deal")
	})
	router.GET("/normal", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	t.Run("panic recovery", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/panic", nil)
		req.Header.Set("X-Request-ID", "req-42")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", w.Code)
		}

		var body map[string]string
		json.Unmarshal(w.Body.Bytes(), &body)
		if body["error"] != "Internal server error" {
			t.Errorf("Expected error message in response, got %v", body)
		}
		if body["request_id"] != "req-42" {
			t.Errorf("Expected request_id req-42, got %q", body["request_id"])
		}

		logOutput := buf.String()
		if !strings.Contains(logOutput, "panic recovered") || !strings.Contains(logOutput, "request_id=req-42") {
			t.Errorf("Expected tagged panic log, got %s", logOutput)
		}
	})

	t.Run("normal request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/normal", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}
