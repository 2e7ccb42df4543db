package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AnTengye/dealflow/config"
	"github.com/AnTengye/dealflow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuth = &config.AuthConfig{
	JWTSecret:        "test-secret-key",
	TokenExpireHours: 24,
}

func TestGenerateToken(t *testing.T) {
	token, expiresAt, err := GenerateToken("alice", "acme-capital", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if token == "" {
		t.Error("Expected non-empty token")
	}

	expectedExpiry := time.Now().Add(24 * time.Hour)
	if expiresAt.Before(expectedExpiry.Add(-time.Minute)) || expiresAt.After(expectedExpiry.Add(time.Minute)) {
		t.Errorf("Expiry time %v is not within expected range of %v", expiresAt, expectedExpiry)
	}

	if _, _, err := GenerateToken("alice", "", testAuth); err == nil {
		t.Error("Expected error for token without tenant")
	}
}

func TestAuthMiddleware(t *testing.T) {
	token, _, err := GenerateToken("alice", "acme-capital", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	noTenant := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noTenantString, _ := noTenant.SignedString([]byte(testAuth.JWTSecret))

	otherSecret, _, _ := GenerateToken("alice", "acme-capital", &config.AuthConfig{JWTSecret: "other", TokenExpireHours: 1})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"invalid format", token, http.StatusUnauthorized},
		{"invalid token", "Bearer invalid.token.here", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + otherSecret, http.StatusUnauthorized},
		{"no tenant", "Bearer " + noTenantString, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(testAuth))
			router.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "ok"})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	token, _, _ := GenerateToken("alice", "acme-capital", testAuth)

	var username, tenant, ctxTenant string
	router := gin.New()
	router.Use(AuthMiddleware(testAuth))
	router.GET("/test", func(c *gin.Context) {
		username = GetUsername(c)
		tenant = GetTenant(c)
		ctxTenant, _ = c.Request.Context().Value(logger.TenantKey).(string)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if username != "alice" {
		t.Errorf("Expected username alice, got %q", username)
	}
	if tenant != "acme-capital" {
		t.Errorf("Expected tenant acme-capital, got %q", tenant)
	}
	if ctxTenant != "acme-capital" {
		t.Errorf("Expected tenant in request context, got %q", ctxTenant)
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	claims := Claims{
		Username: "alice",
		Tenant:   "acme-capital",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(testAuth.JWTSecret))

	router := gin.New()
	router.Use(AuthMiddleware(testAuth))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d for expired token, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestGetUsernameAndTenant(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if GetUsername(c) != "" || GetTenant(c) != "" {
		t.Error("Expected empty strings for unset identity")
	}

	c.Set("username", "alice")
	c.Set("tenant", "acme-capital")
	if GetUsername(c) != "alice" {
		t.Errorf("Expected 'alice', got '%s'", GetUsername(c))
	}
	if GetTenant(c) != "acme-capital" {
		t.Errorf("Expected 'acme-capital', got '%s'", GetTenant(c))
	}
}
