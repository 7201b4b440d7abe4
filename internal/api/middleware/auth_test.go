package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/gateway/internal/shared/token"
)

const secret = "unit-secret"

func serve(t *testing.T, handler gin.HandlerFunc, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", handler, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": c.GetString(TenantKey)})
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireSecret(t *testing.T) {
	w := serve(t, RequireSecret(secret), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(t, RequireSecret(secret), func(r *http.Request) {
		r.Header.Set("X-Secret-Key", "wrong")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(t, RequireSecret(secret), func(r *http.Request) {
		r.Header.Set("X-Secret-Key", secret)
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireSecretRejectsAllWhenUnconfigured(t *testing.T) {
	w := serve(t, RequireSecret(""), func(r *http.Request) {
		r.Header.Set("X-Secret-Key", "")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireToken(t *testing.T) {
	now := time.Now().UTC()
	tok, err := token.Mint([]byte(secret), token.Claims{
		TenantID:  "acme",
		User:      "919876543210",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	// Secret alone is not enough.
	w := serve(t, RequireToken(secret), func(r *http.Request) {
		r.Header.Set("X-Secret-Key", secret)
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Bearer alone is not enough.
	w = serve(t, RequireToken(secret), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(t, RequireToken(secret), func(r *http.Request) {
		r.Header.Set("X-Secret-Key", secret)
		r.Header.Set("Authorization", "Bearer "+tok)
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "acme")
}
