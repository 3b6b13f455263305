package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-filing/internal/config"
	"github.com/smallbiznis/valora-filing/internal/middleware"
)

func engine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

// verifiedAs stands in for the API key guard and records the key id it resolved.
func verifiedAs(c *gin.Context) {
	if id := c.GetHeader("X-Test-Key-ID"); id != "" {
		c.Set("api_key_id", id)
	}
	c.Next()
}

func TestRateLimiterPerCaller(t *testing.T) {
	r := engine(verifiedAs, middleware.NewRateLimiter(10).Handler())

	call := func(keyID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Test-Key-ID", keyID)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, call("a").Code)
	limited := call("a")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.NotEmpty(t, limited.Header().Get("Retry-After"))
	require.Equal(t, http.StatusOK, call("b").Code)
}

func TestRateLimiterIgnoresUnverifiedCredentials(t *testing.T) {
	r := engine(verifiedAs, middleware.NewRateLimiter(10).Handler())

	call := func(header, value string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(header, value)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	// Rotating raw secrets from one address shares the address budget.
	require.Equal(t, http.StatusOK, call("X-API-Key", "vf_01.first"))
	require.Equal(t, http.StatusTooManyRequests, call("X-API-Key", "vf_01.second"))
	require.Equal(t, http.StatusTooManyRequests, call("Authorization", "Bearer vf_02.third"))
}

func TestRateLimiterDisabled(t *testing.T) {
	require.Nil(t, middleware.NewRateLimiter(0))
	r := engine(middleware.NewRateLimiter(0).Handler())
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCORS(t *testing.T) {
	cfg := config.Config{
		CORSAllowedOrigins: []string{"https://app.example.com"},
		CORSAllowedMethods: []string{"GET", "POST"},
		CORSAllowedHeaders: []string{"Content-Type", "X-API-Key"},
	}
	r := engine(middleware.CORS(cfg))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
