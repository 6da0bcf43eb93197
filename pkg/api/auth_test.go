package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axongate/axon/pkg/tenant"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIsPublicPath(t *testing.T) {
	public := []string{"/health", "/favicon.ico", "/dashboard", "/dashboard/sessions", "/v1/admin/tenants", "/v1/portal/login"}
	for _, p := range public {
		assert.True(t, isPublicPath(p), p)
	}
	private := []string{"/v1/chat/completions", "/v1/models", "/"}
	for _, p := range private {
		assert.False(t, isPublicPath(p), p)
	}
}

func TestExtractAPIKey(t *testing.T) {
	newCtx := func(headers map[string]string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		for k, v := range headers {
			c.Request.Header.Set(k, v)
		}
		return c
	}

	assert.Equal(t, "sk-1", extractAPIKey(newCtx(map[string]string{"Authorization": "Bearer sk-1"})))
	assert.Equal(t, "sk-2", extractAPIKey(newCtx(map[string]string{"x-api-key": "sk-2"})))
	assert.Equal(t, "sk-3", extractAPIKey(newCtx(map[string]string{"Authorization": "Bearer  sk-3 "})))
	assert.Empty(t, extractAPIKey(newCtx(nil)))
	assert.Empty(t, extractAPIKey(newCtx(map[string]string{"Authorization": "Basic dXNlcg=="})))
}

// authTestRouter builds a router with only the auth middleware and a
// probe route that reports the attached tenant context.
func authTestRouter(s *Server) *gin.Engine {
	router := gin.New()
	router.Use(s.apiKeyAuth())
	probe := func(c *gin.Context) {
		if tctx := tenantContext(c); tctx != nil {
			c.JSON(http.StatusOK, gin.H{"tenant_id": tctx.TenantID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant_id": nil})
	}
	router.GET("/health", probe)
	router.POST("/v1/chat/completions", probe)
	return router
}

func TestAuthMissingKey(t *testing.T) {
	router := authTestRouter(&Server{cache: tenant.NewCache(10)})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing_api_key")
}

func TestAuthPublicPathSkipsAuth(t *testing.T) {
	router := authTestRouter(&Server{cache: tenant.NewCache(10)})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthCacheHitSkipsResolver(t *testing.T) {
	cache := tenant.NewCache(10)
	cache.Set(tenant.HashKey("sk-cached"), &tenant.Context{TenantID: "t-cached"})

	// resolver is nil: a cache miss would panic, so a passing request
	// proves the cache path was taken.
	router := authTestRouter(&Server{cache: cache})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer sk-cached")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "t-cached")
}
