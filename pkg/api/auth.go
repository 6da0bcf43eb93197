package api

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/axongate/axon/pkg/tenant"
)

// tenantContextKey is the gin context key carrying the resolved tenant
// context.
const tenantContextKey = "tenant-context"

// publicPrefixes lists paths exempt from API-key auth. Admin, portal,
// and dashboard routes carry their own JWT auth and are mounted by
// external collaborators.
var publicPrefixes = []string{
	"/health",
	"/favicon.ico",
	"/dashboard",
	"/v1/admin",
	"/v1/portal",
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractAPIKey pulls the raw key from Authorization: Bearer or
// x-api-key.
func extractAPIKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(key)
		}
	}
	return strings.TrimSpace(c.GetHeader("x-api-key"))
}

// apiKeyAuth authenticates every non-public route: hash the presented
// key, hit the LRU cache, fall back to a database resolution on miss,
// and attach the resolved context for downstream handlers.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		rawKey := extractAPIKey(c)
		if rawKey == "" {
			abortAuth(c, "missing_api_key", "API key required")
			return
		}

		hash := tenant.HashKey(rawKey)
		if tctx, ok := s.cache.Get(hash); ok {
			c.Set(tenantContextKey, tctx)
			c.Next()
			return
		}

		tctx, err := s.resolver.ResolveHash(c.Request.Context(), hash)
		if err != nil {
			switch {
			case errors.Is(err, tenant.ErrInvalidKey):
				abortAuth(c, "invalid_api_key", "Invalid API key")
			case errors.Is(err, tenant.ErrTenantInactive):
				abortAuth(c, "tenant_inactive", "Tenant is not active")
			default:
				slog.Error("Tenant resolution failed", "error", err)
				abortInternal(c)
			}
			return
		}

		s.cache.Set(hash, tctx)
		c.Set(tenantContextKey, tctx)
		c.Next()
	}
}

// tenantContext returns the resolved context attached by apiKeyAuth.
func tenantContext(c *gin.Context) *tenant.Context {
	v, ok := c.Get(tenantContextKey)
	if !ok {
		return nil
	}
	tctx, _ := v.(*tenant.Context)
	return tctx
}
