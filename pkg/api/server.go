// Package api exposes the gateway HTTP surface: the authenticated
// chat-completion proxy, the models passthrough, and health.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/axongate/axon/pkg/conversation"
	"github.com/axongate/axon/pkg/database"
	"github.com/axongate/axon/pkg/mcp"
	"github.com/axongate/axon/pkg/provider"
	"github.com/axongate/axon/pkg/tenant"
	"github.com/axongate/axon/pkg/trace"
)

// Server wires the gateway collaborators into HTTP handlers. Every
// collaborator is constructed once at startup and passed in; nothing
// here is ambient global state.
type Server struct {
	db            *database.Client
	cache         *tenant.Cache
	resolver      *tenant.Resolver
	registry      *provider.Registry
	roundTripper  *mcp.RoundTripper
	conversations *conversation.Manager
	summarizer    *conversation.Summarizer
	traces        *trace.Recorder
}

// NewServer creates the API server.
func NewServer(
	db *database.Client,
	cache *tenant.Cache,
	resolver *tenant.Resolver,
	registry *provider.Registry,
	roundTripper *mcp.RoundTripper,
	conversations *conversation.Manager,
	summarizer *conversation.Summarizer,
	traces *trace.Recorder,
) *Server {
	return &Server{
		db:            db,
		cache:         cache,
		resolver:      resolver,
		registry:      registry,
		roundTripper:  roundTripper,
		conversations: conversations,
		summarizer:    summarizer,
		traces:        traces,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), securityHeaders())
	router.Use(s.apiKeyAuth())

	router.GET("/health", s.Health)

	v1 := router.Group("/v1")
	v1.POST("/chat/completions", s.ChatCompletions)
	v1.GET("/models", s.ListModels)

	return router
}

// NewHTTPServer wraps the router in an http.Server bound to port.
// No write timeout: SSE responses are long-lived.
func (s *Server) NewHTTPServer(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// requestLogger logs one line per completed request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
