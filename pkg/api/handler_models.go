package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/axongate/axon/pkg/provider"
)

// ListModels passes GET /v1/models through to the tenant's resolved
// provider so clients can discover models with their gateway key.
func (s *Server) ListModels(c *gin.Context) {
	tctx := tenantContext(c)
	if tctx == nil {
		abortInternal(c)
		return
	}

	adapter := s.registry.ForConfig(tctx.Provider)
	resp, err := adapter.Proxy(c.Request.Context(), &provider.Request{
		Method: http.MethodGet,
		Path:   c.Request.URL.Path,
		Header: c.Request.Header,
	})
	if err != nil {
		abortUpstream(c, err)
		return
	}
	if resp.IsStream {
		_ = resp.Stream.Close()
		abortInternal(c)
		return
	}

	copyResponseHeaders(c, resp.Header)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Raw)
}
