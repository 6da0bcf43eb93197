package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// errorBody renders an OpenAI-shaped error envelope.
func errorBody(message, errType, code string) gin.H {
	e := gin.H{
		"message": message,
		"type":    errType,
	}
	if code != "" {
		e["code"] = code
	}
	return gin.H{"error": e}
}

// abortAuth ends the request with a 401 carrying the auth failure code.
func abortAuth(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		errorBody(message, "authentication_error", code))
}

// abortInternal ends the request with a generic 500.
func abortInternal(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError,
		errorBody("internal server error", "server_error", ""))
}

// abortBadRequest ends the request with a 400.
func abortBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest,
		errorBody(message, "invalid_request_error", ""))
}

// abortUpstream ends the request with a 502 when the upstream call
// itself failed (connect error, timeout); upstream non-2xx responses
// pass through with their original status instead.
func abortUpstream(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadGateway,
		errorBody("upstream request failed: "+err.Error(), "server_error", ""))
}
