package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/axongate/axon/pkg/conversation"
	"github.com/axongate/axon/pkg/merge"
	"github.com/axongate/axon/pkg/models"
	"github.com/axongate/axon/pkg/provider"
	"github.com/axongate/axon/pkg/stream"
	"github.com/axongate/axon/pkg/tenant"
	"github.com/axongate/axon/pkg/trace"
)

// persistTimeout bounds the post-response conversation write.
const persistTimeout = 10 * time.Second

// conversationState carries the per-request conversation context from
// preparation through post-response persistence.
type conversationState struct {
	conversationID string
	loaded         *conversation.Context
	injection      []interface{}
	tokenLimit     int
}

// ChatCompletions is the core proxy handler: merge the resolved agent
// configuration into the body, inject conversation history, forward to
// the resolved provider, and stream or relay the response. Tracing,
// conversation persistence, and snapshotting happen after the response
// bytes are on the wire.
func (s *Server) ChatCompletions(c *gin.Context) {
	tctx := tenantContext(c)
	if tctx == nil {
		abortInternal(c)
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortBadRequest(c, "failed to read request body")
		return
	}
	var body models.Body
	if err := json.Unmarshal(raw, &body); err != nil {
		abortBadRequest(c, "request body must be valid JSON")
		return
	}

	start := time.Now()
	requestID := uuid.New().String()

	outbound, ref := models.ExtractConversationRef(body)

	var convState *conversationState
	if tctx.Agent.ConversationsEnabled && ref.ConversationID != "" {
		convState = s.prepareConversation(c.Request.Context(), tctx, ref)
	}
	if convState != nil && len(convState.injection) > 0 {
		withHistory := outbound.Clone()
		msgs := append(append([]interface{}{}, convState.injection...), outbound.Messages()...)
		withHistory.SetMessages(msgs)
		outbound = withHistory
	}

	outbound = merge.Apply(outbound, tctx)

	encoded, err := json.Marshal(outbound)
	if err != nil {
		slog.Error("Failed to marshal outbound body", "error", err)
		abortInternal(c)
		return
	}

	overheadMS := time.Since(start).Milliseconds()
	adapter := s.registry.ForConfig(tctx.Provider)
	resp, err := adapter.Proxy(c.Request.Context(), &provider.Request{
		Method: http.MethodPost,
		Path:   c.Request.URL.Path,
		Body:   encoded,
		Header: c.Request.Header,
	})
	if err != nil {
		slog.Warn("Upstream request failed",
			"provider", adapter.Name(), "request_id", requestID, "error", err)
		abortUpstream(c, err)
		return
	}
	ttfbMS := time.Since(start).Milliseconds()

	req := &completedRequest{
		tctx:       tctx,
		requestID:  requestID,
		provider:   adapter.Name(),
		endpoint:   c.Request.URL.Path,
		model:      body.Model(),
		request:    body,
		convState:  convState,
		start:      start,
		ttfbMS:     ttfbMS,
		overheadMS: overheadMS,
	}

	if resp.IsStream {
		s.relayStream(c, resp, req)
		return
	}
	s.relayJSON(c, adapter, resp, outbound, req)
}

// relayStream copies the SSE body to the client through the capture
// pipe; the completion callback persists the trace and conversation
// turn from the captured content.
func (s *Server) relayStream(c *gin.Context, resp *provider.Response, req *completedRequest) {
	defer func() { _ = resp.Stream.Close() }()

	copyResponseHeaders(c, resp.Header)
	c.Status(resp.StatusCode)

	statusCode := resp.StatusCode
	pipe := stream.NewPipe(c.Writer, func(capture *stream.Capture) {
		var responseBody *string
		if len(capture.Chunks) > 0 {
			if encoded, err := json.Marshal(capture.Chunks); err == nil {
				s := string(encoded)
				responseBody = &s
			}
		}
		s.finishRequest(req, capture.Content, responseBody, capture.Usage, statusCode)
	})

	if err := pipe.Pump(resp.Stream); err != nil {
		slog.Warn("SSE relay interrupted",
			"request_id", req.requestID, "error", err)
	}
}

// relayJSON relays a non-streaming response, running the MCP tool-call
// round-trip first when the response carries matching tool calls.
func (s *Server) relayJSON(c *gin.Context, adapter provider.Provider, resp *provider.Response, outbound models.Body, req *completedRequest) {
	finalRaw := resp.Raw
	finalJSON := resp.JSON
	statusCode := resp.StatusCode

	if finalJSON != nil && statusCode < http.StatusMultipleChoices && len(s.tenantEndpoints(req.tctx)) > 0 {
		result, err := s.roundTripper.Execute(
			c.Request.Context(),
			outbound,
			finalJSON,
			req.tctx.MCPEndpoints,
			func(ctx context.Context, followUp []byte) (models.Body, int, error) {
				fresp, ferr := adapter.Proxy(ctx, &provider.Request{
					Method: http.MethodPost,
					Path:   req.endpoint,
					Body:   followUp,
					Header: c.Request.Header,
				})
				if ferr != nil {
					return nil, 0, ferr
				}
				if fresp.IsStream {
					_ = fresp.Stream.Close()
					return nil, fresp.StatusCode, nil
				}
				return fresp.JSON, fresp.StatusCode, nil
			},
		)
		switch {
		case err != nil:
			slog.Warn("MCP follow-up failed, returning original response",
				"request_id", req.requestID, "error", err)
		case result.DidCallMCP:
			finalJSON = result.Body
			statusCode = result.StatusCode
			encoded, merr := json.Marshal(finalJSON)
			if merr != nil {
				slog.Warn("Failed to marshal MCP follow-up response",
					"request_id", req.requestID, "error", merr)
			} else {
				finalRaw = encoded
			}
		}
	}

	copyResponseHeaders(c, resp.Header)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(statusCode, contentType, finalRaw)

	var responseBody *string
	if len(finalRaw) > 0 {
		body := string(finalRaw)
		responseBody = &body
	}
	var usage map[string]interface{}
	assistant := ""
	if finalJSON != nil {
		usage = finalJSON.Usage()
		assistant = models.AssistantContent(finalJSON)
	}
	s.finishRequest(req, assistant, responseBody, usage, statusCode)
}

// completedRequest is everything finishRequest needs once the response
// is on the wire.
type completedRequest struct {
	tctx       *tenant.Context
	requestID  string
	provider   string
	endpoint   string
	model      string
	request    models.Body
	convState  *conversationState
	start      time.Time
	ttfbMS     int64
	overheadMS int64
}

// finishRequest records the trace and persists the conversation turn,
// then schedules snapshotting if the conversation crossed its token
// limit. Runs after the response has been written; failures are logged
// and never surfaced to the client.
func (s *Server) finishRequest(req *completedRequest, assistantContent string, responseBody *string, usage map[string]interface{}, statusCode int) {
	traceID := uuid.New().String()

	requestJSON, err := json.Marshal(req.request)
	if err != nil {
		slog.Error("Failed to marshal request body for trace", "request_id", req.requestID, "error", err)
		requestJSON = []byte("{}")
	}

	prompt, completion, total := usageTokens(usage)
	entry := trace.Entry{
		TraceID:           traceID,
		TenantID:          req.tctx.TenantID,
		RequestID:         req.requestID,
		Model:             req.model,
		Provider:          req.provider,
		Endpoint:          req.endpoint,
		RequestBody:       string(requestJSON),
		ResponseBody:      responseBody,
		LatencyMS:         time.Since(req.start).Milliseconds(),
		TTFBMS:            &req.ttfbMS,
		GatewayOverheadMS: &req.overheadMS,
		PromptTokens:      prompt,
		CompletionTokens:  completion,
		TotalTokens:       total,
		StatusCode:        &statusCode,
	}
	s.traces.Record(entry)

	cs := req.convState
	if cs == nil || statusCode >= http.StatusBadRequest {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	userContent := models.LastUserContent(req.request)
	if err := s.conversations.StoreMessages(ctx, req.tctx.TenantID, cs.conversationID, userContent, assistantContent, &traceID); err != nil {
		slog.Warn("Failed to persist conversation turn",
			"conversation_id", cs.conversationID, "request_id", req.requestID, "error", err)
		return
	}

	if conversation.ShouldSnapshot(cs.loaded, cs.tokenLimit) {
		tctx := req.tctx
		conversationID := cs.conversationID
		go func() {
			reloaded, err := s.conversations.LoadContext(context.Background(), tctx.TenantID, conversationID)
			if err != nil {
				slog.Warn("Failed to reload conversation for snapshot",
					"conversation_id", conversationID, "error", err)
				return
			}
			s.summarizer.Summarize(context.Background(), tctx, conversationID, reloaded)
		}()
	}
}

// prepareConversation resolves the partition and conversation, loads
// the context, and renders the injection. Every failure degrades to a
// stateless request: the live response always proceeds.
func (s *Server) prepareConversation(ctx context.Context, tctx *tenant.Context, ref models.ConversationRef) *conversationState {
	var partitionID *string
	if ref.PartitionID != "" {
		p, err := s.conversations.GetOrCreatePartition(ctx, tctx.TenantID, ref.PartitionID)
		if err != nil {
			slog.Warn("Failed to resolve partition, proceeding without conversation",
				"tenant_id", tctx.TenantID, "partition", ref.PartitionID, "error", err)
			return nil
		}
		partitionID = &p.ID
	}

	conv, isNew, err := s.conversations.GetOrCreateConversation(ctx, tctx.TenantID, partitionID, ref.ConversationID, tctx.AgentID)
	if err != nil {
		slog.Warn("Failed to resolve conversation, proceeding without it",
			"tenant_id", tctx.TenantID, "conversation", ref.ConversationID, "error", err)
		return nil
	}

	state := &conversationState{
		conversationID: conv.ID,
		tokenLimit:     tctx.Agent.ConversationTokenLimit,
	}
	if isNew {
		state.loaded = &conversation.Context{}
		return state
	}

	loaded, err := s.conversations.LoadContext(ctx, tctx.TenantID, conv.ID)
	if err != nil {
		slog.Warn("Failed to load conversation context, proceeding without history",
			"conversation_id", conv.ID, "error", err)
		state.loaded = &conversation.Context{}
		return state
	}
	state.loaded = loaded
	state.injection = s.conversations.BuildInjection(loaded)
	return state
}

// tenantEndpoints returns the resolved MCP endpoints, nil-safe.
func (s *Server) tenantEndpoints(tctx *tenant.Context) []tenant.MCPEndpoint {
	if tctx == nil {
		return nil
	}
	return tctx.MCPEndpoints
}

// copyResponseHeaders relays upstream headers verbatim, minus framing
// headers the gateway controls.
func copyResponseHeaders(c *gin.Context, src http.Header) {
	dst := c.Writer.Header()
	for k, vals := range src {
		switch k {
		case "Content-Length", "Transfer-Encoding", "Connection":
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

// usageTokens extracts the token counters from a usage object.
func usageTokens(usage map[string]interface{}) (prompt, completion, total *int) {
	if usage == nil {
		return nil, nil, nil
	}
	get := func(key string) *int {
		if v, ok := usage[key].(float64); ok {
			n := int(v)
			return &n
		}
		return nil
	}
	return get("prompt_tokens"), get("completion_tokens"), get("total_tokens")
}
