package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/axongate/axon/pkg/models"
	"github.com/axongate/axon/pkg/tenant"
)

// ProviderInvoker re-invokes the upstream provider with a follow-up
// body and returns the parsed JSON response (nil when the upstream
// reply was not JSON) together with its status code.
type ProviderInvoker func(ctx context.Context, body []byte) (models.Body, int, error)

// RoundTripper executes the one-shot tool-call round-trip on
// non-streaming JSON responses.
type RoundTripper struct {
	client *Client
}

// NewRoundTripper creates a RoundTripper.
func NewRoundTripper(client *Client) *RoundTripper {
	return &RoundTripper{client: client}
}

// Result is the outcome of Execute.
type Result struct {
	// Body is the response to return to the caller: the follow-up
	// response when tools were called, else the original.
	Body models.Body
	// StatusCode is the follow-up status when DidCallMCP, else 0.
	StatusCode int
	// DidCallMCP reports whether any endpoint was invoked.
	DidCallMCP bool
}

// Execute inspects a provider response for tool calls matching the
// resolved MCP endpoints, fans out the matched calls in parallel, and
// re-invokes the provider exactly once with the tool results appended.
// Per-endpoint failures become tool messages; they never abort the
// round-trip. A missing or failed follow-up falls back to the original
// response.
func (rt *RoundTripper) Execute(
	ctx context.Context,
	requestBody models.Body,
	response models.Body,
	endpoints []tenant.MCPEndpoint,
	invoke ProviderInvoker,
) (*Result, error) {
	calls := response.ToolCalls()
	if len(calls) == 0 || len(endpoints) == 0 {
		return &Result{Body: response}, nil
	}

	byName := make(map[string]tenant.MCPEndpoint, len(endpoints))
	for _, ep := range endpoints {
		byName[ep.Name] = ep
	}

	type matchedCall struct {
		call     models.ToolCall
		endpoint tenant.MCPEndpoint
	}
	var matched []matchedCall
	for _, call := range calls {
		if ep, ok := byName[call.Name]; ok {
			matched = append(matched, matchedCall{call: call, endpoint: ep})
		}
	}
	if len(matched) == 0 {
		return &Result{Body: response}, nil
	}

	// Fan out the matched calls; results land by index so tool message
	// order matches tool call order.
	toolMessages := make([]interface{}, len(matched))
	g, groupCtx := errgroup.WithContext(ctx)
	for i, m := range matched {
		g.Go(func() error {
			toolMessages[i] = rt.callOne(groupCtx, m.call, m.endpoint)
			return nil
		})
	}
	_ = g.Wait() // individual failures are already rendered as tool messages

	followUp := buildFollowUpBody(requestBody, response, toolMessages)
	encoded, err := json.Marshal(followUp)
	if err != nil {
		slog.Warn("Failed to marshal MCP follow-up body, returning original response", "error", err)
		return &Result{Body: response}, nil
	}

	followUpResp, status, err := invoke(ctx, encoded)
	if err != nil {
		return nil, err
	}

	return &Result{Body: followUpResp, StatusCode: status, DidCallMCP: true}, nil
}

// callOne invokes a single endpoint and renders the outcome as a
// {role: tool} message.
func (rt *RoundTripper) callOne(ctx context.Context, call models.ToolCall, ep tenant.MCPEndpoint) map[string]interface{} {
	args := parseArguments(call.Arguments)

	result, err := rt.client.CallTool(ctx, ep.URL, call.Name, args, call.ID)
	content := ""
	if err != nil {
		slog.Warn("MCP tool call failed",
			"tool", call.Name, "endpoint", ep.URL, "error", err)
		failure, _ := json.Marshal(map[string]interface{}{
			"error":  "MCP call failed",
			"detail": err.Error(),
		})
		content = string(failure)
	} else {
		content = string(result)
	}

	return map[string]interface{}{
		"role":         "tool",
		"tool_call_id": call.ID,
		"content":      content,
	}
}

// parseArguments decodes a tool call's JSON arguments; a parse failure
// degrades to empty arguments rather than failing the call.
func parseArguments(raw string) map[string]interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]interface{}{}
	}
	return args
}

// buildFollowUpBody assembles original messages + the assistant
// tool-call message + the tool result messages, keeping every other
// request field (model, tools, temperature, ...) intact.
func buildFollowUpBody(requestBody, response models.Body, toolMessages []interface{}) models.Body {
	followUp := requestBody.Clone()
	if followUp == nil {
		followUp = models.Body{}
	}

	msgs := append([]interface{}{}, followUp.Messages()...)
	if assistant := response.FirstChoiceMessage(); assistant != nil {
		msgs = append(msgs, assistant)
	}
	msgs = append(msgs, toolMessages...)
	followUp.SetMessages(msgs)
	return followUp
}
