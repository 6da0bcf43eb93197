// Package mcp implements the MCP (Model Context Protocol) tool-call
// round-trip: JSON-RPC 2.0 calls to configured tool endpoints and the
// single follow-up provider invocation that folds tool results back
// into the completion.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultCallTimeout bounds a single tools/call POST.
const DefaultCallTimeout = 30 * time.Second

// rpcRequest is a JSON-RPC 2.0 tools/call request.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      string    `json:"id"`
}

type rpcParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Client posts tools/call requests to MCP endpoints.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a Client. A nil http.Client uses a default; a
// non-positive timeout uses DefaultCallTimeout.
func NewClient(httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{httpClient: httpClient, timeout: timeout}
}

// CallTool POSTs a JSON-RPC 2.0 tools/call to url and returns the
// response's result member, falling back to the whole body when no
// result is present.
func (c *Client) CallTool(ctx context.Context, url, name string, args map[string]interface{}, callID string) (json.RawMessage, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  rpcParams{Name: name, Arguments: args},
		ID:      callID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tools/call request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build tools/call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tools/call to %s failed: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools/call response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("tools/call to %s returned status %d", url, resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("tools/call response is not JSON: %w", err)
	}
	if len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		return nil, fmt.Errorf("tools/call to %s returned error: %s", url, envelope.Error)
	}
	if len(envelope.Result) > 0 && string(envelope.Result) != "null" {
		return envelope.Result, nil
	}
	return body, nil
}
