package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/axongate/axon/pkg/tenant"
)

// azureProvider proxies to Azure OpenAI. The inbound path is ignored:
// Azure routes by deployment, and the gateway only proxies chat
// completions there. Error envelopes are normalized to the OpenAI shape
// so clients see one error format regardless of upstream.
type azureProvider struct {
	client *http.Client
	cfg    tenant.ProviderConfig
	apiKey string
}

func (p *azureProvider) Name() string { return NameAzure }

func (p *azureProvider) Proxy(ctx context.Context, req *Request) (*Response, error) {
	if p.cfg.Endpoint == "" || p.cfg.Deployment == "" {
		return nil, fmt.Errorf("provider azure: endpoint and deployment must be configured")
	}
	apiVersion := p.cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(p.cfg.Endpoint, "/"), p.cfg.Deployment, apiVersion)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	httpReq.Header = forwardHeaders(req.Header)
	httpReq.Header.Set("api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request to azure failed: %w", err)
	}

	out, err := classify(resp)
	if err != nil {
		return nil, err
	}
	if !out.IsStream && out.StatusCode >= 400 {
		out.Raw = normalizeAzureError(out.StatusCode, out.Raw)
		var parsed map[string]interface{}
		if json.Unmarshal(out.Raw, &parsed) == nil {
			out.JSON = parsed
		}
	}
	return out, nil
}

// errorTypeForStatus maps an HTTP status to the OpenAI error type field.
func errorTypeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusForbidden:
		return "permission_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

// normalizeAzureError rewrites an Azure error body into the OpenAI
// envelope {error: {message, type, code, param}}. Unparseable bodies
// become the message verbatim.
func normalizeAzureError(status int, raw []byte) []byte {
	message := strings.TrimSpace(string(raw))
	var code, param interface{}

	var azure struct {
		Error *struct {
			Message string      `json:"message"`
			Code    interface{} `json:"code"`
			Param   interface{} `json:"param"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &azure) == nil && azure.Error != nil {
		if azure.Error.Message != "" {
			message = azure.Error.Message
		}
		code = azure.Error.Code
		param = azure.Error.Param
	}

	normalized, err := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errorTypeForStatus(status),
			"code":    code,
			"param":   param,
		},
	})
	if err != nil {
		return raw
	}
	return normalized
}
