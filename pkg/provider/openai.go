package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// openAIProvider proxies to any OpenAI-compatible API (OpenAI itself,
// Ollama, vLLM, LiteLLM, ...). URL = base_url + inbound path; bearer
// auth when a key is configured.
type openAIProvider struct {
	client  *http.Client
	name    string
	baseURL string
	apiKey  string
}

func (p *openAIProvider) Name() string { return p.name }

func (p *openAIProvider) Proxy(ctx context.Context, req *Request) (*Response, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("provider %s: base_url not configured", p.name)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}

	httpReq.Header = forwardHeaders(req.Header)
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request to %s failed: %w", p.name, err)
	}
	return classify(resp)
}
