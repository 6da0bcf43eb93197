// Package provider contains the upstream chat-completion adapters:
// OpenAI-compatible, Azure OpenAI, and Ollama behind a single Proxy
// contract. Adapters route, forward, and classify responses; they never
// transform model output (Azure error envelopes excepted).
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/axongate/axon/pkg/models"
	"github.com/axongate/axon/pkg/tenant"
)

// Provider names accepted in resolved_provider_config.provider.
const (
	NameOpenAI = "openai"
	NameAzure  = "azure"
	NameOllama = "ollama"
)

// DefaultOllamaBaseURL is used when an ollama provider config omits base_url.
const DefaultOllamaBaseURL = "http://localhost:11434"

// Request is a provider-bound request assembled by the chat handler.
type Request struct {
	Method string
	Path   string // inbound path, e.g. /v1/chat/completions
	Body   []byte
	Header http.Header
}

// Response is the adapter's classification of the upstream reply.
// Exactly one of Stream / JSON+Raw is populated: streaming responses
// carry the body reader untouched, everything else is fully read.
type Response struct {
	StatusCode int
	Header     http.Header

	// IsStream is true when Content-Type contains text/event-stream.
	IsStream bool
	// Stream is the upstream body, unread, when IsStream.
	Stream io.ReadCloser

	// Raw is the full body when not streaming.
	Raw []byte
	// JSON is the parsed body when Raw is valid JSON, else nil.
	JSON models.Body
}

// Provider proxies a request to one upstream.
type Provider interface {
	Name() string
	Proxy(ctx context.Context, req *Request) (*Response, error)
}

// FallbackKeys supplies process-level provider keys used when a
// resolved provider config omits its own (OPENAI_API_KEY, ...).
type FallbackKeys struct {
	OpenAI string
	Azure  string
}

// Registry selects an adapter from a resolved provider config. A single
// shared http.Client carries all upstream traffic; per-request deadlines
// come from the request context, not a client timeout, because streams
// are long-lived.
type Registry struct {
	httpClient *http.Client
	fallback   FallbackKeys
}

// NewRegistry creates a Registry. A nil client gets a streaming-safe default.
func NewRegistry(client *http.Client, fallback FallbackKeys) *Registry {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   32,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 2 * time.Minute,
			},
		}
	}
	return &Registry{httpClient: client, fallback: fallback}
}

// ForConfig returns the adapter for a resolved provider config.
// An empty or unknown provider falls back to OpenAI-compatible.
func (r *Registry) ForConfig(cfg tenant.ProviderConfig) Provider {
	switch cfg.Provider {
	case NameAzure:
		key := cfg.APIKey
		if key == "" {
			key = r.fallback.Azure
		}
		return &azureProvider{client: r.httpClient, cfg: cfg, apiKey: key}
	case NameOllama:
		base := cfg.BaseURL
		if base == "" {
			base = DefaultOllamaBaseURL
		}
		return &openAIProvider{client: r.httpClient, name: NameOllama, baseURL: base}
	default:
		key := cfg.APIKey
		if key == "" {
			key = r.fallback.OpenAI
		}
		return &openAIProvider{client: r.httpClient, name: NameOpenAI, baseURL: cfg.BaseURL, apiKey: key}
	}
}

// hop-by-hop and browser-only headers never forwarded upstream.
var strippedHeaders = []string{
	"Host",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Origin",
	"Referer",
	"Authorization",
	"X-Api-Key",
}

// forwardHeaders copies the inbound headers minus stripped ones.
func forwardHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, vals := range src {
		dst[k] = append([]string(nil), vals...)
	}
	for _, k := range strippedHeaders {
		dst.Del(k)
	}
	if dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", "application/json")
	}
	return dst
}

// classify turns an upstream *http.Response into a Response, detecting
// streams by Content-Type and parsing JSON bodies when possible.
func classify(resp *http.Response) (*Response, error) {
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		out.IsStream = true
		out.Stream = resp.Body
		return out, nil
	}

	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream body: %w", err)
	}
	out.Raw = raw

	var parsed models.Body
	if json.Unmarshal(raw, &parsed) == nil {
		out.JSON = parsed
	}
	return out, nil
}
