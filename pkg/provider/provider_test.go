package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axongate/axon/pkg/tenant"
)

func TestRegistryForConfig(t *testing.T) {
	registry := NewRegistry(nil, FallbackKeys{OpenAI: "fallback-openai", Azure: "fallback-azure"})

	t.Run("defaults to openai", func(t *testing.T) {
		p := registry.ForConfig(tenant.ProviderConfig{BaseURL: "https://api.openai.com"})
		assert.Equal(t, NameOpenAI, p.Name())
	})

	t.Run("azure", func(t *testing.T) {
		p := registry.ForConfig(tenant.ProviderConfig{Provider: NameAzure})
		assert.Equal(t, NameAzure, p.Name())
	})

	t.Run("ollama gets default base url", func(t *testing.T) {
		p := registry.ForConfig(tenant.ProviderConfig{Provider: NameOllama})
		assert.Equal(t, NameOllama, p.Name())
		assert.Equal(t, DefaultOllamaBaseURL, p.(*openAIProvider).baseURL)
	})

	t.Run("fallback keys fill missing credentials", func(t *testing.T) {
		p := registry.ForConfig(tenant.ProviderConfig{Provider: NameOpenAI, BaseURL: "https://x"})
		assert.Equal(t, "fallback-openai", p.(*openAIProvider).apiKey)

		p = registry.ForConfig(tenant.ProviderConfig{Provider: NameOpenAI, BaseURL: "https://x", APIKey: "own"})
		assert.Equal(t, "own", p.(*openAIProvider).apiKey)
	})
}

func TestOpenAIProxy(t *testing.T) {
	var gotPath, gotAuth, gotClientHeader string
	var strippedSeen bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotClientHeader = r.Header.Get("X-Client-Meta")
		strippedSeen = r.Header.Get("X-Api-Key") != ""
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","choices":[]}`))
	}))
	defer srv.Close()

	registry := NewRegistry(srv.Client(), FallbackKeys{})
	p := registry.ForConfig(tenant.ProviderConfig{BaseURL: srv.URL + "/", APIKey: "sk-upstream"})

	header := http.Header{}
	header.Set("Authorization", "Bearer sk-gateway-key")
	header.Set("X-Api-Key", "sk-gateway-key")
	header.Set("X-Client-Meta", "kept")

	resp, err := p.Proxy(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/v1/chat/completions",
		Body:   []byte(`{"model":"gpt-4o"}`),
		Header: header,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-upstream", gotAuth, "gateway key replaced by provider key")
	assert.Equal(t, "kept", gotClientHeader, "unrelated headers forwarded")
	assert.False(t, strippedSeen, "x-api-key never leaks upstream")

	assert.False(t, resp.IsStream)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, resp.JSON)
	assert.Equal(t, "cmpl-1", resp.JSON["id"])
}

func TestOpenAIProxyRequiresBaseURL(t *testing.T) {
	registry := NewRegistry(nil, FallbackKeys{})
	p := registry.ForConfig(tenant.ProviderConfig{Provider: NameOpenAI})
	_, err := p.Proxy(context.Background(), &Request{Method: http.MethodPost, Path: "/v1/chat/completions"})
	assert.Error(t, err)
}

func TestClassifyStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[]}\n\n"))
	}))
	defer srv.Close()

	registry := NewRegistry(srv.Client(), FallbackKeys{})
	p := registry.ForConfig(tenant.ProviderConfig{BaseURL: srv.URL})

	resp, err := p.Proxy(context.Background(), &Request{Method: http.MethodPost, Path: "/v1/chat/completions"})
	require.NoError(t, err)
	require.True(t, resp.IsStream)
	defer func() { _ = resp.Stream.Close() }()

	body, err := io.ReadAll(resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"choices\":[]}\n\n", string(body), "stream body untouched")
	assert.Nil(t, resp.Raw)
}

func TestAzureProxyURLAndAuth(t *testing.T) {
	var gotURL, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotAPIKey = r.Header.Get("api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	registry := NewRegistry(srv.Client(), FallbackKeys{})
	p := registry.ForConfig(tenant.ProviderConfig{
		Provider:   NameAzure,
		Endpoint:   srv.URL,
		Deployment: "gpt4o-prod",
		APIVersion: "2024-06-01",
		APIKey:     "azure-key",
	})

	_, err := p.Proxy(context.Background(), &Request{Method: http.MethodPost, Path: "/v1/chat/completions"})
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/gpt4o-prod/chat/completions?api-version=2024-06-01", gotURL)
	assert.Equal(t, "azure-key", gotAPIKey)
}

func TestAzureProxyRequiresEndpointAndDeployment(t *testing.T) {
	registry := NewRegistry(nil, FallbackKeys{})
	p := registry.ForConfig(tenant.ProviderConfig{Provider: NameAzure, Endpoint: "https://x"})
	_, err := p.Proxy(context.Background(), &Request{Method: http.MethodPost})
	assert.Error(t, err)
}

func TestAzureErrorNormalization(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
		wantMsg  string
	}{
		{
			name:     "azure envelope 401",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"bad key","code":"401"}}`,
			wantType: "authentication_error",
			wantMsg:  "bad key",
		},
		{
			name:     "429",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"message":"slow down"}}`,
			wantType: "rate_limit_error",
			wantMsg:  "slow down",
		},
		{
			name:     "5xx",
			status:   http.StatusBadGateway,
			body:     `{"error":{"message":"upstream broke"}}`,
			wantType: "server_error",
			wantMsg:  "upstream broke",
		},
		{
			name:     "unparseable body becomes message",
			status:   http.StatusNotFound,
			body:     "deployment does not exist",
			wantType: "not_found_error",
			wantMsg:  "deployment does not exist",
		},
		{
			name:     "default type",
			status:   http.StatusUnprocessableEntity,
			body:     `{"error":{"message":"bad request"}}`,
			wantType: "invalid_request_error",
			wantMsg:  "bad request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			registry := NewRegistry(srv.Client(), FallbackKeys{})
			p := registry.ForConfig(tenant.ProviderConfig{
				Provider: NameAzure, Endpoint: srv.URL, Deployment: "d",
			})

			resp, err := p.Proxy(context.Background(), &Request{Method: http.MethodPost})
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode, "original status preserved")

			var envelope struct {
				Error struct {
					Message string `json:"message"`
					Type    string `json:"type"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(resp.Raw, &envelope))
			assert.Equal(t, tt.wantType, envelope.Error.Type)
			assert.Equal(t, tt.wantMsg, envelope.Error.Message)
		})
	}
}

func TestForwardHeaders(t *testing.T) {
	src := http.Header{}
	src.Set("Authorization", "Bearer gateway")
	src.Set("X-Api-Key", "gateway")
	src.Set("Host", "gateway.example.com")
	src.Set("Content-Length", "123")
	src.Set("Accept", "application/json")

	dst := forwardHeaders(src)

	assert.Empty(t, dst.Get("Authorization"))
	assert.Empty(t, dst.Get("X-Api-Key"))
	assert.Empty(t, dst.Get("Host"))
	assert.Empty(t, dst.Get("Content-Length"))
	assert.Equal(t, "application/json", dst.Get("Accept"))
	assert.Equal(t, "application/json", dst.Get("Content-Type"), "default content type")

	// Copy, not alias.
	dst.Set("Accept", "text/plain")
	assert.Equal(t, "application/json", src.Get("Accept"))
}
