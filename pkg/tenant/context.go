// Package tenant implements API-key authentication support: the
// resolved per-request TenantContext, the LRU key cache, and the
// hierarchical config resolver that walks the agent → tenant → parent
// chain.
package tenant

import "errors"

// Auth/resolution error taxonomy. The API layer maps these to 401s.
var (
	// ErrInvalidKey is returned when no active API key matches the hash.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrTenantInactive is returned when the key's tenant is not active.
	ErrTenantInactive = errors.New("tenant inactive")
)

// Merge policy values for system_prompt.
const (
	PolicyPrepend   = "prepend"
	PolicyAppend    = "append"
	PolicyOverwrite = "overwrite"
	PolicyIgnore    = "ignore"
	// PolicyMerge applies to skills and mcp_endpoints.
	PolicyMerge = "merge"
)

// MergePolicies controls how the agent's resolved configuration is
// combined with the inbound request body.
type MergePolicies struct {
	SystemPrompt string `json:"system_prompt"`
	Skills       string `json:"skills"`
	MCPEndpoints string `json:"mcp_endpoints"`
}

// DefaultMergePolicies returns the documented defaults: prepend / merge / merge.
func DefaultMergePolicies() MergePolicies {
	return MergePolicies{
		SystemPrompt: PolicyPrepend,
		Skills:       PolicyMerge,
		MCPEndpoints: PolicyMerge,
	}
}

// MergePoliciesFromMap parses the agent's merge_policies JSON, filling
// in defaults for absent or unknown fields.
func MergePoliciesFromMap(m map[string]interface{}) MergePolicies {
	p := DefaultMergePolicies()
	if m == nil {
		return p
	}
	if v, _ := m["system_prompt"].(string); v != "" {
		p.SystemPrompt = v
	}
	if v, _ := m["skills"].(string); v != "" {
		p.Skills = v
	}
	if v, _ := m["mcp_endpoints"].(string); v != "" {
		p.MCPEndpoints = v
	}
	return p
}

// ProviderConfig is the resolved upstream provider configuration.
type ProviderConfig struct {
	Provider   string `json:"provider"` // openai | azure | ollama
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	Endpoint   string `json:"endpoint"`    // azure resource endpoint
	Deployment string `json:"deployment"`  // azure deployment name
	APIVersion string `json:"api_version"` // azure api-version query param
}

// ProviderConfigFromMap parses a provider_config JSON object.
func ProviderConfigFromMap(m map[string]interface{}) ProviderConfig {
	var c ProviderConfig
	if m == nil {
		return c
	}
	c.Provider, _ = m["provider"].(string)
	c.BaseURL, _ = m["base_url"].(string)
	c.APIKey, _ = m["api_key"].(string)
	c.Endpoint, _ = m["endpoint"].(string)
	c.Deployment, _ = m["deployment"].(string)
	c.APIVersion, _ = m["api_version"].(string)
	return c
}

// MCPEndpoint is a named JSON-RPC tool endpoint attached to the chain.
type MCPEndpoint struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// AgentConfig carries the agent's conversation flags.
type AgentConfig struct {
	ConversationsEnabled     bool   `json:"conversations_enabled"`
	ConversationTokenLimit   int    `json:"conversation_token_limit"`
	ConversationSummaryModel string `json:"conversation_summary_model"`
}

// Context is the fully resolved configuration attached to an
// authenticated request. Values are immutable once cached; callers must
// not mutate the slices.
type Context struct {
	TenantID  string
	AgentID   string
	AgentName string

	SystemPrompt string
	Skills       []map[string]interface{}
	MCPEndpoints []MCPEndpoint
	Provider     ProviderConfig
	Policies     MergePolicies
	Agent        AgentConfig
}
