package tenant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/axongate/axon/ent"
	"github.com/axongate/axon/ent/apikey"
	enttenant "github.com/axongate/axon/ent/tenant"
)

// MaxChainHops caps the parent-chain walk. The schema does not enforce
// acyclicity, so the cap is the sole cycle safeguard: resolution past
// the cap terminates with what has been gathered, without error.
const MaxChainHops = 10

// chainNode is one entry in the agent → tenant → parent… chain, in
// precedence order (agent first).
type chainNode struct {
	providerConfig map[string]interface{}
	systemPrompt   *string
	skills         []map[string]interface{}
	mcpEndpoints   []map[string]interface{}
}

// Resolver loads and resolves tenant contexts from the database.
type Resolver struct {
	client *ent.Client
}

// NewResolver creates a Resolver backed by the given ent client.
func NewResolver(client *ent.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve authenticates a raw API key and produces the resolved
// context. Returns ErrInvalidKey when no active key matches and
// ErrTenantInactive when the owning tenant is not active.
func (r *Resolver) Resolve(ctx context.Context, rawKey string) (*Context, error) {
	return r.ResolveHash(ctx, HashKey(rawKey))
}

// ResolveHash is Resolve for an already-hashed key. The cache layer
// stores contexts by hash, so the middleware only ever hashes once.
func (r *Resolver) ResolveHash(ctx context.Context, keyHash string) (*Context, error) {
	key, err := r.client.APIKey.Query().
		Where(
			apikey.KeyHashEQ(keyHash),
			apikey.StatusEQ(apikey.StatusActive),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	agent, err := r.client.Agent.Get(ctx, key.AgentID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	owner, err := r.client.Tenant.Get(ctx, agent.TenantID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if owner.Status != enttenant.StatusActive {
		return nil, ErrTenantInactive
	}

	chain := []chainNode{
		{
			providerConfig: agent.ProviderConfig,
			systemPrompt:   agent.SystemPrompt,
			skills:         agent.Skills,
			mcpEndpoints:   agent.McpEndpoints,
		},
		{
			providerConfig: owner.ProviderConfig,
			systemPrompt:   owner.SystemPrompt,
			skills:         owner.Skills,
			mcpEndpoints:   owner.McpEndpoints,
		},
	}

	// Walk the parent chain. A cycle in parent_id terminates at the hop
	// cap; a visited-set only adds a warning, not different behavior.
	visited := map[string]bool{owner.ID: true}
	current := owner
	for hops := 0; hops < MaxChainHops && current.ParentID != nil; hops++ {
		parent, err := r.client.Tenant.Get(ctx, *current.ParentID)
		if err != nil {
			if ent.IsNotFound(err) {
				// Dangling parent reference: resolve with what we have.
				slog.Warn("Tenant parent not found, truncating chain",
					"tenant_id", current.ID, "parent_id", *current.ParentID)
				break
			}
			return nil, fmt.Errorf("failed to load parent tenant: %w", err)
		}
		if visited[parent.ID] {
			slog.Warn("Tenant parent chain cycle detected",
				"tenant_id", owner.ID, "cycle_at", parent.ID)
			break
		}
		visited[parent.ID] = true

		chain = append(chain, chainNode{
			providerConfig: parent.ProviderConfig,
			systemPrompt:   parent.SystemPrompt,
			skills:         parent.Skills,
			mcpEndpoints:   parent.McpEndpoints,
		})
		current = parent
	}

	tctx := &Context{
		TenantID:  owner.ID,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Policies:  MergePoliciesFromMap(agent.MergePolicies),
		Agent: AgentConfig{
			ConversationsEnabled:   agent.ConversationsEnabled,
			ConversationTokenLimit: agent.ConversationTokenLimit,
		},
	}
	if agent.ConversationSummaryModel != nil {
		tctx.Agent.ConversationSummaryModel = *agent.ConversationSummaryModel
	}

	resolveChain(tctx, chain)
	return tctx, nil
}

// resolveChain applies the resolution rules over the precedence-ordered
// chain: first non-null wins for provider_config and system_prompt;
// skills and mcp_endpoints are unioned with earlier entries winning on
// name collision.
func resolveChain(tctx *Context, chain []chainNode) {
	seenSkills := make(map[string]bool)
	seenEndpoints := make(map[string]bool)
	providerSet := false

	for _, node := range chain {
		if !providerSet && node.providerConfig != nil {
			tctx.Provider = ProviderConfigFromMap(node.providerConfig)
			providerSet = true
		}
		if tctx.SystemPrompt == "" && node.systemPrompt != nil && *node.systemPrompt != "" {
			tctx.SystemPrompt = *node.systemPrompt
		}

		for _, skill := range node.skills {
			name := skillName(skill)
			if name == "" || seenSkills[name] {
				continue
			}
			seenSkills[name] = true
			tctx.Skills = append(tctx.Skills, skill)
		}

		for _, ep := range node.mcpEndpoints {
			name, _ := ep["name"].(string)
			if name == "" || seenEndpoints[name] {
				continue
			}
			seenEndpoints[name] = true
			url, _ := ep["url"].(string)
			tctx.MCPEndpoints = append(tctx.MCPEndpoints, MCPEndpoint{Name: name, URL: url})
		}
	}
}

// skillName returns the dedup key of a tool definition: function.name
// when present, else a top-level name.
func skillName(skill map[string]interface{}) string {
	if fn, _ := skill["function"].(map[string]interface{}); fn != nil {
		if name, _ := fn["name"].(string); name != "" {
			return name
		}
	}
	name, _ := skill["name"].(string)
	return name
}
