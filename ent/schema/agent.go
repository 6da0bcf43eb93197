package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Agent holds the schema definition for the Agent entity.
// An agent binds a provider, system prompt, tools, and MCP endpoints
// inside a tenant. API keys authenticate against a single agent.
type Agent struct {
	ent.Schema
}

// Fields of the Agent.
func (Agent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("agent_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("name"),
		field.JSON("provider_config", map[string]interface{}{}).
			Optional(),
		field.Text("system_prompt").
			Optional().
			Nillable(),
		field.JSON("skills", []map[string]interface{}{}).
			Optional(),
		field.JSON("mcp_endpoints", []map[string]interface{}{}).
			Optional(),
		field.JSON("merge_policies", map[string]interface{}{}).
			Optional().
			Comment("system_prompt: prepend|append|overwrite|ignore; skills/mcp_endpoints: merge|overwrite|ignore"),
		field.Bool("conversations_enabled").
			Default(false),
		field.Int("conversation_token_limit").
			Default(4000),
		field.String("conversation_summary_model").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Agent.
func (Agent) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("tenant", Tenant.Type).
			Ref("agents").
			Field("tenant_id").
			Unique().
			Required().
			Immutable(),
		edge.To("api_keys", APIKey.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		// Weak reference: deleting an agent keeps its conversations.
		edge.To("conversations", Conversation.Type).
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}

// Indexes of the Agent.
func (Agent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id"),
	}
}
