package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Tenant holds the schema definition for the Tenant entity.
// Tenants form a forest: parent_id builds an inheritance chain that the
// config resolver walks (hop-capped, see pkg/tenant).
type Tenant struct {
	ent.Schema
}

// Fields of the Tenant.
func (Tenant) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("tenant_id").
			Unique().
			Immutable(),
		field.String("name"),
		field.String("parent_id").
			Optional().
			Nillable().
			Comment("Parent tenant for config inheritance"),
		field.JSON("provider_config", map[string]interface{}{}).
			Optional().
			Comment("Upstream provider settings (provider, base_url, api_key, ...)"),
		field.Text("system_prompt").
			Optional().
			Nillable(),
		field.JSON("skills", []map[string]interface{}{}).
			Optional().
			Comment("OpenAI-style tool definitions"),
		field.JSON("mcp_endpoints", []map[string]interface{}{}).
			Optional().
			Comment("MCP endpoints [{name, url}]"),
		field.Enum("status").
			Values("active", "inactive").
			Default("active"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Tenant.
func (Tenant) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("children", Tenant.Type).
			From("parent").
			Field("parent_id").
			Unique(),
		edge.To("agents", Agent.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("api_keys", APIKey.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("partitions", Partition.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("conversations", Conversation.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Tenant.
func (Tenant) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("parent_id"),
		index.Fields("status"),
	}
}
