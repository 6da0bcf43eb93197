package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// APIKey holds the schema definition for the APIKey entity.
// Only the SHA-256 of the raw key is persisted; the raw key is shown
// once at creation time. key_prefix (first 12 chars) is display-only.
type APIKey struct {
	ent.Schema
}

// Fields of the APIKey.
func (APIKey) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("api_key_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("agent_id").
			Immutable(),
		field.String("key_hash").
			Unique().
			Comment("sha256(raw key), hex"),
		field.String("key_prefix").
			Comment("First 12 characters of the raw key, for display"),
		field.Enum("status").
			Values("active", "revoked").
			Default("active"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the APIKey.
func (APIKey) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("tenant", Tenant.Type).
			Ref("api_keys").
			Field("tenant_id").
			Unique().
			Required().
			Immutable(),
		edge.From("agent", Agent.Type).
			Ref("api_keys").
			Field("agent_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the APIKey.
func (APIKey) Indexes() []ent.Index {
	return []ent.Index{
		// Auth lookup path
		index.Fields("key_hash").
			Unique(),
		index.Fields("tenant_id"),
		index.Fields("agent_id"),
	}
}
