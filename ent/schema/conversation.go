package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Conversation holds the schema definition for the Conversation entity.
// Conversations are addressed by (tenant, partition, external_id); the
// agent reference is weak (set-null on agent deletion).
type Conversation struct {
	ent.Schema
}

// Fields of the Conversation.
func (Conversation) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("conversation_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("agent_id").
			Optional().
			Nillable(),
		field.String("partition_id").
			Optional().
			Nillable(),
		field.String("external_id"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("last_active_at").
			Default(time.Now),
	}
}

// Edges of the Conversation.
func (Conversation) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("tenant", Tenant.Type).
			Ref("conversations").
			Field("tenant_id").
			Unique().
			Required().
			Immutable(),
		edge.From("agent", Agent.Type).
			Ref("conversations").
			Field("agent_id").
			Unique(),
		edge.From("partition", Partition.Type).
			Ref("conversations").
			Field("partition_id").
			Unique(),
		edge.To("messages", ConversationMessage.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("snapshots", ConversationSnapshot.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Conversation.
func (Conversation) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "partition_id", "external_id").
			Unique(),
		index.Fields("tenant_id", "external_id").
			Unique().
			Annotations(entsql.IndexWhere("partition_id IS NULL")),
		index.Fields("last_active_at"),
	}
}
