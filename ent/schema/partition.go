package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Partition holds the schema definition for the Partition entity.
// A tenant-scoped hierarchical grouping of conversations, addressed by
// a caller-supplied external ID.
type Partition struct {
	ent.Schema
}

// Fields of the Partition.
func (Partition) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("partition_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("parent_id").
			Optional().
			Nillable(),
		field.String("external_id"),
		field.Text("title_encrypted").
			Optional().
			Nillable(),
		field.String("title_iv").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Partition.
func (Partition) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("tenant", Tenant.Type).
			Ref("partitions").
			Field("tenant_id").
			Unique().
			Required().
			Immutable(),
		edge.To("children", Partition.Type).
			From("parent").
			Field("parent_id").
			Unique(),
		edge.To("conversations", Conversation.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Partition.
func (Partition) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "parent_id", "external_id").
			Unique(),
		// NULL parent_id rows need their own uniqueness guard:
		// Postgres treats NULLs as distinct in composite unique indexes.
		index.Fields("tenant_id", "external_id").
			Unique().
			Annotations(entsql.IndexWhere("parent_id IS NULL")),
	}
}
