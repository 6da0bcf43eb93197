package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ConversationSnapshot holds the schema definition for the
// ConversationSnapshot entity: an encrypted summary of a conversation
// prefix. Archived messages are marked with the snapshot ID but kept.
type ConversationSnapshot struct {
	ent.Schema
}

// Fields of the ConversationSnapshot.
func (ConversationSnapshot) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("snapshot_id").
			Unique().
			Immutable(),
		field.String("conversation_id").
			Immutable(),
		field.Text("summary_encrypted").
			Immutable(),
		field.String("summary_iv").
			Immutable(),
		field.Int("messages_archived").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the ConversationSnapshot.
func (ConversationSnapshot) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("conversation", Conversation.Type).
			Ref("snapshots").
			Field("conversation_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the ConversationSnapshot.
func (ConversationSnapshot) Indexes() []ent.Index {
	return []ent.Index{
		// Latest-snapshot lookup
		index.Fields("conversation_id", "created_at"),
	}
}
