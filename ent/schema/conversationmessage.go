package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ConversationMessage holds the schema definition for the
// ConversationMessage entity. Rows are append-only: the only permitted
// update is setting snapshot_id exactly once when a row is archived.
type ConversationMessage struct {
	ent.Schema
}

// Fields of the ConversationMessage.
func (ConversationMessage) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("message_id").
			Unique().
			Immutable(),
		field.String("conversation_id").
			Immutable(),
		field.Enum("role").
			Values("system", "user", "assistant", "tool").
			Immutable(),
		field.Text("content_encrypted").
			Immutable(),
		field.String("content_iv").
			Immutable().
			Comment("base64url, 24 chars"),
		field.Int("token_estimate").
			Optional().
			Nillable().
			Immutable(),
		field.String("trace_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("snapshot_id").
			Optional().
			Nillable().
			Comment("Set once when the message is archived into a snapshot"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the ConversationMessage.
func (ConversationMessage) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("conversation", Conversation.Type).
			Ref("messages").
			Field("conversation_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the ConversationMessage.
func (ConversationMessage) Indexes() []ent.Index {
	return []ent.Index{
		// Context load: live messages in insertion order
		index.Fields("conversation_id", "created_at"),
		index.Fields("conversation_id", "snapshot_id"),
	}
}
