package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Trace holds the schema definition for the Trace entity: an encrypted
// record of one completed request/response pair with timing and token
// metadata. The production table is range-partitioned by month on
// created_at (see pkg/database/migrations); the write side creates
// partitions ahead of time.
//
// No edges: trace rows outlive tenants and are written off the hot path,
// so foreign keys are deliberately absent.
type Trace struct {
	ent.Schema
}

// Fields of the Trace.
func (Trace) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("trace_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("request_id").
			Immutable(),
		field.String("model").
			Optional().
			Nillable().
			Immutable(),
		field.String("provider").
			Immutable(),
		field.String("endpoint").
			Immutable(),
		field.Text("request_body_encrypted").
			Immutable(),
		field.String("request_body_iv").
			Immutable(),
		field.Text("response_body_encrypted").
			Optional().
			Nillable().
			Immutable(),
		field.String("response_body_iv").
			Optional().
			Nillable().
			Immutable(),
		field.Int64("latency_ms").
			Immutable(),
		field.Int64("ttfb_ms").
			Optional().
			Nillable().
			Immutable(),
		field.Int64("gateway_overhead_ms").
			Optional().
			Nillable().
			Immutable(),
		field.Int("prompt_tokens").
			Optional().
			Nillable().
			Immutable(),
		field.Int("completion_tokens").
			Optional().
			Nillable().
			Immutable(),
		field.Int("total_tokens").
			Optional().
			Nillable().
			Immutable(),
		field.Int("status_code").
			Optional().
			Nillable().
			Immutable(),
		field.Int("encryption_key_version").
			Default(1).
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the Trace.
func (Trace) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "created_at"),
		index.Fields("request_id"),
	}
}
