// Package conversation implements the conversation state manager:
// partition and conversation resolution, the encrypted append-only
// message log, context loading and injection, and summarization
// snapshots.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/axongate/axon/ent"
	entconversation "github.com/axongate/axon/ent/conversation"
	"github.com/axongate/axon/ent/conversationmessage"
	"github.com/axongate/axon/ent/conversationsnapshot"
	entpartition "github.com/axongate/axon/ent/partition"
	"github.com/axongate/axon/pkg/crypto"
)

// Message is one decrypted live message.
type Message struct {
	Role          string
	Content       string
	TokenEstimate int
}

// Context is the loaded conversation state injected ahead of the
// client's messages.
type Context struct {
	Messages              []Message
	TokenEstimate         int
	LatestSnapshotID      string
	LatestSnapshotSummary string
}

// Manager owns conversation persistence. All content is encrypted at
// rest with the tenant's derived key; rows that fail to decrypt are
// skipped silently (logged, never fatal).
type Manager struct {
	client *ent.Client
	crypto *crypto.Service
}

// NewManager creates a Manager.
func NewManager(client *ent.Client, cryptoSvc *crypto.Service) *Manager {
	return &Manager{client: client, crypto: cryptoSvc}
}

// GetOrCreatePartition upserts a root partition by
// (tenant, external_id, parent=NULL).
func (m *Manager) GetOrCreatePartition(ctx context.Context, tenantID, externalID string) (*ent.Partition, error) {
	existing, err := m.client.Partition.Query().
		Where(
			entpartition.TenantIDEQ(tenantID),
			entpartition.ExternalIDEQ(externalID),
			entpartition.ParentIDIsNil(),
		).
		Only(ctx)
	if err == nil {
		return existing, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to query partition: %w", err)
	}

	created, err := m.client.Partition.Create().
		SetID(uuid.New().String()).
		SetTenantID(tenantID).
		SetExternalID(externalID).
		Save(ctx)
	if err == nil {
		return created, nil
	}
	if ent.IsConstraintError(err) {
		// Lost a create race; the winner's row is what we want.
		return m.client.Partition.Query().
			Where(
				entpartition.TenantIDEQ(tenantID),
				entpartition.ExternalIDEQ(externalID),
				entpartition.ParentIDIsNil(),
			).
			Only(ctx)
	}
	return nil, fmt.Errorf("failed to create partition: %w", err)
}

// GetOrCreateConversation upserts a conversation by
// (tenant, partition, external_id). On hit it touches last_active_at;
// the second return reports whether the conversation is new.
func (m *Manager) GetOrCreateConversation(ctx context.Context, tenantID string, partitionID *string, externalID, agentID string) (*ent.Conversation, bool, error) {
	query := m.client.Conversation.Query().
		Where(
			entconversation.TenantIDEQ(tenantID),
			entconversation.ExternalIDEQ(externalID),
		)
	if partitionID != nil {
		query = query.Where(entconversation.PartitionIDEQ(*partitionID))
	} else {
		query = query.Where(entconversation.PartitionIDIsNil())
	}

	existing, err := query.Only(ctx)
	if err == nil {
		touched, err := m.client.Conversation.UpdateOneID(existing.ID).
			SetLastActiveAt(time.Now()).
			Save(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("failed to touch conversation: %w", err)
		}
		return touched, false, nil
	}
	if !ent.IsNotFound(err) {
		return nil, false, fmt.Errorf("failed to query conversation: %w", err)
	}

	create := m.client.Conversation.Create().
		SetID(uuid.New().String()).
		SetTenantID(tenantID).
		SetExternalID(externalID).
		SetLastActiveAt(time.Now())
	if agentID != "" {
		create.SetAgentID(agentID)
	}
	if partitionID != nil {
		create.SetPartitionID(*partitionID)
	}

	created, err := create.Save(ctx)
	if err == nil {
		return created, true, nil
	}
	if ent.IsConstraintError(err) {
		winner, qerr := query.Only(ctx)
		if qerr != nil {
			return nil, false, fmt.Errorf("failed to re-query conversation after conflict: %w", qerr)
		}
		return winner, false, nil
	}
	return nil, false, fmt.Errorf("failed to create conversation: %w", err)
}

// LoadContext fetches the latest snapshot plus every live (snapshot_id
// IS NULL) message in created_at order, decrypting along the way.
// Decrypt failures skip the row; they never fail the load.
func (m *Manager) LoadContext(ctx context.Context, tenantID, conversationID string) (*Context, error) {
	out := &Context{}

	snapshot, err := m.client.ConversationSnapshot.Query().
		Where(conversationsnapshot.ConversationIDEQ(conversationID)).
		Order(ent.Desc(conversationsnapshot.FieldCreatedAt)).
		First(ctx)
	if err != nil && !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snapshot != nil {
		summary, derr := m.crypto.Decrypt(tenantID, snapshot.SummaryEncrypted, snapshot.SummaryIv, m.crypto.KeyVersion())
		if derr != nil {
			slog.Warn("Failed to decrypt conversation snapshot, skipping",
				"conversation_id", conversationID, "snapshot_id", snapshot.ID, "error", derr)
		} else {
			out.LatestSnapshotID = snapshot.ID
			out.LatestSnapshotSummary = summary
		}
	}

	rows, err := m.client.ConversationMessage.Query().
		Where(
			conversationmessage.ConversationIDEQ(conversationID),
			conversationmessage.SnapshotIDIsNil(),
		).
		Order(ent.Asc(conversationmessage.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	for _, row := range rows {
		content, derr := m.crypto.Decrypt(tenantID, row.ContentEncrypted, row.ContentIv, m.crypto.KeyVersion())
		if derr != nil {
			slog.Warn("Failed to decrypt conversation message, skipping",
				"conversation_id", conversationID, "message_id", row.ID, "error", derr)
			continue
		}
		msg := Message{
			Role:          string(row.Role),
			Content:       content,
			TokenEstimate: EstimateTokens(content),
		}
		if row.TokenEstimate != nil {
			msg.TokenEstimate = *row.TokenEstimate
		}
		out.Messages = append(out.Messages, msg)
		out.TokenEstimate += msg.TokenEstimate
	}

	return out, nil
}

// BuildInjection renders the loaded context as chat messages: an
// optional synthetic system message carrying the snapshot summary,
// followed by the live messages in order.
func (m *Manager) BuildInjection(c *Context) []interface{} {
	if c == nil {
		return nil
	}
	msgs := make([]interface{}, 0, len(c.Messages)+1)
	if c.LatestSnapshotSummary != "" {
		msgs = append(msgs, map[string]interface{}{
			"role":    "system",
			"content": "Previous conversation summary:\n" + c.LatestSnapshotSummary,
		})
	}
	for _, msg := range c.Messages {
		msgs = append(msgs, map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}
	return msgs
}

// StoreMessages appends the user and assistant turn in one insert.
// The assistant row is timestamped strictly after the user row so the
// created_at ordering contract holds.
func (m *Manager) StoreMessages(ctx context.Context, tenantID, conversationID, userContent, assistantContent string, traceID *string) error {
	userAt := time.Now()
	assistantAt := userAt.Add(time.Millisecond)

	userEnc, userIV, err := m.crypto.Encrypt(tenantID, userContent)
	if err != nil {
		return fmt.Errorf("failed to encrypt user message: %w", err)
	}
	assistantEnc, assistantIV, err := m.crypto.Encrypt(tenantID, assistantContent)
	if err != nil {
		return fmt.Errorf("failed to encrypt assistant message: %w", err)
	}

	userCreate := m.client.ConversationMessage.Create().
		SetID(uuid.New().String()).
		SetConversationID(conversationID).
		SetRole(conversationmessage.RoleUser).
		SetContentEncrypted(userEnc).
		SetContentIv(userIV).
		SetTokenEstimate(EstimateTokens(userContent)).
		SetNillableTraceID(traceID).
		SetCreatedAt(userAt)
	assistantCreate := m.client.ConversationMessage.Create().
		SetID(uuid.New().String()).
		SetConversationID(conversationID).
		SetRole(conversationmessage.RoleAssistant).
		SetContentEncrypted(assistantEnc).
		SetContentIv(assistantIV).
		SetTokenEstimate(EstimateTokens(assistantContent)).
		SetNillableTraceID(traceID).
		SetCreatedAt(assistantAt)

	if err := m.client.ConversationMessage.CreateBulk(userCreate, assistantCreate).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store conversation turn: %w", err)
	}
	return nil
}

// CreateSnapshot stores the encrypted summary and archives every
// currently-live message under the new snapshot ID.
func (m *Manager) CreateSnapshot(ctx context.Context, tenantID, conversationID, summary string, messagesArchived int) (string, error) {
	summaryEnc, summaryIV, err := m.crypto.Encrypt(tenantID, summary)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt summary: %w", err)
	}

	snapshotID := uuid.New().String()
	_, err = m.client.ConversationSnapshot.Create().
		SetID(snapshotID).
		SetConversationID(conversationID).
		SetSummaryEncrypted(summaryEnc).
		SetSummaryIv(summaryIV).
		SetMessagesArchived(messagesArchived).
		Save(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}

	_, err = m.client.ConversationMessage.Update().
		Where(
			conversationmessage.ConversationIDEQ(conversationID),
			conversationmessage.SnapshotIDIsNil(),
		).
		SetSnapshotID(snapshotID).
		Save(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to archive messages: %w", err)
	}

	return snapshotID, nil
}
