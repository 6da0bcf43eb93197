package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/axongate/axon/test/database"
)

func TestDeleteIdleConversations(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	owner, err := client.Tenant.Create().
		SetID(uuid.New().String()).
		SetName("tenant").
		Save(ctx)
	require.NoError(t, err)

	stale, err := client.Conversation.Create().
		SetID(uuid.New().String()).
		SetTenantID(owner.ID).
		SetExternalID("stale").
		SetLastActiveAt(time.Now().AddDate(0, 0, -90)).
		Save(ctx)
	require.NoError(t, err)

	// A message on the stale conversation must cascade away with it.
	_, err = client.ConversationMessage.Create().
		SetID(uuid.New().String()).
		SetConversationID(stale.ID).
		SetRole("user").
		SetContentEncrypted("ct").
		SetContentIv("iv").
		Save(ctx)
	require.NoError(t, err)

	fresh, err := client.Conversation.Create().
		SetID(uuid.New().String()).
		SetTenantID(owner.ID).
		SetExternalID("fresh").
		SetLastActiveAt(time.Now()).
		Save(ctx)
	require.NoError(t, err)

	svc := NewService(Config{ConversationRetentionDays: 30}, client.Client, client.DB())
	svc.deleteIdleConversations(ctx)

	remaining, err := client.Conversation.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)

	messages, err := client.ConversationMessage.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, messages, "messages cascade with their conversation")
}

func TestDeleteIdleConversationsDisabled(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	owner, err := client.Tenant.Create().
		SetID(uuid.New().String()).
		SetName("tenant").
		Save(ctx)
	require.NoError(t, err)

	_, err = client.Conversation.Create().
		SetID(uuid.New().String()).
		SetTenantID(owner.ID).
		SetExternalID("ancient").
		SetLastActiveAt(time.Now().AddDate(-1, 0, 0)).
		Save(ctx)
	require.NoError(t, err)

	svc := NewService(Config{}, client.Client, client.DB())
	svc.deleteIdleConversations(ctx)

	count, err := client.Conversation.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "zero retention disables the sweep")
}

func TestStartStop(t *testing.T) {
	client := testdb.NewTestClient(t)

	svc := NewService(Config{Interval: time.Hour}, client.Client, client.DB())
	svc.Start(context.Background())
	svc.Stop()
}
