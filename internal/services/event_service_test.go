package services

import (
	"context"
	"testing"
	"time"

	"github.com/isdelr/warbler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsRecentAndPrune(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.events.CreateEvent(ctx, "system.start", models.LevelInfo, "started", nil))
	u := env.signup(t, "testuser", "test@test.com")
	_, err := env.messages.CreateMessage(ctx, u.ID, "hello")
	require.NoError(t, err)

	recent, err := env.events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "message.create", recent[0].Type)
	require.NotNil(t, recent[0].UserID)
	assert.Equal(t, u.ID, *recent[0].UserID)
	assert.Nil(t, recent[1].UserID)

	n, err := env.events.PruneEvents(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = env.events.PruneEvents(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recent, err = env.events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
