package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/isdelr/warbler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageModel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")

	m, err := env.messages.CreateMessage(ctx, u.ID, "test")
	require.NoError(t, err)

	assert.LessOrEqual(t, int64(0), m.ID)
	assert.False(t, m.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now(), m.Timestamp, time.Minute)
	require.NotNil(t, m.User)
	assert.Equal(t, u.ID, m.User.ID)
	assert.Equal(t, u.Username, m.User.Username)
}

func TestMessageAuthorCarriesPublicProfileOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")
	_, err := env.users.UpdateProfile(ctx, u.ID, ProfileUpdate{Bio: "birds", Location: "Oslo"}, "testtest")
	require.NoError(t, err)

	m, err := env.messages.CreateMessage(ctx, u.ID, "test")
	require.NoError(t, err)

	require.NotNil(t, m.User)
	assert.Equal(t, "birds", m.User.Bio)
	assert.Equal(t, "Oslo", m.User.Location)
	assert.Equal(t, "/test/url", m.User.ImageURL)
	assert.Equal(t, models.DefaultHeaderImageURL, m.User.HeaderImageURL)
	assert.Empty(t, m.User.Email)
	assert.Empty(t, m.User.PasswordHash)
}

func TestCreateMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")

	_, err := env.messages.CreateMessage(ctx, u.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = env.messages.CreateMessage(ctx, u.ID, strings.Repeat("a", 141))
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = env.messages.CreateMessage(ctx, u.ID, strings.Repeat("é", 140))
	assert.NoError(t, err, "length counts characters, not bytes")

	_, err = env.messages.CreateMessage(ctx, 999, "ghost")
	assert.Error(t, err, "unknown author violates the foreign key")
}

func TestCreateMessagePublishesToFeeds(t *testing.T) {
	env := newTestEnv(t)
	u := env.signup(t, "testuser", "test@test.com")

	_, err := env.messages.CreateMessage(context.Background(), u.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{GlobalFeedTopic, FeedTopic(u.ID)}, env.publisher.topics)
}

func TestTimelineIncludesFollowedUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.signup(t, "alice", "alice@test.com")
	bob := env.signup(t, "bob", "bob@test.com")
	carol := env.signup(t, "carol", "carol@test.com")

	_, err := env.messages.CreateMessage(ctx, alice.ID, "alice 1")
	require.NoError(t, err)
	_, err = env.messages.CreateMessage(ctx, bob.ID, "bob 1")
	require.NoError(t, err)
	_, err = env.messages.CreateMessage(ctx, carol.ID, "carol 1")
	require.NoError(t, err)
	require.NoError(t, env.users.Follow(ctx, alice.ID, bob.ID))

	timeline, err := env.messages.Timeline(ctx, alice.ID, 100)
	require.NoError(t, err)
	var texts []string
	for _, m := range timeline {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"bob 1", "alice 1"}, texts)

	public, err := env.messages.PublicTimeline(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, public, 2)
	assert.Equal(t, "carol 1", public[0].Text)
}

func TestDeleteMessageOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.signup(t, "alice", "alice@test.com")
	bob := env.signup(t, "bob", "bob@test.com")

	m, err := env.messages.CreateMessage(ctx, alice.ID, "mine")
	require.NoError(t, err)

	assert.ErrorIs(t, env.messages.DeleteMessage(ctx, m.ID, bob.ID), ErrNotOwner)
	require.NoError(t, env.messages.DeleteMessage(ctx, m.ID, alice.ID))

	_, err = env.messages.GetMessage(ctx, m.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.ErrorIs(t, env.messages.DeleteMessage(ctx, m.ID, alice.ID), ErrMessageNotFound)
}
