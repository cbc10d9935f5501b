package services

import (
	"context"
	"errors"
	"testing"

	"github.com/isdelr/warbler/internal/database"
	"github.com/isdelr/warbler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserModelStartsEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := models.User{Email: "test@test.com", Username: "testuser", PasswordHash: "HASHED_PASSWORD"}
	require.NoError(t, env.users.CreateUser(ctx, &u))
	assert.Positive(t, u.ID)

	messages, err := env.messages.MessagesByUser(ctx, u.ID, 100)
	require.NoError(t, err)
	assert.Empty(t, messages)
	followers, err := env.users.Followers(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, followers)
}

func TestSignupHashesPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.Signup("testuser", "test@test.com", "testtest", "/test/url")
	require.NoError(t, err)
	assert.Zero(t, u.ID, "signup must not persist")
	assert.NotEqual(t, "testtest", u.PasswordHash)
	assert.NotEmpty(t, u.PasswordHash)

	require.NoError(t, env.users.CreateUser(ctx, &u))
	profile, err := env.users.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, profile.MessageCount)
	assert.Zero(t, profile.FollowerCount)
	assert.Equal(t, "/test/url", profile.ImageURL)
}

func TestSignupDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.users.Signup("noimage", "noimage@test.com", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultImageURL, u.ImageURL)

	_, err = env.users.Signup("", "a@test.com", "pw", "")
	assert.ErrorIs(t, err, ErrMissingField)
	_, err = env.users.Signup("bob", "a@test.com", "", "")
	assert.ErrorIs(t, err, ErrMissingField)
	_, err = env.users.Signup("bob", "not-an-email", "pw", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestDuplicateUsernameIsIntegrityError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "testuser", "test@test.com")

	u2, err := env.users.Signup("testuser", "test2@test.com", "testtest", "/test/url")
	require.NoError(t, err)
	err = env.users.CreateUser(ctx, &u2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrIntegrity))
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.Zero(t, u2.ID)
}

func TestDuplicateEmailIsIntegrityError(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "testuser", "test@test.com")

	_, err := env.users.Register(context.Background(), "testuser2", "test@test.com", "testtest", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrIntegrity)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")

	got, err := env.users.Authenticate(ctx, "testuser", "testtest")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Empty(t, got.PasswordHash)

	got, err = env.users.Authenticate(ctx, "testuser", "wrongpassword")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = env.users.Authenticate(ctx, "nobody", "testtest")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIsFollowing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")
	u2 := env.signup(t, "testuser2", "test2@test.com")

	following, err := env.users.IsFollowing(ctx, u.ID, u2.ID)
	require.NoError(t, err)
	assert.False(t, following)

	require.NoError(t, env.users.Follow(ctx, u.ID, u2.ID))

	following, err = env.users.IsFollowing(ctx, u.ID, u2.ID)
	require.NoError(t, err)
	assert.True(t, following)

	reverse, err := env.users.IsFollowing(ctx, u2.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, reverse, "follows are directional")
}

func TestIsFollowedBy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")
	u2 := env.signup(t, "testuser2", "test2@test.com")

	followed, err := env.users.IsFollowedBy(ctx, u.ID, u2.ID)
	require.NoError(t, err)
	assert.False(t, followed)

	require.NoError(t, env.users.Follow(ctx, u.ID, u2.ID))

	followed, err = env.users.IsFollowedBy(ctx, u2.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, followed)

	followed, err = env.users.IsFollowedBy(ctx, u.ID, u2.ID)
	require.NoError(t, err)
	assert.False(t, followed, "u following u2 does not make u followed by u2")
}

func TestFollowRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")
	u2 := env.signup(t, "testuser2", "test2@test.com")

	assert.ErrorIs(t, env.users.Follow(ctx, u.ID, u.ID), ErrSelfFollow)
	assert.ErrorIs(t, env.users.Follow(ctx, u.ID, 999), ErrUserNotFound)

	require.NoError(t, env.users.Follow(ctx, u.ID, u2.ID))
	require.NoError(t, env.users.Follow(ctx, u.ID, u2.ID), "duplicate follow is a no-op")

	following, err := env.users.Following(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "testuser2", following[0].Username)
	assert.Equal(t, "/test/url", following[0].ImageURL)
	assert.Equal(t, models.DefaultHeaderImageURL, following[0].HeaderImageURL)
	assert.Empty(t, following[0].PasswordHash)

	followers, err := env.users.Followers(ctx, u2.ID)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, u.ID, followers[0].ID)

	require.NoError(t, env.users.Unfollow(ctx, u.ID, u2.ID))
	require.NoError(t, env.users.Unfollow(ctx, u.ID, u2.ID), "unfollowing twice is a no-op")
	following, err = env.users.Following(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, following)
}

func TestDeleteUserCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")
	u2 := env.signup(t, "testuser2", "test2@test.com")
	require.NoError(t, env.users.Follow(ctx, u.ID, u2.ID))
	require.NoError(t, env.users.Follow(ctx, u2.ID, u.ID))
	_, err := env.messages.CreateMessage(ctx, u.ID, "bye")
	require.NoError(t, err)

	require.NoError(t, env.users.DeleteUser(ctx, u.ID))

	_, err = env.users.GetUserByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	profile, err := env.users.GetProfile(ctx, u2.ID)
	require.NoError(t, err)
	assert.Zero(t, profile.FollowerCount)
	assert.Zero(t, profile.FollowingCount)
	public, err := env.messages.PublicTimeline(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, public)

	assert.ErrorIs(t, env.users.DeleteUser(ctx, u.ID), ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")
	env.signup(t, "taken", "taken@test.com")

	_, err := env.users.UpdateProfile(ctx, u.ID, ProfileUpdate{Bio: "hi"}, "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	updated, err := env.users.UpdateProfile(ctx, u.ID, ProfileUpdate{Bio: " birds ", Location: "Nest"}, "testtest")
	require.NoError(t, err)
	assert.Equal(t, "testuser", updated.Username)
	assert.Equal(t, "birds", updated.Bio)
	assert.Equal(t, "Nest", updated.Location)

	_, err = env.users.UpdateProfile(ctx, u.ID, ProfileUpdate{Username: "taken"}, "testtest")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestListUsersSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "robin", "robin@test.com")
	env.signup(t, "wren", "wren@test.com")
	env.signup(t, "robin_hood", "hood@test.com")

	all, err := env.users.ListUsers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := env.users.ListUsers(ctx, "rob")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = env.users.ListUsers(ctx, "n_h")
	require.NoError(t, err)
	require.Len(t, found, 1, "underscore is matched literally")
	assert.Equal(t, "robin_hood", found[0].Username)
}

func TestRegisterRecordsEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.Register(ctx, "testuser", "test@test.com", "testtest", "")
	require.NoError(t, err)

	events, err := env.events.GetEventsForUser(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "user.signup", events[0].Type)
}

func TestLookupsHidePasswordAndReportMissingUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.signup(t, "testuser", "test@test.com")

	byName, err := env.users.GetUserByUsername(ctx, "testuser")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
	assert.Empty(t, byName.PasswordHash)

	_, err = env.users.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = env.users.GetUserByID(ctx, u.ID+100)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = env.users.GetProfile(ctx, u.ID+100)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
