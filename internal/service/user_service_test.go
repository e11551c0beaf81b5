package service

import (
	"context"
	"testing"

	"kinship/internal/cache"
	"kinship/internal/models"
	"kinship/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signup(t *testing.T, e *testEnv, username string) *models.User {
	t.Helper()
	user, err := e.users.Create(context.Background(), CreateUserInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

func TestUserService_Create(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()

	alice := signup(t, e, "alice")
	assert.NotEqual(t, "password123", alice.Password, "password is hashed")

	tests := []struct {
		name     string
		in       CreateUserInput
		wantCode string
	}{
		{"duplicate username", CreateUserInput{Username: "alice", Email: "new@example.com", Password: "password123"}, models.CodeConflict},
		{"duplicate email", CreateUserInput{Username: "alice2", Email: "alice@example.com", Password: "password123"}, models.CodeConflict},
		{"missing username", CreateUserInput{Email: "x@example.com", Password: "password123"}, models.CodeValidation},
		{"bad email", CreateUserInput{Username: "x", Email: "nope", Password: "password123"}, models.CodeValidation},
		{"short password", CreateUserInput{Username: "x", Email: "x@example.com", Password: "short"}, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.users.Create(ctx, tt.in)
			assertCode(t, err, tt.wantCode)
		})
	}

	found, err := e.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, alice.ID, found.ID)

	missing, err := e.users.FindByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = e.users.GetByUsername(ctx, "nobody")
	assertCode(t, err, models.CodeNotFound)
}

func TestUserService_Authenticate(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := signup(t, e, "alice")

	got, err := e.users.Authenticate(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = e.users.Authenticate(ctx, "alice", "wrong-password")
	assertCode(t, err, models.CodeUnauthorized)
	_, err = e.users.Authenticate(ctx, "nobody", "password123")
	assertCode(t, err, models.CodeUnauthorized)
}

func TestUserService_UpdateCredentials(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := signup(t, e, "alice")
	signup(t, e, "bob")

	_, err := e.users.UpdateCredentials(ctx, UpdateCredentialsInput{UserID: alice.ID, Username: "alicia", CurrentPassword: "wrong-password"})
	assertCode(t, err, models.CodeUnauthorized)

	_, err = e.users.UpdateCredentials(ctx, UpdateCredentialsInput{UserID: alice.ID, Username: "bob", CurrentPassword: "password123"})
	assertCode(t, err, models.CodeConflict)

	_, err = e.users.UpdateCredentials(ctx, UpdateCredentialsInput{UserID: alice.ID, Email: "bob@example.com", CurrentPassword: "password123"})
	assertCode(t, err, models.CodeConflict)

	_, err = e.users.UpdateCredentials(ctx, UpdateCredentialsInput{UserID: alice.ID, NewPassword: "password123", CurrentPassword: "password123"})
	assertCode(t, err, models.CodeInvalidOperation)

	updated, err := e.users.UpdateCredentials(ctx, UpdateCredentialsInput{
		UserID:          alice.ID,
		Username:        "alicia",
		Email:           "alicia@example.com",
		CurrentPassword: "password123",
		NewPassword:     "new-password",
	})
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Username)
	assert.Equal(t, "alicia@example.com", updated.Email)

	_, err = e.users.Authenticate(ctx, "alicia", "new-password")
	require.NoError(t, err)
	_, err = e.users.Authenticate(ctx, "alice", "password123")
	assertCode(t, err, models.CodeUnauthorized)
}

func TestUserService_UpdateProfile(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := signup(t, e, "alice")

	bio := "hello there"
	updated, err := e.users.UpdateProfile(ctx, UpdateProfileInput{UserID: alice.ID, Bio: &bio, Upload: pngUpload("face")})
	require.NoError(t, err)
	assert.Equal(t, bio, updated.Bio)
	assert.Equal(t, models.UserImagePath(alice.ID), updated.ImageURL)
	assert.Equal(t, 1, e.blobs.Len())

	img, err := e.users.GetImage(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("face"), img.Data)

	// Neither mode keeps the picture; bio is untouched when nil.
	same, err := e.users.UpdateProfile(ctx, UpdateProfileInput{UserID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, bio, same.Bio)
	assert.True(t, same.HasUpload())

	external, err := e.users.UpdateProfile(ctx, UpdateProfileInput{UserID: alice.ID, ImageURL: "https://img.example/me.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/me.png", external.ImageURL)
	assert.False(t, external.HasUpload())
	assert.Zero(t, e.blobs.Len())

	_, err = e.users.GetImage(ctx, alice.ID)
	assertCode(t, err, models.CodeNotFound)

	_, err = e.users.UpdateProfile(ctx, UpdateProfileInput{UserID: alice.ID, ImageURL: "https://img.example/me.png", Upload: pngUpload("x")})
	assertCode(t, err, models.CodeInvalidOperation)

	_, err = e.users.UpdateProfile(ctx, UpdateProfileInput{UserID: 404, Bio: &bio})
	assertCode(t, err, models.CodeNotFound)
}

func TestUserService_ListExcept(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	signup(t, e, "alice")
	signup(t, e, "bob")

	others, err := e.users.ListExcept(ctx, "alice", repository.Page{})
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "bob", others[0].Username)

	everyone, err := e.users.ListExcept(ctx, "ghost", repository.Page{})
	require.NoError(t, err)
	assert.Len(t, everyone, 2)

	all, err := e.users.List(ctx, repository.Page{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUserService_DeleteCascades(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := signup(t, e, "alice")
	bob := signup(t, e, "bob")

	_, err := e.users.UpdateProfile(ctx, UpdateProfileInput{UserID: alice.ID, Upload: pngUpload("face")})
	require.NoError(t, err)
	own, err := e.posts.CreatePost(ctx, CreatePostInput{ActorID: alice.ID, Upload: pngUpload("post")})
	require.NoError(t, err)
	bobsPost := e.post(t, bob, "bob's post")

	// Content alice wrote under bob's post, with bob's activity hanging off it.
	aliceComment, err := e.comments.CreateComment(ctx, CreateCommentInput{ActorID: alice.ID, PostID: bobsPost.ID, Content: "hi bob"})
	require.NoError(t, err)
	bobReply, err := e.replies.CreateReply(ctx, CreateReplyInput{ActorID: bob.ID, CommentID: aliceComment.ID, Content: "hi alice"})
	require.NoError(t, err)
	bobComment, err := e.comments.CreateComment(ctx, CreateCommentInput{ActorID: bob.ID, PostID: bobsPost.ID, Content: "thread"})
	require.NoError(t, err)
	aliceReply, err := e.replies.CreateReply(ctx, CreateReplyInput{ActorID: alice.ID, CommentID: bobComment.ID, Content: "reply"})
	require.NoError(t, err)

	for _, in := range []ToggleInput{
		{Kind: models.RelationFollow, ActorID: alice.ID, TargetID: bob.ID},
		{Kind: models.RelationFollow, ActorID: bob.ID, TargetID: alice.ID},
		{Kind: models.RelationPostLike, ActorID: alice.ID, TargetID: bobsPost.ID},
		{Kind: models.RelationPostLike, ActorID: bob.ID, TargetID: own.ID},
		{Kind: models.RelationReplyLike, ActorID: bob.ID, TargetID: aliceReply.ID},
	} {
		_, err := e.ledger.Toggle(ctx, in)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, e.blobs.Len())

	require.NoError(t, e.users.Delete(ctx, "alice"))

	_, err = e.users.GetByID(ctx, alice.ID)
	assertCode(t, err, models.CodeNotFound)
	_, err = e.posts.GetPost(ctx, own.ID)
	assertCode(t, err, models.CodeNotFound)
	_, err = e.replies.EditReply(ctx, EditReplyInput{ActorID: bob.ID, ReplyID: bobReply.ID, Content: "orphan?"})
	assertCode(t, err, models.CodeNotFound)

	bobNow, err := e.users.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, bobNow.FollowersCount)
	assert.Zero(t, bobNow.FollowingCount)

	comments, err := e.comments.ListComments(ctx, bobsPost.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, bobComment.ID, comments[0].ID)
	assert.Zero(t, comments[0].RepliesCount)

	likes, err := e.ledger.Count(ctx, models.RelationPostLike, bobsPost.ID)
	require.NoError(t, err)
	assert.Zero(t, likes)

	var relations int64
	require.NoError(t, e.db.Model(&models.Relation{}).Count(&relations).Error)
	assert.Zero(t, relations)
	assert.Zero(t, e.blobs.Len())

	err = e.users.Delete(ctx, "alice")
	assertCode(t, err, models.CodeNotFound)
}

// Not parallel: the cache client is process-wide.
func TestUserService_CachedProfileKeepsLiveCounts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(client)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = client.Close()
	})

	e := newTestEnv(t)
	ctx := context.Background()
	alice := signup(t, e, "alice")
	bob := signup(t, e, "bob")

	first, err := e.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, first.FollowersCount)
	assert.True(t, mr.Exists(cache.UserByNameKey("alice")))

	_, err = e.ledger.ToggleFollow(ctx, bob.ID, "alice")
	require.NoError(t, err)

	second, err := e.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.FollowersCount)

	bio := "updated"
	_, err = e.users.UpdateProfile(ctx, UpdateProfileInput{UserID: alice.ID, Bio: &bio})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.UserByNameKey("alice")), "profile update invalidates the cache")

	third, err := e.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", third.Bio)
}
