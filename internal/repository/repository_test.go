package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"kinship/internal/models"
	"kinship/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestPostRepository_GetForUpdate_LocksRowOnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "posts"."id" = $1 ORDER BY "posts"."id" LIMIT $2 FOR UPDATE`)).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "description"}).AddRow(7, 3, "hello"))

	post, err := repo.GetForUpdate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint(3), post.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN users ON users.id = posts.user_id WHERE posts.id = $3`)).
		WithArgs(models.RelationPostLike, models.RelationPostSave, 9, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 9)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationRepository_Lock(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRelationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1)`)).
		WithArgs(relationLockKey(models.RelationFollow, 1, 2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Lock(context.Background(), models.RelationFollow, 1, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationRepository_LockTarget_SharesRowOnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRelationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "posts" WHERE id = $1 LIMIT $2 FOR SHARE`)).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "replies" WHERE id = $1 LIMIT $2 FOR SHARE`)).
		WithArgs(8, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ok, err := repo.LockTarget(context.Background(), models.RelationPostSave, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.LockTarget(context.Background(), models.RelationReplyLike, 8)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_LockShared_OnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "users" WHERE id = $1 LIMIT $2 FOR SHARE`)).
		WithArgs(3, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ok, err := repo.LockShared(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationRepository_Insert_OnConflictDoNothing(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRelationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT ("kind","actor_id","target_id") DO NOTHING`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	inserted, err := repo.Insert(context.Background(), models.RelationPostLike, 1, 2)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationRepository_Delete_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRelationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "relations"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Delete(context.Background(), models.RelationFollow, 1, 2)
	assert.True(t, models.IsCode(err, models.CodeInternal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationLockKey_Distinct(t *testing.T) {
	a := relationLockKey(models.RelationPostLike, 1, 2)
	assert.Equal(t, a, relationLockKey(models.RelationPostLike, 1, 2))
	assert.NotEqual(t, a, relationLockKey(models.RelationPostSave, 1, 2))
	assert.NotEqual(t, a, relationLockKey(models.RelationPostLike, 2, 1))
}

func TestUserRepository_CreateAndConflict(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "hash"}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotZero(t, user.ID)

	dup := &models.User{Username: "alice", Email: "other@example.com", Password: "hash"}
	err := repo.Create(ctx, dup)
	assert.True(t, models.IsCode(err, models.CodeConflict))

	found, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	missing, err := repo.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestUserRepository_FollowCountsAndLists(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")
	testutil.Relate(t, db, models.RelationFollow, bob.ID, alice.ID)
	testutil.Relate(t, db, models.RelationFollow, carol.ID, alice.ID)
	testutil.Relate(t, db, models.RelationFollow, alice.ID, carol.ID)

	got, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.FollowersCount)
	assert.Equal(t, int64(1), got.FollowingCount)

	followers, err := repo.ListFollowers(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, "bob", followers[0].Username)
	assert.Equal(t, "carol", followers[1].Username)

	followings, err := repo.ListFollowings(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, followings, 1)
	assert.Equal(t, carol.ID, followings[0].ID)

	others, err := repo.ListExcept(ctx, bob.ID, Page{})
	require.NoError(t, err)
	assert.Len(t, others, 2)

	paged, err := repo.List(ctx, Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "bob", paged[0].Username)
}

func TestUserRepository_UpdateWritesImageColumnsTogether(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "alice")
	user.UseUpload("users/abc", "me.png", "image/png", 3, models.UserImagePath(user.ID))
	require.NoError(t, repo.Update(ctx, user))

	user.UseExternalURL("https://example.com/me.png")
	require.NoError(t, repo.Update(ctx, user))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/me.png", got.ImageURL)
	assert.Empty(t, got.ImageKey)
	assert.Empty(t, got.ImageName)
	assert.Zero(t, got.ImageSize)
}

func TestUserRepository_UpdateDoesNotResurrectDeletedRow(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "alice")
	require.NoError(t, repo.Delete(ctx, user.ID))

	user.Bio = "still here?"
	require.NoError(t, repo.Update(ctx, user))

	exists, err := repo.Exists(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPostRepository_DetailsAndOrdering(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	first := testutil.CreatePost(t, db, alice.ID, "first")
	second := testutil.CreatePost(t, db, alice.ID, "second")
	third := testutil.CreatePost(t, db, bob.ID, "third")

	testutil.Relate(t, db, models.RelationPostLike, bob.ID, first.ID)
	testutil.Relate(t, db, models.RelationPostLike, alice.ID, first.ID)
	testutil.Relate(t, db, models.RelationPostSave, bob.ID, first.ID)
	testutil.CreateComment(t, db, bob.ID, first.ID, "nice")

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, int64(2), got.LikesCount)
	assert.Equal(t, int64(1), got.SavesCount)
	assert.Equal(t, int64(1), got.CommentsCount)

	all, err := repo.List(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint{third.ID, second.ID, first.ID}, postIDs(all))

	byAlice, err := repo.ListByAuthor(ctx, alice.ID, Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint{second.ID}, postIDs(byAlice))

	notAlice, err := repo.ListExcludingAuthor(ctx, alice.ID, Page{})
	require.NoError(t, err)
	assert.Equal(t, []uint{third.ID}, postIDs(notAlice))

	byAuthors, err := repo.ListByAuthors(ctx, nil, Page{})
	require.NoError(t, err)
	assert.Empty(t, byAuthors)

	saved, err := repo.ListRelatedBy(ctx, models.RelationPostSave, bob.ID, Page{})
	require.NoError(t, err)
	assert.Equal(t, []uint{first.ID}, postIDs(saved))

	count, err := repo.CountByAuthor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCommentAndReplyRepositories(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	comments := NewCommentRepository(db)
	replies := NewReplyRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	post := testutil.CreatePost(t, db, alice.ID, "post")
	c1 := testutil.CreateComment(t, db, alice.ID, post.ID, "one")
	c2 := testutil.CreateComment(t, db, alice.ID, post.ID, "two")
	r1 := testutil.CreateReply(t, db, alice.ID, c1.ID, "reply")
	testutil.Relate(t, db, models.RelationCommentLike, alice.ID, c1.ID)
	testutil.Relate(t, db, models.RelationReplyLike, alice.ID, r1.ID)

	list, err := comments.ListByPost(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c1.ID, list[0].ID)
	assert.Equal(t, int64(1), list[0].LikesCount)
	assert.Equal(t, int64(1), list[0].RepliesCount)
	assert.Equal(t, "alice", list[1].Username)

	ids, err := comments.IDsByPosts(ctx, []uint{post.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{c1.ID, c2.ID}, ids)

	reply, err := replies.GetByID(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reply.LikesCount)

	reply.Content = "edited"
	require.NoError(t, replies.Update(ctx, reply))
	fresh, err := replies.GetByID(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", fresh.Content)

	require.NoError(t, replies.DeleteByIDs(ctx, []uint{r1.ID}))
	n, err := replies.CountByComment(ctx, c1.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelationRepository_SQLite(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewRelationRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	post := testutil.CreatePost(t, db, bob.ID, "post")

	require.NoError(t, repo.Lock(ctx, models.RelationPostLike, alice.ID, post.ID))

	inserted, err := repo.Insert(ctx, models.RelationPostLike, alice.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(ctx, models.RelationPostLike, alice.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, inserted, "second insert collapses onto the existing row")

	n, err := repo.CountByTarget(ctx, models.RelationPostLike, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := repo.LockTarget(ctx, models.RelationPostLike, post.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.LockTarget(ctx, models.RelationFollow, 999)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = repo.LockTarget(ctx, models.RelationKind("poke"), 1)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	testutil.Relate(t, db, models.RelationFollow, alice.ID, bob.ID)
	targets, err := repo.TargetIDs(ctx, models.RelationFollow, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{bob.ID}, targets)

	require.NoError(t, repo.DeleteTargeting(ctx, models.TablePosts, []uint{post.ID}))
	exists, err := repo.Exists(ctx, models.RelationPostLike, alice.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	removed, err := repo.Delete(ctx, models.RelationFollow, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	removed, err = repo.Delete(ctx, models.RelationFollow, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	tx := NewTransactor(db)
	ctx := context.Background()
	boom := errors.New("boom")

	err := tx.InTx(ctx, func(repos Repositories) error {
		if err := repos.Users.Create(ctx, &models.User{Username: "ghost", Email: "ghost@example.com", Password: "x"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found, err := NewUserRepository(db).FindByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func postIDs(posts []*models.Post) []uint {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}
