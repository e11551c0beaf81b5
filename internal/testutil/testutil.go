// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"kinship/internal/database"
	"kinship/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewSQLiteDB opens a private in-memory SQLite database with the schema
// migrated. The pool is pinned to a single connection, which both keeps the
// in-memory database alive and mirrors how the server runs SQLite.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:kinship_test_%d?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000", dbSeq.Add(1))
	cfg := database.GormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.MigrateUp(db))
	return db
}

// CreateUser inserts a user with a bcrypt hash of "password123".
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Username: username, Email: username + "@example.com", Password: string(hash)}
	require.NoError(t, db.WithContext(context.Background()).Create(user).Error)
	return user
}

// CreatePost inserts a text-only post owned by userID.
func CreatePost(t testing.TB, db *gorm.DB, userID uint, description string) *models.Post {
	t.Helper()
	post := &models.Post{UserID: userID, Description: description}
	require.NoError(t, db.Create(post).Error)
	return post
}

// CreateComment inserts a comment on postID.
func CreateComment(t testing.TB, db *gorm.DB, userID, postID uint, content string) *models.Comment {
	t.Helper()
	comment := &models.Comment{UserID: userID, PostID: postID, Content: content}
	require.NoError(t, db.Create(comment).Error)
	return comment
}

// CreateReply inserts a reply on commentID.
func CreateReply(t testing.TB, db *gorm.DB, userID, commentID uint, content string) *models.Reply {
	t.Helper()
	reply := &models.Reply{UserID: userID, CommentID: commentID, Content: content}
	require.NoError(t, db.Create(reply).Error)
	return reply
}

// Relate inserts a relation row directly.
func Relate(t testing.TB, db *gorm.DB, kind models.RelationKind, actorID, targetID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Relation{Kind: kind, ActorID: actorID, TargetID: targetID}).Error)
}
