// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"kinship/internal/database"
	"kinship/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Page bounds a list query. Limit <= 0 means unbounded.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	if p.Limit > 0 {
		db = db.Limit(p.Limit)
	}
	if p.Offset > 0 {
		db = db.Offset(p.Offset)
	}
	return db
}

// imageColumns are the persisted columns of models.ImageFields. They are always
// written together so a mode switch never leaves fields of the other mode behind.
var imageColumns = []string{"image_url", "image_name", "image_type", "image_size", "image_key"}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Users     UserRepository
	Posts     PostRepository
	Comments  CommentRepository
	Replies   ReplyRepository
	Relations RelationRepository
}

// NewRepositories binds every repository to db.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:     NewUserRepository(db),
		Posts:     NewPostRepository(db),
		Comments:  NewCommentRepository(db),
		Replies:   NewReplyRepository(db),
		Relations: NewRelationRepository(db),
	}
}

// Transactor runs fn with repositories bound to a single database transaction.
// Returning an error from fn rolls the transaction back.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Repositories) error) error
}

type gormTransactor struct {
	db *gorm.DB
}

// NewTransactor returns a Transactor backed by db.
func NewTransactor(db *gorm.DB) Transactor {
	return &gormTransactor{db: db}
}

func (t *gormTransactor) InTx(ctx context.Context, fn func(tx Repositories) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// forUpdate adds a row lock on dialects that support SELECT ... FOR UPDATE.
// SQLite serializes writers, so the lock is implicit there.
func forUpdate(db *gorm.DB) *gorm.DB {
	if database.IsPostgres(db) {
		return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return db
}

// lockShared reports whether row id of table exists. On postgres the row
// stays share-locked until the transaction ends: a delete that already holds
// it has committed by the time this returns, and a later delete waits.
func lockShared(ctx context.Context, db *gorm.DB, table string, id uint) (bool, error) {
	q := db.WithContext(ctx).Table(table).Where("id = ?", id).Limit(1)
	if database.IsPostgres(db) {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthShare})
	}
	var ids []uint
	if err := q.Pluck("id", &ids).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return len(ids) > 0, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound AppError and wraps anything else as internal.
func notFoundOr(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}
