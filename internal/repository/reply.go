package repository

import (
	"context"

	"kinship/internal/models"

	"gorm.io/gorm"
)

// ReplyRepository defines persistence operations for replies.
type ReplyRepository interface {
	Create(ctx context.Context, reply *models.Reply) error
	GetByID(ctx context.Context, id uint) (*models.Reply, error)
	GetForUpdate(ctx context.Context, id uint) (*models.Reply, error)
	ListByComment(ctx context.Context, commentID uint) ([]*models.Reply, error)
	CountByComment(ctx context.Context, commentID uint) (int64, error)
	IDsByComments(ctx context.Context, commentIDs []uint) ([]uint, error)
	IDsByUser(ctx context.Context, userID uint) ([]uint, error)
	Update(ctx context.Context, reply *models.Reply) error
	DeleteByIDs(ctx context.Context, ids []uint) error
}

type replyRepository struct {
	db *gorm.DB
}

// NewReplyRepository returns a new ReplyRepository implementation.
func NewReplyRepository(db *gorm.DB) ReplyRepository {
	return &replyRepository{db: db}
}

func (r *replyRepository) applyReplyDetails(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Reply{}).
		Select("replies.*, users.username AS username, "+
			"(SELECT COUNT(*) FROM relations WHERE relations.kind = ? AND relations.target_id = replies.id) AS likes_count",
			models.RelationReplyLike).
		Joins("LEFT JOIN users ON users.id = replies.user_id")
}

func (r *replyRepository) Create(ctx context.Context, reply *models.Reply) error {
	if err := r.db.WithContext(ctx).Create(reply).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *replyRepository) GetByID(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := r.applyReplyDetails(r.db.WithContext(ctx)).Where("replies.id = ?", id).First(&reply).Error; err != nil {
		return nil, notFoundOr(err, "Reply", id)
	}
	return &reply, nil
}

func (r *replyRepository) GetForUpdate(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := forUpdate(r.db.WithContext(ctx)).First(&reply, id).Error; err != nil {
		return nil, notFoundOr(err, "Reply", id)
	}
	return &reply, nil
}

func (r *replyRepository) ListByComment(ctx context.Context, commentID uint) ([]*models.Reply, error) {
	replies := make([]*models.Reply, 0)
	err := r.applyReplyDetails(r.db.WithContext(ctx)).
		Where("replies.comment_id = ?", commentID).
		Order("replies.created_at ASC").
		Order("replies.id ASC").
		Find(&replies).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return replies, nil
}

func (r *replyRepository) CountByComment(ctx context.Context, commentID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Reply{}).Where("comment_id = ?", commentID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *replyRepository) IDsByComments(ctx context.Context, commentIDs []uint) ([]uint, error) {
	if len(commentIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Reply{}).Where("comment_id IN ?", commentIDs).Pluck("id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *replyRepository) IDsByUser(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Reply{}).Where("user_id = ?", userID).Pluck("id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *replyRepository) Update(ctx context.Context, reply *models.Reply) error {
	if err := r.db.WithContext(ctx).Model(reply).Select("content", "updated_at").Updates(reply).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *replyRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Reply{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
