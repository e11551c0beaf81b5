package repository

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetForUpdate(ctx context.Context, id uint) (*models.Post, error)
	Exists(ctx context.Context, id uint) (bool, error)
	List(ctx context.Context, page Page) ([]*models.Post, error)
	ListByAuthor(ctx context.Context, userID uint, page Page) ([]*models.Post, error)
	ListExcludingAuthor(ctx context.Context, userID uint, page Page) ([]*models.Post, error)
	ListByAuthors(ctx context.Context, userIDs []uint, page Page) ([]*models.Post, error)
	// ListRelatedBy returns the posts the actor has a relation of the given kind with.
	ListRelatedBy(ctx context.Context, kind models.RelationKind, actorID uint, page Page) ([]*models.Post, error)
	// ListOwnedBy returns the bare rows owned by userID, without computed fields.
	ListOwnedBy(ctx context.Context, userID uint) ([]*models.Post, error)
	CountByAuthor(ctx context.Context, userID uint) (int64, error)
	Update(ctx context.Context, post *models.Post) error
	DeleteByIDs(ctx context.Context, ids []uint) error
}

// postRepository implements PostRepository
type postRepository struct {
	db      *gorm.DB
	log     *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{
		db:      db,
		log:     observability.NewRepoLogger(models.TablePosts),
		metrics: observability.NewDatabaseMetrics(),
	}
}

// applyPostDetails selects the owner's username and the like, save and comment counts in one query.
func (r *postRepository) applyPostDetails(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Post{}).
		Select("posts.*, users.username AS username, "+
			"(SELECT COUNT(*) FROM relations WHERE relations.kind = ? AND relations.target_id = posts.id) AS likes_count, "+
			"(SELECT COUNT(*) FROM relations WHERE relations.kind = ? AND relations.target_id = posts.id) AS saves_count, "+
			"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comments_count",
			models.RelationPostLike, models.RelationPostSave).
		Joins("LEFT JOIN users ON users.id = posts.user_id")
}

// feedOrder is newest first with id as a stable tie-break.
func feedOrder(db *gorm.DB) *gorm.DB {
	return db.Order("posts.created_at DESC").Order("posts.id DESC")
}

func (r *postRepository) find(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB, page Page) ([]*models.Post, error) {
	span, ctx := observability.StartRepositorySpan(ctx, op, models.TablePosts)
	defer span.End()
	defer r.metrics.TrackQuery(op, models.TablePosts)()

	posts := make([]*models.Post, 0)
	q := scope(r.applyPostDetails(r.db.WithContext(ctx)))
	if err := page.apply(feedOrder(q)).Find(&posts).Error; err != nil {
		span.SetError(err)
		r.log.LogError(ctx, err, op)
		return nil, models.NewInternalError(err)
	}
	r.log.LogRead(ctx, map[string]interface{}{"query": op, "rows": len(posts)})
	return posts, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"post_id": post.ID, "user_id": post.UserID})
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.applyPostDetails(r.db.WithContext(ctx)).Where("posts.id = ?", id).First(&post).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) GetForUpdate(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := forUpdate(r.db.WithContext(ctx)).First(&post, id).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *postRepository) List(ctx context.Context, page Page) ([]*models.Post, error) {
	return r.find(ctx, "list", func(db *gorm.DB) *gorm.DB { return db }, page)
}

func (r *postRepository) ListByAuthor(ctx context.Context, userID uint, page Page) ([]*models.Post, error) {
	return r.find(ctx, "list_by_author", func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.user_id = ?", userID)
	}, page)
}

func (r *postRepository) ListExcludingAuthor(ctx context.Context, userID uint, page Page) ([]*models.Post, error) {
	return r.find(ctx, "list_excluding_author", func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.user_id <> ?", userID)
	}, page)
}

func (r *postRepository) ListByAuthors(ctx context.Context, userIDs []uint, page Page) ([]*models.Post, error) {
	if len(userIDs) == 0 {
		return []*models.Post{}, nil
	}
	return r.find(ctx, "list_by_authors", func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.user_id IN ?", userIDs)
	}, page)
}

func (r *postRepository) ListRelatedBy(ctx context.Context, kind models.RelationKind, actorID uint, page Page) ([]*models.Post, error) {
	return r.find(ctx, "list_related_by", func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.id IN (SELECT target_id FROM relations WHERE kind = ? AND actor_id = ?)", kind, actorID)
	}, page)
}

func (r *postRepository) ListOwnedBy(ctx context.Context, userID uint) ([]*models.Post, error) {
	var posts []*models.Post
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) CountByAuthor(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	columns := append([]string{"description", "updated_at"}, imageColumns...)
	if err := r.db.WithContext(ctx).Model(post).Select(columns).Updates(post).Error; err != nil {
		r.log.LogError(ctx, err, "update")
		return models.NewInternalError(err)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"post_id": post.ID})
	return nil
}

func (r *postRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Post{}).Error; err != nil {
		r.log.LogError(ctx, err, "delete")
		return models.NewInternalError(err)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"post_ids": ids})
	return nil
}
