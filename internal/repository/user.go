package repository

import (
	"context"
	"errors"

	"kinship/internal/models"
	"kinship/internal/observability"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// FindByUsername and FindByEmail return (nil, nil) when no user matches.
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	GetForUpdate(ctx context.Context, id uint) (*models.User, error)
	Exists(ctx context.Context, id uint) (bool, error)
	// LockShared is Exists plus a share lock on the row for the rest of the transaction.
	LockShared(ctx context.Context, id uint) (bool, error)
	List(ctx context.Context, page Page) ([]*models.User, error)
	ListExcept(ctx context.Context, excludeID uint, page Page) ([]*models.User, error)
	ListFollowers(ctx context.Context, userID uint) ([]*models.User, error)
	ListFollowings(ctx context.Context, userID uint) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
}

type userRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, log: observability.NewRepoLogger(models.TableUsers)}
}

// withFollowCounts selects users plus their follower and following counts.
func withFollowCounts(db *gorm.DB) *gorm.DB {
	return db.Model(&models.User{}).Select(
		"users.*, "+
			"(SELECT COUNT(*) FROM relations WHERE relations.kind = ? AND relations.target_id = users.id) AS followers_count, "+
			"(SELECT COUNT(*) FROM relations WHERE relations.kind = ? AND relations.actor_id = users.id) AS following_count",
		models.RelationFollow, models.RelationFollow,
	)
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Username or email already taken")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"user_id": user.ID})
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := withFollowCounts(r.db.WithContext(ctx)).Where("users.id = ?", id).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) findOne(ctx context.Context, column, value string) (*models.User, error) {
	var user models.User
	err := withFollowCounts(r.db.WithContext(ctx)).Where("users."+column+" = ?", value).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *userRepository) GetForUpdate(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := forUpdate(r.db.WithContext(ctx)).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *userRepository) LockShared(ctx context.Context, id uint) (bool, error) {
	return lockShared(ctx, r.db, models.TableUsers, id)
}

func (r *userRepository) List(ctx context.Context, page Page) ([]*models.User, error) {
	return r.ListExcept(ctx, 0, page)
}

func (r *userRepository) ListExcept(ctx context.Context, excludeID uint, page Page) ([]*models.User, error) {
	var users []*models.User
	q := withFollowCounts(r.db.WithContext(ctx))
	if excludeID != 0 {
		q = q.Where("users.id <> ?", excludeID)
	}
	if err := page.apply(q.Order("users.username ASC")).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) ListFollowers(ctx context.Context, userID uint) ([]*models.User, error) {
	var users []*models.User
	err := withFollowCounts(r.db.WithContext(ctx)).
		Where("users.id IN (SELECT actor_id FROM relations WHERE kind = ? AND target_id = ?)", models.RelationFollow, userID).
		Order("users.username ASC").
		Find(&users).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) ListFollowings(ctx context.Context, userID uint) ([]*models.User, error) {
	var users []*models.User
	err := withFollowCounts(r.db.WithContext(ctx)).
		Where("users.id IN (SELECT target_id FROM relations WHERE kind = ? AND actor_id = ?)", models.RelationFollow, userID).
		Order("users.username ASC").
		Find(&users).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	columns := append([]string{"username", "email", "password", "bio", "updated_at"}, imageColumns...)
	if err := r.db.WithContext(ctx).Model(user).Select(columns).Updates(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Username or email already taken")
		}
		r.log.LogError(ctx, err, "update")
		return models.NewInternalError(err)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"user_id": user.ID})
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.User{}, id).Error; err != nil {
		r.log.LogError(ctx, err, "delete")
		return models.NewInternalError(err)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"user_id": id})
	return nil
}
