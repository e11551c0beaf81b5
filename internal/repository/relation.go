package repository

import (
	"context"
	"fmt"
	"hash/fnv"

	"kinship/internal/database"
	"kinship/internal/models"
	"kinship/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RelationRepository persists the toggleable user relations (follows, likes, saves).
type RelationRepository interface {
	// Lock serializes toggles of one (kind, actor, target) triple for the
	// rest of the surrounding transaction. It is a no-op outside postgres.
	Lock(ctx context.Context, kind models.RelationKind, actorID, targetID uint) error
	// Insert adds the triple unless it already exists and reports whether a row was written.
	Insert(ctx context.Context, kind models.RelationKind, actorID, targetID uint) (bool, error)
	// Delete removes the triple and returns the number of rows removed.
	Delete(ctx context.Context, kind models.RelationKind, actorID, targetID uint) (int64, error)
	Exists(ctx context.Context, kind models.RelationKind, actorID, targetID uint) (bool, error)
	CountByTarget(ctx context.Context, kind models.RelationKind, targetID uint) (int64, error)
	CountByActor(ctx context.Context, kind models.RelationKind, actorID uint) (int64, error)
	TargetIDs(ctx context.Context, kind models.RelationKind, actorID uint) ([]uint, error)
	// LockTarget reports whether the target of kind exists and keeps it from
	// being deleted until the surrounding transaction ends.
	LockTarget(ctx context.Context, kind models.RelationKind, targetID uint) (bool, error)
	DeleteByActor(ctx context.Context, actorID uint) error
	// DeleteTargeting removes every relation whose target lives in table and is one of ids.
	DeleteTargeting(ctx context.Context, table string, ids []uint) error
}

type relationRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewRelationRepository returns a new RelationRepository implementation.
func NewRelationRepository(db *gorm.DB) RelationRepository {
	return &relationRepository{db: db, metrics: observability.NewDatabaseMetrics()}
}

func relationLockKey(kind models.RelationKind, actorID, targetID uint) int64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "rel:%s:%d:%d", kind, actorID, targetID)
	return int64(h.Sum64())
}

func (r *relationRepository) Lock(ctx context.Context, kind models.RelationKind, actorID, targetID uint) error {
	if !database.IsPostgres(r.db) {
		return nil
	}
	if err := r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", relationLockKey(kind, actorID, targetID)).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *relationRepository) Insert(ctx context.Context, kind models.RelationKind, actorID, targetID uint) (bool, error) {
	defer r.metrics.TrackQuery("insert", "relations")()

	rel := models.Relation{Kind: kind, ActorID: actorID, TargetID: targetID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "actor_id"}, {Name: "target_id"}},
			DoNothing: true,
		}).
		Create(&rel)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return false, nil
		}
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *relationRepository) Delete(ctx context.Context, kind models.RelationKind, actorID, targetID uint) (int64, error) {
	defer r.metrics.TrackQuery("delete", "relations")()

	res := r.db.WithContext(ctx).
		Where("kind = ? AND actor_id = ? AND target_id = ?", kind, actorID, targetID).
		Delete(&models.Relation{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *relationRepository) Exists(ctx context.Context, kind models.RelationKind, actorID, targetID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Relation{}).
		Where("kind = ? AND actor_id = ? AND target_id = ?", kind, actorID, targetID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *relationRepository) CountByTarget(ctx context.Context, kind models.RelationKind, targetID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Relation{}).Where("kind = ? AND target_id = ?", kind, targetID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *relationRepository) CountByActor(ctx context.Context, kind models.RelationKind, actorID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Relation{}).Where("kind = ? AND actor_id = ?", kind, actorID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *relationRepository) TargetIDs(ctx context.Context, kind models.RelationKind, actorID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Relation{}).
		Where("kind = ? AND actor_id = ?", kind, actorID).
		Order("target_id ASC").
		Pluck("target_id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *relationRepository) LockTarget(ctx context.Context, kind models.RelationKind, targetID uint) (bool, error) {
	table := kind.TargetTable()
	if table == "" {
		return false, models.NewValidationError(fmt.Sprintf("unknown relation kind %q", kind))
	}
	return lockShared(ctx, r.db, table, targetID)
}

func (r *relationRepository) DeleteByActor(ctx context.Context, actorID uint) error {
	if err := r.db.WithContext(ctx).Where("actor_id = ?", actorID).Delete(&models.Relation{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *relationRepository) DeleteTargeting(ctx context.Context, table string, ids []uint) error {
	kinds := models.KindsTargeting(table)
	if len(kinds) == 0 || len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("kind IN ? AND target_id IN ?", kinds, ids).Delete(&models.Relation{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
