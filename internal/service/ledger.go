package service

import (
	"context"
	"fmt"

	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/repository"
)

// Ledger owns the toggleable relations. A toggle flips the presence of one
// (kind, actor, target) row: toggling twice restores the starting state.
type Ledger struct {
	repos repository.Repositories
	tx    repository.Transactor
	locks *KeyedMutex
}

// ToggleInput names the relation row to flip.
type ToggleInput struct {
	Kind     models.RelationKind
	ActorID  uint
	TargetID uint
}

func (in ToggleInput) lockKey() string {
	return fmt.Sprintf("rel:%s:%d:%d", in.Kind, in.ActorID, in.TargetID)
}

// NewLedger creates a Ledger from d.
func NewLedger(d Deps) *Ledger {
	d = d.withDefaults()
	return &Ledger{repos: d.Repos, tx: d.Tx, locks: d.Locks}
}

func validKind(kind models.RelationKind) error {
	if !kind.Valid() {
		return models.NewValidationError(fmt.Sprintf("Unknown relation kind %q", kind))
	}
	return nil
}

// Toggle removes the relation if it exists and creates it otherwise, and
// reports the resulting state. Toggles of the same key are serialized in
// process by the key lock and across processes by a transaction-scoped
// advisory lock; an insert that still loses a race against the unique index
// collapses onto the winning row.
func (l *Ledger) Toggle(ctx context.Context, in ToggleInput) (models.RelationState, error) {
	if err := validKind(in.Kind); err != nil {
		return "", err
	}

	span, ctx := observability.StartRelationSpan(ctx, "Toggle", string(in.Kind), in.ActorID, in.TargetID)
	defer span.End()

	unlock := l.locks.Lock(in.lockKey())
	defer unlock()

	var state models.RelationState
	err := l.tx.InTx(ctx, func(r repository.Repositories) error {
		if err := r.Relations.Lock(ctx, in.Kind, in.ActorID, in.TargetID); err != nil {
			return err
		}

		// Share locks on actor and target make a racing cascade either wait
		// for this toggle or finish before it, so no row outlives its target.
		ok, err := r.Users.LockShared(ctx, in.ActorID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", in.ActorID)
		}
		ok, err = r.Relations.LockTarget(ctx, in.Kind, in.TargetID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError(in.Kind.TargetResource(), in.TargetID)
		}
		if in.Kind == models.RelationFollow && in.ActorID == in.TargetID {
			return models.NewInvalidOperationError("You cannot follow yourself")
		}

		removed, err := r.Relations.Delete(ctx, in.Kind, in.ActorID, in.TargetID)
		if err != nil {
			return err
		}
		if removed > 0 {
			state = models.RelationAbsent
			return nil
		}

		inserted, err := r.Relations.Insert(ctx, in.Kind, in.ActorID, in.TargetID)
		if err != nil {
			return err
		}
		if !inserted {
			observability.RelationConflictsCollapsed.WithLabelValues(string(in.Kind)).Inc()
		}
		state = models.RelationPresent
		return nil
	})
	if err != nil {
		span.SetError(err)
		return "", err
	}

	observability.RelationToggles.WithLabelValues(string(in.Kind), string(state)).Inc()
	span.AddAttributes(observability.RelationStateKey.String(string(state)))
	return state, nil
}

// ToggleFollow flips whether actorID follows the user named targetUsername.
func (l *Ledger) ToggleFollow(ctx context.Context, actorID uint, targetUsername string) (models.RelationState, error) {
	target, err := resolveUser(ctx, l.repos.Users, targetUsername)
	if err != nil {
		return "", err
	}
	return l.Toggle(ctx, ToggleInput{Kind: models.RelationFollow, ActorID: actorID, TargetID: target.ID})
}

// Count returns how many actors hold a relation of kind with targetID.
func (l *Ledger) Count(ctx context.Context, kind models.RelationKind, targetID uint) (int64, error) {
	if err := validKind(kind); err != nil {
		return 0, err
	}
	return l.repos.Relations.CountByTarget(ctx, kind, targetID)
}

// CountByActor returns how many relations of kind actorID holds.
func (l *Ledger) CountByActor(ctx context.Context, kind models.RelationKind, actorID uint) (int64, error) {
	if err := validKind(kind); err != nil {
		return 0, err
	}
	return l.repos.Relations.CountByActor(ctx, kind, actorID)
}

// IsRelated reports whether actorID currently holds a relation of kind with targetID.
func (l *Ledger) IsRelated(ctx context.Context, kind models.RelationKind, actorID, targetID uint) (bool, error) {
	if err := validKind(kind); err != nil {
		return false, err
	}
	return l.repos.Relations.Exists(ctx, kind, actorID, targetID)
}

// Followers lists the users following username.
func (l *Ledger) Followers(ctx context.Context, username string) ([]*models.User, error) {
	user, err := resolveUser(ctx, l.repos.Users, username)
	if err != nil {
		return nil, err
	}
	return l.repos.Users.ListFollowers(ctx, user.ID)
}

// Followings lists the users username follows.
func (l *Ledger) Followings(ctx context.Context, username string) ([]*models.User, error) {
	user, err := resolveUser(ctx, l.repos.Users, username)
	if err != nil {
		return nil, err
	}
	return l.repos.Users.ListFollowings(ctx, user.ID)
}
