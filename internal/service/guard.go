package service

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/repository"
)

// Guard decides who may mutate content. Ownership is exact everywhere except
// reply deletion, where the owners of the parent comment and post moderate.
type Guard struct{}

// NewGuard returns a Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// CanMutatePost allows only the post's author to edit or delete it.
func (g *Guard) CanMutatePost(actorID uint, post *models.Post) error {
	if post.UserID != actorID {
		return models.NewForbiddenError("You do not own this post")
	}
	return nil
}

// CanMutateComment allows only the comment's author to edit or delete it.
func (g *Guard) CanMutateComment(actorID uint, comment *models.Comment) error {
	if comment.UserID != actorID {
		return models.NewForbiddenError("You do not own this comment")
	}
	return nil
}

// CanMutateReply allows only the reply's author to edit it. Deletion goes
// through CanDeleteReply.
func (g *Guard) CanMutateReply(actorID uint, reply *models.Reply) error {
	if reply.UserID != actorID {
		return models.NewForbiddenError("You do not own this reply")
	}
	return nil
}

// CanDeleteReply allows the reply's author, the author of its comment, or the
// owner of that comment's post. The ancestors are read through tx so the
// decision and the delete see the same snapshot.
func (g *Guard) CanDeleteReply(ctx context.Context, tx repository.Repositories, actorID uint, reply *models.Reply) error {
	if reply.UserID == actorID {
		return nil
	}
	comment, err := tx.Comments.GetForUpdate(ctx, reply.CommentID)
	if err != nil {
		return err
	}
	if comment.UserID == actorID {
		return nil
	}
	post, err := tx.Posts.GetForUpdate(ctx, comment.PostID)
	if err != nil {
		return err
	}
	if post.UserID == actorID {
		return nil
	}
	return models.NewForbiddenError("You may not delete this reply")
}
