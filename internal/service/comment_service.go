package service

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/repository"
)

type CommentService struct {
	repos repository.Repositories
	tx    repository.Transactor
	locks *KeyedMutex
	guard *Guard
}

type CreateCommentInput struct {
	ActorID uint
	PostID  uint
	Content string
}

type EditCommentInput struct {
	ActorID   uint
	CommentID uint
	Content   string
}

type DeleteCommentInput struct {
	ActorID   uint
	CommentID uint
}

func NewCommentService(d Deps) *CommentService {
	d = d.withDefaults()
	return &CommentService{
		repos: d.Repos,
		tx:    d.Tx,
		locks: d.Locks,
		guard: NewGuard(),
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	var commentID uint
	err := s.tx.InTx(ctx, func(r repository.Repositories) error {
		ok, err := r.Users.Exists(ctx, in.ActorID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", in.ActorID)
		}
		// Locking the post makes a concurrent delete either win outright or wait for us.
		if _, err := r.Posts.GetForUpdate(ctx, in.PostID); err != nil {
			return err
		}
		comment := &models.Comment{UserID: in.ActorID, PostID: in.PostID, Content: in.Content}
		if err := r.Comments.Create(ctx, comment); err != nil {
			return err
		}
		commentID = comment.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repos.Comments.GetByID(ctx, commentID)
}

func (s *CommentService) EditComment(ctx context.Context, in EditCommentInput) (*models.Comment, error) {
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(commentLockKey(in.CommentID))
	defer unlock()

	err := s.tx.InTx(ctx, func(r repository.Repositories) error {
		comment, err := r.Comments.GetForUpdate(ctx, in.CommentID)
		if err != nil {
			return err
		}
		if err := s.guard.CanMutateComment(in.ActorID, comment); err != nil {
			return err
		}
		comment.Content = in.Content
		return r.Comments.Update(ctx, comment)
	})
	if err != nil {
		return nil, err
	}
	return s.repos.Comments.GetByID(ctx, in.CommentID)
}

func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	unlock := s.locks.Lock(commentLockKey(in.CommentID))
	defer unlock()

	return s.tx.InTx(ctx, func(r repository.Repositories) error {
		comment, err := r.Comments.GetForUpdate(ctx, in.CommentID)
		if err != nil {
			return err
		}
		if err := s.guard.CanMutateComment(in.ActorID, comment); err != nil {
			return err
		}
		return deleteComments(ctx, r, []uint{comment.ID})
	})
}

func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]*models.Comment, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	return s.repos.Comments.ListByPost(ctx, postID)
}

func (s *CommentService) CountComments(ctx context.Context, postID uint) (int64, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return 0, err
	}
	return s.repos.Comments.CountByPost(ctx, postID)
}

func (s *CommentService) requirePost(ctx context.Context, postID uint) error {
	ok, err := s.repos.Posts.Exists(ctx, postID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotFoundError("Post", postID)
	}
	return nil
}
