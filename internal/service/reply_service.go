package service

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/repository"
)

type ReplyService struct {
	repos repository.Repositories
	tx    repository.Transactor
	locks *KeyedMutex
	guard *Guard
}

type CreateReplyInput struct {
	ActorID   uint
	CommentID uint
	Content   string
}

type EditReplyInput struct {
	ActorID uint
	ReplyID uint
	Content string
}

type DeleteReplyInput struct {
	ActorID uint
	ReplyID uint
}

func NewReplyService(d Deps) *ReplyService {
	d = d.withDefaults()
	return &ReplyService{
		repos: d.Repos,
		tx:    d.Tx,
		locks: d.Locks,
		guard: NewGuard(),
	}
}

func (s *ReplyService) CreateReply(ctx context.Context, in CreateReplyInput) (*models.Reply, error) {
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	var replyID uint
	err := s.tx.InTx(ctx, func(r repository.Repositories) error {
		ok, err := r.Users.Exists(ctx, in.ActorID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", in.ActorID)
		}
		if _, err := r.Comments.GetForUpdate(ctx, in.CommentID); err != nil {
			return err
		}
		reply := &models.Reply{UserID: in.ActorID, CommentID: in.CommentID, Content: in.Content}
		if err := r.Replies.Create(ctx, reply); err != nil {
			return err
		}
		replyID = reply.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repos.Replies.GetByID(ctx, replyID)
}

func (s *ReplyService) EditReply(ctx context.Context, in EditReplyInput) (*models.Reply, error) {
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(replyLockKey(in.ReplyID))
	defer unlock()

	err := s.tx.InTx(ctx, func(r repository.Repositories) error {
		reply, err := r.Replies.GetForUpdate(ctx, in.ReplyID)
		if err != nil {
			return err
		}
		if err := s.guard.CanMutateReply(in.ActorID, reply); err != nil {
			return err
		}
		reply.Content = in.Content
		return r.Replies.Update(ctx, reply)
	})
	if err != nil {
		return nil, err
	}
	return s.repos.Replies.GetByID(ctx, in.ReplyID)
}

// DeleteReply lets the reply's author or the owner of its comment or post
// remove it.
func (s *ReplyService) DeleteReply(ctx context.Context, in DeleteReplyInput) error {
	unlock := s.locks.Lock(replyLockKey(in.ReplyID))
	defer unlock()

	return s.tx.InTx(ctx, func(r repository.Repositories) error {
		reply, err := r.Replies.GetForUpdate(ctx, in.ReplyID)
		if err != nil {
			return err
		}
		if err := s.guard.CanDeleteReply(ctx, r, in.ActorID, reply); err != nil {
			return err
		}
		return deleteReplies(ctx, r, []uint{reply.ID})
	})
}

func (s *ReplyService) ListReplies(ctx context.Context, commentID uint) ([]*models.Reply, error) {
	if err := s.requireComment(ctx, commentID); err != nil {
		return nil, err
	}
	return s.repos.Replies.ListByComment(ctx, commentID)
}

func (s *ReplyService) CountReplies(ctx context.Context, commentID uint) (int64, error) {
	if err := s.requireComment(ctx, commentID); err != nil {
		return 0, err
	}
	return s.repos.Replies.CountByComment(ctx, commentID)
}

func (s *ReplyService) requireComment(ctx context.Context, commentID uint) error {
	if _, err := s.repos.Comments.GetByID(ctx, commentID); err != nil {
		return err
	}
	return nil
}
