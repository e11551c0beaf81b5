package service

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/repository"
)

// FeedService composes post feeds for a subject user. Every feed is ordered
// newest first.
type FeedService struct {
	repos repository.Repositories
}

func NewFeedService(d Deps) *FeedService {
	return &FeedService{repos: d.Repos}
}

// AllExcept returns every post not owned by username. An unknown username
// excludes nobody.
func (s *FeedService) AllExcept(ctx context.Context, username string, page repository.Page) ([]*models.Post, error) {
	user, err := s.repos.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return s.repos.Posts.List(ctx, page)
	}
	return s.repos.Posts.ListExcludingAuthor(ctx, user.ID, page)
}

// ByFollowings returns the posts of everyone username follows.
func (s *FeedService) ByFollowings(ctx context.Context, username string, page repository.Page) ([]*models.Post, error) {
	user, err := resolveUser(ctx, s.repos.Users, username)
	if err != nil {
		return nil, err
	}
	followees, err := s.repos.Relations.TargetIDs(ctx, models.RelationFollow, user.ID)
	if err != nil {
		return nil, err
	}
	return s.repos.Posts.ListByAuthors(ctx, followees, page)
}

// LikedBy returns a page of the posts username has liked.
func (s *FeedService) LikedBy(ctx context.Context, username string, page repository.Page) ([]*models.Post, error) {
	return s.relatedBy(ctx, models.RelationPostLike, username, page)
}

// SavedBy returns a page of the posts username has saved.
func (s *FeedService) SavedBy(ctx context.Context, username string, page repository.Page) ([]*models.Post, error) {
	return s.relatedBy(ctx, models.RelationPostSave, username, page)
}

func (s *FeedService) relatedBy(ctx context.Context, kind models.RelationKind, username string, page repository.Page) ([]*models.Post, error) {
	user, err := resolveUser(ctx, s.repos.Users, username)
	if err != nil {
		return nil, err
	}
	return s.repos.Posts.ListRelatedBy(ctx, kind, user.ID, page)
}
