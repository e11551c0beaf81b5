package server

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/repository"

	"github.com/gofiber/fiber/v2"
)

type feedFunc func(ctx context.Context, username string, page repository.Page) ([]*models.Post, error)

// feedFor serves a feed composed for the caller.
func (s *Server) feedFor(c *fiber.Ctx, compose feedFunc) error {
	me, err := s.currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	posts, err := compose(c.UserContext(), me.Username, parsePagination(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// ExploreFeed handles GET /api/feed/explore: every post but the caller's own.
func (s *Server) ExploreFeed(c *fiber.Ctx) error {
	return s.feedFor(c, s.feeds.AllExcept)
}

// FollowingFeed handles GET /api/feed/following
func (s *Server) FollowingFeed(c *fiber.Ctx) error {
	return s.feedFor(c, s.feeds.ByFollowings)
}

// LikedFeed handles GET /api/feed/liked
func (s *Server) LikedFeed(c *fiber.Ctx) error {
	return s.feedFor(c, s.feeds.LikedBy)
}

// SavedFeed handles GET /api/feed/saved
func (s *Server) SavedFeed(c *fiber.Ctx) error {
	return s.feedFor(c, s.feeds.SavedBy)
}
