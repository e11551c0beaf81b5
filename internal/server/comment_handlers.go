package server

import (
	"kinship/internal/models"
	"kinship/internal/service"

	"github.com/gofiber/fiber/v2"
)

type contentRequest struct {
	Content string `json:"content"`
}

func parseContent(c *fiber.Ctx) (string, error) {
	var req contentRequest
	if err := c.BodyParser(&req); err != nil {
		return "", models.NewValidationError("Invalid request body")
	}
	return req.Content, nil
}

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	comments, err := s.comments.ListComments(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comments)
}

// CountComments handles GET /api/posts/:id/comments/count
func (s *Server) CountComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	count, err := s.comments.CountComments(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	content, err := parseContent(c)
	if err != nil {
		return respondError(c, err)
	}

	comment, err := s.comments.CreateComment(c.UserContext(), service.CreateCommentInput{
		ActorID: currentUserID(c),
		PostID:  postID,
		Content: content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// UpdateComment handles PUT /api/comments/:id
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	content, err := parseContent(c)
	if err != nil {
		return respondError(c, err)
	}

	comment, err := s.comments.EditComment(c.UserContext(), service.EditCommentInput{
		ActorID:   currentUserID(c),
		CommentID: id,
		Content:   content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comment)
}

// DeleteComment handles DELETE /api/comments/:id
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.comments.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		ActorID:   currentUserID(c),
		CommentID: id,
	}); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetReplies handles GET /api/comments/:id/replies
func (s *Server) GetReplies(c *fiber.Ctx) error {
	commentID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	replies, err := s.replies.ListReplies(c.UserContext(), commentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(replies)
}

// CountReplies handles GET /api/comments/:id/replies/count
func (s *Server) CountReplies(c *fiber.Ctx) error {
	commentID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	count, err := s.replies.CountReplies(c.UserContext(), commentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// CreateReply handles POST /api/comments/:id/replies
func (s *Server) CreateReply(c *fiber.Ctx) error {
	commentID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	content, err := parseContent(c)
	if err != nil {
		return respondError(c, err)
	}

	reply, err := s.replies.CreateReply(c.UserContext(), service.CreateReplyInput{
		ActorID:   currentUserID(c),
		CommentID: commentID,
		Content:   content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply)
}

// UpdateReply handles PUT /api/replies/:id
func (s *Server) UpdateReply(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	content, err := parseContent(c)
	if err != nil {
		return respondError(c, err)
	}

	reply, err := s.replies.EditReply(c.UserContext(), service.EditReplyInput{
		ActorID: currentUserID(c),
		ReplyID: id,
		Content: content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(reply)
}

// DeleteReply handles DELETE /api/replies/:id. The reply's author, the
// comment's author and the post's author may delete it.
func (s *Server) DeleteReply(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.replies.DeleteReply(c.UserContext(), service.DeleteReplyInput{
		ActorID: currentUserID(c),
		ReplyID: id,
	}); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
