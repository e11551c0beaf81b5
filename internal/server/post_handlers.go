package server

import (
	"kinship/internal/models"
	"kinship/internal/service"

	"github.com/gofiber/fiber/v2"
)

// postForm is the body of post create and edit requests, sent either as
// JSON or as a multipart form with an optional "image" file.
type postForm struct {
	Description string `json:"description" form:"description"`
	ImageURL    string `json:"image_url" form:"image_url"`
	upload      *models.ImageUpload
}

func (s *Server) parsePostForm(c *fiber.Ctx) (*postForm, error) {
	var form postForm
	if err := c.BodyParser(&form); err != nil {
		return nil, models.NewValidationError("Invalid request body")
	}
	if isMultipart(c) {
		upload, err := formImage(c, s.config.ImageMaxUploadBytes())
		if err != nil {
			return nil, err
		}
		form.upload = upload
	}
	return &form, nil
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	posts, err := s.posts.ListAll(c.UserContext(), parsePagination(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.posts.GetPost(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	form, err := s.parsePostForm(c)
	if err != nil {
		return respondError(c, err)
	}

	post, err := s.posts.CreatePost(c.UserContext(), service.CreatePostInput{
		ActorID:     currentUserID(c),
		Description: form.Description,
		ImageURL:    form.ImageURL,
		Upload:      form.upload,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	form, err := s.parsePostForm(c)
	if err != nil {
		return respondError(c, err)
	}

	post, err := s.posts.EditPost(c.UserContext(), service.EditPostInput{
		ActorID:     currentUserID(c),
		PostID:      id,
		Description: form.Description,
		ImageURL:    form.ImageURL,
		Upload:      form.upload,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.posts.DeletePost(c.UserContext(), service.DeletePostInput{
		ActorID: currentUserID(c),
		PostID:  id,
	}); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetPostImage handles GET /api/posts/:id/image
func (s *Server) GetPostImage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	img, err := s.posts.GetImage(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return sendImage(c, img)
}

// GetUserPosts handles GET /api/users/:username/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	posts, err := s.posts.ListByAuthor(c.UserContext(), c.Params("username"), parsePagination(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// CountUserPosts handles GET /api/users/:username/posts/count
func (s *Server) CountUserPosts(c *fiber.Ctx) error {
	count, err := s.posts.CountByAuthor(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}
