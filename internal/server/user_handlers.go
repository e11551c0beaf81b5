package server

import (
	"kinship/internal/models"
	"kinship/internal/service"

	"github.com/gofiber/fiber/v2"
)

// currentUser loads the authenticated caller. Tokens outlive accounts, so a
// deleted caller is reported as unauthorized.
func (s *Server) currentUser(c *fiber.Ctx) (*models.User, error) {
	user, err := s.users.GetByID(c.UserContext(), currentUserID(c))
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("Account no longer exists")
		}
		return nil, err
	}
	return user, nil
}

// ListUsers handles GET /api/users
func (s *Server) ListUsers(c *fiber.Ctx) error {
	users, err := s.users.List(c.UserContext(), parsePagination(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// ListOtherUsers handles GET /api/users/others
func (s *Server) ListOtherUsers(c *fiber.Ctx) error {
	me, err := s.currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	users, err := s.users.ListExcept(c.UserContext(), me.Username, parsePagination(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// GetMe handles GET /api/users/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	me, err := s.currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(me)
}

// GetUser handles GET /api/users/:username
func (s *Server) GetUser(c *fiber.Ctx) error {
	user, err := s.users.GetByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// UpdateCredentials handles PUT /api/users/me/credentials
func (s *Server) UpdateCredentials(c *fiber.Ctx) error {
	var req struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.users.UpdateCredentials(c.UserContext(), service.UpdateCredentialsInput{
		UserID:          currentUserID(c),
		Username:        req.Username,
		Email:           req.Email,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		return respondError(c, err)
	}

	// The username is carried in the token, so a fresh one is issued.
	token, err := s.generateToken(user.ID, user.Username)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// UpdateProfile handles PUT /api/users/me/profile. It accepts JSON for the
// URL mode and a multipart form with an "image" file for the upload mode.
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	in := service.UpdateProfileInput{UserID: currentUserID(c)}

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid multipart form"))
		}
		if values, ok := form.Value["bio"]; ok && len(values) > 0 {
			bio := values[0]
			in.Bio = &bio
		}
		if values := form.Value["image_url"]; len(values) > 0 {
			in.ImageURL = values[0]
		}
		upload, err := formImage(c, s.config.ImageMaxUploadBytes())
		if err != nil {
			return respondError(c, err)
		}
		in.Upload = upload
	} else {
		var req struct {
			Bio      *string `json:"bio"`
			ImageURL string  `json:"image_url"`
		}
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
		in.Bio = req.Bio
		in.ImageURL = req.ImageURL
	}

	user, err := s.users.UpdateProfile(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// DeleteMe handles DELETE /api/users/me and cascades over everything the
// caller owns.
func (s *Server) DeleteMe(c *fiber.Ctx) error {
	me, err := s.currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.users.Delete(c.UserContext(), me.Username); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetUserImage handles GET /api/users/:id/image
func (s *Server) GetUserImage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	img, err := s.users.GetImage(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return sendImage(c, img)
}

// ToggleFollow handles POST /api/users/:username/follow
func (s *Server) ToggleFollow(c *fiber.Ctx) error {
	state, err := s.ledger.ToggleFollow(c.UserContext(), currentUserID(c), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(relationStateResponse(state))
}

// IsFollowing handles GET /api/users/:username/follow
func (s *Server) IsFollowing(c *fiber.Ctx) error {
	target, err := s.users.GetByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	related, err := s.ledger.IsRelated(c.UserContext(), models.RelationFollow, currentUserID(c), target.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"active": related})
}

// GetFollowers handles GET /api/users/:username/followers
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	users, err := s.ledger.Followers(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// GetFollowings handles GET /api/users/:username/followings
func (s *Server) GetFollowings(c *fiber.Ctx) error {
	users, err := s.ledger.Followings(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// CountFollowers handles GET /api/users/:username/followers/count
func (s *Server) CountFollowers(c *fiber.Ctx) error {
	user, err := s.users.GetByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	count, err := s.ledger.Count(c.UserContext(), models.RelationFollow, user.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// CountFollowings handles GET /api/users/:username/followings/count
func (s *Server) CountFollowings(c *fiber.Ctx) error {
	user, err := s.users.GetByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	count, err := s.ledger.CountByActor(c.UserContext(), models.RelationFollow, user.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}
