package server

import (
	"kinship/internal/models"
	"kinship/internal/service"

	"github.com/gofiber/fiber/v2"
)

func relationStateResponse(state models.RelationState) fiber.Map {
	return fiber.Map{
		"state":  state,
		"active": state.Present(),
	}
}

// toggleRelation flips the caller's relation of kind with the resource named
// by the :id parameter, e.g. POST /api/posts/:id/like.
func (s *Server) toggleRelation(kind models.RelationKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		targetID, err := parseID(c, "id")
		if err != nil {
			return nil
		}
		state, err := s.ledger.Toggle(c.UserContext(), service.ToggleInput{
			Kind:     kind,
			ActorID:  currentUserID(c),
			TargetID: targetID,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(relationStateResponse(state))
	}
}

// checkRelation reports whether the caller holds a relation of kind with :id.
func (s *Server) checkRelation(kind models.RelationKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		targetID, err := parseID(c, "id")
		if err != nil {
			return nil
		}
		related, err := s.ledger.IsRelated(c.UserContext(), kind, currentUserID(c), targetID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"active": related})
	}
}

// countRelation returns how many users hold a relation of kind with :id.
func (s *Server) countRelation(kind models.RelationKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		targetID, err := parseID(c, "id")
		if err != nil {
			return nil
		}
		count, err := s.ledger.Count(c.UserContext(), kind, targetID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"count": count})
	}
}
