package handlers

import (
	"errors"
	"log"

	"break-timer-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// respondError maps domain errors onto HTTP statuses. Anything unexpected is
// logged with an opaque reference id and returned as a generic 500 so
// internals never leak to clients.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not found",
		})
	case errors.Is(err, services.ErrSessionAlreadyActive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "a session is already active — end it before starting another",
		})
	case errors.Is(err, services.ErrSessionNotActive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "session has already ended",
		})
	case errors.Is(err, services.ErrIntervalState):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "interval is not in the required state for this action",
		})
	case errors.Is(err, services.ErrBreakAlreadyCompleted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "break has already been finalized",
		})
	case errors.Is(err, services.ErrDailyLimitExceeded):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "daily free interval limit reached",
			"upgrade": "upgrade to premium for unlimited intervals",
		})
	case errors.Is(err, services.ErrChallengeClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "challenge window is closed",
		})
	case errors.Is(err, services.ErrChallengeAlreadyJoined):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "challenge already joined",
		})
	case errors.Is(err, services.ErrNegativeExperience):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "experience points must be positive",
		})
	default:
		ref := uuid.NewString()
		log.Printf("❌ [%s] %s %s failed: %v", ref, c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":     "internal error",
			"reference": ref,
		})
	}
}
