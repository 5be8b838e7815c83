package handlers

import (
	"break-timer-system/middleware"
	"break-timer-system/models"
	"break-timer-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTimerRoutes(app *fiber.App, sessionService *services.SessionService) {
	// The gateway forwards /api/v1/timer/s/... -> /timer/...
	group := app.Group("/timer", middleware.UserContextMiddleware())

	group.Post("/sessions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		session, err := sessionService.StartSession(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	group.Get("/sessions/active", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		session, err := sessionService.ActiveSession(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(session)
	})

	group.Post("/sessions/:id/intervals/begin", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		interval, err := sessionService.BeginInterval(userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(interval)
	})

	group.Post("/sessions/:id/intervals/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		interval, err := sessionService.CompleteInterval(userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(interval)
	})

	group.Post("/sessions/:id/intervals/skip", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		interval, err := sessionService.SkipInterval(userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(interval)
	})

	group.Post("/sessions/:id/breaks", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			IntervalID string `json:"interval_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.IntervalID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "interval_id is required",
			})
		}
		record, err := sessionService.StartBreak(userID, c.Params("id"), req.IntervalID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(record)
	})

	group.Post("/breaks/:id/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			LookedAtDistance bool `json:"looked_at_distance"`
			ElapsedSeconds   int  `json:"elapsed_seconds"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		record, err := sessionService.CompleteBreak(userID, c.Params("id"), req.LookedAtDistance, req.ElapsedSeconds)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"break":     record,
			"compliant": record.IsCompliant(),
		})
	})

	group.Post("/breaks/:id/skip", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		record, err := sessionService.SkipBreak(userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(record)
	})

	group.Post("/sessions/:id/end", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		session, err := sessionService.EndSession(userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(session)
	})

	group.Get("/sessions/:id/state", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		state, err := sessionService.SyncState(userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(state)
	})

	group.Get("/settings", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		settings, err := sessionService.Settings(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(settings)
	})

	group.Put("/settings", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req models.UserTimerSettings
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		settings, err := sessionService.UpdateSettings(userID, &req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(settings)
	})
}
