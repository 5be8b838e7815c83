package handlers

import (
	"log"
	"time"

	"break-timer-system/middleware"
	"break-timer-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAnalyticsRoutes(app *fiber.App, complianceService *services.ComplianceService) {
	group := app.Group("/analytics", middleware.UserContextMiddleware())

	// parseDay reads a ?date=YYYY-MM-DD query, defaulting to today in the
	// user's timezone.
	parseDay := func(c *fiber.Ctx, loc *time.Location) (time.Time, error) {
		raw := c.Query("date")
		if raw == "" {
			return time.Now().In(loc), nil
		}
		return time.ParseInLocation("2006-01-02", raw, loc)
	}

	group.Get("/daily", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		loc := complianceService.UserLocation(userID)

		day, err := parseDay(c, loc)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "date must be YYYY-MM-DD",
			})
		}

		summary, err := complianceService.Summarize(userID, day, day, loc)
		if err != nil {
			// Raw aggregation failed; serve the cached day, which may lag
			// behind the latest session but is always well-formed.
			log.Printf("⚠️ Live daily summary failed for %s, serving cache: %v", userID, err)
			cached, cacheErr := complianceService.CachedSummary(userID, day, day, loc)
			if cacheErr != nil {
				return respondError(c, cacheErr)
			}
			return c.JSON(fiber.Map{"summary": cached, "stale": true})
		}
		return c.JSON(fiber.Map{"summary": summary, "stale": false})
	})

	group.Get("/summary", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		loc := complianceService.UserLocation(userID)

		start, err := time.ParseInLocation("2006-01-02", c.Query("start"), loc)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "start must be YYYY-MM-DD",
			})
		}
		end, err := time.ParseInLocation("2006-01-02", c.Query("end"), loc)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "end must be YYYY-MM-DD",
			})
		}
		if end.Before(start) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "end precedes start",
			})
		}

		summary, err := complianceService.Summarize(userID, start, end, loc)
		if err != nil {
			log.Printf("⚠️ Live summary failed for %s, serving cache: %v", userID, err)
			cached, cacheErr := complianceService.CachedSummary(userID, start, end, loc)
			if cacheErr != nil {
				return respondError(c, cacheErr)
			}
			return c.JSON(fiber.Map{"summary": cached, "stale": true})
		}
		return c.JSON(fiber.Map{"summary": summary, "stale": false})
	})

	group.Get("/weekly", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		loc := complianceService.UserLocation(userID)

		day, err := parseDay(c, loc)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "date must be YYYY-MM-DD",
			})
		}

		stats, err := complianceService.RecomputeWeeklyStats(userID, day, loc)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})

	group.Get("/monthly", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		loc := complianceService.UserLocation(userID)

		day, err := parseDay(c, loc)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "date must be YYYY-MM-DD",
			})
		}

		stats, err := complianceService.RecomputeMonthlyStats(userID, day, loc)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})
}
