package handlers

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"break-timer-system/middleware"
	"break-timer-system/models"
	"break-timer-system/services"
	"break-timer-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
)

func SetupGamificationRoutes(
	app *fiber.App,
	progressionService *services.ProgressionService,
	badgeService *services.BadgeService,
	challengeService *services.ChallengeService,
) {
	group := app.Group("/", middleware.UserContextMiddleware())

	group.Get("/user/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		progress, err := progressionService.Progress(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(progress)
	})

	group.Get("/user/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		badges, err := badgeService.UserBadges(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(badges)
	})

	group.Get("/user/activity", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "20"))
		if limit < 1 || limit > 100 {
			limit = 20
		}

		var entries []models.ActivityFeedEntry
		err := progressionService.DB.
			Where("external_user_id = ?", userID).
			Order("created_at DESC").
			Limit(limit).
			Find(&entries).Error
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(entries)
	})

	group.Get("/challenges", func(c *fiber.Ctx) error {
		challenges, err := challengeService.ActiveChallenges(time.Now().UTC())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(challenges)
	})

	group.Post("/challenges/:id/join", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		participation, err := challengeService.JoinChallenge(userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(participation)
	})

	group.Get("/user/challenges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		participations, err := challengeService.UserParticipations(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(participations)
	})

	// Admin endpoints
	adminGroup := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	adminGroup.Post("/badges", func(c *fiber.Ctx) error {
		name := c.FormValue("name")
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "name is required",
			})
		}

		var requirements models.BadgeRequirements
		if raw := c.FormValue("requirements"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &requirements); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "requirements must be a JSON array",
					"cause": err.Error(),
				})
			}
		}
		if len(requirements) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "at least one requirement is required",
			})
		}

		reward, _ := strconv.ParseInt(c.FormValue("experience_reward", "0"), 10, 64)
		badge := &models.Badge{
			Code:             slug.Make(name),
			Name:             name,
			Description:      c.FormValue("description"),
			Icon:             c.FormValue("icon"),
			Category:         c.FormValue("category"),
			Rarity:           c.FormValue("rarity", "common"),
			Requirements:     requirements,
			ExperienceReward: reward,
			IsActive:         true,
		}

		if fileHeader, err := c.FormFile("icon_file"); err == nil {
			url, uploadErr := utils.UploadIconToR2(fileHeader, "badges", badge.Code)
			if uploadErr != nil {
				log.Printf("⚠️ Icon upload failed for badge %s: %v", badge.Code, uploadErr)
			} else {
				badge.IconURL = url
			}
		}

		if err := badgeService.CreateBadge(badge); err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(badge)
	})

	adminGroup.Post("/challenges", func(c *fiber.Ctx) error {
		name := c.FormValue("name")
		metric := models.ChallengeMetric(c.FormValue("metric"))
		target, _ := strconv.ParseInt(c.FormValue("target_value", "0"), 10, 64)

		switch metric {
		case models.MetricSessions, models.MetricCompliantBreaks, models.MetricWorkMinutes, models.MetricStreakDays:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "metric must be one of sessions, compliant_breaks, work_minutes, streak_days",
			})
		}
		if name == "" || target < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "name and a positive target_value are required",
			})
		}

		startDate, err := time.Parse("2006-01-02", c.FormValue("start_date"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "start_date must be YYYY-MM-DD",
			})
		}
		endDate, err := time.Parse("2006-01-02", c.FormValue("end_date"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "end_date must be YYYY-MM-DD",
			})
		}

		reward, _ := strconv.ParseInt(c.FormValue("experience_reward", "50"), 10, 64)
		challenge := &models.Challenge{
			Code:             slug.Make(name),
			Name:             name,
			Description:      c.FormValue("description"),
			Metric:           metric,
			TargetValue:      target,
			StartDate:        startDate,
			EndDate:          endDate.Add(24*time.Hour - time.Second), // inclusive end day
			IsActive:         true,
			ExperienceReward: reward,
		}

		if fileHeader, err := c.FormFile("icon_file"); err == nil {
			url, uploadErr := utils.UploadIconToR2(fileHeader, "challenges", challenge.Code)
			if uploadErr != nil {
				log.Printf("⚠️ Icon upload failed for challenge %s: %v", challenge.Code, uploadErr)
			} else {
				challenge.IconURL = url
			}
		}

		if err := challengeService.CreateChallenge(challenge); err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(challenge)
	})

	adminGroup.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			XP     int64  `json:"xp"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id is required",
			})
		}
		if req.Reason == "" {
			req.Reason = "admin_grant"
		}

		level, leveledUp, err := progressionService.AwardExperience(req.UserID, req.XP, req.Reason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"level":      level,
			"leveled_up": leveledUp,
		})
	})
}
