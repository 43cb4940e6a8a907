package controllers

import (
	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type AchievementController struct {
	achievements *services.AchievementService
}

func NewAchievementController(achievements *services.AchievementService) *AchievementController {
	return &AchievementController{achievements: achievements}
}

// GetBadges returns the badge catalog.
func (ac *AchievementController) GetBadges(c *fiber.Ctx) error {
	badges, err := ac.achievements.Catalog(c.UserContext())
	if err != nil {
		return fail(c, err, "badges")
	}
	return c.JSON(fiber.Map{"badges": badges})
}

func (ac *AchievementController) AwardBadge(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Badge code is required"})
	}
	award, created, err := ac.achievements.Award(c.UserContext(), user, c.Params("id"), req.Code)
	if err != nil {
		return fail(c, err, "Teacher")
	}
	if !created {
		return c.JSON(fiber.Map{"message": "Badge already awarded", "award": award})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Badge awarded successfully", "award": award})
}

func (ac *AchievementController) GetLeaderboard(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	entries, err := ac.achievements.Leaderboard(c.UserContext(), user.SchoolID, queryLimit(c, 10))
	if err != nil {
		return fail(c, err, "leaderboard")
	}
	return c.JSON(fiber.Map{"leaderboard": entries})
}

func (ac *AchievementController) GetMyAchievements(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	out, err := ac.achievements.MyAchievements(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(out)
}
