package controllers

import (
	"time"

	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type MetricsController struct {
	metrics *services.MetricsService
}

func NewMetricsController(metrics *services.MetricsService) *MetricsController {
	return &MetricsController{metrics: metrics}
}

// ComputeMetrics snapshots the school for {year, month}, the previous month when omitted.
func (mc *MetricsController) ComputeMetrics(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidBody(c)
		}
	}
	year, month := services.PreviousMonth(time.Now())
	if req.Year != 0 || req.Month != 0 {
		year, month = req.Year, time.Month(req.Month)
	}

	written, err := mc.metrics.ComputeMonth(c.UserContext(), user.SchoolID, year, month)
	if err != nil {
		return fail(c, err, "metrics")
	}
	return c.JSON(fiber.Map{
		"message":  "Metrics computed",
		"year":     year,
		"month":    int(month),
		"teachers": written,
	})
}

func (mc *MetricsController) GetTeacherMetrics(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	out, err := mc.metrics.ForSchoolTeacher(c.UserContext(), user.SchoolID, c.Params("id"), queryLimit(c, 12))
	if err != nil {
		return fail(c, err, "Teacher")
	}
	return c.JSON(fiber.Map{"metrics": out})
}

func (mc *MetricsController) GetMyMetrics(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	out, err := mc.metrics.Mine(c.UserContext(), user.ID, queryLimit(c, 12))
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(fiber.Map{"metrics": out})
}
