package controllers

import (
	"bytes"
	"fmt"
	"time"

	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type ActivityController struct {
	activity *services.ActivityService
}

func NewActivityController(activity *services.ActivityService) *ActivityController {
	return &ActivityController{activity: activity}
}

func activityQuery(c *fiber.Ctx) services.ActivityQuery {
	page, limit := pageParams(c)
	return services.ActivityQuery{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		From:     c.Query("from"),
		To:       c.Query("to"),
		Page:     page,
		Limit:    limit,
	}
}

// GetActivity lists the school's activity log with filters and pagination.
func (ac *ActivityController) GetActivity(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	q := activityQuery(c)
	logs, total, err := ac.activity.List(c.UserContext(), user.SchoolID, q)
	if err != nil {
		return fail(c, err, "activity logs")
	}
	return c.JSON(fiber.Map{
		"logs":       logs,
		"pagination": pagination(q.Page, q.Limit, total),
	})
}

func (ac *ActivityController) ExportActivity(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := ac.activity.ExportCSV(c.UserContext(), user.SchoolID, activityQuery(c), &buf); err != nil {
		return fail(c, err, "activity export")
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="activity_%s.csv"`, time.Now().Format("20060102")))
	return c.Send(buf.Bytes())
}

func (ac *ActivityController) GetActivityStats(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	stats, err := ac.activity.Stats(c.UserContext(), user.SchoolID)
	if err != nil {
		return fail(c, err, "activity stats")
	}
	return c.JSON(stats)
}
