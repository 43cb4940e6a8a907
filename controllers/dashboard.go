package controllers

import (
	"fmt"
	"time"

	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type DashboardController struct {
	dashboards *services.DashboardService
	analytics  *services.AnalyticsService
}

func NewDashboardController(dashboards *services.DashboardService, analytics *services.AnalyticsService) *DashboardController {
	return &DashboardController{dashboards: dashboards, analytics: analytics}
}

func (dc *DashboardController) GetPrincipalDashboard(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	out, err := dc.dashboards.Principal(c.UserContext(), user.SchoolID)
	if err != nil {
		return fail(c, err, "dashboard")
	}
	return c.JSON(out)
}

func (dc *DashboardController) GetTeacherDashboard(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	out, err := dc.dashboards.Teacher(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(out)
}

func (dc *DashboardController) GetAnalytics(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	out, err := dc.analytics.Compute(c.UserContext(), user.SchoolID)
	if err != nil {
		return fail(c, err, "analytics")
	}
	return c.JSON(out)
}

// ExportAnalytics downloads the analytics workbook. ?archive=true also keeps
// a copy in storage and returns its URL in X-Archive-URL.
func (dc *DashboardController) ExportAnalytics(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	data, url, err := dc.analytics.Export(c.UserContext(), user.SchoolID, c.QueryBool("archive"))
	if err != nil {
		return fail(c, err, "analytics export")
	}
	if url != "" {
		c.Set("X-Archive-URL", url)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, services.ExportFileName(time.Now())))
	return c.Send(data)
}
